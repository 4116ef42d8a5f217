// Package keybindings maps keyboard events of the serial console to actions.
package keybindings

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Key describes the console keybinding type.
type Key string

// The different console keybinding types.
const (
	KeySend       Key = "Send"
	KeyQuit       Key = "Quit"
	KeyDisconnect Key = "Disconnect"
	KeyClear      Key = "Clear"
	KeyToggleHex  Key = "ToggleHex"
	KeySuspend    Key = "Suspend"
	KeyScrollUp   Key = "ScrollUp"
	KeyScrollDown Key = "ScrollDown"
)

// KeyData stores the metadata for the key.
type KeyData struct {
	Title string
	Kb    Keybinding
}

// Keybinding stores the keybinding.
type Keybinding struct {
	Key  tcell.Key
	Rune rune
	Mod  tcell.ModMask
}

// Keybindings holds the console keybindings.
type Keybindings struct {
	keyData map[Key]*KeyData
	lookup  map[Keybinding]Key
}

var translateKeys = map[string]string{
	"Pgup":      "PgUp",
	"Pgdn":      "PgDn",
	"Pageup":    "PgUp",
	"Pagedown":  "PgDn",
	"Backspace": "Backspace2",
}

// NewKeybindings returns the default keybindings.
func NewKeybindings() *Keybindings {
	k := &Keybindings{
		keyData: map[Key]*KeyData{
			KeySend:       {"Send", Keybinding{tcell.KeyEnter, ' ', tcell.ModNone}},
			KeyQuit:       {"Quit", Keybinding{tcell.KeyCtrlQ, ' ', tcell.ModCtrl}},
			KeyDisconnect: {"Disconnect", Keybinding{tcell.KeyCtrlD, ' ', tcell.ModCtrl}},
			KeyClear:      {"Clear", Keybinding{tcell.KeyCtrlL, ' ', tcell.ModCtrl}},
			KeyToggleHex:  {"Hex View", Keybinding{tcell.KeyCtrlT, ' ', tcell.ModCtrl}},
			KeySuspend:    {"Suspend", Keybinding{tcell.KeyCtrlZ, ' ', tcell.ModCtrl}},
			KeyScrollUp:   {"Scroll Up", Keybinding{tcell.KeyPgUp, ' ', tcell.ModNone}},
			KeyScrollDown: {"Scroll Down", Keybinding{tcell.KeyPgDn, ' ', tcell.ModNone}},
		},
	}
	k.index()

	return k
}

// Data returns the key data associated with the key.
func (k *Keybindings) Data(key Key) *KeyData {
	return k.keyData[key]
}

// Key returns the key bound to the keyboard event, or an empty key.
func (k *Keybindings) Key(event *tcell.EventKey) Key {
	ch := event.Rune()
	if event.Key() != tcell.KeyRune {
		ch = ' '
	}

	mod := event.Modifiers()
	if unicode.IsUpper(ch) && mod&tcell.ModShift != 0 {
		mod &^= tcell.ModShift
	}

	return k.lookup[Keybinding{event.Key(), ch, mod}]
}

// Name formats and returns the keybinding's name.
func (k *Keybindings) Name(kb Keybinding) string {
	if kb.Key == tcell.KeyRune {
		keyname := string(kb.Rune)
		if kb.Rune == ' ' {
			keyname = "Space"
		}

		if kb.Mod&tcell.ModAlt != 0 {
			keyname = "Alt+" + keyname
		}

		return keyname
	}

	return tcell.NewEventKey(kb.Key, kb.Rune, kb.Mod).Name()
}

// Help returns a one-line summary of the keybindings.
func (k *Keybindings) Help() string {
	var help []string

	for _, key := range slices.Sorted(maps.Keys(k.keyData)) {
		data := k.keyData[key]
		help = append(help, data.Title+": "+k.Name(data.Kb))
	}

	return strings.Join(help, " | ")
}

// Validate applies the keybindings from the configuration, and checks that
// no two keys share a keybinding.
func (k *Keybindings) Validate(kbMap map[string]string) error {
	if len(kbMap) == 0 {
		return nil
	}

	keyNames := make(map[string]tcell.Key)
	for key, names := range tcell.KeyNames {
		keyNames[names] = key
	}

	for keyType, key := range kbMap {
		data, ok := k.keyData[Key(keyType)]
		if !ok {
			return fmt.Errorf("config: Invalid key type %s", keyType)
		}

		kb, err := parseKeybinding(key, keyNames)
		if err != nil {
			return fmt.Errorf("config: %s: %w", keyType, err)
		}

		data.Kb = kb
	}

	seen := make(map[Keybinding]Key)
	for _, key := range slices.Sorted(maps.Keys(k.keyData)) {
		kb := k.keyData[key].Kb
		if existing, ok := seen[kb]; ok {
			return fmt.Errorf("config: %s will override %s (%s)", key, existing, k.Name(kb))
		}

		seen[kb] = key
	}

	k.index()

	return nil
}

func (k *Keybindings) index() {
	k.lookup = make(map[Keybinding]Key, len(k.keyData))
	for key, data := range k.keyData {
		k.lookup[data.Kb] = key
	}
}

// parseKeybinding parses a keybinding such as "Ctrl+t", "Alt+x" or "PgUp".
//
//gocyclo:ignore
func parseKeybinding(key string, keyNames map[string]tcell.Key) (Keybinding, error) {
	var runes []rune
	var keys []tcell.Key

	keybinding := Keybinding{
		Key:  tcell.KeyRune,
		Rune: ' ',
		Mod:  tcell.ModNone,
	}

	tokens := strings.FieldsFunc(key, func(c rune) bool {
		return unicode.IsSpace(c) || c == '+'
	})

	for _, token := range tokens {
		length := runewidth.StringWidth(token)
		if length == 1 {
			c, _ := utf8.DecodeRuneInString(token)

			keybinding.Rune = c
			runes = append(runes, c)

			continue
		}

		token = cases.Title(language.Und, cases.NoLower).String(token)
		if translated, ok := translateKeys[token]; ok {
			token = translated
		}

		switch token {
		case "Ctrl":
			keybinding.Mod |= tcell.ModCtrl

		case "Alt":
			keybinding.Mod |= tcell.ModAlt

		case "Shift":
			keybinding.Mod |= tcell.ModShift

		case "Space", "Plus":
			keybinding.Rune = ' '
			if token == "Plus" {
				keybinding.Rune = '+'
			}

			runes = append(runes, keybinding.Rune)

		default:
			if k, ok := keyNames[token]; ok {
				keybinding.Key = k
				keybinding.Rune = ' '
				keys = append(keys, k)
			}
		}
	}

	if keys != nil && runes != nil || len(runes) > 1 || len(keys) > 1 {
		return keybinding, fmt.Errorf("more than one key entered (%s)", key)
	}

	if keybinding.Mod&tcell.ModShift != 0 {
		keybinding.Rune = unicode.ToUpper(keybinding.Rune)

		if unicode.IsLetter(keybinding.Rune) {
			keybinding.Mod &^= tcell.ModShift
		}
	}

	if keybinding.Mod&tcell.ModCtrl != 0 {
		var modKey string

		switch {
		case len(keys) > 0:
			modKey = tcell.KeyNames[keybinding.Key]

		case len(runes) > 0:
			if keybinding.Rune == ' ' {
				modKey = "Space"
			} else {
				modKey = string(unicode.ToUpper(keybinding.Rune))
			}
		}

		if modKey != "" {
			if k, ok := keyNames["Ctrl-"+modKey]; ok {
				keybinding.Key = k
				keybinding.Rune = ' '
				keys = append(keys, k)
			}
		}
	}

	if keys == nil && runes == nil {
		return keybinding, fmt.Errorf("no key specified or invalid keybinding (%s)", key)
	}

	return keybinding, nil
}
