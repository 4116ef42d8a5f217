// Package theme holds the colors of the serial console.
package theme

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Context describes the type of context to apply the color into.
type Context string

// The different context types for themes.
const (
	ThemeText        Context = "Text"
	ThemeBorder      Context = "Border"
	ThemeBackground  Context = "Background"
	ThemeStatusInfo  Context = "StatusInfo"
	ThemeStatusError Context = "StatusError"
	ThemeReceived    Context = "Received"
	ThemeSent        Context = "Sent"
	ThemePeer        Context = "Peer"
	ThemeStateOpen   Context = "StateOpen"
	ThemeStateBusy   Context = "StateBusy"
	ThemeStateIdle   Context = "StateIdle"
	ThemeInput       Context = "Input"
)

// Theme maps each context to a color name.
type Theme map[Context]string

// Default returns the default theme.
func Default() Theme {
	return Theme{
		ThemeText:        "white",
		ThemeBorder:      "white",
		ThemeBackground:  "default",
		ThemeStatusInfo:  "white",
		ThemeStatusError: "red",

		ThemeReceived: "green",
		ThemeSent:     "aqua",
		ThemePeer:     "mediumorchid",

		ThemeStateOpen: "green",
		ThemeStateBusy: "yellow",
		ThemeStateIdle: "grey",

		ThemeInput: "white",
	}
}

// Parse merges the user's theme configuration into the theme.
func (t Theme) Parse(config map[string]string) error {
	for name, color := range config {
		context := Context(name)
		if _, ok := t[context]; !ok {
			return fmt.Errorf("unknown theme context %s (valid contexts are %s)", name, t.contexts())
		}

		if !isValidElementColor(color) {
			return fmt.Errorf("theme configuration is incorrect for %s (%s)", name, color)
		}

		switch color {
		case "black":
			color = "#000000"

		case "transparent":
			color = "default"
		}

		t[context] = color
	}

	return nil
}

func (t Theme) contexts() string {
	names := make([]string, 0, len(t))
	for _, context := range slices.Sorted(maps.Keys(t)) {
		names = append(names, string(context))
	}

	return strings.Join(names, ", ")
}
