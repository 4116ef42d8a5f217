package theme

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Wrap wraps the text content with the context's color.
func (t Theme) Wrap(context Context, content string, attributes ...string) string {
	attr := "::b"
	if attributes != nil {
		attr = attributes[0]
	}

	return fmt.Sprintf("[%s%s]%s[-:-:-]", t[context], attr, content)
}

// Highlight wraps the text content so that it is shown on a background of
// the context's color.
func (t Theme) Highlight(context Context, content string) string {
	return fmt.Sprintf("[#%06x:%s:b]%s[-:-:-]", t.Contrast(context).Hex(), t[context], content)
}

// Color returns the color of the context.
func (t Theme) Color(context Context) tcell.Color {
	color := t[context]
	if color == "black" {
		return tcell.Color16
	}

	return tcell.GetColor(color)
}

// Contrast returns a color that is visible on top of the context's color.
func (t Theme) Contrast(context Context) tcell.Color {
	if isLightColor(t.Color(context)) {
		return tcell.ColorBlack
	}

	return tcell.ColorWhite
}

// isLightColor checks if the given color is a light color.
// Adapted from:
// https://github.com/bgrins/TinyColor/blob/master/tinycolor.js#L68
func isLightColor(color tcell.Color) bool {
	r, g, b := color.RGB()
	brightness := (r*299 + g*587 + b*114) / 1000

	return brightness > 130
}

// isValidElementColor returns whether the color name is valid.
func isValidElementColor(color string) bool {
	return color == "transparent" || tcell.GetColor(color) != tcell.ColorDefault
}
