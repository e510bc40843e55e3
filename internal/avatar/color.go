package avatar

import "math/rand/v2"

// Color is a named colour from the fixed [Palette].
type Color string

const (
	ColorRed        Color = "red"
	ColorPink       Color = "pink"
	ColorPurple     Color = "purple"
	ColorDeepPurple Color = "deepPurple"
	ColorIndigo     Color = "indigo"
	ColorBlue       Color = "blue"
	ColorLightBlue  Color = "lightBlue"
	ColorCyan       Color = "cyan"
	ColorTeal       Color = "teal"
	ColorGreen      Color = "green"
	ColorLightGreen Color = "lightGreen"
	ColorLime       Color = "lime"
	ColorYellow     Color = "yellow"
	ColorAmber      Color = "amber"
	ColorOrange     Color = "orange"
	ColorDeepOrange Color = "deepOrange"
	ColorBrown      Color = "brown"
	ColorGrey       Color = "grey"
	ColorBlueGrey   Color = "blueGrey"
)

// Palette lists every valid [Color] in display order.
var Palette = []Color{
	ColorRed, ColorPink, ColorPurple, ColorDeepPurple, ColorIndigo,
	ColorBlue, ColorLightBlue, ColorCyan, ColorTeal, ColorGreen,
	ColorLightGreen, ColorLime, ColorYellow, ColorAmber, ColorOrange,
	ColorDeepOrange, ColorBrown, ColorGrey, ColorBlueGrey,
}

// IsValid reports whether c is part of the palette.
func (c Color) IsValid() bool {
	for _, p := range Palette {
		if p == c {
			return true
		}
	}
	return false
}

// RandomColor picks a palette colour uniformly at random.
func RandomColor() Color {
	return Palette[rand.IntN(len(Palette))]
}
