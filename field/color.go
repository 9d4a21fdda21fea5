package field

import (
	"fmt"
	"hash/fnv"
)

// Color is an RGB color token used by tables and charts.
type Color struct {
	R, G, B uint8
}

// RGB renders the color as a CSS rgb() value.
func (c Color) RGB() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// RGBA renders the color with an alpha channel.
func (c Color) RGBA(alpha float64) string {
	return fmt.Sprintf("rgba(%d, %d, %d, %.2f)", c.R, c.G, c.B, alpha)
}

var palette = []Color{
	{54, 162, 235},
	{255, 99, 132},
	{255, 159, 64},
	{255, 205, 86},
	{75, 192, 192},
	{153, 102, 255},
	{201, 203, 207},
	{0, 128, 128},
	{220, 20, 60},
	{107, 142, 35},
	{70, 130, 180},
	{210, 105, 30},
}

// ColorFor returns the palette color assigned to a column code. The same
// code always gets the same color.
func ColorFor(code string) Color {
	if code == "" {
		return palette[0]
	}
	h := fnv.New32a()
	h.Write([]byte(code))
	return palette[h.Sum32()%uint32(len(palette))]
}
