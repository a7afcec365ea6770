// Package icons renders chatbot badges. The model picks a name from Names
// and a color; the badge is a colored disc with the name's initials.
package icons

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultName  = "description"
	DefaultColor = "black"
	DefaultSize  = 256
)

// catalogue maps icon names to the labels drawn on the badge.
var catalogue = map[string]string{
	"account_balance":  "AB",
	"analytics":        "AN",
	"article":          "AR",
	"attach_money":     "$",
	"biotech":          "BT",
	"business":         "BU",
	"calculate":        "CA",
	"code":             "</>",
	"computer":         "PC",
	"construction":     "CO",
	"description":      "DO",
	"directions_car":   "CR",
	"eco":              "EC",
	"engineering":      "EN",
	"flight":           "FL",
	"gavel":            "LW",
	"help":             "?",
	"history_edu":      "HI",
	"home":             "HO",
	"language":         "LA",
	"library_books":    "LB",
	"local_hospital":   "+",
	"medical_services": "MD",
	"menu_book":        "BK",
	"music_note":       "MU",
	"palette":          "PA",
	"pets":             "PE",
	"policy":           "PO",
	"psychology":       "PS",
	"public":           "WO",
	"restaurant":       "FO",
	"school":           "ED",
	"science":          "SC",
	"security":         "SE",
	"shopping_cart":    "SH",
	"sports_soccer":    "SP",
	"support_agent":    "SU",
	"travel_explore":   "TR",
	"work":             "WK",
}

// Names returns the catalogue in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(catalogue))
	for n := range catalogue {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func Known(name string) bool {
	_, ok := catalogue[name]
	return ok
}

// ParseColor accepts CSS color names and #rgb / #rrggbb hex codes.
func ParseColor(s string) (color.RGBA, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := colornames.Map[s]; ok {
		return c, true
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.RGBA{}, false
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
}

// Render draws the badge of name in colorName as a size×size PNG. Unknown
// names and colors fall back to DefaultName and DefaultColor.
func Render(name, colorName string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	label, ok := catalogue[name]
	if !ok {
		label = catalogue[DefaultName]
	}
	bg, ok := ParseColor(colorName)
	if !ok {
		bg = colornames.Black
	}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	fillDisc(img, bg)
	drawLabel(img, label, textColor(bg))

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding icon: %w", err)
	}
	return buf.Bytes(), nil
}

func fillDisc(img *image.RGBA, c color.RGBA) {
	size := img.Bounds().Dx()
	r := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)+0.5-r, float64(y)+0.5-r
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// drawLabel renders label with the 7x13 bitmap face and scales it up to
// about half the badge width.
func drawLabel(dst *image.RGBA, label string, c color.Color) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, label).Ceil()
	h := face.Height
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(label)

	size := dst.Bounds().Dx()
	scale := float64(size) * 0.55 / float64(w)
	if maxScale := float64(size) * 0.45 / float64(h); scale > maxScale {
		scale = maxScale
	}
	sw, sh := int(float64(w)*scale), int(float64(h)*scale)
	x0, y0 := (size-sw)/2, (size-sh)/2
	xdraw.NearestNeighbor.Scale(dst, image.Rect(x0, y0, x0+sw, y0+sh), small, small.Bounds(), xdraw.Over, nil)
}

// textColor picks white or black by the background's luminance.
func textColor(bg color.RGBA) color.Color {
	lum := 0.299*float64(bg.R) + 0.587*float64(bg.G) + 0.114*float64(bg.B)
	if lum > 150 {
		return color.Black
	}
	return color.White
}
