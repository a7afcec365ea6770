package icons

import (
	"bytes"
	"image/color"
	"image/png"
	"sort"
	"testing"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
		ok   bool
	}{
		{"red", color.RGBA{0xff, 0, 0, 0xff}, true},
		{" Navy ", color.RGBA{0, 0, 0x80, 0xff}, true},
		{"#1f6feb", color.RGBA{0x1f, 0x6f, 0xeb, 0xff}, true},
		{"#fff", color.RGBA{0xff, 0xff, 0xff, 0xff}, true},
		{"#12345", color.RGBA{}, false},
		{"#zzzzzz", color.RGBA{}, false},
		{"not-a-color", color.RGBA{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseColor(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseColor(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRender(t *testing.T) {
	for _, tc := range []struct{ name, color string }{
		{"gavel", "darkblue"},
		{"unknown-icon", "#abc"},
		{"school", "not-a-color"},
	} {
		data, err := Render(tc.name, tc.color, 64)
		if err != nil {
			t.Fatalf("Render(%q, %q): %v", tc.name, tc.color, err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("output is not a PNG: %v", err)
		}
		if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
			t.Errorf("bounds = %v", b)
		}
		if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
			t.Errorf("corner should be transparent")
		}
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if !sort.StringsAreSorted(names) {
		t.Error("Names not sorted")
	}
	if !Known(DefaultName) {
		t.Error("default icon missing from catalogue")
	}
}
