package effects

import (
	"math"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"static_zoom", StaticZoom},
		{"pan_down", PanDown},
		{" Focus_Character ", FocusCharacter},
		{"", StaticZoom},
		{"spin", StaticZoom},
	}
	for _, tt := range tests {
		if got := ParseMode(tt.in); got != tt.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestZoomScale(t *testing.T) {
	tests := []struct {
		mode     Mode
		t, dur   float64
		expected float64
	}{
		{StaticZoom, 0, 4, 1.05},
		{StaticZoom, 2, 4, 1.025},
		{StaticZoom, 4, 4, 1.0},
		{FocusCharacter, 0, 3, 1.15},
		{FocusCharacter, 1.5, 3, 1.075},
		{FocusCharacter, 3, 3, 1.0},
		{FocusCharacter, 5, 3, 1.0}, // past the end
	}

	for _, tt := range tests {
		got := New(tt.mode).Place(Progress(tt.t, tt.dur), 1000, 1920).Scale
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("%s at %.1f/%.1f: expected scale %.4f, got %.4f", tt.mode, tt.t, tt.dur, tt.expected, got)
		}
	}
}

func TestPanDown(t *testing.T) {
	eff := New(PanDown)

	start := eff.Place(0, 3000, 1920)
	if !start.Pan || start.OffsetY != 0 {
		t.Errorf("Expected pan starting at 0, got %+v", start)
	}

	mid := eff.Place(0.5, 3000, 1920)
	if mid.OffsetY != -540 {
		t.Errorf("Expected offset -540 at half way, got %f", mid.OffsetY)
	}

	end := eff.Place(1, 3000, 1920)
	if end.OffsetY != -1080 {
		t.Errorf("Expected offset -1080 at the end, got %f", end.OffsetY)
	}

	short := eff.Place(0.5, 1000, 1920)
	if short.Pan || short.Scale != 1 {
		t.Errorf("Short panels should be static and centered, got %+v", short)
	}
}

func TestProgressZeroDuration(t *testing.T) {
	if p := Progress(1, 0); p != 1 {
		t.Errorf("Expected progress 1 for zero duration, got %f", p)
	}
}
