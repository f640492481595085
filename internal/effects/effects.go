package effects

import "strings"

// Mode selects how a panel moves during its scene.
type Mode string

const (
	StaticZoom     Mode = "static_zoom"     // slow zoom-in, 105% -> 100%
	PanDown        Mode = "pan_down"        // vertical scroll over tall panels
	FocusCharacter Mode = "focus_character" // fast zoom-in, 115% -> 100%
)

// ParseMode maps free-form input to a Mode. Unknown or empty values are StaticZoom.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case PanDown:
		return PanDown
	case FocusCharacter:
		return FocusCharacter
	default:
		return StaticZoom
	}
}

// Placement describes one frame of motion relative to the fitted panel.
type Placement struct {
	Scale   float64 // 1.0 = fitted size
	Pan     bool    // OffsetY positions the top edge; otherwise centered
	OffsetY float64
}

// Effect computes the placement of a panel of height h on a canvas of
// height canvasH at progress p in [0, 1].
type Effect interface {
	Place(p float64, h, canvasH int) Placement
}

// New returns the Effect for a mode.
func New(mode Mode) Effect {
	switch mode {
	case PanDown:
		return panEffect{}
	case FocusCharacter:
		return zoomEffect{from: 1.15}
	default:
		return zoomEffect{from: 1.05}
	}
}

type zoomEffect struct {
	from float64
}

func (z zoomEffect) Place(p float64, h, canvasH int) Placement {
	p = Clamp01(p)
	return Placement{Scale: z.from - (z.from-1)*p}
}

type panEffect struct{}

func (panEffect) Place(p float64, h, canvasH int) Placement {
	if h <= canvasH {
		return Placement{Scale: 1}
	}
	p = Clamp01(p)
	return Placement{Scale: 1, Pan: true, OffsetY: -p * float64(h-canvasH)}
}

// Progress converts elapsed time into [0, 1].
func Progress(t, duration float64) float64 {
	if duration <= 0 {
		return 1
	}
	return Clamp01(t / duration)
}

func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
