package director

import (
	"time"

	"github.com/ivlev/manhwa2video/internal/effects"
)

// Crop is a promille rectangle x1, y1, x2, y2 within a panel
type Crop [4]int

// FullCrop selects the whole panel
var FullCrop = Crop{0, 0, 1000, 1000}

// Segment is one validated narration unit bound to a panel
type Segment struct {
	Narration  string       `json:"narration_segment" yaml:"narration"`
	PanelIndex int          `json:"image_page_index" yaml:"panel"`
	Crop       Crop         `json:"crop_coordinates" yaml:"crop,flow"`
	Animation  effects.Mode `json:"animation_type" yaml:"animation"`
}

// Script is the validated output of the script generator
type Script struct {
	FullNarration string    `json:"full_narration" yaml:"full_narration"`
	Scenes        []Segment `json:"scenes" yaml:"scenes"`
}

// Scene is a Segment placed on the timeline
type Scene struct {
	Segment   `yaml:",inline"`
	Source    int     `yaml:"source"` // index of the segment in the script
	StartTime float64 `yaml:"start_time"`
	Duration  float64 `yaml:"duration"`
	Silent    bool    `yaml:"silent,omitempty"`
	Audio     string  `yaml:"-"` // local audio file, empty for silent scenes
}

// Manifest is everything the render step needs, persisted between the
// story and render commands
type Manifest struct {
	Version   string    `yaml:"version"`
	StoryID   string    `yaml:"story_id"`
	Title     string    `yaml:"title"`
	CreatedAt time.Time `yaml:"created_at"`
	AudioURL  string    `yaml:"audio_url"`
	Duration  float64   `yaml:"duration"`
	Fallback  bool      `yaml:"fallback_script,omitempty"`
	Narration string    `yaml:"full_narration"`
	Panels    []string  `yaml:"panels"`
	Scenes    []Scene   `yaml:"scenes"`
}
