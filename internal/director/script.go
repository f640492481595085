package director

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ivlev/manhwa2video/internal/effects"
)

// ValidationError describes why generated script output was rejected
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "script validation failed: " + e.Reason
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ExtractJSON pulls the first JSON object out of model output that may be
// wrapped in markdown fences or prose.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			text = strings.TrimSpace(rest[:j])
		}
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth, inString, escaped := 0, false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// ValidateScript checks raw generator output against the script schema:
// a non-empty "scenes" array whose items carry a string narration_segment
// and an integer image_page_index. Out-of-range panel indices are clamped
// to 0. Optional crop_coordinates and animation_type are defaulted. Items
// that break the schema are skipped; the script is rejected only when no
// item survives or every narration is empty.
func ValidateScript(raw string, panelCount, maxScenes int) (Script, error) {
	body := ExtractJSON(raw)
	if body == "" {
		return Script{}, invalid("no JSON object in response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return Script{}, invalid("malformed JSON: %v", err)
	}

	rawScenes, ok := doc["scenes"]
	if !ok {
		return Script{}, invalid("missing key \"scenes\"")
	}
	items, ok := rawScenes.([]any)
	if !ok {
		return Script{}, invalid("\"scenes\" is not a list")
	}
	if len(items) == 0 {
		return Script{}, invalid("\"scenes\" is empty")
	}
	if maxScenes > 0 && len(items) > maxScenes {
		log.Warn().Int("scenes", len(items)).Int("max", maxScenes).Msg("script truncated")
		items = items[:maxScenes]
	}

	script := Script{Scenes: make([]Segment, 0, len(items))}
	spoken := 0
	for i, item := range items {
		seg, err := parseScene(i, item, panelCount)
		if err != nil {
			log.Warn().Err(err).Int("scene", i).Msg("skipping malformed scene")
			continue
		}
		if seg.Narration != "" {
			spoken++
		}
		script.Scenes = append(script.Scenes, seg)
	}
	if len(script.Scenes) == 0 {
		return Script{}, invalid("no valid scene in %d", len(items))
	}
	if spoken == 0 {
		return Script{}, invalid("every narration_segment is empty")
	}

	if full, ok := doc["full_narration"].(string); ok && strings.TrimSpace(full) != "" {
		script.FullNarration = strings.TrimSpace(full)
	} else {
		parts := make([]string, 0, len(script.Scenes))
		for _, s := range script.Scenes {
			if s.Narration != "" {
				parts = append(parts, s.Narration)
			}
		}
		script.FullNarration = strings.Join(parts, " ")
	}
	return script, nil
}

// parseScene checks one scenes item. Out-of-range panel indices are clamped
// to 0; any other violation rejects the item.
func parseScene(i int, item any, panelCount int) (Segment, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return Segment{}, invalid("scene %d is not an object", i)
	}
	text, ok := obj["narration_segment"].(string)
	if !ok {
		return Segment{}, invalid("scene %d: narration_segment must be a string", i)
	}
	num, ok := obj["image_page_index"].(json.Number)
	if !ok {
		return Segment{}, invalid("scene %d: image_page_index must be an integer", i)
	}
	idx, err := num.Int64()
	if err != nil {
		return Segment{}, invalid("scene %d: image_page_index must be an integer, got %s", i, num)
	}
	if idx < 0 || idx >= int64(panelCount) {
		log.Warn().Int("scene", i).Int64("index", idx).Int("panels", panelCount).Msg("panel index out of range, using panel 0")
		idx = 0
	}
	mode, _ := obj["animation_type"].(string)
	return Segment{
		Narration:  strings.TrimSpace(text),
		PanelIndex: int(idx),
		Crop:       parseCrop(obj["crop_coordinates"]),
		Animation:  effects.ParseMode(mode),
	}, nil
}

func parseCrop(v any) Crop {
	arr, ok := v.([]any)
	if !ok || len(arr) != 4 {
		return FullCrop
	}
	var c Crop
	for i, x := range arr {
		n, ok := x.(json.Number)
		if !ok {
			return FullCrop
		}
		f, err := n.Float64()
		if err != nil {
			return FullCrop
		}
		c[i] = int(math.Round(math.Max(0, math.Min(1000, f))))
	}
	return c
}

// FallbackScript builds a one-scene script from the recognized text.
func FallbackScript(title, ocrText string) Script {
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	short := []rune(strings.Join(strings.Fields(ocrText), " "))
	if len(short) > 240 {
		short = short[:240]
	}
	summary := strings.TrimSpace(string(short))

	return Script{
		FullNarration: strings.TrimSpace(fmt.Sprintf("This is the story of %s. %s", title, summary)),
		Scenes: []Segment{{
			Narration:  strings.TrimSpace(fmt.Sprintf("%s: %s", title, summary)),
			PanelIndex: 0,
			Crop:       FullCrop,
			Animation:  effects.StaticZoom,
		}},
	}
}

// ResolveScript validates generator output and substitutes the fallback
// script when generation failed or the output is unusable. The boolean
// reports whether the fallback was used.
func ResolveScript(raw string, genErr error, title, ocrText string, panelCount, maxScenes int) (Script, bool) {
	if genErr != nil {
		log.Warn().Err(genErr).Msg("script generation failed, using fallback script")
		return FallbackScript(title, ocrText), true
	}
	script, err := ValidateScript(raw, panelCount, maxScenes)
	if err != nil {
		log.Warn().Err(err).Msg("using fallback script")
		return FallbackScript(title, ocrText), true
	}
	return script, false
}
