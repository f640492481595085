// Package llm asks an OpenAI-compatible chat model for the narration script.
// The raw reply is returned untouched; validation happens in director.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog/log"

	"github.com/ivlev/manhwa2video/internal/config"
)

var ErrNoAPIKey = errors.New("llm api key not configured")

// Request carries everything the model sees for one story.
type Request struct {
	Title  string
	Genre  string
	OCR    []string // per panel, aligned with Images
	Images [][]byte // JPEG
}

// Generator produces a raw JSON script.
type Generator interface {
	GenerateScript(ctx context.Context, req Request) (string, error)
}

type Client struct {
	client    openai.Client
	cfg       config.LLMConfig
	maxImages int
}

func New(cfg config.LLMConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(max(cfg.Attempts-1, 0)),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{client: openai.NewClient(opts...), cfg: cfg, maxImages: cfg.MaxImages}, nil
}

// SampleIndices picks at most limit indices out of n, spread evenly and
// always including the first and last.
func SampleIndices(n, limit int) []int {
	if n <= 0 {
		return nil
	}
	if limit <= 0 || n <= limit {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	if limit == 1 {
		return []int{0}
	}
	idx := make([]int, limit)
	for i := range idx {
		idx[i] = i * (n - 1) / (limit - 1)
	}
	return idx
}

// Prompt is the instruction block sent ahead of the panels.
func Prompt(title, genre string, maxScenes int) string {
	return fmt.Sprintf(`You are a popular manhwa recap narrator.

Rules:
1. Narrate in present tense, in a friendly, engaging tone.
2. Create one scene object per panel worth narrating, in reading order.
3. Describe what the panel shows and weave dialogue and inner thoughts into the narration.
4. image_page_index refers to the [PANEL n] label of the image the scene shows.
5. crop_coordinates are optional: [x1, y1, x2, y2] in 0..1000 of the panel, to focus on a detail.
6. animation_type is optional: static_zoom, pan_down or focus_character.
7. At most %d scenes. Return ONLY valid JSON, no markdown.

Output format:
{"full_narration": "string", "scenes": [{"narration_segment": "string", "image_page_index": 0, "crop_coordinates": [0, 0, 1000, 1000], "animation_type": "static_zoom"}]}

Title: %s
Genre: %s`, maxScenes, title, genre)
}

func (c *Client) GenerateScript(ctx context.Context, req Request) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(Prompt(req.Title, req.Genre, c.cfg.MaxScenes)),
	}
	sampled := SampleIndices(len(req.Images), c.maxImages)
	if len(sampled) < len(req.Images) {
		log.Info().Int("panels", len(req.Images)).Int("sent", len(sampled)).Msg("sampling panels for the language model")
	}
	for _, i := range sampled {
		url := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.Images[i])
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
		text := ""
		if i < len(req.OCR) {
			text = req.OCR[i]
		}
		parts = append(parts, openai.TextContentPart(fmt.Sprintf("[PANEL %d] OCR:\n%s\nExplain this panel.", i, text)))
	}
	parts = append(parts, openai.TextContentPart("Return ONLY JSON. No markdown."))

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
		Model:       c.cfg.Model,
		Temperature: openai.Float(0.4),
		MaxTokens:   openai.Int(4096),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: no choices returned")
	}
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if raw == "" {
		return "", errors.New("llm: empty reply")
	}
	return raw, nil
}
