// Package llm produces the spoken reply and its emotion label for a user
// turn.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog"

	"github.com/novalink/voice-stream/internal/emotion"
)

// DefaultSystemPrompt asks the model for the reply shape ParseReply reads
const DefaultSystemPrompt = "You are Nova, an empathetic companion living inside a game engine. " +
	"Always respond with a compact JSON object shaped as {\"emotion\": <emotion>, \"text\": <reply>}. " +
	"Supported emotions: Neutral, Happy, Sad, Angry, Disgust, Fear, Surprise."

// Turn is one earlier exchange in the conversation
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Result is the model's reply for one user turn
type Result struct {
	Emotion string `json:"emotion"`
	Text    string `json:"text"`
}

// Generator produces a reply for input given the conversation so far
type Generator interface {
	Generate(ctx context.Context, input string, history []Turn) (*Result, error)
}

// ParseReply coerces raw model output into a Result. The outermost braces
// are parsed as JSON, repaired if necessary; output without usable JSON
// becomes a Neutral reply carrying the raw text.
func ParseReply(raw string, logger zerolog.Logger) *Result {
	raw = strings.TrimSpace(raw)
	fallback := &Result{Emotion: emotion.Neutral, Text: raw}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		logger.Warn().Str("output", raw).Msg("Model output lacked JSON braces")
		return fallback
	}
	candidate := raw[start : end+1]

	var payload map[string]any
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		fixed, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			logger.Warn().Err(err).Str("output", candidate).Msg("Failed to parse JSON from model output")
			return fallback
		}
		payload = nil
		if err := json.Unmarshal([]byte(fixed), &payload); err != nil {
			logger.Warn().Err(err).Str("output", candidate).Msg("Failed to parse repaired model output")
			return fallback
		}
		logger.Debug().Msg("Repaired malformed model JSON")
	}

	res := &Result{Emotion: emotion.Neutral, Text: raw}
	if v, ok := payload["emotion"].(string); ok && v != "" {
		res.Emotion = v
	}
	if v, ok := payload["text"].(string); ok {
		res.Text = v
	}
	return res
}
