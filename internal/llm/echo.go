package llm

import (
	"context"
	"slices"
	"strings"

	"github.com/novalink/voice-stream/internal/emotion"
)

// EchoGenerator replies with the input unchanged. A leading "label:" prefix
// naming a known emotion sets the reply emotion.
type EchoGenerator struct{}

// Generate implements Generator
func (EchoGenerator) Generate(ctx context.Context, input string, _ []Turn) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input = strings.TrimSpace(input)
	if label, text, ok := strings.Cut(input, ":"); ok {
		if c := emotion.Canonical(label); slices.Contains(emotion.Categories, c) {
			return &Result{Emotion: c, Text: strings.TrimSpace(text)}, nil
		}
	}
	return &Result{Emotion: emotion.Neutral, Text: input}, nil
}
