package speech

import (
	"context"
	"errors"
	"testing"
)

func collect(t *testing.T, src TokenSource, ctx context.Context, text string) ([]Token, error) {
	t.Helper()
	var tokens []Token
	for tok, err := range src.Stream(ctx, text) {
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

func TestSyntheticSource_Shape(t *testing.T) {
	src := NewSyntheticSource()
	tokens, err := collect(t, src, context.Background(), "hi there")
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	wantAudio := len("hi there") * src.FramesPerRune * CodebooksPerFrame
	if len(tokens) != wantAudio+4 {
		t.Fatalf("Expected %d tokens, got %d", wantAudio+4, len(tokens))
	}
	if tokens[0] != StartOfAI || tokens[1] != StartOfSpeech {
		t.Errorf("Expected AI and speech start markers, got %v %v", tokens[0], tokens[1])
	}
	if tokens[len(tokens)-2] != EndOfSpeech || tokens[len(tokens)-1] != EndOfAI {
		t.Error("Expected speech and AI end markers")
	}

	frames := FramesOf(tokens[2 : len(tokens)-2])
	codes, err := Codes(frames)
	if err != nil {
		t.Fatalf("Expected valid codes, got %v", err)
	}
	// The space is the third rune
	space := codes[2*src.FramesPerRune]
	if space != (Code{}) {
		t.Errorf("Expected silent frame for whitespace, got %v", space)
	}
	for _, c := range codes {
		for _, v := range c {
			if v >= CodebookSize {
				t.Fatalf("Code %d out of range", v)
			}
		}
	}
}

func TestSyntheticSource_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := collect(t, NewSyntheticSource(), ctx, "hello")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSyntheticSource_EarlyBreak(t *testing.T) {
	n := 0
	for range NewSyntheticSource().Stream(context.Background(), "a long sentence") {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("Expected to stop after 3 tokens, got %d", n)
	}
}

func TestSliceSource(t *testing.T) {
	src := SliceSource{StartOfSpeech, TokenFor(0, 1), EndOfSpeech}
	tokens, err := collect(t, src, context.Background(), "ignored")
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(tokens) != 3 || tokens[1] != TokenFor(0, 1) {
		t.Errorf("Expected replayed tokens, got %v", tokens)
	}
}
