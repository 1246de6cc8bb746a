package speech

import (
	"context"
	"iter"
	"unicode"
)

// TokenSource produces the speech model's token stream for a piece of text.
// The sequence ends when the model finishes; an error terminates it.
type TokenSource interface {
	Stream(ctx context.Context, text string) iter.Seq2[Token, error]
}

// SyntheticSource turns text into a deterministic token stream without a
// model. Each letter becomes FramesPerRune frames whose codes are derived
// from the rune, whitespace becomes silent frames (all codes zero).
type SyntheticSource struct {
	FramesPerRune int
}

// NewSyntheticSource creates a synthetic source with two frames per rune
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{FramesPerRune: 2}
}

// Stream implements TokenSource
func (s *SyntheticSource) Stream(ctx context.Context, text string) iter.Seq2[Token, error] {
	perRune := s.FramesPerRune
	if perRune <= 0 {
		perRune = 1
	}
	return func(yield func(Token, error) bool) {
		emit := func(t Token) bool {
			if err := ctx.Err(); err != nil {
				yield(0, err)
				return false
			}
			return yield(t, nil)
		}

		if !emit(StartOfAI) || !emit(StartOfSpeech) {
			return
		}
		for _, r := range text {
			for f := 0; f < perRune; f++ {
				for cb := 0; cb < CodebooksPerFrame; cb++ {
					code := 0
					if !unicode.IsSpace(r) {
						code = (int(r)*(cb+1) + f*7) % CodebookSize
					}
					if !emit(TokenFor(cb, code)) {
						return
					}
				}
			}
		}
		if !emit(EndOfSpeech) {
			return
		}
		emit(EndOfAI)
	}
}

// SliceSource replays a fixed token list, ignoring the text
type SliceSource []Token

// Stream implements TokenSource
func (s SliceSource) Stream(ctx context.Context, _ string) iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		for _, t := range s {
			if err := ctx.Err(); err != nil {
				yield(0, err)
				return
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}
