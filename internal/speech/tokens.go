// Package speech defines the token vocabulary shared by the speech model, the
// frame window decoder and the audio codec.
package speech

import (
	"errors"
	"fmt"
)

// Token is a single id produced by the speech model
type Token int

// TokenizerLength is the size of the text vocabulary; control markers and
// audio codes live above it.
const TokenizerLength = 64400

// Control markers emitted by the speech model
const (
	StartOfText   Token = 1
	EndOfText     Token = 2
	StartOfSpeech Token = TokenizerLength + 1
	EndOfSpeech   Token = TokenizerLength + 2
	StartOfHuman  Token = TokenizerLength + 3
	EndOfHuman    Token = TokenizerLength + 4
	StartOfAI     Token = TokenizerLength + 5
	EndOfAI       Token = TokenizerLength + 6
	PadToken      Token = TokenizerLength + 7

	// AudioTokensStart is the id of code 0 in the first codebook
	AudioTokensStart Token = TokenizerLength + 10
)

const (
	// CodebookSize is the number of codes per codebook
	CodebookSize = 4032

	// CodebooksPerFrame is the number of tokens that make up one frame
	CodebooksPerFrame = 4

	// FramesPerSecond is the codec frame rate
	FramesPerSecond = 12.5
)

// ErrInvalidCodes is returned when a frame contains a token that maps to a
// negative codec code after offset correction.
var ErrInvalidCodes = errors.New("invalid audio codes")

// Frame is one codec time step: one token per codebook
type Frame [CodebooksPerFrame]Token

// Code is a frame after offset correction, ready for the codec
type Code [CodebooksPerFrame]int

// IsSpeechMarker reports whether t is one of the two markers that delimit a
// speech span.
func (t Token) IsSpeechMarker() bool {
	return t == StartOfSpeech || t == EndOfSpeech
}

// IsModelControl reports whether t is one of the model's turn or padding
// markers. Other non-audio ids are not control tokens.
func (t Token) IsModelControl() bool {
	return t >= StartOfHuman && t <= PadToken
}

// FramesOf groups tokens into whole frames. Trailing tokens that do not fill
// a frame are left out.
func FramesOf(tokens []Token) []Frame {
	n := len(tokens) / CodebooksPerFrame
	frames := make([]Frame, n)
	for i := 0; i < n; i++ {
		copy(frames[i][:], tokens[i*CodebooksPerFrame:(i+1)*CodebooksPerFrame])
	}
	return frames
}

// Codes removes the per-codebook offsets from frames. Any resulting code
// below zero makes the whole batch undecodable.
func Codes(frames []Frame) ([]Code, error) {
	codes := make([]Code, len(frames))
	for i, frame := range frames {
		for cb, tok := range frame {
			c := int(tok) - cb*CodebookSize - int(AudioTokensStart)
			if c < 0 {
				return nil, fmt.Errorf("%w: frame %d codebook %d token %d", ErrInvalidCodes, i, cb, tok)
			}
			codes[i][cb] = c
		}
	}
	return codes, nil
}

// TokenFor is the inverse of Codes for a single codebook entry
func TokenFor(codebook, code int) Token {
	return AudioTokensStart + Token(codebook*CodebookSize+code)
}
