// Package codec provides implementations of decoder.Codec.
package codec

import (
	"context"
	"math"

	"github.com/novalink/voice-stream/internal/speech"
)

// DefaultSampleRate is the output rate of the speech codec
const DefaultSampleRate = 22050

// Tone is a deterministic stand-in for the neural codec. Each frame is
// rendered as a short sine burst whose pitch and level come from its codes;
// a frame whose codes are all zero is silence. It validates codes exactly
// like the real codec, so undecodable windows behave the same.
type Tone struct {
	sampleRate      int
	samplesPerFrame int
}

// NewTone creates a tone codec producing audio at sampleRate
func NewTone(sampleRate int) *Tone {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Tone{
		sampleRate:      sampleRate,
		samplesPerFrame: int(float64(sampleRate) / speech.FramesPerSecond),
	}
}

// SampleRate returns the output sample rate
func (t *Tone) SampleRate() int {
	return t.sampleRate
}

// SamplesPerFrame returns the number of samples rendered per frame
func (t *Tone) SamplesPerFrame() int {
	return t.samplesPerFrame
}

// Decode implements decoder.Codec
func (t *Tone) Decode(ctx context.Context, frames []speech.Frame) ([]float32, error) {
	codes, err := speech.Codes(frames)
	if err != nil {
		return nil, err
	}

	out := make([]float32, 0, len(codes)*t.samplesPerFrame)
	for _, c := range codes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = t.render(out, c)
	}
	return out, nil
}

func (t *Tone) render(out []float32, c speech.Code) []float32 {
	if c == (speech.Code{}) {
		return append(out, make([]float32, t.samplesPerFrame)...)
	}

	freq := 110.0 + float64(c[0]%64)*10.0
	level := 0.1 + float64(c[1]%16)/40.0
	step := 2 * math.Pi * freq / float64(t.sampleRate)
	fade := t.samplesPerFrame / 20

	for i := 0; i < t.samplesPerFrame; i++ {
		// Short linear fade at both ends avoids clicks between frames
		gain := 1.0
		if fade > 0 {
			if i < fade {
				gain = float64(i) / float64(fade)
			} else if tail := t.samplesPerFrame - 1 - i; tail < fade {
				gain = float64(tail) / float64(fade)
			}
		}
		out = append(out, float32(level*gain*math.Sin(step*float64(i))))
	}
	return out
}
