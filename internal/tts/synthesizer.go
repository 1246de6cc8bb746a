package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/novalink/voice-stream/internal/audio"
	"github.com/novalink/voice-stream/internal/decoder"
	"github.com/novalink/voice-stream/internal/observability"
	"github.com/novalink/voice-stream/internal/speech"
)

// Synthesizer drives one decoder session per utterance
type Synthesizer struct {
	source     speech.TokenSource
	codec      decoder.Codec
	cfg        decoder.Config
	codecRate  int
	outputRate int
	logger     zerolog.Logger
}

// Option configures a Synthesizer
type Option func(*Synthesizer)

// WithOutputRate resamples decoded audio to rate
func WithOutputRate(rate int) Option {
	return func(s *Synthesizer) { s.outputRate = rate }
}

// WithLogger sets the synthesizer logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Synthesizer) { s.logger = l }
}

// NewSynthesizer creates a synthesizer whose codec produces codecRate Hz audio
func NewSynthesizer(source speech.TokenSource, codec decoder.Codec, cfg decoder.Config, codecRate int, opts ...Option) (*Synthesizer, error) {
	if source == nil || codec == nil {
		return nil, errors.New("tts: source and codec are required")
	}
	if codecRate <= 0 {
		return nil, fmt.Errorf("tts: invalid codec sample rate %d", codecRate)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	s := &Synthesizer{
		source:     source,
		codec:      codec,
		cfg:        cfg,
		codecRate:  codecRate,
		outputRate: codecRate,
		logger:     observability.WithComponent("tts"),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// SampleRate returns the rate of the PCM the synthesizer emits
func (s *Synthesizer) SampleRate() int {
	return s.outputRate
}

// Synthesis is one running utterance
type Synthesis struct {
	chunks  chan *AudioChunk
	done    chan struct{}
	cancel  context.CancelFunc
	summary decoder.Summary
	err     error
}

// C returns the PCM chunks in order. It is closed when the utterance ends.
func (s *Synthesis) C() <-chan *AudioChunk {
	return s.chunks
}

// Wait blocks until the utterance ends and returns the decoder summary
func (s *Synthesis) Wait() (decoder.Summary, error) {
	<-s.done
	return s.summary, s.err
}

// Stop aborts the utterance
func (s *Synthesis) Stop() {
	s.cancel()
}

// Synthesize starts streaming speech for text. The caller must drain C or
// call Stop.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*Synthesis, error) {
	dec, err := decoder.New(s.codec, s.cfg, decoder.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	syn := &Synthesis{
		chunks: make(chan *AudioChunk, s.cfg.ChunkBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	dec.Start(gctx)

	g.Go(func() error {
		defer dec.Finish()
		for tok, err := range s.source.Stream(gctx, text) {
			if err != nil {
				return fmt.Errorf("token source: %w", err)
			}
			if err := dec.Push(tok); err != nil {
				if errors.Is(err, decoder.ErrSessionDone) {
					return nil
				}
				return err
			}
		}
		return nil
	})

	g.Go(func() error {
		for c := range dec.Chunks() {
			if gctx.Err() != nil {
				continue
			}
			select {
			case syn.chunks <- s.convert(c):
			case <-gctx.Done():
			}
		}
		summary, err := dec.Wait()
		syn.summary = summary
		if summary.Malformed != nil {
			s.logger.Warn().Err(summary.Malformed).Msg("Malformed token sequence")
		}
		return err
	})

	go func() {
		syn.err = g.Wait()
		cancel()
		close(syn.chunks)
		close(syn.done)
	}()
	return syn, nil
}

func (s *Synthesizer) convert(c decoder.Chunk) *AudioChunk {
	var data []byte
	if s.outputRate == s.codecRate {
		data = audio.EncodePCM16(c.Samples)
	} else {
		pcm := make([]int16, len(c.Samples))
		for i, v := range c.Samples {
			pcm[i] = audio.FloatToInt16(v)
		}
		data = audio.Int16ToPCM16(audio.Resample(pcm, s.codecRate, s.outputRate))
	}
	return &AudioChunk{
		Data:       data,
		SampleRate: s.outputRate,
		Channels:   1,
		Index:      c.Index,
		Final:      c.Final,
	}
}
