// Package decoder incrementally turns a speech token stream into audio.
//
// Tokens are grouped into frames of four (one per codebook). Once ChunkSize
// new frames have accumulated, a window made of up to LookbackFrames
// already-emitted frames plus the new frames is sent to the codec, and only
// the samples of the new frames are emitted. The lookback gives the codec
// context across chunk boundaries; its samples are never emitted twice.
//
// Ingestion (Push) and decoding run as two stages joined by an unbounded
// queue, so a slow codec never blocks the token producer.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/novalink/voice-stream/internal/audio"
	"github.com/novalink/voice-stream/internal/observability"
	"github.com/novalink/voice-stream/internal/speech"
)

var (
	// ErrMalformedTokenSequence reports a missing speech marker or a token
	// count that does not divide into whole frames. It is recorded in the
	// Summary; the session still completes.
	ErrMalformedTokenSequence = errors.New("malformed token sequence")

	// ErrSessionDone is returned by Push once the session has drained or
	// Finish has been called.
	ErrSessionDone = errors.New("decoder session is done")
)

// Codec decodes a batch of frames into mono float samples in [-1, 1]. It
// returns speech.ErrInvalidCodes (or no samples) when the frames cannot be
// decoded; any other error aborts the session.
type Codec interface {
	Decode(ctx context.Context, frames []speech.Frame) ([]float32, error)
}

// CodecFunc adapts a function to the Codec interface
type CodecFunc func(ctx context.Context, frames []speech.Frame) ([]float32, error)

// Decode implements Codec
func (f CodecFunc) Decode(ctx context.Context, frames []speech.Frame) ([]float32, error) {
	return f(ctx, frames)
}

// Config controls the sliding window
type Config struct {
	// ChunkSize is the number of new frames that triggers a decode
	ChunkSize int
	// LookbackFrames is how many emitted frames are re-decoded for context
	LookbackFrames int
	// StartMarker and EndMarker delimit the speech span
	StartMarker speech.Token
	EndMarker   speech.Token
	// ChunkBuffer is the capacity of the Chunks channel
	ChunkBuffer int
}

// DefaultConfig returns the window settings used by the speech model
func DefaultConfig() Config {
	return Config{
		ChunkSize:      25,
		LookbackFrames: 15,
		StartMarker:    speech.StartOfSpeech,
		EndMarker:      speech.EndOfSpeech,
		ChunkBuffer:    16,
	}
}

// Validate checks the window settings
func (c Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be at least 1, got %d", c.ChunkSize)
	}
	if c.LookbackFrames < 0 {
		return fmt.Errorf("lookback frames must not be negative, got %d", c.LookbackFrames)
	}
	if c.StartMarker == c.EndMarker {
		return fmt.Errorf("start and end markers must differ")
	}
	return nil
}

// State of a decoder session
type State int32

const (
	StateIdle State = iota
	StateInSpeech
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInSpeech:
		return "in_speech"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Chunk is the audio for the new frames [StartFrame, EndFrame) of a window
type Chunk struct {
	Index      int
	StartFrame int
	EndFrame   int
	Samples    []float32
	Final      bool
}

// Summary describes a finished session
type Summary struct {
	TotalFrames    int
	FramesDecoded  int
	Chunks         int
	Samples        int
	SkippedWindows int
	DroppedTokens  int
	// Malformed is set when the token sequence was structurally wrong
	Malformed error
}

// Option configures a Decoder
type Option func(*Decoder)

// WithLogger sets the decoder logger
func WithLogger(l zerolog.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

// Decoder is a single-session sliding window decoder. Create one per
// utterance; it cannot be restarted.
type Decoder struct {
	cfg    Config
	codec  Codec
	logger zerolog.Logger

	queue  *audio.Queue[speech.Token]
	chunks chan Chunk
	done   chan struct{}

	startOnce     sync.Once
	state         atomic.Int32
	framesDecoded atomic.Int64
	endPushed     atomic.Bool

	// Owned by the worker goroutine
	tokens []speech.Token
	floor  int
	index  int

	summary Summary
	err     error
}

// New creates a decoder. Call Start before pushing tokens.
func New(codec Codec, cfg Config, opts ...Option) (*Decoder, error) {
	if codec == nil {
		return nil, errors.New("decoder: codec is required")
	}
	if cfg.StartMarker == 0 && cfg.EndMarker == 0 {
		cfg.StartMarker = speech.StartOfSpeech
		cfg.EndMarker = speech.EndOfSpeech
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}
	if cfg.ChunkBuffer <= 0 {
		cfg.ChunkBuffer = 16
	}

	d := &Decoder{
		cfg:    cfg,
		codec:  codec,
		logger: observability.GetLogger(),
		queue:  audio.NewQueue[speech.Token](cfg.ChunkSize * speech.CodebooksPerFrame * 4),
		chunks: make(chan Chunk, cfg.ChunkBuffer),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Start launches the decode worker. Later calls are no-ops. Cancelling ctx
// aborts the session and Wait reports ctx's error.
func (d *Decoder) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go d.run(ctx)
	})
}

// Push queues a token for decoding. It never blocks on the codec. Once the
// end marker has been pushed or the session is done, a repeated end marker
// is ignored and any other token returns ErrSessionDone.
func (d *Decoder) Push(tok speech.Token) error {
	if d.endPushed.Load() || d.State() == StateDone {
		if tok == d.cfg.EndMarker {
			return nil
		}
		return ErrSessionDone
	}
	if err := d.queue.Push(tok); err != nil {
		return fmt.Errorf("%w: finish already called", ErrSessionDone)
	}
	if tok == d.cfg.EndMarker {
		d.endPushed.Store(true)
	}
	return nil
}

// Finish signals that no more tokens will be pushed
func (d *Decoder) Finish() {
	d.queue.CloseWrite()
}

// Chunks returns the emitted audio in frame order. The channel is closed
// when the session ends.
func (d *Decoder) Chunks() <-chan Chunk {
	return d.chunks
}

// Wait blocks until the worker exits and returns the session summary. The
// error is non-nil only for codec failures or cancellation.
func (d *Decoder) Wait() (Summary, error) {
	<-d.done
	return d.summary, d.err
}

// State returns the current session state
func (d *Decoder) State() State {
	return State(d.state.Load())
}

// FramesDecoded returns the number of frames emitted (or skipped as
// undecodable) so far
func (d *Decoder) FramesDecoded() int {
	return int(d.framesDecoded.Load())
}

func (d *Decoder) setState(s State) {
	d.state.Store(int32(s))
}

func (d *Decoder) run(ctx context.Context) {
	defer close(d.done)
	defer close(d.chunks)
	defer d.setState(StateDone)

	for {
		tok, ok, err := d.queue.Pop(ctx)
		if err != nil {
			d.err = err
			return
		}
		if !ok {
			d.endOfStream()
			return
		}
		if err := d.handle(ctx, tok); err != nil {
			d.err = err
			return
		}
		if d.State() == StateDone {
			return
		}
	}
}

func (d *Decoder) handle(ctx context.Context, tok speech.Token) error {
	state := d.State()

	switch tok {
	case d.cfg.StartMarker:
		if state != StateIdle {
			d.logger.Warn().Str("state", state.String()).Msg("Duplicate start of speech, ignoring")
			return nil
		}
		d.logger.Debug().Msg("Start of speech")
		d.tokens = d.tokens[:0]
		d.setState(StateInSpeech)
		return nil

	case d.cfg.EndMarker:
		if state != StateInSpeech {
			d.malformed("end of speech without start of speech")
			d.setState(StateDone)
			return nil
		}
		d.logger.Debug().Int("frames", len(d.tokens)/speech.CodebooksPerFrame).Msg("End of speech")
		d.setState(StateDraining)
		if err := d.drain(ctx); err != nil {
			return err
		}
		d.setState(StateDone)
		return nil
	}

	if state != StateInSpeech || tok.IsModelControl() {
		return nil
	}

	d.tokens = append(d.tokens, tok)
	d.summary.TotalFrames = len(d.tokens) / speech.CodebooksPerFrame

	fd := d.FramesDecoded()
	if d.summary.TotalFrames-fd < d.cfg.ChunkSize {
		return nil
	}
	return d.emit(ctx, fd+d.cfg.ChunkSize, false)
}

// drain decodes every whole frame not yet emitted
func (d *Decoder) drain(ctx context.Context) error {
	total := len(d.tokens) / speech.CodebooksPerFrame
	if rem := len(d.tokens) % speech.CodebooksPerFrame; rem != 0 {
		d.summary.DroppedTokens = rem
		d.malformed(fmt.Sprintf("%d trailing tokens do not fill a frame", rem))
		d.tokens = d.tokens[:total*speech.CodebooksPerFrame]
	}
	d.summary.TotalFrames = total

	if total-d.FramesDecoded() < 1 {
		return nil
	}
	return d.emit(ctx, total, true)
}

// emit decodes the window ending at end and sends the new frames' samples
func (d *Decoder) emit(ctx context.Context, end int, final bool) error {
	fd := d.FramesDecoded()
	w := PlanWindow(fd, d.cfg.LookbackFrames, d.floor, end)

	frames := speech.FramesOf(d.tokens[w.Start*speech.CodebooksPerFrame : w.End*speech.CodebooksPerFrame])

	start := time.Now()
	samples, err := d.codec.Decode(ctx, frames)
	observability.ObserveDecodeLatency(time.Since(start))

	spf := 0
	if len(samples) > 0 {
		spf = len(samples) / w.Frames()
	}

	switch {
	case errors.Is(err, speech.ErrInvalidCodes), err == nil && spf == 0:
		d.logger.Warn().
			Err(err).
			Int("start_frame", w.Start).
			Int("end_frame", w.End).
			Msg("Undecodable window, skipping")
		observability.RecordDecodeWindow("skipped")
		d.summary.SkippedWindows++
		// Later windows must not reach back into these frames
		d.floor = end
		d.framesDecoded.Store(int64(end))
		d.summary.FramesDecoded = end
		return nil
	case err != nil:
		observability.RecordDecodeWindow("error")
		return fmt.Errorf("decode frames [%d,%d): %w", w.Start, w.End, err)
	}

	skip := w.Skip * spf
	var out []float32
	if final {
		out = samples[skip:]
	} else {
		out = samples[skip : skip+w.New()*spf]
	}

	chunk := Chunk{
		Index:      d.index,
		StartFrame: fd,
		EndFrame:   end,
		Samples:    out,
		Final:      final,
	}

	select {
	case d.chunks <- chunk:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.index++
	d.framesDecoded.Store(int64(end))
	d.summary.FramesDecoded = end
	d.summary.Chunks++
	d.summary.Samples += len(out)

	outcome := "emitted"
	if final {
		outcome = "final"
	}
	observability.RecordDecodeWindow(outcome)
	d.logger.Debug().
		Int("window_start", w.Start).
		Int("window_end", w.End).
		Int("lookback", w.Skip).
		Int("samples", len(out)).
		Bool("final", final).
		Msg("Decoded window")
	return nil
}

// endOfStream handles Finish arriving before the session drained
func (d *Decoder) endOfStream() {
	switch d.State() {
	case StateIdle:
		d.malformed("token stream ended without start of speech")
	case StateInSpeech:
		d.summary.TotalFrames = len(d.tokens) / speech.CodebooksPerFrame
		d.malformed("token stream ended without end of speech")
	}
}

func (d *Decoder) malformed(reason string) {
	err := fmt.Errorf("%w: %s", ErrMalformedTokenSequence, reason)
	if d.summary.Malformed == nil {
		d.summary.Malformed = err
	}
	d.logger.Warn().Err(err).Msg("Malformed token sequence")
}
