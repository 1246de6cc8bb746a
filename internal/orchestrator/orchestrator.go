// Package orchestrator sequences one request at a time: generate a reply,
// broadcast its emotion payload once, then stream the reply's speech audio
// to every audio listener as it is decoded.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/novalink/voice-stream/internal/broadcast"
	"github.com/novalink/voice-stream/internal/emotion"
	"github.com/novalink/voice-stream/internal/llm"
	"github.com/novalink/voice-stream/internal/observability"
)

// Config holds orchestrator settings
type Config struct {
	// ShutdownTimeout bounds the transport stop
	ShutdownTimeout time.Duration
	// HistoryLimit is the number of past turns sent to the generator
	HistoryLimit int
}

// DefaultConfig returns the default settings
func DefaultConfig() Config {
	return Config{
		ShutdownTimeout: 5 * time.Second,
		HistoryLimit:    10,
	}
}

// Deps are the collaborators an orchestrator drives
type Deps struct {
	Generator Generator
	Speaker   Speaker
	Mapper    *emotion.Mapper
	Transport Transport
	Audio     *broadcast.Hub[[]byte]
	Emotion   *broadcast.Hub[[]byte]
	// Status is optional
	Status StatusReporter
}

// Orchestrator owns the transport and runs at most one session at a time.
// A Process call made while another is running fails with ErrBusy.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	mu      sync.Mutex // guards lifecycle
	started atomic.Bool
	busy    atomic.Bool

	histMu  sync.Mutex
	history []llm.Turn
}

// New creates an orchestrator
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Generator == nil:
		return nil, fmt.Errorf("orchestrator: generator is required")
	case deps.Speaker == nil:
		return nil, fmt.Errorf("orchestrator: speaker is required")
	case deps.Transport == nil:
		return nil, fmt.Errorf("orchestrator: transport is required")
	case deps.Audio == nil || deps.Emotion == nil:
		return nil, fmt.Errorf("orchestrator: audio and emotion hubs are required")
	}
	if deps.Mapper == nil {
		deps.Mapper = emotion.NewMapper()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: observability.WithComponent("orchestrator"),
	}, nil
}

// Start launches the transport. Calling it again while started is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started.Load() {
		return nil
	}
	if err := o.deps.Transport.Start(ctx); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	o.started.Store(true)
	if o.deps.Status != nil {
		o.deps.Status.SetServing(true)
	}
	o.logger.Info().Msg("Orchestrator started")
	return nil
}

// Stop tears the transport down. Calling it on a stopped orchestrator is a
// no-op. A transport that fails to stop in time is reported, but the
// orchestrator is marked stopped regardless.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started.Load() {
		return nil
	}
	o.started.Store(false)
	if o.deps.Status != nil {
		o.deps.Status.SetServing(false)
	}
	if err := o.deps.Transport.Stop(o.cfg.ShutdownTimeout); err != nil {
		o.logger.Error().Err(err).Msg("Transport did not stop cleanly")
		return fmt.Errorf("failed to stop transport: %w", err)
	}
	o.logger.Info().Msg("Orchestrator stopped")
	return nil
}

// Started reports whether Start has succeeded and Stop has not been called
func (o *Orchestrator) Started() bool {
	return o.started.Load()
}

// Busy reports whether a session is in progress
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// HealthCheck reports ready when started and the transport is running
func (o *Orchestrator) HealthCheck(ctx context.Context) (bool, error) {
	if !o.started.Load() {
		return false, ErrNotStarted
	}
	if !o.deps.Transport.Running() {
		return false, fmt.Errorf("transport is not running")
	}
	return true, nil
}

// Process runs one session for input. Emotion and audio are broadcast as
// they become available; delivery never waits for listeners.
func (o *Orchestrator) Process(ctx context.Context, input string) (*Result, error) {
	if !o.started.Load() {
		return nil, ErrNotStarted
	}
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.busy.Store(false)

	sessionID := uuid.NewString()
	logger := observability.WithSessionID(sessionID).With().Str("component", "orchestrator").Logger()
	metrics := observability.NewSessionMetrics(sessionID)
	metrics.RecordSessionStart()

	res, err := o.run(ctx, input, sessionID, metrics, logger)
	metrics.RecordSessionEnd(err == nil)
	if err != nil {
		observability.RecordError("pipeline_failed", "orchestrator")
		logger.Error().Err(err).Msg("Session failed")
		return nil, err
	}

	o.remember(llm.Turn{User: input, Assistant: res.Text})
	logger.Info().
		Str("emotion", res.Emotion).
		Int("chunks", res.Chunks).
		Int("audio_bytes", res.AudioBytes).
		Dur("first_audio", res.FirstAudio).
		Msg("Session complete")
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, input, sessionID string, metrics *observability.SessionMetrics, logger zerolog.Logger) (*Result, error) {
	metrics.RecordLLMStart()
	reply, err := o.deps.Generator.Generate(ctx, input, o.recentHistory())
	metrics.RecordLLMEnd(err == nil)
	if err != nil {
		return nil, fmt.Errorf("%w: generate reply: %w", ErrPipeline, err)
	}

	label := o.deps.Mapper.Resolve(reply.Emotion)
	if label != emotion.Canonical(reply.Emotion) {
		logger.Warn().Str("emotion", reply.Emotion).Msg("Unknown emotion, using neutral")
	}
	payload, err := o.deps.Mapper.JSON(label)
	if err != nil {
		return nil, fmt.Errorf("%w: encode emotion: %w", ErrPipeline, err)
	}
	delivered := o.deps.Emotion.Broadcast(payload)
	logger.Debug().Str("emotion", label).Int("listeners", delivered).Msg("Emotion broadcast")

	syn, err := o.deps.Speaker.Synthesize(ctx, reply.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: start synthesis: %w", ErrPipeline, err)
	}

	res := &Result{SessionID: sessionID, Emotion: label, Text: reply.Text}
	for chunk := range syn.C() {
		if res.Chunks == 0 {
			metrics.RecordFirstAudio()
			res.FirstAudio = metrics.FirstAudio()
		}
		o.deps.Audio.Broadcast(chunk.Data)
		res.Chunks++
		res.AudioBytes += len(chunk.Data)
	}

	summary, err := syn.Wait()
	res.Decode = summary
	if err != nil {
		return nil, fmt.Errorf("%w: synthesize: %w", ErrPipeline, err)
	}
	return res, nil
}

func (o *Orchestrator) recentHistory() []llm.Turn {
	o.histMu.Lock()
	defer o.histMu.Unlock()
	return append([]llm.Turn(nil), o.history...)
}

func (o *Orchestrator) remember(t llm.Turn) {
	if o.cfg.HistoryLimit <= 0 {
		return
	}
	o.histMu.Lock()
	defer o.histMu.Unlock()
	o.history = append(o.history, t)
	if n := len(o.history) - o.cfg.HistoryLimit; n > 0 {
		o.history = o.history[n:]
	}
}

// ResetHistory forgets earlier turns
func (o *Orchestrator) ResetHistory() {
	o.histMu.Lock()
	o.history = nil
	o.histMu.Unlock()
}
