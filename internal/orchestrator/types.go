package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/novalink/voice-stream/internal/decoder"
	"github.com/novalink/voice-stream/internal/llm"
	"github.com/novalink/voice-stream/internal/tts"
)

var (
	// ErrPipeline wraps a generation or decode failure inside Process
	ErrPipeline = errors.New("pipeline failure")
	// ErrBusy is returned when Process is called while another session runs
	ErrBusy = errors.New("a session is already in progress")
	// ErrNotStarted is returned by Process before Start
	ErrNotStarted = errors.New("orchestrator not started")
)

// Transport is the network side the orchestrator owns
type Transport interface {
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
	Running() bool
}

// Speaker turns reply text into streamed audio
type Speaker interface {
	Synthesize(ctx context.Context, text string) (*tts.Synthesis, error)
}

// StatusReporter publishes the serving state, e.g. a gRPC health server
type StatusReporter interface {
	SetServing(serving bool, services ...string)
}

// Generator is the completion and classification collaborator
type Generator = llm.Generator

// Result describes one processed request
type Result struct {
	SessionID  string
	Emotion    string
	Text       string
	Chunks     int
	AudioBytes int
	FirstAudio time.Duration
	Decode     decoder.Summary
}
