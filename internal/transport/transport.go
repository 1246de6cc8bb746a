package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/novalink/voice-stream/internal/broadcast"
	"github.com/novalink/voice-stream/internal/observability"
)

// Endpoint names, also used as metric labels
const (
	AudioEndpoint   = "audio"
	EmotionEndpoint = "emotion"
)

// Config describes both endpoints
type Config struct {
	Host         string
	AudioPort    int
	AudioPath    string
	EmotionPort  int
	EmotionPath  string
	WriteTimeout time.Duration
}

// DefaultConfig returns the ports and paths listeners expect
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		AudioPort:    5000,
		AudioPath:    "/ws/audio",
		EmotionPort:  5001,
		EmotionPath:  "/ws/emotion",
		WriteTimeout: defaultWriteTimeout,
	}
}

// Option configures a Transport
type Option func(*Transport)

// WithLogger sets the transport logger
func WithLogger(l zerolog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// Transport runs the audio endpoint (binary PCM frames) and the emotion
// endpoint (JSON text frames) together.
type Transport struct {
	cfg     Config
	audio   *Endpoint
	emotion *Endpoint
	logger  zerolog.Logger
}

// Hubs are the broadcast sources the transport serves
type Hubs struct {
	Audio   *broadcast.Hub[[]byte]
	Emotion *broadcast.Hub[[]byte]
}

// NewHubs creates the audio and emotion hubs. hook, if set, is called with
// each endpoint's listener count.
func NewHubs(hook func(endpoint string, clients int)) Hubs {
	count := func(name string) broadcast.Option {
		return broadcast.WithListenerCountHook(func(n int) {
			observability.SetListeners(name, n)
			if hook != nil {
				hook(name, n)
			}
		})
	}
	return Hubs{
		Audio:   broadcast.NewHub[[]byte](AudioEndpoint, count(AudioEndpoint)),
		Emotion: broadcast.NewHub[[]byte](EmotionEndpoint, count(EmotionEndpoint)),
	}
}

// New creates a stopped transport for the given hubs
func New(cfg Config, hubs Hubs, opts ...Option) *Transport {
	t := &Transport{
		cfg:    cfg,
		logger: observability.WithComponent("transport"),
	}
	for _, o := range opts {
		o(t)
	}

	epOpts := []EndpointOption{WithWriteTimeout(cfg.WriteTimeout), WithEndpointLogger(t.logger)}
	t.audio = NewEndpoint(AudioEndpoint, hostPort(cfg.Host, cfg.AudioPort), cfg.AudioPath, Binary, hubs.Audio, epOpts...)
	t.emotion = NewEndpoint(EmotionEndpoint, hostPort(cfg.Host, cfg.EmotionPort), cfg.EmotionPath, Text, hubs.Emotion, epOpts...)
	return t
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Start binds both endpoints. If the second fails the first is stopped
// again, so a failed Start leaves nothing running.
func (t *Transport) Start(ctx context.Context) error {
	if err := t.audio.Start(ctx); err != nil {
		return err
	}
	if err := t.emotion.Start(ctx); err != nil {
		if stopErr := t.audio.Stop(time.Second); stopErr != nil {
			t.logger.Warn().Err(stopErr).Msg("Failed to roll back audio endpoint")
		}
		return err
	}
	return nil
}

// Stop stops both endpoints concurrently, each bounded by timeout
func (t *Transport) Stop(timeout time.Duration) error {
	var g errgroup.Group
	for _, ep := range []*Endpoint{t.audio, t.emotion} {
		g.Go(func() error { return ep.Stop(timeout) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("stop transport: %w", err)
	}
	return nil
}

// Running reports whether both endpoints are serving
func (t *Transport) Running() bool {
	return t.audio.Running() && t.emotion.Running()
}

// Audio returns the audio endpoint
func (t *Transport) Audio() *Endpoint {
	return t.audio
}

// Emotion returns the emotion endpoint
func (t *Transport) Emotion() *Endpoint {
	return t.emotion
}

// HealthCheck reports the transport as a readiness dependency
func (t *Transport) HealthCheck(ctx context.Context) (bool, error) {
	if !t.Running() {
		return false, fmt.Errorf("transport not running")
	}
	return true, nil
}
