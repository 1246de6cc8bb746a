// Command listener connects to the audio and emotion endpoints, records the
// audio stream to a WAV file and logs emotion payloads and utterances.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/novalink/voice-stream/internal/audio"
	"github.com/novalink/voice-stream/internal/config"
	"github.com/novalink/voice-stream/internal/emotion"
	"github.com/novalink/voice-stream/internal/observability"
	"github.com/novalink/voice-stream/internal/resilience"
)

type listenOptions struct {
	audioURL   string
	emotionURL string
	out        string
	sampleRate int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts listenOptions
	cmd := &cobra.Command{
		Use:   "listener",
		Short: "Record the audio stream and log emotion payloads",
		Long: `Connects to the audio and emotion websocket endpoints and keeps
reconnecting with backoff when either drops. Audio is appended to a WAV
file; utterance boundaries and emotion payloads are logged.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.audioURL, "audio-url", config.GetEnv("LISTENER_AUDIO_URL", "ws://127.0.0.1:5000/ws/audio"), "audio endpoint")
	cmd.Flags().StringVar(&opts.emotionURL, "emotion-url", config.GetEnv("LISTENER_EMOTION_URL", "ws://127.0.0.1:5001/ws/emotion"), "emotion endpoint")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "listener.wav", "WAV file to record to")
	cmd.Flags().IntVar(&opts.sampleRate, "rate", 0, "sample rate of the audio stream (default SAMPLE_RATE)")
	return cmd
}

func run(ctx context.Context, opts listenOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.WithComponent("listener")

	if opts.sampleRate <= 0 {
		opts.sampleRate = cfg.SampleRate
	}
	rec, err := newRecorder(opts.out, opts.sampleRate, cfg.VADConfig(), logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return follow(ctx, opts.audioURL, cfg.ReconnectConfig(), logger.With().Str("endpoint", "audio").Logger(),
			func(data []byte) error {
				observability.RecordAudioBytes("received", int64(len(data)))
				events, err := rec.Write(data)
				if err != nil {
					return err
				}
				logActivity(logger, events, opts.sampleRate)
				return nil
			})
	})
	g.Go(func() error {
		return follow(ctx, opts.emotionURL, cfg.ReconnectConfig(), logger.With().Str("endpoint", "emotion").Logger(),
			func(data []byte) error {
				logEmotion(logger, data)
				return nil
			})
	})

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	events, err := rec.Close()
	logActivity(logger, events, opts.sampleRate)
	if err != nil {
		runErr = errors.Join(runErr, err)
	}
	logger.Info().Str("file", opts.out).Str("duration", rec.Duration()).Msg("Recording saved")
	return runErr
}

// follow reads url until ctx ends, reconnecting when the connection drops.
// An error from handle stops following.
func follow(ctx context.Context, url string, cfg *resilience.ReconnectConfig, logger zerolog.Logger, handle func([]byte) error) error {
	var fatal error
	err := resilience.ReconnectWithLogger(ctx, func(ctx context.Context) error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return err
		}
		defer conn.Close()
		stopClose := context.AfterFunc(ctx, func() { conn.Close() })
		defer stopClose()

		logger.Info().Str("url", url).Msg("Connected")
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("connection lost: %w", err)
			}
			if err := handle(data); err != nil {
				fatal = err
				return nil
			}
		}
	}, cfg, logger)
	if fatal != nil {
		return fatal
	}
	return err
}

func logActivity(logger zerolog.Logger, events []audio.ActivityEvent, rate int) {
	for _, ev := range events {
		logger.Info().Str("event", ev.Kind.String()).Dur("at", ev.At(rate)).Msg("Utterance boundary")
	}
}

func logEmotion(logger zerolog.Logger, data []byte) {
	var payload map[string]float64
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.Warn().Err(err).Msg("Invalid emotion payload")
		return
	}
	ev := logger.Info().Str("dominant", dominant(payload))
	for _, c := range emotion.Categories {
		ev = ev.Float64(c, payload[c])
	}
	ev.Msg("Emotion")
}

// dominant returns the strongest category, earliest in wire order on ties
func dominant(payload map[string]float64) string {
	best := emotion.Neutral
	for _, c := range emotion.Categories {
		if payload[c] > payload[best] {
			best = c
		}
	}
	return best
}
