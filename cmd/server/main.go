package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/novalink/voice-stream/internal/config"
	"github.com/novalink/voice-stream/internal/observability"
	"github.com/novalink/voice-stream/internal/orchestrator"
	"github.com/novalink/voice-stream/internal/transport"
)

const serviceName = "voice-stream"

type options struct {
	console bool
	say     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Stream synthesized speech and emotion payloads to websocket listeners",
		Long: `Runs the audio and emotion websocket endpoints together with the admin
server (/health, /ready, /metrics) and the gRPC health service.

Each line typed on stdin is processed as one user turn; the reply's emotion
is broadcast once and its speech audio is streamed as it is decoded.
Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.console, "console", true, "read prompts from stdin")
	cmd.Flags().StringVar(&opts.say, "say", "", "process a single prompt, then shut down")
	return cmd
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("admin_port", cfg.AdminPort).
		Int("audio_port", cfg.AudioPort).
		Int("emotion_port", cfg.EmotionPort).
		Str("llm_provider", cfg.LLMProvider).
		Str("token_source", cfg.TokenSource).
		Str("codec", cfg.Codec).
		Int("chunk_size", cfg.ChunkSize).
		Int("lookback_frames", cfg.LookbackFrames).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice stream service starting")

	generator, err := buildGenerator(cfg)
	if err != nil {
		return err
	}
	speaker, codec, err := buildSpeaker(cfg)
	if err != nil {
		return err
	}
	mapper, err := buildMapper(cfg)
	if err != nil {
		return err
	}
	logger.Debug().Strs("emotions", mapper.Labels()).Msg("Emotion presets loaded")

	hubs := transport.NewHubs(func(endpoint string, clients int) {
		logger.Info().Str("endpoint", endpoint).Int("clients", clients).Msg("Client count changed")
	})
	defer hubs.Audio.Close()
	defer hubs.Emotion.Close()
	tr := transport.New(cfg.TransportConfig(), hubs)

	grpcHealth := observability.NewGRPCHealth(serviceName)
	if err := grpcHealth.Listen(net.JoinHostPort("", strconv.Itoa(cfg.GRPCHealthPort))); err != nil {
		return fmt.Errorf("failed to start gRPC health server: %w", err)
	}

	orch, err := orchestrator.New(cfg.OrchestratorConfig(), orchestrator.Deps{
		Generator: generator,
		Speaker:   speaker,
		Mapper:    mapper,
		Transport: tr,
		Audio:     hubs.Audio,
		Emotion:   hubs.Emotion,
		Status:    grpcHealth,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(context.Background()); err != nil {
		return err
	}
	logger.Info().
		Str("audio", tr.Audio().URL()).
		Str("emotion", tr.Emotion().URL()).
		Msg("Streaming endpoints listening")

	// Create HTTP server
	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	checks := map[string]observability.HealthCheckFunc{
		"orchestrator": orch.HealthCheck,
		"transport":    tr.HealthCheck,
	}
	if hc, ok := generator.(healthChecker); ok {
		checks["llm"] = hc.HealthCheck
	}
	if hc, ok := codec.(healthChecker); ok {
		checks["codec"] = hc.HealthCheck
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AdminPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.AdminPort).Msg("Admin server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	done := make(chan struct{})
	switch {
	case opts.say != "":
		go func() {
			defer close(done)
			prompt(ctx, orch, opts.say, out, logger)
		}()
	case opts.console:
		go console(ctx, orch, in, out, logger)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case <-done:
	case runErr = <-serverErr:
		logger.Error().Err(runErr).Msg("Admin server failed")
	}

	logger.Info().Msg("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := orch.Stop(); err != nil {
		logger.Error().Err(err).Msg("Orchestrator forced to shutdown")
		runErr = errors.Join(runErr, err)
	}
	grpcHealth.Stop(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Admin server forced to shutdown")
		runErr = errors.Join(runErr, err)
	}

	logger.Info().Msg("Server exited")
	return runErr
}

// console processes one prompt per stdin line until EOF or ctx ends
func console(ctx context.Context, orch *orchestrator.Orchestrator, in io.Reader, out io.Writer, logger zerolog.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/reset":
			orch.ResetHistory()
			fmt.Fprintln(out, "history cleared")
			continue
		}
		prompt(ctx, orch, line, out, logger)
	}
	if err := scanner.Err(); err != nil {
		logger.Warn().Err(err).Msg("Console input failed")
	}
}

func prompt(ctx context.Context, orch *orchestrator.Orchestrator, text string, out io.Writer, logger zerolog.Logger) {
	res, err := orch.Process(ctx, text)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to process prompt")
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "%s: %s\n", res.Emotion, res.Text)
}
