package main

import (
	"context"
	"fmt"

	"github.com/novalink/voice-stream/internal/codec"
	"github.com/novalink/voice-stream/internal/config"
	"github.com/novalink/voice-stream/internal/decoder"
	"github.com/novalink/voice-stream/internal/emotion"
	"github.com/novalink/voice-stream/internal/llm"
	"github.com/novalink/voice-stream/internal/observability"
	"github.com/novalink/voice-stream/internal/speech"
	"github.com/novalink/voice-stream/internal/tts"
)

// healthChecker is implemented by collaborators that can report readiness
type healthChecker interface {
	HealthCheck(ctx context.Context) (bool, error)
}

func buildGenerator(cfg *config.Config) (llm.Generator, error) {
	switch cfg.LLMProvider {
	case "openai":
		return llm.NewOpenAIGenerator(cfg.OpenAIConfig(),
			llm.WithBreaker(cfg.NewCircuitBreaker("llm")),
			llm.WithRetryConfig(cfg.RetryConfig()))
	case "echo":
		return llm.EchoGenerator{}, nil
	}
	return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
}

func buildSource(cfg *config.Config) (speech.TokenSource, error) {
	switch cfg.TokenSource {
	case "websocket":
		return speech.NewWSSource(cfg.TokenSourceURL,
			speech.WithSourceLogger(observability.WithComponent("token_source"))), nil
	case "synthetic":
		return speech.NewSyntheticSource(), nil
	}
	return nil, fmt.Errorf("unknown token source %q", cfg.TokenSource)
}

func buildCodec(cfg *config.Config) (decoder.Codec, error) {
	switch cfg.Codec {
	case "http":
		return codec.NewHTTPCodec(cfg.CodecURL,
			codec.WithCircuitBreaker(cfg.NewCircuitBreaker("codec")),
			codec.WithRetry(cfg.RetryConfig())), nil
	case "tone":
		return codec.NewTone(cfg.CodecRate), nil
	}
	return nil, fmt.Errorf("unknown codec %q", cfg.Codec)
}

func buildMapper(cfg *config.Config) (*emotion.Mapper, error) {
	if cfg.EmotionPresetsFile == "" {
		return emotion.NewMapper(), nil
	}
	return emotion.LoadPresets(cfg.EmotionPresetsFile)
}

func buildSpeaker(cfg *config.Config) (*tts.Synthesizer, decoder.Codec, error) {
	source, err := buildSource(cfg)
	if err != nil {
		return nil, nil, err
	}
	c, err := buildCodec(cfg)
	if err != nil {
		return nil, nil, err
	}
	s, err := tts.NewSynthesizer(source, c, cfg.DecoderConfig(), cfg.CodecRate,
		tts.WithOutputRate(cfg.SampleRate))
	if err != nil {
		return nil, nil, err
	}
	return s, c, nil
}
