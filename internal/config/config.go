package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/novalink/voice-stream/internal/audio"
	"github.com/novalink/voice-stream/internal/decoder"
	"github.com/novalink/voice-stream/internal/llm"
	"github.com/novalink/voice-stream/internal/orchestrator"
	"github.com/novalink/voice-stream/internal/resilience"
	"github.com/novalink/voice-stream/internal/transport"
)

// Config holds all configuration for the voice stream service
type Config struct {
	// Admin server (/health, /ready, /metrics)
	AdminPort string `envconfig:"ADMIN_PORT" default:"8080"`

	// Streaming endpoints
	StreamHost      string        `envconfig:"STREAM_HOST" default:"0.0.0.0"`
	AudioPort       int           `envconfig:"AUDIO_PORT" default:"5000"`
	AudioPath       string        `envconfig:"AUDIO_PATH" default:"/ws/audio"`
	EmotionPort     int           `envconfig:"EMOTION_PORT" default:"5001"`
	EmotionPath     string        `envconfig:"EMOTION_PATH" default:"/ws/emotion"`
	GRPCHealthPort  int           `envconfig:"GRPC_HEALTH_PORT" default:"50051"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`

	// Audio and decoding
	SampleRate     int `envconfig:"SAMPLE_RATE" default:"22050"`       // Rate of the PCM sent to listeners
	ChunkSize      int `envconfig:"CHUNK_SIZE" default:"25"`           // New frames per decode
	LookbackFrames int `envconfig:"LOOKBACK_FRAMES" default:"15"`      // Context frames re-decoded per window
	HistoryLimit   int `envconfig:"HISTORY_LIMIT" default:"10"`        // Past turns sent to the model
	CodecRate      int `envconfig:"CODEC_SAMPLE_RATE" default:"22050"` // Rate the codec produces

	// Completion model
	LLMProvider     string        `envconfig:"LLM_PROVIDER" default:"echo"` // echo, openai
	OpenAIAPIKey    string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `envconfig:"OPENAI_BASE_URL"`
	LLMModel        string        `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMTemperature  float64       `envconfig:"LLM_TEMPERATURE" default:"0.6"`
	LLMMaxTokens    int           `envconfig:"LLM_MAX_TOKENS" default:"256"`
	LLMSystemPrompt string        `envconfig:"LLM_SYSTEM_PROMPT"`
	LLMTimeout      time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`

	// Speech token source and codec
	TokenSource    string `envconfig:"TOKEN_SOURCE" default:"synthetic"` // synthetic, websocket
	TokenSourceURL string `envconfig:"TOKEN_SOURCE_URL"`
	Codec          string `envconfig:"CODEC" default:"tone"` // tone, http
	CodecURL       string `envconfig:"CODEC_URL"`

	// Emotion presets override (YAML)
	EmotionPresetsFile string `envconfig:"EMOTION_PRESETS_FILE"`

	// Listener side utterance detection
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"300.0"` // RMS energy threshold for VAD
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"10"`      // Frames of silence to mark speech end

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"0"`         // Maximum reconnection attempts, 0 for unlimited
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and that every selected backend is configured
func (c *Config) Validate() error {
	for name, port := range map[string]int{
		"AUDIO_PORT":       c.AudioPort,
		"EMOTION_PORT":     c.EmotionPort,
		"GRPC_HEALTH_PORT": c.GRPCHealthPort,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s out of range: %d", name, port)
		}
	}
	if c.AudioPort != 0 && c.AudioPort == c.EmotionPort {
		return fmt.Errorf("AUDIO_PORT and EMOTION_PORT must differ")
	}
	if c.SampleRate <= 0 || c.CodecRate <= 0 {
		return fmt.Errorf("sample rates must be positive")
	}
	if err := c.DecoderConfig().Validate(); err != nil {
		return err
	}

	switch c.LLMProvider {
	case "echo":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.TokenSource {
	case "synthetic":
	case "websocket":
		if c.TokenSourceURL == "" {
			return fmt.Errorf("TOKEN_SOURCE_URL is required when TOKEN_SOURCE=websocket")
		}
	default:
		return fmt.Errorf("unknown TOKEN_SOURCE %q", c.TokenSource)
	}

	switch c.Codec {
	case "tone":
	case "http":
		if c.CodecURL == "" {
			return fmt.Errorf("CODEC_URL is required when CODEC=http")
		}
	default:
		return fmt.Errorf("unknown CODEC %q", c.Codec)
	}
	return nil
}

// DecoderConfig returns the sliding window settings
func (c *Config) DecoderConfig() decoder.Config {
	cfg := decoder.DefaultConfig()
	cfg.ChunkSize = c.ChunkSize
	cfg.LookbackFrames = c.LookbackFrames
	return cfg
}

// TransportConfig returns the streaming endpoint settings
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		Host:         c.StreamHost,
		AudioPort:    c.AudioPort,
		AudioPath:    c.AudioPath,
		EmotionPort:  c.EmotionPort,
		EmotionPath:  c.EmotionPath,
		WriteTimeout: c.WriteTimeout,
	}
}

// OrchestratorConfig returns the session settings
func (c *Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		ShutdownTimeout: c.ShutdownTimeout,
		HistoryLimit:    c.HistoryLimit,
	}
}

// OpenAIConfig returns the completion model settings
func (c *Config) OpenAIConfig() llm.OpenAIConfig {
	return llm.OpenAIConfig{
		APIKey:       c.OpenAIAPIKey,
		BaseURL:      c.OpenAIBaseURL,
		Model:        c.LLMModel,
		Temperature:  c.LLMTemperature,
		MaxTokens:    c.LLMMaxTokens,
		SystemPrompt: c.LLMSystemPrompt,
		Timeout:      c.LLMTimeout,
	}
}

// NewCircuitBreaker creates a breaker for name with the configured limits
func (c *Config) NewCircuitBreaker(name string) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(name, c.CircuitBreakerMaxFailures,
		time.Duration(c.CircuitBreakerResetTimeout)*time.Second)
}

// RetryConfig returns the retry policy for remote calls
func (c *Config) RetryConfig() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = c.RetryMaxAttempts
	cfg.InitialBackoff = time.Duration(c.RetryInitialBackoff) * time.Millisecond
	return cfg
}

// ReconnectConfig returns the reconnect policy for stream clients
func (c *Config) ReconnectConfig() *resilience.ReconnectConfig {
	cfg := resilience.DefaultReconnectConfig()
	cfg.MaxAttempts = c.ReconnectMaxAttempts
	cfg.Backoff = time.Duration(c.ReconnectBackoff) * time.Millisecond
	return cfg
}

// VADConfig returns the listener side activity detection settings
func (c *Config) VADConfig() *audio.VADConfig {
	cfg := audio.DefaultVADConfig()
	cfg.EnergyThreshold = c.VADEnergyThreshold
	cfg.SilenceFrames = c.VADSilenceFrames
	return cfg
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
