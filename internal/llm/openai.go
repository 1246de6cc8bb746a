package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"

	"github.com/novalink/voice-stream/internal/observability"
	"github.com/novalink/voice-stream/internal/resilience"
)

// OpenAIConfig holds settings for an OpenAI compatible chat endpoint
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	Timeout      time.Duration
}

// OpenAIGenerator asks a chat completion model for a JSON reply
type OpenAIGenerator struct {
	client  oai.Client
	cfg     OpenAIConfig
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
	logger  zerolog.Logger
}

// OpenAIOption configures an OpenAIGenerator
type OpenAIOption func(*OpenAIGenerator)

// WithBreaker guards the endpoint with a circuit breaker
func WithBreaker(cb *resilience.CircuitBreaker) OpenAIOption {
	return func(g *OpenAIGenerator) { g.breaker = cb }
}

// WithRetryConfig sets the retry policy for transient failures
func WithRetryConfig(cfg *resilience.RetryConfig) OpenAIOption {
	return func(g *OpenAIGenerator) { g.retry = cfg }
}

// NewOpenAIGenerator creates a generator for cfg
func NewOpenAIGenerator(cfg OpenAIConfig, opts ...OpenAIOption) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key must not be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model must not be empty")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	g := &OpenAIGenerator{
		client: oai.NewClient(reqOpts...),
		cfg:    cfg,
		retry:  resilience.DefaultRetryConfig(),
		logger: observability.WithComponent("llm"),
	}
	for _, o := range opts {
		o(g)
	}
	if g.breaker == nil {
		g.breaker = resilience.NewCircuitBreaker("llm", 5, 30*time.Second)
	}
	return g, nil
}

// Generate implements Generator
func (g *OpenAIGenerator) Generate(ctx context.Context, input string, history []Turn) (*Result, error) {
	params := g.buildParams(input, history)

	var content string
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			resp, err := g.client.Chat.Completions.New(ctx, params)
			if err != nil {
				return classify(err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("llm: empty completion")
			}
			content = resp.Choices[0].Message.Content
			return nil
		}, g.retry, resilience.IsRetryableNetworkError)
	})
	if err != nil {
		observability.RecordError("completion_failed", "llm")
		return nil, fmt.Errorf("llm: completion: %w", err)
	}

	g.logger.Debug().Str("model", g.cfg.Model).Int("chars", len(content)).Msg("Completion received")
	return ParseReply(content, g.logger), nil
}

func (g *OpenAIGenerator) buildParams(input string, history []Turn) oai.ChatCompletionNewParams {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, 2+2*len(history))
	msgs = append(msgs, oai.SystemMessage(g.cfg.SystemPrompt))
	for _, t := range history {
		msgs = append(msgs, oai.UserMessage(t.User))
		if t.Assistant != "" {
			msgs = append(msgs, oai.AssistantMessage(t.Assistant))
		}
	}
	msgs = append(msgs, oai.UserMessage(input))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.cfg.Model),
		Messages: msgs,
	}
	if g.cfg.Temperature > 0 {
		params.Temperature = param.NewOpt(g.cfg.Temperature)
	}
	if g.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(g.cfg.MaxTokens))
	}
	return params
}

// HealthCheck reports the state of the breaker guarding the endpoint
func (g *OpenAIGenerator) HealthCheck(ctx context.Context) (bool, error) {
	return g.breaker.HealthCheck(ctx)
}

func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return resilience.NewRetryableError(err)
		}
	}
	return err
}
