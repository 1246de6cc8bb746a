package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/novalink/voice-stream/internal/audio"
	"github.com/novalink/voice-stream/internal/observability"
	"github.com/novalink/voice-stream/internal/resilience"
	"github.com/novalink/voice-stream/internal/speech"
)

// DecodeRequest is the body posted to the codec sidecar
type DecodeRequest struct {
	// Codes holds one entry per frame, one code per codebook
	Codes [][speech.CodebooksPerFrame]int `json:"codes"`
}

// HTTPCodec decodes frames by posting offset-corrected codes to a codec
// sidecar, which replies with 16-bit little endian mono PCM.
type HTTPCodec struct {
	url        string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	retry      *resilience.RetryConfig
	logger     zerolog.Logger
}

// HTTPOption configures an HTTPCodec
type HTTPOption func(*HTTPCodec)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPCodec) { h.httpClient = c }
}

// WithCircuitBreaker guards the sidecar with a breaker
func WithCircuitBreaker(cb *resilience.CircuitBreaker) HTTPOption {
	return func(h *HTTPCodec) { h.breaker = cb }
}

// WithRetry sets the retry policy for transient failures
func WithRetry(cfg *resilience.RetryConfig) HTTPOption {
	return func(h *HTTPCodec) { h.retry = cfg }
}

// NewHTTPCodec creates a codec client for the sidecar at url
func NewHTTPCodec(url string, opts ...HTTPOption) *HTTPCodec {
	h := &HTTPCodec{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      resilience.DefaultRetryConfig(),
		logger:     observability.WithComponent("codec"),
	}
	for _, o := range opts {
		o(h)
	}
	if h.breaker == nil {
		h.breaker = resilience.NewCircuitBreaker("codec", 5, 30*time.Second)
	}
	return h
}

// Decode implements decoder.Codec
func (h *HTTPCodec) Decode(ctx context.Context, frames []speech.Frame) ([]float32, error) {
	codes, err := speech.Codes(frames)
	if err != nil {
		return nil, err
	}

	req := DecodeRequest{Codes: make([][speech.CodebooksPerFrame]int, len(codes))}
	for i, c := range codes {
		req.Codes[i] = c
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var (
		pcm     []byte
		invalid bool
	)
	requestID := observability.NewCorrelationID()
	logger := h.logger.With().Str("correlation_id", requestID).Logger()
	err = h.breaker.Call(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			data, err := h.post(ctx, body, requestID)
			if errors.Is(err, speech.ErrInvalidCodes) {
				// A rejected window says nothing about sidecar health
				invalid = true
				return nil
			}
			pcm = data
			return err
		}, h.retry, resilience.IsRetryableNetworkError)
	})
	if invalid {
		return nil, speech.ErrInvalidCodes
	}
	if err != nil {
		observability.RecordError("decode_failed", "codec")
		logger.Warn().Err(err).Int("frames", len(frames)).Msg("Codec request failed")
		return nil, err
	}

	samples, err := audio.DecodePCM16(pcm)
	if err != nil {
		return nil, fmt.Errorf("codec response: %w", err)
	}
	logger.Debug().Int("frames", len(frames)).Int("samples", len(samples)).Msg("Decoded window")

	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out, nil
}

func (h *HTTPCodec) post(ctx context.Context, body []byte, requestID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("X-Correlation-ID", requestID)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// The sidecar rejects codes it cannot decode
		return nil, speech.ErrInvalidCodes
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, resilience.NewRetryableError(fmt.Errorf("codec returned status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("codec returned status %d", resp.StatusCode)
	}
	return data, nil
}

// HealthCheck reports whether the sidecar is reachable through the breaker
func (h *HTTPCodec) HealthCheck(ctx context.Context) (bool, error) {
	return h.breaker.HealthCheck(ctx)
}
