package speech

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// TokenRequest is the first message sent to the speech model server
type TokenRequest struct {
	Text string `json:"text"`
}

// TokenMessage is one message streamed back by the speech model server
type TokenMessage struct {
	Tokens []int  `json:"tokens,omitempty"`
	Done   bool   `json:"done,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ErrSourceClosed is returned when the server hangs up before sending done
var ErrSourceClosed = errors.New("token stream closed before completion")

// WSSource streams tokens from a speech model served over a websocket
type WSSource struct {
	url         string
	dialer      *websocket.Dialer
	header      http.Header
	readTimeout time.Duration
	logger      zerolog.Logger
}

// WSOption configures a WSSource
type WSOption func(*WSSource)

// WithHeader sets extra handshake headers (auth tokens and the like)
func WithHeader(h http.Header) WSOption {
	return func(s *WSSource) { s.header = h }
}

// WithReadTimeout bounds the wait for each message from the server
func WithReadTimeout(d time.Duration) WSOption {
	return func(s *WSSource) { s.readTimeout = d }
}

// WithSourceLogger sets the logger
func WithSourceLogger(l zerolog.Logger) WSOption {
	return func(s *WSSource) { s.logger = l }
}

// NewWSSource creates a token source for the given ws:// or wss:// URL
func NewWSSource(url string, opts ...WSOption) *WSSource {
	s := &WSSource{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		readTimeout: 30 * time.Second,
		logger:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Stream implements TokenSource
func (s *WSSource) Stream(ctx context.Context, text string) iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
		if err != nil {
			yield(0, fmt.Errorf("dial token source %s: %w", s.url, err))
			return
		}
		defer conn.Close()

		// Unblock ReadJSON when the caller gives up
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		if err := conn.WriteJSON(TokenRequest{Text: text}); err != nil {
			yield(0, fmt.Errorf("send token request: %w", err))
			return
		}

		received := 0
		for {
			if s.readTimeout > 0 {
				conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			}
			var msg TokenMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() != nil {
					yield(0, ctx.Err())
					return
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					err = ErrSourceClosed
				}
				yield(0, fmt.Errorf("read token stream: %w", err))
				return
			}
			if msg.Error != "" {
				yield(0, fmt.Errorf("token source: %s", msg.Error))
				return
			}
			for _, id := range msg.Tokens {
				received++
				if !yield(Token(id), nil) {
					return
				}
			}
			if msg.Done {
				s.logger.Debug().Int("tokens", received).Msg("Token stream complete")
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}
}
