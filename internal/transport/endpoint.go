// Package transport serves broadcast hubs to websocket clients.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/novalink/voice-stream/internal/broadcast"
	"github.com/novalink/voice-stream/internal/observability"
)

var (
	// ErrBind is returned by Start when the listen address cannot be bound
	ErrBind = errors.New("transport bind failed")

	// ErrShutdownTimeout is returned by Stop when connections did not close
	// in time. The server is forced closed before returning.
	ErrShutdownTimeout = errors.New("transport shutdown timed out")
)

// MessageKind selects the websocket frame type used for payloads
type MessageKind int

const (
	// Binary frames carry PCM audio
	Binary MessageKind = websocket.BinaryMessage
	// Text frames carry JSON metadata
	Text MessageKind = websocket.TextMessage
)

const defaultWriteTimeout = 10 * time.Second

// EndpointOption configures an Endpoint
type EndpointOption func(*Endpoint)

// WithWriteTimeout bounds each websocket write
func WithWriteTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) {
		if d > 0 {
			e.writeTimeout = d
		}
	}
}

// WithEndpointLogger sets the endpoint logger
func WithEndpointLogger(l zerolog.Logger) EndpointOption {
	return func(e *Endpoint) { e.logger = l }
}

// Endpoint serves one hub on one address and path. Every accepted
// connection becomes a hub listener until it disconnects or the endpoint
// stops.
type Endpoint struct {
	name         string
	addr         string
	path         string
	kind         MessageKind
	hub          *broadcast.Hub[[]byte]
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	logger       zerolog.Logger

	// lifecycle serialises Start and Stop
	lifecycle sync.Mutex

	mu  sync.Mutex
	run *serverRun
}

// serverRun holds everything that belongs to one Start..Stop cycle
type serverRun struct {
	server    *http.Server
	listener  net.Listener
	cancel    context.CancelFunc
	serveDone chan struct{}
	conns     sync.WaitGroup
}

// NewEndpoint creates a stopped endpoint
func NewEndpoint(name, addr, path string, kind MessageKind, hub *broadcast.Hub[[]byte], opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		name:         name,
		addr:         addr,
		path:         path,
		kind:         kind,
		hub:          hub,
		writeTimeout: defaultWriteTimeout,
		upgrader: websocket.Upgrader{
			// Listeners are local players and dashboards
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 16384,
		},
		logger: observability.WithComponent("transport"),
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With().Str("endpoint", name).Logger()
	return e
}

// Name returns the endpoint name
func (e *Endpoint) Name() string {
	return e.name
}

// Path returns the websocket path
func (e *Endpoint) Path() string {
	return e.path
}

// Start binds the address and serves in the background. It returns once
// the socket is bound. Starting a running endpoint is a no-op.
func (e *Endpoint) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.Running() {
		return nil
	}

	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", e.addr)
	if err != nil {
		return fmt.Errorf("%w: %s on %s: %v", ErrBind, e.name, e.addr, err)
	}

	base, cancel := context.WithCancel(context.Background())
	run := &serverRun{
		listener:  lis,
		cancel:    cancel,
		serveDone: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(e.path, e.handler(run))
	run.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	go func() {
		defer close(run.serveDone)
		if err := run.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error().Err(err).Msg("Endpoint server failed")
		}
	}()

	e.mu.Lock()
	e.run = run
	e.mu.Unlock()

	e.logger.Info().
		Str("addr", lis.Addr().String()).
		Str("url", fmt.Sprintf("ws://%s%s", lis.Addr().String(), e.path)).
		Msg("Endpoint listening")
	return nil
}

// Stop closes the listener, disconnects every client and waits up to
// timeout for the server and connection handlers to exit. Stopping a
// stopped endpoint is a no-op.
func (e *Endpoint) Stop(timeout time.Duration) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	run := e.run
	e.run = nil
	e.mu.Unlock()

	if run == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Connection handlers watch the base context
	run.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := run.server.Shutdown(ctx); err != nil {
			e.logger.Warn().Err(err).Msg("Graceful shutdown interrupted")
		}
		<-run.serveDone
		run.conns.Wait()
	}()

	select {
	case <-done:
		e.logger.Info().Msg("Endpoint stopped")
		return nil
	case <-ctx.Done():
		run.server.Close()
		e.logger.Error().Dur("timeout", timeout).Msg("Endpoint did not stop in time")
		return fmt.Errorf("%w: %s after %s", ErrShutdownTimeout, e.name, timeout)
	}
}

// Running reports whether the endpoint is serving
func (e *Endpoint) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run != nil
}

// Addr returns the bound address, nil when stopped
func (e *Endpoint) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == nil {
		return nil
	}
	return e.run.listener.Addr()
}

// URL returns the websocket URL clients connect to, empty when stopped
func (e *Endpoint) URL() string {
	addr := e.Addr()
	if addr == nil {
		return ""
	}
	return fmt.Sprintf("ws://%s%s", addr.String(), e.path)
}

func (e *Endpoint) handler(run *serverRun) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run.conns.Add(1)
		defer run.conns.Done()

		conn, err := e.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an HTTP error
			e.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		logger := e.logger.With().
			Str("conn_id", observability.NewCorrelationID()).
			Str("remote_addr", r.RemoteAddr).
			Logger()

		listener := e.hub.Register()
		defer e.hub.Unregister(listener)
		logger.Info().Int("clients", e.hub.Len()).Msg("Client connected")

		e.serveConn(r.Context(), conn, listener, logger)

		logger.Info().Int("clients", e.hub.Len()-1).Msg("Client disconnected")
	}
}

// serveConn pumps the listener queue into the socket until the client
// goes away, a write fails, or ctx ends
func (e *Endpoint) serveConn(ctx context.Context, conn *websocket.Conn, listener *broadcast.Listener[[]byte], logger zerolog.Logger) {
	// Reads only detect the peer closing; clients send nothing meaningful
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug().Err(err).Msg("WebSocket read error")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return

		case <-readDone:
			return

		case payload, ok := <-listener.C():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(e.writeTimeout))
			if err := conn.WriteMessage(int(e.kind), payload); err != nil {
				logger.Warn().Err(err).Msg("WebSocket write failed")
				observability.RecordError("write_failed", "transport")
				return
			}
			if e.kind == Binary {
				observability.RecordAudioBytes("sent", int64(len(payload)))
			}
		}
	}
}
