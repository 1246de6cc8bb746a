package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_stream_active_sessions",
		Help: "Number of synthesis sessions in flight",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_stream_sessions_total",
		Help: "Total number of synthesis sessions by outcome",
	}, []string{"status"})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_stream_session_duration_seconds",
		Help:    "Duration of synthesis sessions in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	// LLM metrics
	llmRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_stream_llm_requests_total",
		Help: "Total number of completion requests",
	}, []string{"status"})

	llmLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_stream_llm_latency_seconds",
		Help:    "Completion latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Decoder metrics
	decodeWindows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_stream_decode_windows_total",
		Help: "Decode windows by outcome (emitted, final, skipped, error)",
	}, []string{"outcome"})

	decodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_stream_decode_latency_seconds",
		Help:    "Codec latency per window in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})

	// Broadcast metrics
	activeListeners = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_stream_active_listeners",
		Help: "Number of connected listeners per endpoint",
	}, []string{"endpoint"})

	broadcastDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_stream_broadcast_delivered_total",
		Help: "Payloads queued to listeners",
	}, []string{"hub"})

	broadcastDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_stream_broadcast_dropped_total",
		Help: "Payloads dropped because a listener queue was full",
	}, []string{"hub"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_stream_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_stream_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_stream_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_stream_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "decoded" or "sent"
)

// ObserveDecodeLatency records the time one codec call took
func ObserveDecodeLatency(d time.Duration) {
	decodeLatency.Observe(d.Seconds())
}

// RecordDecodeWindow counts a decode window by outcome
func RecordDecodeWindow(outcome string) {
	decodeWindows.WithLabelValues(outcome).Inc()
}

// RecordBroadcast records one broadcast on a hub
func RecordBroadcast(hub string, delivered, dropped int) {
	if delivered > 0 {
		broadcastDelivered.WithLabelValues(hub).Add(float64(delivered))
	}
	if dropped > 0 {
		broadcastDropped.WithLabelValues(hub).Add(float64(dropped))
	}
}

// SetListeners sets the connected listener count of an endpoint
func SetListeners(endpoint string, n int) {
	activeListeners.WithLabelValues(endpoint).Set(float64(n))
}

// RecordAudioBytes records audio bytes processed
func RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

// SessionMetrics tracks metrics for a single synthesis session
type SessionMetrics struct {
	sessionID    string
	startTime    time.Time
	llmStartTime time.Time
	firstAudio   time.Duration
	mu           sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *SessionMetrics) RecordSessionStart() {
	activeSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *SessionMetrics) RecordSessionEnd(success bool) {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())

	status := "success"
	if !success {
		status = "error"
	}
	sessionsTotal.WithLabelValues(status).Inc()
}

// RecordLLMStart records the start of the completion request
func (m *SessionMetrics) RecordLLMStart() {
	m.mu.Lock()
	m.llmStartTime = time.Now()
	m.mu.Unlock()
}

// RecordLLMEnd records the end of the completion request
func (m *SessionMetrics) RecordLLMEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.llmStartTime.IsZero() {
		llmLatency.Observe(time.Since(m.llmStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	llmRequests.WithLabelValues(status).Inc()
}

// RecordFirstAudio remembers when the first audio chunk was broadcast
func (m *SessionMetrics) RecordFirstAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.firstAudio == 0 {
		m.firstAudio = time.Since(m.startTime)
	}
}

// FirstAudio returns the time to first audio, zero if none was sent
func (m *SessionMetrics) FirstAudio() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firstAudio
}

// SessionID returns the tracked session
func (m *SessionMetrics) SessionID() string {
	return m.sessionID
}
