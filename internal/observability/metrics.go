package observability

import "sync"

// Metrics provides basic in-memory counters for the pipeline.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

// Counter names recorded by the pipeline components.
const (
	MetricMessagesConsumed = "messages_consumed"
	MetricMessagesDropped  = "messages_dropped"
	MetricTicketsCreated   = "tickets_created"
	MetricTicketsExported  = "tickets_exported"
	MetricEscalations      = "escalations"
	MetricAlertsSent       = "alerts_sent"
	MetricChannelSends     = "channel_sends"
	MetricChannelReconnect = "channel_reconnects"
)

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[string]int64)}
}

// Inc increments the named counter.
func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

// Snapshot returns a copy of all counters, for the health endpoint.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}
