package observability

import (
	"log/slog"
	"time"
)

// Event is a structured observability record. Emission is fire-and-forget:
// sinks must never block the request path or fail loudly.
type Event interface {
	Kind() string
}

// Sink consumes events.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// CacheEventType distinguishes the three cache filter outcomes.
type CacheEventType string

const (
	CacheHit    CacheEventType = "HIT"
	CacheMiss   CacheEventType = "MISS"
	CacheInsert CacheEventType = "INSERT"
)

// CacheEvent records one response-cache lookup outcome.
type CacheEvent struct {
	Type CacheEventType
	URI  string
	Key  string
}

func (CacheEvent) Kind() string { return "cache" }

// QueryEvent records the duration of one named database unit of work,
// emitted whether it committed or rolled back.
type QueryEvent struct {
	Name     string
	Duration time.Duration
}

func (QueryEvent) Kind() string { return "query" }

// RowCountEvent records how many rows a named read produced, used to audit
// the constituency event feeds.
type RowCountEvent struct {
	Name         string
	Constituency string
	Start        time.Time
	End          time.Time
	Rows         int
}

func (RowCountEvent) Kind() string { return "row_count" }

// DischargingEvent carries the system-wide discharging count from the
// most recent summary computation.
type DischargingEvent struct {
	Points int
}

func (DischargingEvent) Kind() string { return "discharging" }

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// NewLogSink emits events as debug-level log lines.
func NewLogSink(logger *slog.Logger) Sink {
	return SinkFunc(func(e Event) {
		switch ev := e.(type) {
		case CacheEvent:
			logger.Debug("cache", "type", string(ev.Type), "uri", ev.URI, "key", ev.Key)
		case QueryEvent:
			logger.Debug("query", "name", ev.Name, "duration_ms", ev.Duration.Milliseconds())
		case RowCountEvent:
			logger.Debug("row_count", "name", ev.Name, "constituency", ev.Constituency, "rows", ev.Rows)
		default:
			logger.Debug("event", "kind", e.Kind())
		}
	})
}

// NewMetricsSink mirrors events into Prometheus counters and histograms.
func NewMetricsSink(m *Metrics) Sink {
	return SinkFunc(func(e Event) {
		switch ev := e.(type) {
		case CacheEvent:
			m.CacheEvents.WithLabelValues(string(ev.Type)).Inc()
		case QueryEvent:
			m.QueryDuration.WithLabelValues(ev.Name).Observe(ev.Duration.Seconds())
		case DischargingEvent:
			m.PointsDischarging.Set(float64(ev.Points))
		}
	})
}
