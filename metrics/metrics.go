// Package metrics tracks indexer throughput and health via Prometheus
// counters and counter vectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus instrument the indexer exports.
type Metrics struct {
	EventsTotal          prometheus.Counter
	EventsByProgram      *prometheus.CounterVec
	EventsByType         *prometheus.CounterVec
	TransactionsTotal    prometheus.Counter
	TransactionsFailed   prometheus.Counter
	WSReconnections      prometheus.Counter
	RPCCalls             prometheus.Counter
	RPCFailures          prometheus.Counter
	DBInserts            prometheus.Counter
	DBInsertFailures     prometheus.Counter
	DuplicateEvents      prometheus.Counter
	DecodeFailures       prometheus.Counter

	startTime time.Time
	registry  *prometheus.Registry

	// Raw counters mirrored alongside the Prometheus instruments so
	// HealthChecker and snapshotting can read exact integer values
	// without scraping the registry.
	eventsTotal        uint64
	transactionsTotal  uint64
	transactionsFailed uint64
	wsReconnections    uint64
	rpcCalls           uint64
	rpcFailures        uint64
	dbInserts          uint64
	dbInsertFailures   uint64
	duplicateEvents    uint64
	decodeFailures     uint64
}

// New builds a Metrics instance and registers all its instruments on a
// fresh registry, returned alongside it so callers can mount it under
// their HTTP surface.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		startTime: time.Now(),
		registry:  reg,
		EventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soltrace_events_total",
			Help: "Total number of events decoded and stored.",
		}),
		EventsByProgram: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soltrace_events_by_program_total",
			Help: "Number of events processed, by program id.",
		}, []string{"program_id"}),
		EventsByType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soltrace_events_by_type_total",
			Help: "Number of events processed, by event name.",
		}, []string{"event_name"}),
		TransactionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soltrace_transactions_total",
			Help: "Total number of transactions processed.",
		}),
		TransactionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soltrace_transactions_failed_total",
			Help: "Number of transactions that failed processing.",
		}),
		WSReconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soltrace_ws_reconnections_total",
			Help: "Number of WebSocket reconnections.",
		}),
		RPCCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soltrace_rpc_calls_total",
			Help: "Total number of upstream RPC calls made.",
		}),
		RPCFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soltrace_rpc_failures_total",
			Help: "Number of upstream RPC calls that failed.",
		}),
		DBInserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soltrace_db_inserts_total",
			Help: "Number of successful storage inserts.",
		}),
		DBInsertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soltrace_db_insert_failures_total",
			Help: "Number of storage inserts that failed outright.",
		}),
		DuplicateEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soltrace_duplicate_events_total",
			Help: "Number of events skipped as already-stored duplicates.",
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soltrace_decode_failures_total",
			Help: "Number of events that fell back to the raw representation.",
		}),
	}

	reg.MustRegister(
		m.EventsTotal, m.EventsByProgram, m.EventsByType,
		m.TransactionsTotal, m.TransactionsFailed,
		m.WSReconnections, m.RPCCalls, m.RPCFailures,
		m.DBInserts, m.DBInsertFailures, m.DuplicateEvents, m.DecodeFailures,
	)

	return m, reg
}

// RecordEvent records one decoded event for both the total and its
// program/event-name breakdowns.
func (m *Metrics) RecordEvent(programID, eventType string) {
	m.EventsTotal.Inc()
	m.EventsByProgram.WithLabelValues(programID).Inc()
	m.EventsByType.WithLabelValues(eventType).Inc()
	m.eventsTotal++
}

func (m *Metrics) RecordTransaction(failed bool) {
	m.TransactionsTotal.Inc()
	m.transactionsTotal++
	if failed {
		m.TransactionsFailed.Inc()
		m.transactionsFailed++
	}
}

func (m *Metrics) RecordWSReconnection() {
	m.WSReconnections.Inc()
	m.wsReconnections++
}

func (m *Metrics) RecordRPCCall(failed bool) {
	m.RPCCalls.Inc()
	m.rpcCalls++
	if failed {
		m.RPCFailures.Inc()
		m.rpcFailures++
	}
}

// RecordDBInsert records one storage insert outcome: a clean success, a
// duplicate (already present, not an error), or a genuine failure.
func (m *Metrics) RecordDBInsert(failed, duplicate bool) {
	switch {
	case failed && duplicate:
		m.DuplicateEvents.Inc()
		m.duplicateEvents++
	case failed:
		m.DBInsertFailures.Inc()
		m.dbInsertFailures++
	default:
		m.DBInserts.Inc()
		m.dbInserts++
	}
}

func (m *Metrics) RecordDecodeFailure() {
	m.DecodeFailures.Inc()
	m.decodeFailures++
}

func (m *Metrics) UptimeSeconds() uint64 {
	return uint64(time.Since(m.startTime).Seconds())
}

func (m *Metrics) EventsPerSecond() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.eventsTotal) / elapsed
}

// Snapshot is a point-in-time view of the raw counters, independent of
// Prometheus scraping, used for health checks and periodic log summaries.
type Snapshot struct {
	EventsTotal        uint64
	TransactionsTotal  uint64
	TransactionsFailed uint64
	WSReconnections    uint64
	RPCCalls           uint64
	RPCFailures        uint64
	DBInserts          uint64
	DBInsertFailures   uint64
	DuplicateEvents    uint64
	DecodeFailures     uint64
	UptimeSeconds      uint64
	EventsPerSecond    float64
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		EventsTotal:        m.eventsTotal,
		TransactionsTotal:  m.transactionsTotal,
		TransactionsFailed: m.transactionsFailed,
		WSReconnections:    m.wsReconnections,
		RPCCalls:           m.rpcCalls,
		RPCFailures:        m.rpcFailures,
		DBInserts:          m.dbInserts,
		DBInsertFailures:   m.dbInsertFailures,
		DuplicateEvents:    m.duplicateEvents,
		DecodeFailures:     m.decodeFailures,
		UptimeSeconds:      m.UptimeSeconds(),
		EventsPerSecond:    m.EventsPerSecond(),
	}
}
