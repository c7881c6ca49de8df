package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the risk core.
type Metrics struct {
	// --- Core processing ---
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreSequence       prometheus.Gauge

	// --- Oracle ---
	OracleUpdatesAccepted *prometheus.CounterVec
	OracleUpdatesRejected *prometheus.CounterVec
	OracleMedianPrice     *prometheus.GaugeVec
	OracleConfidence      *prometheus.GaugeVec
	OracleFallbackActive  *prometheus.GaugeVec

	// --- Cross-validation ---
	CrossvalChecks        *prometheus.CounterVec
	CrossvalDiscrepancies *prometheus.CounterVec

	// --- Position health & liquidation ---
	HealthChecksTotal    prometheus.Counter
	WarningsIssued       prometheus.Counter
	QueueDepth           *prometheus.GaugeVec
	LiquidationsExecuted *prometheus.CounterVec
	KeeperSlashes        prometheus.Counter
	KeeperRewardsPaid    prometheus.Counter

	// --- Chain execution ---
	ChainsExecuted *prometheus.CounterVec
	ChainDepth     prometheus.Histogram

	// --- Idempotency & ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	EventSequenceGap      *prometheus.CounterVec
	EventOutOfOrder       *prometheus.CounterVec

	// --- Channels & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PersistBackpressure prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchDur        prometheus.Histogram
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistLastSequence    prometheus.Gauge
	SnapshotTaken          prometheus.Counter
	SnapshotDuration       prometheus.Histogram
	SnapshotLastSeq        prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// --- Audit ---
	AuditEvents prometheus.Counter
}

// NewMetrics registers all metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CoreEventsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_core_events_applied_total",
			Help: "Events applied by the deterministic core",
		}, []string{"event_type"}),
		CoreEventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_core_events_rejected_total",
			Help: "Events rejected before application",
		}, []string{"event_type", "reason"}),
		CoreEventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verserisk_core_event_duration_seconds",
			Help:    "Per-event processing latency",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
		}, []string{"event_type"}),
		CoreSequence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "verserisk_core_sequence",
			Help: "Current global sequence number",
		}),

		OracleUpdatesAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_oracle_updates_accepted_total",
			Help: "Accepted oracle price submissions",
		}, []string{"source"}),
		OracleUpdatesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_oracle_updates_rejected_total",
			Help: "Rejected oracle price submissions",
		}, []string{"source", "reason"}),
		OracleMedianPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verserisk_oracle_median_price",
			Help: "Last aggregated median YES price, price scale",
		}, []string{"market"}),
		OracleConfidence: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verserisk_oracle_confidence_bps",
			Help: "Confidence of the last aggregate, bps",
		}, []string{"market"}),
		OracleFallbackActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verserisk_oracle_fallback_active",
			Help: "1 while a market serves fallback prices",
		}, []string{"market"}),

		CrossvalChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_crossval_checks_total",
			Help: "Cross-venue validation runs by verdict",
		}, []string{"status"}),
		CrossvalDiscrepancies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_crossval_discrepancies_total",
			Help: "Discrepancies found across venues",
		}, []string{"type", "severity"}),

		HealthChecksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "verserisk_health_checks_total",
			Help: "Position health evaluations",
		}),
		WarningsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "verserisk_health_warnings_total",
			Help: "Health warnings issued",
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verserisk_liquidation_queue_depth",
			Help: "Entries in the liquidation queue per tier",
		}, []string{"tier"}),
		LiquidationsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_liquidations_executed_total",
			Help: "Committed liquidations by type",
		}, []string{"type"}),
		KeeperSlashes: factory.NewCounter(prometheus.CounterOpts{
			Name: "verserisk_keeper_slashes_total",
			Help: "Keeper stake slashes for failed executions",
		}),
		KeeperRewardsPaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "verserisk_keeper_rewards_paid_total",
			Help: "Keeper reward payouts",
		}),

		ChainsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_chains_executed_total",
			Help: "Chain executions by final status",
		}, []string{"status"}),
		ChainDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "verserisk_chain_depth",
			Help:    "Step count of executed chains",
			Buckets: prometheus.LinearBuckets(1, 1, 5),
		}),

		IdempotencyDuplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_idempotency_duplicates_total",
			Help: "Duplicate events caught per tier",
		}, []string{"event_type", "tier"}),
		EventSequenceGap: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_event_sequence_gaps_total",
			Help: "Sequence gaps detected per partition",
		}, []string{"partition"}),
		EventOutOfOrder: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_event_out_of_order_total",
			Help: "Out-of-order events rejected per partition",
		}, []string{"partition"}),

		ChannelSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verserisk_channel_size",
			Help: "Current depth of internal channels",
		}, []string{"channel"}),
		ProjectionDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_projection_drops_total",
			Help: "Outputs dropped on the projection channel",
		}, []string{"projection"}),
		PersistBackpressure: factory.NewCounter(prometheus.CounterOpts{
			Name: "verserisk_persist_backpressure_total",
			Help: "Core stalls waiting on the persistence worker",
		}),

		PersistEventsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "verserisk_persist_events_written_total",
			Help: "Envelopes written to the event log",
		}),
		PersistJournalsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "verserisk_persist_journals_written_total",
			Help: "Journal rows written to the event log",
		}),
		PersistBatchDur: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "verserisk_persist_batch_duration_seconds",
			Help:    "Flush latency per persisted batch",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		PersistBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "verserisk_persist_batch_size",
			Help:    "Events per persisted batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		PersistErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_persist_errors_total",
			Help: "Persistence failures by operation",
		}, []string{"operation"}),
		PersistLastSequence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "verserisk_persist_last_sequence",
			Help: "Highest sequence durably written",
		}),
		SnapshotTaken: factory.NewCounter(prometheus.CounterOpts{
			Name: "verserisk_snapshot_taken_total",
			Help: "State snapshots written",
		}),
		SnapshotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "verserisk_snapshot_duration_seconds",
			Help:    "Time to capture and persist a snapshot",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		SnapshotLastSeq: factory.NewGauge(prometheus.GaugeOpts{
			Name: "verserisk_snapshot_last_sequence",
			Help: "Sequence of the latest snapshot",
		}),

		QueryRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verserisk_query_requests_total",
			Help: "Query API requests by route and status",
		}, []string{"route", "status"}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verserisk_query_duration_seconds",
			Help:    "Query API latency by route",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"route"}),

		AuditEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "verserisk_audit_events_total",
			Help: "Security events recorded by the audit sink",
		}),
	}
}
