package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ledger metrics
	TransactionsRecorded *prometheus.CounterVec
	TransactionsSettled  prometheus.Counter
	LedgerErrors         *prometheus.CounterVec
	LedgerWriteDuration  prometheus.Histogram

	// Payment metrics
	Sends        *prometheus.CounterVec
	SendDuration prometheus.Histogram
	SendAmount   prometheus.Histogram
	FeesCharged  prometheus.Counter

	// PaymentsResolved counts payments left pending at dispatch and later
	// resolved from the node's record, by outcome.
	PaymentsResolved *prometheus.CounterVec

	// Settlement metrics
	SettlementEvents *prometheus.CounterVec

	// Invoice metrics
	InvoicesCreated *prometheus.CounterVec
	InvoicesExpired prometheus.Counter

	// Node metrics
	NodeActive        *prometheus.GaugeVec
	NodeTransitions   *prometheus.CounterVec
	NodeProbeDuration *prometheus.HistogramVec

	// Outbox metrics
	OutboxPublished prometheus.Counter
	OutboxErrors    prometheus.Counter

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		// Ledger metrics
		TransactionsRecorded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satledger_transactions_recorded_total",
				Help: "Total number of ledger transactions recorded by type",
			},
			[]string{"type", "pending"},
		),
		TransactionsSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "satledger_transactions_settled_total",
			Help: "Total number of pending transactions settled",
		}),
		LedgerErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satledger_ledger_errors_total",
				Help: "Total number of ledger write errors by type",
			},
			[]string{"error_type"},
		),
		LedgerWriteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "satledger_ledger_write_duration_seconds",
			Help:    "Duration of ledger write operations",
			Buckets: prometheus.DefBuckets,
		}),

		// Payment metrics
		Sends: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satledger_sends_total",
				Help: "Total number of sends by route and outcome",
			},
			[]string{"route", "outcome"},
		),
		SendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "satledger_send_duration_seconds",
			Help:    "Duration of send operations",
			Buckets: prometheus.DefBuckets,
		}),
		SendAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "satledger_send_amount_sats",
			Help:    "Send amounts in satoshis",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000, 100000000},
		}),
		FeesCharged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "satledger_fees_charged_sats_total",
			Help: "Total network fees charged to wallets in satoshis",
		}),
		PaymentsResolved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satledger_payments_resolved_total",
				Help: "Total number of pending payments resolved by outcome",
			},
			[]string{"outcome"},
		),

		// Settlement metrics
		SettlementEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satledger_settlement_events_total",
				Help: "Total settlement events by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		// Invoice metrics
		InvoicesCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satledger_invoices_created_total",
				Help: "Total invoices created by currency",
			},
			[]string{"currency"},
		),
		InvoicesExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "satledger_invoices_expired_total",
			Help: "Total invoices marked expired by the sweeper",
		}),

		// Node metrics
		NodeActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "satledger_node_active",
				Help: "Whether a backing node is active (1) or not (0)",
			},
			[]string{"node"},
		),
		NodeTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satledger_node_transitions_total",
				Help: "Total node state transitions by event",
			},
			[]string{"node", "event"},
		),
		NodeProbeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "satledger_node_probe_duration_seconds",
				Help:    "Duration of node liveness probes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		),

		// Outbox metrics
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "satledger_outbox_published_total",
			Help: "Total outbox events published",
		}),
		OutboxErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "satledger_outbox_errors_total",
			Help: "Total outbox publish failures",
		}),

		// Rate limiting metrics
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satledger_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),
	}
}
