package handlers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/daccred/library-ledger/models"
)

// Metrics are the Prometheus collectors updated by the orchestrator.
type Metrics struct {
	transactionsRecorded *prometheus.CounterVec
	blocksMined          prometheus.Counter
	miningDuration       prometheus.Histogram
	pendingTransactions  prometheus.Gauge
	chainLength          prometheus.Gauge
	chainValid           prometheus.Gauge
}

// NewMetrics creates the ledger collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactionsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "transactions_recorded_total",
			Help:      "Signed transactions added to the pending pool.",
		}, []string{"kind"}),
		blocksMined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "blocks_mined_total",
			Help:      "Blocks appended to the chain.",
		}),
		miningDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "mining_duration_seconds",
			Help:      "Time spent in a mining pass that produced a block.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		pendingTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "pending_transactions",
			Help:      "Transactions waiting to be mined.",
		}),
		chainLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "chain_length",
			Help:      "Blocks in the chain including genesis.",
		}),
		chainValid: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "chain_valid",
			Help:      "1 when the last validation passed, 0 otherwise.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.transactionsRecorded, m.blocksMined, m.miningDuration,
			m.pendingTransactions, m.chainLength, m.chainValid)
	}
	return m
}

func (m *Metrics) recorded(kind models.Kind, pending int) {
	if m == nil {
		return
	}
	m.transactionsRecorded.WithLabelValues(kind.String()).Inc()
	m.pendingTransactions.Set(float64(pending))
}

func (m *Metrics) mined(elapsed time.Duration, chainLength, pending int) {
	if m == nil {
		return
	}
	m.blocksMined.Inc()
	m.miningDuration.Observe(elapsed.Seconds())
	m.chainLength.Set(float64(chainLength))
	m.pendingTransactions.Set(float64(pending))
}

func (m *Metrics) validated(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.chainValid.Set(1)
	} else {
		m.chainValid.Set(0)
	}
}
