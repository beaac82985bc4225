package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EconomyMetrics bundles the collectors tracking chip movement through
// the economy: settlements, rake, ledger growth, transaction outcomes
// and snapshot progress.
type EconomyMetrics struct {
	settlements   *prometheus.CounterVec
	rakeCollected prometheus.Counter
	ledgerEntries *prometheus.CounterVec
	txnOutcomes   *prometheus.CounterVec
	authDenials   *prometheus.CounterVec
	handsPlayed   prometheus.Counter
	activeTables  prometheus.Gauge
	snapshotVer   prometheus.Gauge
	chainLength   prometheus.Gauge
}

var (
	economyOnce     sync.Once
	economyRegistry *EconomyMetrics
)

// Economy returns the singleton economy metrics registry.
func Economy() *EconomyMetrics {
	economyOnce.Do(func() {
		economyRegistry = &EconomyMetrics{
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cardroom",
				Name:      "settlements_total",
				Help:      "Count of hand settlements segmented by outcome.",
			}, []string{"outcome"}),
			rakeCollected: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cardroom",
				Name:      "rake_collected_chips_total",
				Help:      "Cumulative rake collected across all settled hands, in chips.",
			}),
			ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cardroom",
				Name:      "ledger_entries_total",
				Help:      "Count of committed ledger entries segmented by entry type.",
			}, []string{"type"}),
			txnOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cardroom",
				Name:      "transactions_total",
				Help:      "Count of atomic transactions segmented by final status.",
			}, []string{"status"}),
			authDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cardroom",
				Name:      "authorization_denials_total",
				Help:      "Count of denied table-authority actions segmented by reason.",
			}, []string{"reason"}),
			handsPlayed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cardroom",
				Name:      "hands_played_total",
				Help:      "Count of hands settled across all tables.",
			}),
			activeTables: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cardroom",
				Name:      "active_tables",
				Help:      "Number of tables currently open or in a hand.",
			}),
			snapshotVer: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cardroom",
				Name:      "snapshot_version",
				Help:      "Version of the most recent snapshot captured or recovered.",
			}),
			chainLength: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cardroom",
				Name:      "ledger_chain_length",
				Help:      "Length of the in-memory hash chain.",
			}),
		}
		prometheus.MustRegister(
			economyRegistry.settlements,
			economyRegistry.rakeCollected,
			economyRegistry.ledgerEntries,
			economyRegistry.txnOutcomes,
			economyRegistry.authDenials,
			economyRegistry.handsPlayed,
			economyRegistry.activeTables,
			economyRegistry.snapshotVer,
			economyRegistry.chainLength,
		)
	})
	return economyRegistry
}

// ObserveSettlement records one settlement attempt by outcome
// ("settled", "replayed", "failed").
func (m *EconomyMetrics) ObserveSettlement(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

// AddRake accumulates collected rake. Negative amounts are ignored.
func (m *EconomyMetrics) AddRake(chips int64) {
	if m == nil || chips <= 0 {
		return
	}
	m.rakeCollected.Add(float64(chips))
}

// ObserveLedgerEntry counts one committed entry by type.
func (m *EconomyMetrics) ObserveLedgerEntry(entryType string) {
	if m == nil {
		return
	}
	if entryType == "" {
		entryType = "unknown"
	}
	m.ledgerEntries.WithLabelValues(entryType).Inc()
}

// ObserveTransaction counts one finished transaction by status
// ("committed", "rolled_back", "failed").
func (m *EconomyMetrics) ObserveTransaction(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.txnOutcomes.WithLabelValues(status).Inc()
}

// ObserveAuthorizationDenial counts one denied action by reason code.
func (m *EconomyMetrics) ObserveAuthorizationDenial(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.authDenials.WithLabelValues(reason).Inc()
}

// ObserveHandPlayed counts one settled hand.
func (m *EconomyMetrics) ObserveHandPlayed() {
	if m == nil {
		return
	}
	m.handsPlayed.Inc()
}

// SetActiveTables updates the open-table gauge.
func (m *EconomyMetrics) SetActiveTables(count int) {
	if m == nil {
		return
	}
	m.activeTables.Set(float64(count))
}

// SetSnapshotVersion updates the snapshot version gauge.
func (m *EconomyMetrics) SetSnapshotVersion(version uint64) {
	if m == nil {
		return
	}
	m.snapshotVer.Set(float64(version))
}

// SetChainLength updates the ledger chain length gauge.
func (m *EconomyMetrics) SetChainLength(length int) {
	if m == nil {
		return
	}
	m.chainLength.Set(float64(length))
}
