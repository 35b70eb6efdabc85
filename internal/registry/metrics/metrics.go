package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the registry ledger.
type Metrics struct {
	RecordsRegistered prometheus.Counter
	MetadataUpdates   prometheus.Counter
	AccessGrants      prometheus.Counter
	DuplicateGrants   prometheus.Counter
	Deactivations     prometheus.Counter
	FeeChanges        prometheus.Counter
	RejectedMutations *prometheus.CounterVec
}

// New creates and registers all registry metrics.
func New() *Metrics {
	return &Metrics{
		RecordsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "datamarket_registry_records_registered_total",
			Help: "Total number of dataset records registered",
		}),
		MetadataUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "datamarket_registry_metadata_updates_total",
			Help: "Total number of record metadata updates",
		}),
		AccessGrants: promauto.NewCounter(prometheus.CounterOpts{
			Name: "datamarket_registry_access_grants_total",
			Help: "Total number of first-time access grants",
		}),
		DuplicateGrants: promauto.NewCounter(prometheus.CounterOpts{
			Name: "datamarket_registry_duplicate_grants_total",
			Help: "Total number of repeat grants absorbed idempotently",
		}),
		Deactivations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "datamarket_registry_deactivations_total",
			Help: "Total number of record deactivations",
		}),
		FeeChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "datamarket_registry_fee_changes_total",
			Help: "Total number of platform fee changes",
		}),
		RejectedMutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "datamarket_registry_rejected_mutations_total",
			Help: "Total number of mutations rejected before touching state",
		}, []string{"operation", "code"}),
	}
}

// IncRejected records a rejected mutation. Safe on a nil receiver so services
// can run without metrics in tests.
func (m *Metrics) IncRejected(operation, code string) {
	if m == nil {
		return
	}
	m.RejectedMutations.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) IncRegistered() {
	if m == nil {
		return
	}
	m.RecordsRegistered.Inc()
}

func (m *Metrics) IncMetadataUpdated() {
	if m == nil {
		return
	}
	m.MetadataUpdates.Inc()
}

func (m *Metrics) IncAccessGranted(firstGrant bool) {
	if m == nil {
		return
	}
	if firstGrant {
		m.AccessGrants.Inc()
	} else {
		m.DuplicateGrants.Inc()
	}
}

func (m *Metrics) IncDeactivated() {
	if m == nil {
		return
	}
	m.Deactivations.Inc()
}

func (m *Metrics) IncFeeChanged() {
	if m == nil {
		return
	}
	m.FeeChanges.Inc()
}
