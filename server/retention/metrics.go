package retention

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rulesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "retention",
		Name:      "rules_processed_total",
		Help:      "Number of retention rule batches processed.",
	}, []string{"scope"})

	elementsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "retention",
		Name:      "elements_deleted_total",
		Help:      "Number of elements deleted by retention rules.",
	}, []string{"scope"})

	elementErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "retention",
		Name:      "element_errors_total",
		Help:      "Number of element deletions that failed.",
	}, []string{"scope"})
)
