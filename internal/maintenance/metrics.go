package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	integrityRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datawise_integrity_runs_total",
			Help: "Total number of dataset integrity runs by status.",
		},
		[]string{"status"},
	)
	integrityTablesCheckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datawise_integrity_tables_checked_total",
			Help: "Total dataset tables checked by integrity runs.",
		},
	)
	integrityMissingTablesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datawise_integrity_missing_tables_total",
			Help: "Total registered dataset tables missing from the object store.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		integrityRunsTotal,
		integrityTablesCheckedTotal,
		integrityMissingTablesTotal,
	)
}
