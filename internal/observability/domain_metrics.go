package observability

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Query outcomes recorded by ObserveQuery.
const (
	QueryOutcomeSuccess          = "success"
	QueryOutcomeRepaired         = "repaired"
	QueryOutcomeGenerationFailed = "generation_failed"
	QueryOutcomeRejected         = "rejected"
	QueryOutcomeFailed           = "failed"
	QueryOutcomeRepairFailed     = "repair_failed"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datawise_queries_total",
			Help: "Natural-language query runs by outcome.",
		},
		[]string{"outcome"},
	)
	queryRepairsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datawise_query_repairs_total",
			Help: "Total number of repair attempts after a column error.",
		},
	)
	guardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datawise_guard_rejections_total",
			Help: "SQL candidates rejected by the guard, by matched keyword.",
		},
		[]string{"keyword"},
	)
	completionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datawise_completion_attempts_total",
			Help: "Completion backend attempts by outcome.",
		},
		[]string{"outcome"},
	)
	chatMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datawise_chat_messages_total",
			Help: "Chat messages handled, by classified intent.",
		},
		[]string{"intent"},
	)
	queryDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "datawise_query_duration_ms",
			Help:    "Engine execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		queryRepairsTotal,
		guardRejectionsTotal,
		completionAttemptsTotal,
		chatMessagesTotal,
		queryDurationMs,
	)
}

func ObserveQuery(outcome string) {
	queriesTotal.WithLabelValues(outcome).Inc()
}

func IncrementQueryRepair() {
	queryRepairsTotal.Inc()
}

func IncrementGuardRejection(keyword string) {
	if keyword == "" {
		keyword = "none"
	}
	guardRejectionsTotal.WithLabelValues(strings.ToLower(keyword)).Inc()
}

func ObserveCompletionAttempt(outcome string) {
	completionAttemptsTotal.WithLabelValues(outcome).Inc()
}

func ObserveChatMessage(intent string) {
	chatMessagesTotal.WithLabelValues(intent).Inc()
}

func ObserveQueryDuration(elapsed time.Duration) {
	queryDurationMs.Observe(float64(elapsed.Milliseconds()))
}
