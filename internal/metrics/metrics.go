package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wagerline_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	LedgerApplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wagerline_ledger_applies_total",
			Help: "Ledger applies by entry kind and result",
		},
		[]string{"kind", "result"},
	)

	LedgerConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wagerline_ledger_conflicts_total",
			Help: "Store transactions lost to a concurrent writer",
		},
	)

	LedgerRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wagerline_ledger_retries_total",
			Help: "Ledger apply attempts beyond the first",
		},
	)

	LedgerLogFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wagerline_ledger_log_failures_total",
			Help: "Committed applies whose log entry could not be written",
		},
	)

	BetsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wagerline_bets_settled_total",
			Help: "Settled bets by game and result",
		},
		[]string{"game", "result"},
	)

	BiasApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wagerline_bias_applied_total",
			Help: "Bets whose outcome was remapped",
		},
		[]string{"game"},
	)

	RoundsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wagerline_rounds_completed_total",
			Help: "Completed shared-game rounds",
		},
		[]string{"game"},
	)

	RoundPersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wagerline_round_persist_failures_total",
			Help: "Round state writes that failed and held back a tick",
		},
		[]string{"game"},
	)

	RoundSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wagerline_round_subscribers",
			Help: "Open round snapshot subscriptions",
		},
		[]string{"game"},
	)
)

var once sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HttpRequests,
			LedgerApplies,
			LedgerConflicts,
			LedgerRetries,
			LedgerLogFailures,
			BetsSettled,
			BiasApplied,
			RoundsCompleted,
			RoundPersistFailures,
			RoundSubscribers,
		)
	})
}

// Result labels a boolean outcome
func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
