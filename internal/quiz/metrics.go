package quiz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainquiz_attempts_total",
		Help: "Attempt sets served, labeled by recovery method (real or fallback).",
	}, []string{"method"})

	recoveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainquiz_timelock_recovery_failures_total",
		Help: "Time-lock recoveries that failed after release and triggered the fallback path.",
	})

	oracleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainquiz_oracle_errors_total",
		Help: "Height oracle calls that failed with a transport error.",
	})
)
