package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idscan_sessions_total",
		Help: "Finished scan sessions by outcome.",
	}, []string{"outcome"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "idscan_sessions_active",
		Help: "Sessions currently running a pipeline.",
	})

	staleCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idscan_session_stale_commits_total",
		Help: "Stage commits and results dropped because their session was superseded.",
	})
)
