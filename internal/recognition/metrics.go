package recognition

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idscan_recognition_attempts_total",
			Help: "Total number of recognition engine calls",
		},
		[]string{"engine", "outcome"}, // outcome: ok, unavailable, timeout, error
	)

	tokensRecognized = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "idscan_recognition_tokens",
			Help:    "Number of tokens returned per recognition",
			Buckets: []float64{0, 5, 10, 25, 50, 100, 250},
		},
		[]string{"engine"},
	)
)
