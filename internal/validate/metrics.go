package validate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fieldOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "idscan_fields_total",
		Help: "Validated fields by outcome",
	},
	[]string{"outcome"}, // outcome: ok, not_found, invalid_format, inconsistent, unrecognized_enum
)

func recordOutcome(f fieldOutcome) {
	fieldOutcomes.WithLabelValues(string(f)).Inc()
}

type fieldOutcome string

const (
	outcomeOK           fieldOutcome = "ok"
	outcomeNotFound     fieldOutcome = "not_found"
	outcomeInvalid      fieldOutcome = "invalid_format"
	outcomeInconsistent fieldOutcome = "inconsistent"
	outcomeUnrecognized fieldOutcome = "unrecognized_enum"
)
