package extract

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// batchesTotal counts fetched windows by outcome (ok, failed).
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callrail_batches_total",
			Help: "Total number of fetch windows by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callrail_records_total",
			Help: "Total number of records extracted by endpoint",
		},
		[]string{"endpoint"},
	)
)
