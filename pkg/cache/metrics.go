package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks scope cache hits by kind
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callrail_scope_cache_hits_total",
			Help: "Total number of scope id cache hits",
		},
		[]string{"kind"}, // "account", "company"
	)

	// CacheMisses tracks scope cache misses by kind
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callrail_scope_cache_misses_total",
			Help: "Total number of scope id cache misses",
		},
		[]string{"kind"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callrail_scope_cache_errors_total",
			Help: "Total number of scope cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
