package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	removedProducts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tilefinder",
		Name:      "removed_products_total",
		Help:      "Number of redundant products removed, by deduplication policy",
	}, []string{"policy"})

	ambiguousDeduplications = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tilefinder",
		Name:      "ambiguous_deduplications_total",
		Help:      "Number of pairs of products that could not be ordered by processing level",
	})

	annotationCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tilefinder",
		Name:      "annotation_cache_total",
		Help:      "Lookups of the annotation cache, by result (hit or miss)",
	}, []string{"result"})

	lookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tilefinder",
		Name:      "lookup_duration_seconds",
		Help:      "Duration of the tile lookups and annotations",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)
