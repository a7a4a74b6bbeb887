package vectorfs

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/vecfs/internal/resource"
)

var (
	// AccessChecksTotal counts reader and writer creation attempts.
	// Labels: kind (read, write), result (granted, denied)
	AccessChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vecfs",
			Subsystem: "vectorfs",
			Name:      "access_checks_total",
			Help:      "Total number of reader and writer permission checks",
		},
		[]string{"kind", "result"},
	)

	// SearchDuration tracks search latency per operation.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vecfs",
			Subsystem: "vectorfs",
			Name:      "search_duration_seconds",
			Help:      "Duration of vector searches in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	// Entries tracks folders and items per profile.
	Entries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vecfs",
			Subsystem: "vectorfs",
			Name:      "entries",
			Help:      "Number of folders and items stored per profile",
		},
		[]string{"profile", "kind"},
	)

	// WritesTotal counts committed and failed writer operations.
	WritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vecfs",
			Subsystem: "vectorfs",
			Name:      "writes_total",
			Help:      "Total number of writer operations",
		},
		[]string{"operation", "result"},
	)
)

func recordAccess(kind string, err error) {
	result := "granted"
	if err != nil {
		result = "denied"
	}
	AccessChecksTotal.WithLabelValues(kind, result).Inc()
}

func recordSearch(operation string, start time.Time) {
	SearchDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func recordWrite(operation string, err error) {
	result := "success"
	var perr *PermissionError
	switch {
	case err == nil:
	case errors.As(err, &perr):
		result = "denied"
	default:
		result = "error"
	}
	WritesTotal.WithLabelValues(operation, result).Inc()
}

func recordEntries(profile string, in *Internals) {
	var folders, items int
	for _, ret := range resource.RetrieveNodesExhaustive(in.Core, resource.Root()) {
		switch ret.Node.Kind {
		case resource.ContentResource:
			folders++
		case resource.ContentVRHeader:
			items++
		}
	}
	Entries.WithLabelValues(profile, "folder").Set(float64(folders))
	Entries.WithLabelValues(profile, "item").Set(float64(items))
}
