package store

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts store operations.
	// Labels: operation, result (success, not_found, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vecfs",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"operation", "result"},
	)

	// OperationDuration tracks how long store operations take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vecfs",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// SnapshotBytes records the size of the last saved internals snapshot.
	SnapshotBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vecfs",
			Subsystem: "store",
			Name:      "snapshot_bytes",
			Help:      "Size in bytes of the last saved profile internals snapshot",
		},
		[]string{"profile"},
	)
)

func record(operation string, start time.Time, err error) {
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		OperationsTotal.WithLabelValues(operation, "success").Inc()
	case errors.Is(err, ErrNotFound):
		OperationsTotal.WithLabelValues(operation, "not_found").Inc()
	default:
		OperationsTotal.WithLabelValues(operation, "error").Inc()
	}
}

// instrumented records metrics around every call of the wrapped store.
type instrumented struct {
	next Store
}

// Instrument wraps s with Prometheus metrics.
func Instrument(s Store) Store {
	return &instrumented{next: s}
}

func (s *instrumented) SaveProfileFSInternals(ctx context.Context, profile string, blob ProfileBlob) (err error) {
	defer func(start time.Time) { record("save_internals", start, err) }(time.Now())
	if err = s.next.SaveProfileFSInternals(ctx, profile, blob); err == nil {
		SnapshotBytes.WithLabelValues(profile).Set(float64(blobSize(blob)))
	}
	return err
}

func (s *instrumented) GetProfileFSInternals(ctx context.Context, profile string) (blob ProfileBlob, err error) {
	defer func(start time.Time) { record("get_internals", start, err) }(time.Now())
	return s.next.GetProfileFSInternals(ctx, profile)
}

func (s *instrumented) Commit(ctx context.Context, profile string, b Batch) (err error) {
	defer func(start time.Time) { record("commit", start, err) }(time.Now())
	if err = s.next.Commit(ctx, profile, b); err == nil && b.Internals != nil {
		SnapshotBytes.WithLabelValues(profile).Set(float64(blobSize(*b.Internals)))
	}
	return err
}

func (s *instrumented) GetResource(ctx context.Context, profile, key string) (data []byte, err error) {
	defer func(start time.Time) { record("get_resource", start, err) }(time.Now())
	return s.next.GetResource(ctx, profile, key)
}

func (s *instrumented) GetSourceFileMap(ctx context.Context, profile, key string) (data []byte, err error) {
	defer func(start time.Time) { record("get_source_file_map", start, err) }(time.Now())
	return s.next.GetSourceFileMap(ctx, profile, key)
}

func (s *instrumented) AddAccessLog(ctx context.Context, profile string, entry AccessLog) (err error) {
	defer func(start time.Time) { record("add_access_log", start, err) }(time.Now())
	return s.next.AddAccessLog(ctx, profile, entry)
}

func (s *instrumented) ListAccessLogs(ctx context.Context, profile string, limit int) (logs []AccessLog, err error) {
	defer func(start time.Time) { record("list_access_logs", start, err) }(time.Now())
	return s.next.ListAccessLogs(ctx, profile, limit)
}

func (s *instrumented) TrimAccessLogs(ctx context.Context, profile string, keep int) (n int, err error) {
	defer func(start time.Time) { record("trim_access_logs", start, err) }(time.Now())
	return s.next.TrimAccessLogs(ctx, profile, keep)
}

func (s *instrumented) Close() error {
	return s.next.Close()
}

func blobSize(b ProfileBlob) int {
	return len(b.Core) + len(b.Permissions) + len(b.Subscriptions) + len(b.SupportedModels) + len(b.LastRead)
}
