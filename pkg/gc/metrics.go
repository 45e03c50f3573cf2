package gc

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coreobjects/coreobjects/pkg/types"
)

var (
	collectorMetrics sync.Once

	collectorCyclesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coreobjects",
			Subsystem: "gc",
			Name:      "cycles_completed_total",
			Help:      "Number of collection cycles that ran to completion",
		})
	collectorObjectsCleared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coreobjects",
			Subsystem: "gc",
			Name:      "objects_cleared_total",
			Help:      "Number of objects destroyed by the clearing phase",
		})
	collectorObjectsScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coreobjects",
			Subsystem: "gc",
			Name:      "objects_scanned_total",
			Help:      "Number of objects whose fields were traced",
		})
	collectorKeysDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coreobjects",
			Subsystem: "gc",
			Name:      "map_keys_dropped_total",
			Help:      "Number of map entries dropped because their rewritten keys collided",
		})
	collectorCollectCalls = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "coreobjects",
			Subsystem: "gc",
			Name:      "collect_calls_per_cycle",
			Help:      "Number of Collect calls needed to complete one cycle",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		})
	collectorPhaseDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coreobjects",
			Subsystem: "gc",
			Name:      "phase_duration_seconds",
			Help:      "Time spent per cycle in each collector phase",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"phase"})
	collectorLastClearCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coreobjects",
			Subsystem: "gc",
			Name:      "last_clear_count",
			Help:      "Number of objects destroyed by the most recent cycle",
		})
)

func registerMetrics() {
	collectorMetrics.Do(func() {
		prometheus.MustRegister(collectorCyclesCompleted)
		prometheus.MustRegister(collectorObjectsCleared)
		prometheus.MustRegister(collectorObjectsScanned)
		prometheus.MustRegister(collectorKeysDropped)
		prometheus.MustRegister(collectorCollectCalls)
		prometheus.MustRegister(collectorPhaseDurationSeconds)
		prometheus.MustRegister(collectorLastClearCount)
	})
}

func observeCycle(r types.CycleReport) {
	collectorCyclesCompleted.Inc()
	collectorObjectsCleared.Add(float64(r.ObjectsCleared))
	collectorObjectsScanned.Add(float64(r.ObjectsScanned))
	collectorKeysDropped.Add(float64(r.KeysDropped))
	collectorCollectCalls.Observe(float64(r.CollectCalls))
	collectorPhaseDurationSeconds.WithLabelValues("mark_roots").Observe(r.Timings.MarkRoots.Seconds())
	collectorPhaseDurationSeconds.WithLabelValues("ref_collectors").Observe(r.Timings.RefCollectors.Seconds())
	collectorPhaseDurationSeconds.WithLabelValues("collection").Observe(r.Timings.Collection.Seconds())
	collectorPhaseDurationSeconds.WithLabelValues("clear").Observe(r.Timings.Clear.Seconds())
	collectorLastClearCount.Set(float64(r.ObjectsCleared))
}
