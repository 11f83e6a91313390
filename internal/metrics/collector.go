// Package metrics records per-operation timing for cluster lifecycle
// operations (initialize, start, stop, dump, restore) and exposes them
// both as an in-process rolling log and as Prometheus collectors, the way
// cloudnative-pg instruments its reconcile loop with client_golang.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pgspin/internal/logger"
)

// OperationMetrics holds performance metrics for a single completed
// lifecycle operation.
type OperationMetrics struct {
	Operation  string        `json:"operation"`
	ClusterID  string        `json:"cluster_id"`
	StartTime  time.Time     `json:"start_time"`
	Duration   time.Duration `json:"duration"`
	SizeBytes  int64         `json:"size_bytes,omitempty"`
	ErrorCount int           `json:"error_count"`
	Success    bool          `json:"success"`
}

// MetricsCollector collects operation metrics in-process and mirrors
// them into Prometheus collectors registered under the pgspin_ namespace.
type MetricsCollector struct {
	metrics []OperationMetrics
	mu      sync.RWMutex
	logger  logger.Logger

	opDuration *prometheus.HistogramVec
	opTotal    *prometheus.CounterVec
	opErrors   *prometheus.CounterVec
}

// NewMetricsCollector creates a new metrics collector and registers its
// Prometheus collectors with reg. reg may be nil, in which case
// prometheus.DefaultRegisterer is used.
func NewMetricsCollector(log logger.Logger, reg prometheus.Registerer) *MetricsCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	mc := &MetricsCollector{
		metrics: make([]OperationMetrics, 0),
		logger:  log,
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pgspin",
			Name:      "operation_duration_seconds",
			Help:      "Duration of cluster lifecycle operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		opTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgspin",
			Name:      "operations_total",
			Help:      "Count of completed cluster lifecycle operations by outcome.",
		}, []string{"operation", "outcome"}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgspin",
			Name:      "operation_errors_total",
			Help:      "Count of errors observed during cluster lifecycle operations.",
		}, []string{"operation"}),
	}

	reg.MustRegister(mc.opDuration, mc.opTotal, mc.opErrors)
	return mc
}

// RecordOperation records metrics for a completed operation.
func (mc *MetricsCollector) RecordOperation(operation, clusterID string, start time.Time, sizeBytes int64, success bool, errorCount int) {
	duration := time.Since(start)

	metric := OperationMetrics{
		Operation:  operation,
		ClusterID:  clusterID,
		StartTime:  start,
		Duration:   duration,
		SizeBytes:  sizeBytes,
		ErrorCount: errorCount,
		Success:    success,
	}

	mc.mu.Lock()
	mc.metrics = append(mc.metrics, metric)
	mc.mu.Unlock()

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	mc.opDuration.WithLabelValues(operation).Observe(duration.Seconds())
	mc.opTotal.WithLabelValues(operation, outcome).Inc()
	if errorCount > 0 {
		mc.opErrors.WithLabelValues(operation).Add(float64(errorCount))
	}

	if mc.logger != nil {
		args := []any{
			"operation", operation,
			"cluster_id", clusterID,
			"duration_ms", duration.Milliseconds(),
			"size_bytes", sizeBytes,
			"error_count", errorCount,
		}
		if success {
			mc.logger.Info("operation completed", args...)
		} else {
			mc.logger.Error("operation failed", args...)
		}
	}
}

// GetMetrics returns a copy of all collected metrics.
func (mc *MetricsCollector) GetMetrics() []OperationMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make([]OperationMetrics, len(mc.metrics))
	copy(result, mc.metrics)
	return result
}

// GetAverages calculates average performance metrics across every
// recorded operation.
func (mc *MetricsCollector) GetAverages() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if len(mc.metrics) == 0 {
		return map[string]interface{}{}
	}

	var totalDuration time.Duration
	var successCount, errorCount int

	for _, m := range mc.metrics {
		totalDuration += m.Duration
		if m.Success {
			successCount++
		}
		errorCount += m.ErrorCount
	}

	count := len(mc.metrics)
	return map[string]interface{}{
		"total_operations": count,
		"success_rate":     float64(successCount) / float64(count) * 100,
		"avg_duration_ms":  totalDuration.Milliseconds() / int64(count),
		"total_errors":     errorCount,
	}
}

// Clear removes all collected in-process metrics. Prometheus collectors
// are unaffected since they are cumulative by design.
func (mc *MetricsCollector) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics = make([]OperationMetrics, 0)
}

// GlobalMetrics is the process-wide collector used by cmd/ entry points.
var GlobalMetrics *MetricsCollector

// InitGlobalMetrics initializes the global metrics collector.
func InitGlobalMetrics(log logger.Logger) {
	GlobalMetrics = NewMetricsCollector(log, nil)
}
