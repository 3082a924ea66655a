package models

import "time"

// Record is one append-only row of the metrics sink.
type Record struct {
	Kind       RunKind       `json:"kind"`
	EndpointID string        `json:"endpoint_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Probe      *ProbeResult  `json:"probe,omitempty"`
	Health     *HealthReport `json:"health,omitempty"`
}

func ProbeRecord(r *ProbeResult) Record {
	return Record{
		Kind:       RunKind(r.Kind),
		EndpointID: r.EndpointID,
		Timestamp:  r.Timestamp,
		Probe:      r,
	}
}

func HealthRecord(r *HealthReport) Record {
	return Record{
		Kind:       RunHealth,
		EndpointID: r.EndpointID,
		Timestamp:  r.Timestamp,
		Health:     r,
	}
}

// TrendPoint is one (timestamp, value) pair of a trend series.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// TrendMetric names a numeric series extractable from records.
type TrendMetric string

const (
	MetricLatencyMs         TrendMetric = "latency_ms"
	MetricMeanMs            TrendMetric = "mean_ms"
	MetricThroughputQPS     TrendMetric = "throughput_qps"
	MetricCacheHitRatio     TrendMetric = "cache_hit_ratio"
	MetricActiveConnections TrendMetric = "active_connections"
	MetricIdleConnections   TrendMetric = "idle_connections"
	MetricDatabaseSizeBytes TrendMetric = "database_size_bytes"
)

// Value extracts metric from the record. ok is false when the record
// does not carry the metric (wrong kind or failed attempt).
func (r Record) Value(metric TrendMetric) (float64, bool) {
	if p := r.Probe; p != nil {
		if !p.Succeeded {
			return 0, false
		}
		switch metric {
		case MetricLatencyMs:
			if p.LatencyMs != nil {
				return *p.LatencyMs, true
			}
		case MetricMeanMs:
			if p.MeanMs != nil {
				return *p.MeanMs, true
			}
		case MetricThroughputQPS:
			if p.Kind == ProbeLoad {
				return p.ThroughputQPS, true
			}
		}
		return 0, false
	}

	if h := r.Health; h != nil && h.Succeeded {
		switch metric {
		case MetricCacheHitRatio:
			return h.CacheHitRatio, true
		case MetricActiveConnections:
			return float64(h.ActiveConnections), true
		case MetricIdleConnections:
			return float64(h.IdleConnections), true
		case MetricDatabaseSizeBytes:
			return float64(h.DatabaseSizeBytes), true
		}
	}
	return 0, false
}

func ParseTrendMetric(s string) (TrendMetric, error) {
	switch m := TrendMetric(s); m {
	case MetricLatencyMs, MetricMeanMs, MetricThroughputQPS, MetricCacheHitRatio,
		MetricActiveConnections, MetricIdleConnections, MetricDatabaseSizeBytes:
		return m, nil
	}
	return "", NewValidationError("metric", "unknown trend metric "+s)
}
