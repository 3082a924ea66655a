package models

import "time"

// Capability is what the target server exposes, discovered once per evaluation.
type Capability string

const (
	CapabilityBaseline Capability = "baseline"
	CapabilityExtended Capability = "extended"
)

// Baseline metrics come from views every PostgreSQL server has.
type Baseline struct {
	CacheHitRatio     float64 `json:"cache_hit_ratio"`
	ActiveConnections int64   `json:"active_connections"`
	IdleConnections   int64   `json:"idle_connections"`
	IdleInTransaction int64   `json:"idle_in_transaction"`
	TotalConnections  int64   `json:"total_connections"`
	DatabaseSizeBytes int64   `json:"database_size_bytes"`
}

// QueryStat is one row of statement statistics.
type QueryStat struct {
	QueryText   string   `json:"query_text"`
	Calls       int64    `json:"calls"`
	TotalExecMs float64  `json:"total_exec_ms"`
	MeanExecMs  float64  `json:"mean_exec_ms"`
	MaxExecMs   float64  `json:"max_exec_ms"`
	CacheHitPct *float64 `json:"cache_hit_pct,omitempty"`
}

type HealthReport struct {
	ID         string    `json:"id"`
	EndpointID string    `json:"endpoint_id"`
	Timestamp  time.Time `json:"timestamp"`
	Succeeded  bool      `json:"succeeded"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`

	Baseline

	Capability        Capability  `json:"capability"`
	ExtendedAvailable bool        `json:"extended_available"`
	TopQueries        []QueryStat `json:"top_queries,omitempty"`
	Warning           *string     `json:"warning"`
	Findings          []Finding   `json:"findings,omitempty"`

	EffectiveSSL EffectiveSSL `json:"effective_ssl,omitempty"`
	DurationMs   float64      `json:"duration_ms"`
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Finding is a threshold breach spotted in a successful health report.
type Finding struct {
	Detector string         `json:"detector"`
	Severity Severity       `json:"severity"`
	Title    string         `json:"title"`
	Evidence map[string]any `json:"evidence,omitempty"`
}

func (r *HealthReport) Fail(kind ErrorKind, err error) {
	r.Succeeded = false
	r.ErrorKind = kind
	if err != nil {
		r.Error = err.Error()
	}
}
