package models

import "time"

type ProbeKind string

const (
	ProbeConnectivity ProbeKind = "connectivity"
	ProbeLatency      ProbeKind = "latency"
	ProbeLoad         ProbeKind = "load"
)

func ParseProbeKind(s string) (ProbeKind, error) {
	switch k := ProbeKind(s); k {
	case ProbeConnectivity, ProbeLatency, ProbeLoad:
		return k, nil
	}
	return "", NewValidationError("kind", "must be connectivity, latency or load")
}

// EffectiveSSL is the TLS behaviour actually used for a connection.
type EffectiveSSL string

const (
	EffectiveSSLDisabled  EffectiveSSL = "disabled"
	EffectiveSSLRequired  EffectiveSSL = "required"
	EffectiveSSLPreferred EffectiveSSL = "preferred"
)

// SSLModeParam maps to the libpq sslmode connection parameter.
func (e EffectiveSSL) SSLModeParam() string {
	switch e {
	case EffectiveSSLDisabled:
		return "disable"
	case EffectiveSSLPreferred:
		return "prefer"
	default:
		return "require"
	}
}

// HostSnapshot is the prober host's own load at the time of a probe.
type HostSnapshot struct {
	CPUUsagePercent    float64 `json:"cpu_usage_percent"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	LoadAvg1m          float64 `json:"load_1m"`
}

// ProbeResult is the immutable outcome of one connectivity, latency or load attempt.
type ProbeResult struct {
	ID         string    `json:"id"`
	EndpointID string    `json:"endpoint_id"`
	Kind       ProbeKind `json:"kind"`
	Succeeded  bool      `json:"succeeded"`
	Timestamp  time.Time `json:"timestamp"`

	LatencyMs *float64  `json:"latency_ms"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`

	EffectiveSSL  EffectiveSSL `json:"effective_ssl,omitempty"`
	ServerVersion string       `json:"server_version,omitempty"`
	ServerAddr    string       `json:"server_addr,omitempty"`
	BackendPID    uint32       `json:"backend_pid,omitempty"`

	// Latency and load statistics
	SampleCount int       `json:"sample_count,omitempty"`
	Samples     []float64 `json:"samples,omitempty"`
	MinMs       *float64  `json:"min_ms,omitempty"`
	MeanMs      *float64  `json:"mean_ms,omitempty"`
	MaxMs       *float64  `json:"max_ms,omitempty"`
	FailedRound int       `json:"failed_round,omitempty"`

	// Load test only
	Concurrency    int              `json:"concurrency,omitempty"`
	DurationMs     float64          `json:"duration_ms,omitempty"`
	SucceededCount int              `json:"succeeded_count,omitempty"`
	FailedCount    int              `json:"failed_count,omitempty"`
	ThroughputQPS  float64          `json:"throughput_qps,omitempty"`
	Connections    []ConnectionStat `json:"connections,omitempty"`
	Host           *HostSnapshot    `json:"host,omitempty"`
}

// ConnectionStat is one load-test connection's own outcome.
type ConnectionStat struct {
	Index      int       `json:"index"`
	RoundTrips int       `json:"round_trips"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Fail marks the result failed with a classified error.
func (r *ProbeResult) Fail(kind ErrorKind, err error) {
	r.Succeeded = false
	r.ErrorKind = kind
	if err != nil {
		r.Error = err.Error()
	}
}
