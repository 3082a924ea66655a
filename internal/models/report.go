package models

import "time"

// RunKind names what an aggregate run did: a probe kind or "health".
type RunKind string

const RunHealth RunKind = "health"

// EndpointOutcome is one endpoint's entry in an aggregate run.
// Exactly one of Probe or Health is set.
type EndpointOutcome struct {
	EndpointID   string        `json:"endpoint_id"`
	EndpointName string        `json:"endpoint_name"`
	Region       string        `json:"region,omitempty"`
	Probe        *ProbeResult  `json:"probe,omitempty"`
	Health       *HealthReport `json:"health,omitempty"`
}

func (o EndpointOutcome) Succeeded() bool {
	switch {
	case o.Probe != nil:
		return o.Probe.Succeeded
	case o.Health != nil:
		return o.Health.Succeeded
	}
	return false
}

// Reason returns the failure description, empty on success.
func (o EndpointOutcome) Reason() string {
	switch {
	case o.Probe != nil && !o.Probe.Succeeded:
		return string(o.Probe.ErrorKind) + ": " + o.Probe.Error
	case o.Health != nil && !o.Health.Succeeded:
		return string(o.Health.ErrorKind) + ": " + o.Health.Error
	}
	return ""
}

type RegionSummary struct {
	Region             string   `json:"region"`
	Endpoints          int      `json:"endpoints"`
	Succeeded          int      `json:"succeeded"`
	MeanLatencyMs      *float64 `json:"mean_latency_ms,omitempty"`
	EstimatedLatencyMs *float64 `json:"estimated_latency_ms,omitempty"`
}

// AggregateReport is built fresh for one orchestrator run and never persisted.
type AggregateReport struct {
	RunID          string            `json:"run_id"`
	Kind           RunKind           `json:"kind"`
	Results        []EndpointOutcome `json:"results"`
	SucceededCount int               `json:"succeeded_count"`
	FailedCount    int               `json:"failed_count"`
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    time.Time         `json:"completed_at"`
	Regions        []RegionSummary   `json:"regions,omitempty"`
}
