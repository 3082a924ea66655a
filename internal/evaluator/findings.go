package evaluator

import (
	"fmt"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
)

// Detector inspects a successful report and returns a finding, or nil.
type Detector interface {
	Name() string
	Detect(report *models.HealthReport) *models.Finding
}

// DefaultDetectors returns the detectors every evaluator runs.
func DefaultDetectors() []Detector {
	return []Detector{
		NewCacheMissDetector(),
		NewIdleTransactionDetector(),
		NewSlowQueryDetector(),
	}
}

// detect runs every detector against a successful report.
func detect(detectors []Detector, report *models.HealthReport) []models.Finding {
	if !report.Succeeded {
		return nil
	}

	var findings []models.Finding
	for _, d := range detectors {
		if f := d.Detect(report); f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}

type CacheMissDetector struct {
	hitPctThreshold float64
}

func NewCacheMissDetector() *CacheMissDetector {
	return &CacheMissDetector{
		hitPctThreshold: 90, // Alert if hit rate falls under 90%
	}
}

func (d *CacheMissDetector) Name() string {
	return "cache_miss_rate_high"
}

func (d *CacheMissDetector) Detect(report *models.HealthReport) *models.Finding {
	hitPct := report.CacheHitRatio

	// zero means no block reads yet
	if hitPct == 0 || hitPct >= d.hitPctThreshold {
		return nil
	}

	severity := models.SeverityInfo
	if hitPct < 70 {
		severity = models.SeverityCritical
	} else if hitPct < 85 {
		severity = models.SeverityWarning
	}

	return &models.Finding{
		Detector: d.Name(),
		Severity: severity,
		Title:    fmt.Sprintf("Cache hit rate at %.1f%% (%.1f%% miss rate)", hitPct, 100-hitPct),
		Evidence: map[string]any{
			"cache_hit_ratio": hitPct,
			"threshold_pct":   d.hitPctThreshold,
		},
	}
}

// IdleTransactionDetector flags sessions parked inside an open transaction,
// which hold locks and block vacuum.
type IdleTransactionDetector struct {
	countThreshold int64
}

func NewIdleTransactionDetector() *IdleTransactionDetector {
	return &IdleTransactionDetector{
		countThreshold: 5,
	}
}

func (d *IdleTransactionDetector) Name() string {
	return "idle_in_transaction"
}

func (d *IdleTransactionDetector) SetThreshold(count int64) {
	d.countThreshold = count
}

func (d *IdleTransactionDetector) Detect(report *models.HealthReport) *models.Finding {
	idle := report.IdleInTransaction
	if idle < d.countThreshold {
		return nil
	}

	severity := models.SeverityWarning
	if idle >= d.countThreshold*3 {
		severity = models.SeverityCritical
	}

	return &models.Finding{
		Detector: d.Name(),
		Severity: severity,
		Title:    fmt.Sprintf("%d sessions idle in transaction", idle),
		Evidence: map[string]any{
			"idle_in_transaction": idle,
			"total_connections":   report.TotalConnections,
			"threshold":           d.countThreshold,
		},
	}
}

// SlowQueryDetector flags the slowest top statement by mean execution time.
// It needs the extended tier.
type SlowQueryDetector struct {
	meanMsThreshold float64
}

func NewSlowQueryDetector() *SlowQueryDetector {
	return &SlowQueryDetector{
		meanMsThreshold: 100.0, // Alert if over 100ms
	}
}

func (d *SlowQueryDetector) Name() string {
	return "high_query_latency"
}

func (d *SlowQueryDetector) SetThreshold(meanMs float64) {
	d.meanMsThreshold = meanMs
}

func (d *SlowQueryDetector) Detect(report *models.HealthReport) *models.Finding {
	if !report.ExtendedAvailable || len(report.TopQueries) == 0 {
		return nil
	}

	slowest := report.TopQueries[0]
	for _, q := range report.TopQueries[1:] {
		if q.MeanExecMs > slowest.MeanExecMs {
			slowest = q
		}
	}
	if slowest.MeanExecMs < d.meanMsThreshold {
		return nil
	}

	severity := models.SeverityInfo
	if slowest.MeanExecMs > d.meanMsThreshold*3 {
		severity = models.SeverityCritical // If over 3x threshold
	} else if slowest.MeanExecMs > d.meanMsThreshold*2 {
		severity = models.SeverityWarning
	}

	return &models.Finding{
		Detector: d.Name(),
		Severity: severity,
		Title:    fmt.Sprintf("Statement averaging %.0fms (threshold %.0fms)", slowest.MeanExecMs, d.meanMsThreshold),
		Evidence: map[string]any{
			"query_text":   slowest.QueryText,
			"mean_exec_ms": slowest.MeanExecMs,
			"calls":        slowest.Calls,
			"threshold_ms": d.meanMsThreshold,
		},
	}
}
