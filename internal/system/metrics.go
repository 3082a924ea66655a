// Package system samples the prober host's own CPU, memory and load, so a
// slow load test can be told apart from a busy prober.
package system

import (
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

type Metrics struct {
	CPUUsagePercent    float64 `json:"cpu_usage_percent"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	MemoryUsedBytes    uint64  `json:"memory_used_bytes"`
	MemoryTotalBytes   uint64  `json:"memory_total_bytes"`
	LoadAvg1m          float64 `json:"load_avg_1m"`
	LoadAvg5m          float64 `json:"load_avg_5m"`
	LoadAvg15m         float64 `json:"load_avg_15m"`
}

// Collect reads what the platform supports; unavailable readings stay zero.
func Collect() *Metrics {
	m := &Metrics{}

	// CPU usage since the previous call
	cpuPercent, err := cpu.Percent(0, false)
	if err == nil && len(cpuPercent) > 0 {
		m.CPUUsagePercent = cpuPercent[0]
	}

	memStats, err := mem.VirtualMemory()
	if err == nil {
		m.MemoryUsagePercent = memStats.UsedPercent
		m.MemoryUsedBytes = memStats.Used
		m.MemoryTotalBytes = memStats.Total
	}

	loadStats, err := load.Avg()
	if err == nil {
		m.LoadAvg1m = loadStats.Load1
		m.LoadAvg5m = loadStats.Load5
		m.LoadAvg15m = loadStats.Load15
	}

	return m
}

// Snapshot is the short form attached to load-test results.
func (m *Metrics) Snapshot() *models.HostSnapshot {
	return &models.HostSnapshot{
		CPUUsagePercent:    m.CPUUsagePercent,
		MemoryUsagePercent: m.MemoryUsagePercent,
		LoadAvg1m:          m.LoadAvg1m,
	}
}

// Sample matches probe.HostSampler.
func Sample() *models.HostSnapshot {
	return Collect().Snapshot()
}
