package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// cpuSmoothing is the exponential-moving-average weight applied to fresh
// CPU samples so a single busy second does not spike the gauge.
const cpuSmoothing = 0.3

// SystemStats is the most recent sampled view of process and host
// resources, the source for both the Prometheus gauges and the INFO
// command's memory/CPU fields.
type SystemStats struct {
	CPUPercent     float64
	HeapAllocBytes uint64
	SysBytes       uint64
	Goroutines     int
	GCCount        uint32
}

// Sample refreshes the system gauges once: heap numbers from the runtime,
// CPU from a gopsutil host-wide measurement over the sampling window.
func (m *Metrics) Sample() {
	if m == nil {
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := SystemStats{
		HeapAllocBytes: mem.HeapAlloc,
		SysBytes:       mem.Sys,
		Goroutines:     runtime.NumGoroutine(),
		GCCount:        mem.NumGC,
	}

	if percents, err := cpu.Percent(time.Second, false); err == nil && len(percents) > 0 {
		m.mu.RLock()
		previous := m.system.CPUPercent
		m.mu.RUnlock()
		if previous == 0 {
			stats.CPUPercent = percents[0]
		} else {
			stats.CPUPercent = cpuSmoothing*percents[0] + (1-cpuSmoothing)*previous
		}
	} else {
		m.mu.RLock()
		stats.CPUPercent = m.system.CPUPercent
		m.mu.RUnlock()
	}

	m.mu.Lock()
	m.system = stats
	m.mu.Unlock()

	m.memoryUsage.Set(float64(stats.HeapAllocBytes))
	m.cpuUsage.Set(stats.CPUPercent)
	m.goroutines.Set(float64(stats.Goroutines))
}

// RunSampler samples system stats every interval until ctx is done. The
// gopsutil CPU measurement itself blocks for a second per sample; the
// ticker keeps its own period, so a sample starts every interval as long
// as interval exceeds that second.
func (m *Metrics) RunSampler(ctx context.Context, interval time.Duration) {
	if m == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sample()
		case <-ctx.Done():
			return
		}
	}
}

// System returns the most recently sampled stats.
func (m *Metrics) System() SystemStats {
	if m == nil {
		return SystemStats{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.system
}
