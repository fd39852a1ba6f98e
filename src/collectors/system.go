package collectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

const DefaultSystemInterval = 60 * time.Second

// Sampler reads host-level gauges.
type Sampler interface {
	Sample(ctx context.Context) (eventmodels.SystemSnapshot, error)
}

type GopsutilSampler struct {
	DiskPath    string
	CPUInterval time.Duration
}

func (s GopsutilSampler) Sample(ctx context.Context) (eventmodels.SystemSnapshot, error) {
	snap := eventmodels.SystemSnapshot{Timestamp: time.Now().UTC()}

	cpuInterval := s.CPUInterval
	if cpuInterval <= 0 {
		cpuInterval = time.Second
	}

	percents, err := cpu.PercentWithContext(ctx, cpuInterval, false)
	if err != nil {
		return snap, fmt.Errorf("GopsutilSampler.Sample: cpu: %w", err)
	}
	if len(percents) > 0 {
		snap.CPUUsage = percents[0]
	}

	// load averages are unavailable on some platforms
	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.CPULoad1m, snap.CPULoad5m, snap.CPULoad15m = avg.Load1, avg.Load5, avg.Load15
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snap, fmt.Errorf("GopsutilSampler.Sample: memory: %w", err)
	}
	snap.MemoryUsage = vm.UsedPercent
	snap.MemoryUsed = float64(vm.Used)
	snap.MemoryAvailable = float64(vm.Available)
	snap.MemoryTotal = float64(vm.Total)

	path := s.DiskPath
	if path == "" {
		path = "/"
	}

	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return snap, fmt.Errorf("GopsutilSampler.Sample: disk: %w", err)
	}
	snap.DiskUsage = du.UsedPercent
	snap.DiskUsed = float64(du.Used)
	snap.DiskFree = float64(du.Free)
	snap.DiskTotal = float64(du.Total)

	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		snap.NetworkIn = float64(counters[0].BytesRecv)
		snap.NetworkOut = float64(counters[0].BytesSent)
	}

	if conns, err := net.ConnectionsWithContext(ctx, "all"); err == nil {
		snap.NetworkConnections = float64(len(conns))
	}

	if pids, err := process.PidsWithContext(ctx); err == nil {
		snap.ProcessCount = float64(len(pids))
	}

	return snap, nil
}

// SystemCollector samples host gauges on a fixed interval and persists
// each sample.
type SystemCollector struct {
	worker
	sampler Sampler
	writer  MetricWriter

	mu     sync.RWMutex
	latest *eventmodels.SystemSnapshot
}

func NewSystemCollector(sampler Sampler, writer MetricWriter, interval time.Duration) *SystemCollector {
	if interval <= 0 {
		interval = DefaultSystemInterval
	}
	if sampler == nil {
		sampler = GopsutilSampler{}
	}

	return &SystemCollector{
		worker:  worker{name: "system", interval: interval, immediate: true},
		sampler: sampler,
		writer:  writer,
	}
}

func (c *SystemCollector) Start(ctx context.Context) error {
	return c.start(ctx, func(ctx context.Context) {
		if _, err := c.Collect(ctx); err != nil {
			log.WithField("collector", c.name).Errorf("collect failed: %v", err)
		}
	})
}

func (c *SystemCollector) Stop() {
	c.stop()
}

func (c *SystemCollector) IsRunning() bool {
	return c.running()
}

// Collect takes one sample and persists it.
func (c *SystemCollector) Collect(ctx context.Context) (eventmodels.SystemSnapshot, error) {
	snap, err := c.sampler.Sample(ctx)
	if err != nil {
		return snap, fmt.Errorf("SystemCollector.Collect: %w", err)
	}

	c.mu.Lock()
	c.latest = &snap
	c.mu.Unlock()

	if c.writer != nil {
		if err := c.writer.SaveMetricSamples(ctx, snap.Samples()); err != nil {
			return snap, fmt.Errorf("SystemCollector.Collect: failed to persist: %w", err)
		}
	}

	log.WithField("collector", c.name).Debugf("cpu %.1f%%, memory %.1f%%", snap.CPUUsage, snap.MemoryUsage)
	return snap, nil
}

func (c *SystemCollector) Latest() (eventmodels.SystemSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.latest == nil {
		return eventmodels.SystemSnapshot{}, false
	}
	return *c.latest, true
}
