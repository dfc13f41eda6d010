// Package agent implements the pulse-agent: local metric collection,
// network probing, and the heartbeat loop reporting to the server.
package agent

import (
	"context"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/HerbHall/pulseboard/pkg/models"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/shirou/gopsutil/v4/sensors"
	"go.uber.org/zap"
)

const bytesPerGB = 1024 * 1024 * 1024

// Collector gathers system metrics. Network throughput is delta-based, so
// the first collection reports no rx/tx rates.
type Collector struct {
	logger *zap.Logger

	mu          sync.Mutex
	prevRx      uint64
	prevTx      uint64
	prevTime    time.Time
	initialized bool
}

// NewCollector creates a ready-to-use Collector.
func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{logger: logger}
}

// Collect gathers the current system snapshot. Individual probes fail
// independently; missing readings stay nil in the result.
func (c *Collector) Collect(ctx context.Context) models.Metrics {
	var m models.Metrics

	if pcts, err := cpu.PercentWithContext(ctx, 500*time.Millisecond, false); err == nil && len(pcts) > 0 {
		m.CPUPercent = floatPtr(round1(pcts[0]))
	} else if err != nil {
		c.logger.Debug("cpu collection failed", zap.Error(err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.MemUsedGB = floatPtr(round1(float64(vm.Used) / bytesPerGB))
		m.MemTotalGB = floatPtr(round1(float64(vm.Total) / bytesPerGB))
	} else {
		c.logger.Debug("memory collection failed", zap.Error(err))
	}

	c.collectDisks(ctx, &m)

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		m.UptimeSec = floatPtr(float64(uptime))
	}

	if pids, err := process.PidsWithContext(ctx); err == nil {
		m.ProcessCount = intPtr(len(pids))
	}

	c.collectTemps(ctx, &m)

	rx, tx := c.netThroughput(ctx)
	if rx != nil || tx != nil {
		m.Net = &models.NetworkInfo{Totals: &models.NetTotals{RxBps: rx, TxBps: tx}}
	}

	return m
}

// collectDisks fills per-partition usage plus the primary-disk summary
// fields. The partition with the most total space is treated as primary.
func (c *Collector) collectDisks(ctx context.Context, m *models.Metrics) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		c.logger.Debug("disk partition listing failed", zap.Error(err))
		return
	}

	var primary *models.DiskInfo
	for _, p := range partitions {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		info := models.DiskInfo{
			ID:         p.Device,
			Label:      strPtr(p.Mountpoint),
			FileSystem: strPtr(p.Fstype),
			SizeGB:     floatPtr(round1(float64(usage.Total) / bytesPerGB)),
			FreeGB:     floatPtr(round1(float64(usage.Free) / bytesPerGB)),
			UsedGB:     floatPtr(round1(float64(usage.Used) / bytesPerGB)),
			Percent:    floatPtr(round1(usage.UsedPercent)),
		}
		m.Disks = append(m.Disks, info)
		if primary == nil || *info.SizeGB > *primary.SizeGB {
			last := m.Disks[len(m.Disks)-1]
			primary = &last
		}
	}

	if primary != nil {
		m.DiskLabel = primary.Label
		m.DiskUsedGB = primary.UsedGB
		m.DiskFreeGB = primary.FreeGB
		m.DiskTotalGB = primary.SizeGB
	}
}

// collectTemps reads hardware sensors. Sensor naming is vendor-specific,
// so CPU/GPU classification is substring matching on the sensor key.
func (c *Collector) collectTemps(ctx context.Context, m *models.Metrics) {
	readings, err := sensors.TemperaturesWithContext(ctx)
	if err != nil || len(readings) == 0 {
		if err != nil {
			c.logger.Debug("temperature sensors unavailable", zap.Error(err))
		}
		return
	}

	for _, r := range readings {
		if r.Temperature <= 0 {
			continue
		}
		m.Temps = append(m.Temps, models.TempReading{
			Name:  r.SensorKey,
			Value: round1(r.Temperature),
		})

		key := strings.ToLower(r.SensorKey)
		switch {
		case m.CPUTempC == nil && (strings.Contains(key, "coretemp") || strings.Contains(key, "cpu") || strings.Contains(key, "k10temp") || strings.Contains(key, "package")):
			m.CPUTempC = floatPtr(round1(r.Temperature))
			m.TempSource = strPtr(r.SensorKey)
		case m.GPUTempC == nil && (strings.Contains(key, "gpu") || strings.Contains(key, "amdgpu") || strings.Contains(key, "nouveau")):
			m.GPUTempC = floatPtr(round1(r.Temperature))
		}
	}
}

// netThroughput computes bytes/s since the last call from IOCounters deltas.
func (c *Collector) netThroughput(ctx context.Context) (rxBps, txBps *float64) {
	stats, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil || len(stats) == 0 {
		return nil, nil
	}
	now := time.Now()
	curRx := stats[0].BytesRecv
	curTx := stats[0].BytesSent

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		dt := now.Sub(c.prevTime).Seconds()
		if dt > 0 && curRx >= c.prevRx && curTx >= c.prevTx {
			rxBps = floatPtr(float64(curRx-c.prevRx) / dt)
			txBps = floatPtr(float64(curTx-c.prevTx) / dt)
		}
	}

	c.prevRx = curRx
	c.prevTx = curTx
	c.prevTime = now
	c.initialized = true
	return rxBps, txBps
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func strPtr(v string) *string     { return &v }

func hostName() string {
	h, _ := os.Hostname()
	return h
}
