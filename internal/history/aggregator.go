// Package history converts raw, irregular heartbeat samples into
// fixed-interval series suitable for charting. Buckets carry count-weighted
// means per metric dimension; a dimension with no observations in a bucket
// is omitted from the output entirely, never emitted as zero.
package history

import (
	"sort"
	"time"

	"github.com/HerbHall/pulseboard/pkg/models"
)

const (
	// MinWindowMinutes and MaxWindowMinutes clamp the requested range.
	MinWindowMinutes = 5
	MaxWindowMinutes = 7 * 24 * 60

	// MaxSamples is the default cap on how many journal samples one
	// aggregation reads.
	MaxSamples = 5000
)

// ClampMinutes bounds a requested window to the supported range. A
// non-positive value falls back to one hour.
func ClampMinutes(minutes int) int {
	if minutes <= 0 {
		return 60
	}
	if minutes < MinWindowMinutes {
		return MinWindowMinutes
	}
	if minutes > MaxWindowMinutes {
		return MaxWindowMinutes
	}
	return minutes
}

// BucketMs returns the bucket width in milliseconds for a window size:
// finer buckets for short windows, coarser for long ones.
func BucketMs(minutes int) int64 {
	switch {
	case minutes <= 60:
		return 10_000
	case minutes <= 6*60:
		return 60_000
	default:
		return 5 * 60_000
	}
}

// Point is one aggregated bucket. T is the bucket start in Unix
// milliseconds. Nil fields had no contributing observations.
type Point struct {
	T          int64                `json:"t"`
	CPU        *float64             `json:"cpu,omitempty"`
	Mem        *float64             `json:"mem,omitempty"`
	MemUsedGB  *float64             `json:"memUsedGB,omitempty"`
	MemTotalGB *float64             `json:"memTotalGB,omitempty"`
	Disk       *float64             `json:"disk,omitempty"`
	CPUTemp    *float64             `json:"cpuTemp,omitempty"`
	GPUTemp    *float64             `json:"gpuTemp,omitempty"`
	RxBps      *float64             `json:"rxBps,omitempty"`
	TxBps      *float64             `json:"txBps,omitempty"`
	DNSMs      *float64             `json:"dnsMs,omitempty"`
	Ping       map[string]PingPoint `json:"ping,omitempty"`
}

// PingPoint is the per-target mean within one bucket. Average latency and
// loss are accumulated independently: either may be absent in any given
// sample without corrupting the other's mean.
type PingPoint struct {
	AvgMs   *float64 `json:"avgMs,omitempty"`
	LossPct *float64 `json:"lossPct,omitempty"`
}

// meanAcc accumulates a running sum and count for one dimension.
type meanAcc struct {
	sum float64
	n   int
}

func (a *meanAcc) add(v float64) {
	a.sum += v
	a.n++
}

func (a *meanAcc) mean() *float64 {
	if a.n == 0 {
		return nil
	}
	m := a.sum / float64(a.n)
	return &m
}

type pingAcc struct {
	avg  meanAcc
	loss meanAcc
}

type bucket struct {
	cpu     meanAcc
	mem     meanAcc
	memUsed meanAcc
	disk    meanAcc
	rx      meanAcc
	tx      meanAcc
	dns     meanAcc

	memTotal    float64
	memTotalSet bool

	// Temperatures are last-value-wins within the bucket, not averaged.
	cpuTemp *float64
	gpuTemp *float64

	ping map[string]*pingAcc
}

// Aggregate buckets the given samples by floor(ts/bucketMs)*bucketMs and
// returns the buckets sorted ascending by key. Samples without a usable
// timestamp are skipped.
func Aggregate(samples []models.MetricSample, bucketMs int64) []Point {
	buckets := make(map[int64]*bucket)

	for i := range samples {
		s := &samples[i]
		if s.Timestamp.IsZero() {
			continue
		}
		key := s.Timestamp.UnixMilli() / bucketMs * bucketMs
		b, ok := buckets[key]
		if !ok {
			b = &bucket{ping: make(map[string]*pingAcc)}
			buckets[key] = b
		}
		accumulate(b, &s.Metrics)
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	points := make([]Point, 0, len(keys))
	for _, k := range keys {
		points = append(points, buckets[k].point(k))
	}
	return points
}

func accumulate(b *bucket, m *models.Metrics) {
	if m.CPUPercent != nil {
		b.cpu.add(*m.CPUPercent)
	}

	// Memory percent is derived only when both used and total are present
	// and the total is positive; the bucket's representative total is the
	// max observed.
	if m.MemUsedGB != nil && m.MemTotalGB != nil && *m.MemTotalGB > 0 {
		b.memUsed.add(*m.MemUsedGB)
		b.mem.add(*m.MemUsedGB / *m.MemTotalGB * 100)
		if !b.memTotalSet || *m.MemTotalGB > b.memTotal {
			b.memTotal = *m.MemTotalGB
			b.memTotalSet = true
		}
	}

	if m.DiskUsedGB != nil && m.DiskTotalGB != nil && *m.DiskTotalGB > 0 {
		b.disk.add(*m.DiskUsedGB / *m.DiskTotalGB * 100)
	}

	if m.CPUTempC != nil {
		v := *m.CPUTempC
		b.cpuTemp = &v
	}
	if m.GPUTempC != nil {
		v := *m.GPUTempC
		b.gpuTemp = &v
	}

	if m.Net != nil {
		if m.Net.Totals != nil {
			if m.Net.Totals.RxBps != nil {
				b.rx.add(*m.Net.Totals.RxBps)
			}
			if m.Net.Totals.TxBps != nil {
				b.tx.add(*m.Net.Totals.TxBps)
			}
		}
		if m.Net.Probe != nil {
			if m.Net.Probe.DNS != nil && m.Net.Probe.DNS.Ms != nil {
				b.dns.add(*m.Net.Probe.DNS.Ms)
			}
			for i := range m.Net.Probe.Ping {
				p := &m.Net.Probe.Ping[i]
				if p.Target == "" {
					continue
				}
				acc, ok := b.ping[p.Target]
				if !ok {
					acc = &pingAcc{}
					b.ping[p.Target] = acc
				}
				if p.AvgMs != nil {
					acc.avg.add(*p.AvgMs)
				}
				if p.LossPct != nil {
					acc.loss.add(*p.LossPct)
				}
			}
		}
	}
}

func (b *bucket) point(t int64) Point {
	p := Point{
		T:       t,
		CPU:     b.cpu.mean(),
		Mem:     b.mem.mean(),
		Disk:    b.disk.mean(),
		CPUTemp: b.cpuTemp,
		GPUTemp: b.gpuTemp,
		RxBps:   b.rx.mean(),
		TxBps:   b.tx.mean(),
		DNSMs:   b.dns.mean(),
	}
	p.MemUsedGB = b.memUsed.mean()
	if b.memTotalSet {
		total := b.memTotal
		p.MemTotalGB = &total
	}
	if len(b.ping) > 0 {
		p.Ping = make(map[string]PingPoint, len(b.ping))
		for target, acc := range b.ping {
			p.Ping[target] = PingPoint{
				AvgMs:   acc.avg.mean(),
				LossPct: acc.loss.mean(),
			}
		}
	}
	return p
}

// Cutoff returns the earliest timestamp included in a window of the given
// number of minutes ending at now.
func Cutoff(now time.Time, minutes int) time.Time {
	return now.Add(-time.Duration(minutes) * time.Minute)
}
