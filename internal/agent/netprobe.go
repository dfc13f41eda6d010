package agent

import (
	"context"
	"io"
	"math"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/HerbHall/pulseboard/pkg/models"
	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

const (
	maxPingTargets = 12
	pingCount      = 3
	pingTimeoutMs  = 2000
	// rttWindow is the number of recent probe cycles folded into the
	// rolling latency statistics per target.
	rttWindow = 10

	publicIPURL = "https://api.ipify.org"
)

// NetProber runs active network probes: ICMP ping against configured
// targets, a DNS resolution timing test, and an optional HTTP timing test.
type NetProber struct {
	cfg    *Config
	logger *zap.Logger

	mu      sync.Mutex
	windows map[string]*targetWindow
}

type targetWindow struct {
	rtts   []float64 // recent round-trip times, ms
	sent   int
	recv   int
	lastMs *float64
}

// NewNetProber creates a prober for the configured targets.
func NewNetProber(cfg *Config, logger *zap.Logger) *NetProber {
	return &NetProber{cfg: cfg, logger: logger, windows: make(map[string]*targetWindow)}
}

// Probe runs one full probe cycle and returns the result snapshot.
func (p *NetProber) Probe(ctx context.Context) *models.NetProbe {
	now := time.Now().UTC()
	result := &models.NetProbe{
		At:          &now,
		IntervalSec: intPtr(p.cfg.IntervalSeconds),
	}

	for _, target := range p.cfg.PingTargets {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		result.Ping = append(result.Ping, p.pingTarget(ctx, target))
	}

	if p.cfg.DNSTestHost != "" {
		result.DNS = probeDNS(ctx, p.cfg.DNSTestHost)
	}
	if p.cfg.HTTPTestURL != "" {
		result.HTTP = probeHTTP(ctx, p.cfg.HTTPTestURL)
	}
	if p.cfg.EnablePublicIP {
		if ip := fetchPublicIP(ctx); ip != "" {
			result.PublicIP = &ip
		}
	}

	return result
}

// pingTarget runs an ICMP burst and folds it into the target's rolling window.
func (p *NetProber) pingTarget(ctx context.Context, target string) models.PingStat {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		p.logger.Debug("create pinger failed", zap.String("target", target), zap.Error(err))
		p.record(target, nil, pingCount, 0)
		return p.windowStat(target)
	}

	pinger.Count = pingCount
	pinger.Timeout = time.Duration(pingCount) * pingTimeoutMs * time.Millisecond
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := pinger.Run(); runErr != nil {
			p.logger.Debug("ping run error", zap.String("target", target), zap.Error(runErr))
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		pinger.Stop()
		<-done
	}

	stats := pinger.Statistics()
	var rtt *float64
	if stats.PacketsRecv > 0 {
		rtt = floatPtr(float64(stats.AvgRtt.Microseconds()) / 1000.0)
	}
	p.record(target, rtt, stats.PacketsSent, stats.PacketsRecv)
	return p.windowStat(target)
}

// record folds one burst result into the target's rolling window.
func (p *NetProber) record(target string, rttMs *float64, sent, recv int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w := p.windows[target]
	if w == nil {
		w = &targetWindow{}
		p.windows[target] = w
	}
	w.sent += sent
	w.recv += recv
	w.lastMs = rttMs
	if rttMs != nil {
		w.rtts = append(w.rtts, *rttMs)
		if len(w.rtts) > rttWindow {
			w.rtts = w.rtts[len(w.rtts)-rttWindow:]
		}
	}
	// Decay the loss counters so old outages age out of the reported rate.
	if w.sent > rttWindow*pingCount {
		scale := float64(rttWindow*pingCount) / float64(w.sent)
		w.sent = rttWindow * pingCount
		w.recv = int(math.Round(float64(w.recv) * scale))
	}
}

// windowStat computes the rolling statistics for a target.
func (p *NetProber) windowStat(target string) models.PingStat {
	p.mu.Lock()
	defer p.mu.Unlock()

	stat := models.PingStat{Target: target}
	w := p.windows[target]
	if w == nil {
		return stat
	}

	stat.LastMs = w.lastMs
	stat.Window = intPtr(len(w.rtts))
	if w.sent > 0 {
		loss := 100.0 * float64(w.sent-w.recv) / float64(w.sent)
		stat.LossPct = floatPtr(round1(loss))
	}
	if len(w.rtts) == 0 {
		return stat
	}

	min, max, sum := w.rtts[0], w.rtts[0], 0.0
	for _, v := range w.rtts {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	avg := sum / float64(len(w.rtts))
	stat.MinMs = floatPtr(round1(min))
	stat.MaxMs = floatPtr(round1(max))
	stat.AvgMs = floatPtr(round1(avg))

	if len(w.rtts) > 1 {
		var dev float64
		for _, v := range w.rtts {
			dev += math.Abs(v - avg)
		}
		stat.JitterMs = floatPtr(round1(dev / float64(len(w.rtts))))
	}
	return stat
}

func probeDNS(ctx context.Context, hostname string) *models.DNSProbe {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	_, err := net.DefaultResolver.LookupHost(ctx, hostname)
	ms := round1(float64(time.Since(start).Microseconds()) / 1000.0)

	ok := err == nil
	probe := &models.DNSProbe{Host: &hostname, OK: &ok}
	if ok {
		probe.Ms = &ms
	}
	return probe
}

func probeHTTP(ctx context.Context, url string) *models.HTTPProbe {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	probe := &models.HTTPProbe{URL: &url}
	ok := false
	probe.OK = &ok

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return probe
	}
	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return probe
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	ms := round1(float64(time.Since(start).Microseconds()) / 1000.0)
	ok = resp.StatusCode >= 200 && resp.StatusCode < 400
	probe.Status = intPtr(resp.StatusCode)
	probe.Ms = &ms
	return probe
}

func fetchPublicIP(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, publicIPURL, nil)
	if err != nil {
		return ""
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return ""
	}
	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}
