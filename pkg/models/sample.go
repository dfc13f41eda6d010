package models

import "time"

// MetricSample is one telemetry heartbeat from a device at a point in time.
// It is immutable once constructed by the ingestion gateway and is the unit
// stored in the sample buffer, the per-device journal, and the live stream.
//
// Every numeric metric field is optional: a nil pointer means the agent did
// not report the value, which is distinct from reporting zero. Consumers
// must preserve that distinction.
type MetricSample struct {
	Timestamp    time.Time `json:"timestamp"`
	DeviceID     string    `json:"deviceId"`
	AgentVersion string    `json:"agentVersion"`
	Hostname     string    `json:"hostname"`
	Metrics      Metrics   `json:"metrics"`
}

// Metrics is the bag of optional readings carried by a heartbeat.
type Metrics struct {
	CPUPercent *float64 `json:"cpuPercent,omitempty"`

	MemUsedGB  *float64 `json:"memUsedGB,omitempty"`
	MemTotalGB *float64 `json:"memTotalGB,omitempty"`

	DiskUsedGB  *float64   `json:"diskUsedGB,omitempty"`
	DiskFreeGB  *float64   `json:"diskFreeGB,omitempty"`
	DiskTotalGB *float64   `json:"diskTotalGB,omitempty"`
	DiskLabel   *string    `json:"diskLabel,omitempty"`
	Disks       []DiskInfo `json:"disks,omitempty"`

	ProcessCount *int     `json:"processCount,omitempty"`
	UptimeSec    *float64 `json:"uptimeSec,omitempty"`

	CPUTempC       *float64      `json:"cpuTempC,omitempty"`
	GPUTempC       *float64      `json:"gpuTempC,omitempty"`
	GPUMemoryTempC *float64      `json:"gpuMemoryTempC,omitempty"`
	BoardTempC     *float64      `json:"boardTempC,omitempty"`
	CPUTempMaxC    *float64      `json:"cpuTempMaxC,omitempty"`
	GPUHotspotC    *float64      `json:"gpuHotspotTempC,omitempty"`
	Temps          []TempReading `json:"temps,omitempty"`
	TempSource     *string       `json:"tempSource,omitempty"`
	TempReason     *string       `json:"tempReason,omitempty"`

	Net *NetworkInfo `json:"net,omitempty"`
}

// DiskInfo describes a single volume reported by the agent.
type DiskInfo struct {
	ID         string   `json:"id"`
	Label      *string  `json:"label,omitempty"`
	FileSystem *string  `json:"fileSystem,omitempty"`
	IsReady    *bool    `json:"isReady,omitempty"`
	SizeGB     *float64 `json:"sizeGB,omitempty"`
	FreeGB     *float64 `json:"freeGB,omitempty"`
	UsedGB     *float64 `json:"usedGB,omitempty"`
	Percent    *float64 `json:"percent,omitempty"`
}

// TempReading is a named sensor reading.
type TempReading struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// NetworkInfo is the network snapshot attached to a heartbeat.
type NetworkInfo struct {
	DefaultIfIndex *int             `json:"defaultIfIndex,omitempty"`
	Gateway        *string          `json:"gateway,omitempty"`
	DNSServers     []string         `json:"dnsServers,omitempty"`
	Totals         *NetTotals       `json:"totals,omitempty"`
	Interfaces     []InterfaceStats `json:"interfaces,omitempty"`
	Probe          *NetProbe        `json:"probe,omitempty"`
}

// NetTotals holds aggregate throughput across all interfaces.
type NetTotals struct {
	RxBps *float64 `json:"rxBps,omitempty"`
	TxBps *float64 `json:"txBps,omitempty"`
}

// InterfaceStats holds per-interface counters and addressing.
type InterfaceStats struct {
	Name          string   `json:"name"`
	IfIndex       *int     `json:"ifIndex,omitempty"`
	Description   *string  `json:"description,omitempty"`
	MAC           *string  `json:"mac,omitempty"`
	LinkSpeedMbps *float64 `json:"linkSpeedMbps,omitempty"`
	IPv4          []string `json:"ipv4,omitempty"`
	IPv6          []string `json:"ipv6,omitempty"`
	RxBytes       *uint64  `json:"rxBytes,omitempty"`
	TxBytes       *uint64  `json:"txBytes,omitempty"`
	RxBps         *float64 `json:"rxBps,omitempty"`
	TxBps         *float64 `json:"txBps,omitempty"`
	RxErrors      *uint64  `json:"rxErrors,omitempty"`
	TxErrors      *uint64  `json:"txErrors,omitempty"`
	RxDiscards    *uint64  `json:"rxDiscards,omitempty"`
	TxDiscards    *uint64  `json:"txDiscards,omitempty"`
}

// NetProbe is the result of one active network probe cycle.
type NetProbe struct {
	At          *time.Time `json:"at,omitempty"`
	IntervalSec *int       `json:"intervalSec,omitempty"`
	Ping        []PingStat `json:"ping,omitempty"`
	DNS         *DNSProbe  `json:"dns,omitempty"`
	HTTP        *HTTPProbe `json:"http,omitempty"`
	PublicIP    *string    `json:"publicIp,omitempty"`
}

// PingStat holds latency statistics for a single ping target over the
// probe's sample window.
type PingStat struct {
	Target   string   `json:"target"`
	LastMs   *float64 `json:"lastMs,omitempty"`
	AvgMs    *float64 `json:"avgMs,omitempty"`
	MinMs    *float64 `json:"minMs,omitempty"`
	MaxMs    *float64 `json:"maxMs,omitempty"`
	JitterMs *float64 `json:"jitterMs,omitempty"`
	LossPct  *float64 `json:"lossPct,omitempty"`
	Window   *int     `json:"window,omitempty"`
}

// DNSProbe records one DNS resolution timing test.
type DNSProbe struct {
	Host *string  `json:"host,omitempty"`
	OK   *bool    `json:"ok,omitempty"`
	Ms   *float64 `json:"ms,omitempty"`
}

// HTTPProbe records one HTTP reachability timing test.
type HTTPProbe struct {
	URL    *string  `json:"url,omitempty"`
	OK     *bool    `json:"ok,omitempty"`
	Status *int     `json:"status,omitempty"`
	Ms     *float64 `json:"ms,omitempty"`
}
