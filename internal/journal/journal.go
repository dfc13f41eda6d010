// Package journal implements the per-device append-only sample log. Each
// device gets one newline-delimited JSON file under the metrics directory;
// files are only ever appended to (or rotated), never rewritten, and are
// the source of truth for history beyond the in-memory buffer.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/HerbHall/pulseboard/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// tailWindowBytes bounds how far back a recent-samples read scans.
	tailWindowBytes = 1 << 20 // 1MB

	// perDeviceMergeCap limits each device's contribution to an
	// all-devices merge so one chatty device cannot crowd out the rest.
	perDeviceMergeCap = 200

	// DefaultMaxFileBytes is the rotation threshold for a device file.
	DefaultMaxFileBytes = 64 << 20 // 64MB

	queueCapacity = 256
)

var (
	appendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulseboard_journal_append_failures_total",
		Help: "Number of journal appends that failed.",
	})
	queueDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulseboard_journal_queue_drops_total",
		Help: "Number of samples dropped because the journal queue was full.",
	})
)

func init() {
	prometheus.MustRegister(appendFailures)
	prometheus.MustRegister(queueDrops)
}

var unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// safeID maps a device id to a safe filename stem.
func safeID(id string) string {
	if id == "" {
		id = "unknown"
	}
	s := unsafeIDChars.ReplaceAllString(id, "_")
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}

// Journal writes and reads per-device sample logs. Appends to the same
// device file are serialized; different devices' files are independent.
//
// The ingest path hands samples to Enqueue, which never blocks and never
// returns an error: durability is best-effort relative to the ingest
// acknowledgment, and failures are logged and counted for operators only.
type Journal struct {
	dir          string
	maxFileBytes int64
	logger       *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	queue chan models.MetricSample
	done  chan struct{}
}

// New creates a journal rooted at dir and starts its background writer.
// maxFileBytes <= 0 disables rotation.
func New(dir string, maxFileBytes int64, logger *zap.Logger) *Journal {
	j := &Journal{
		dir:          dir,
		maxFileBytes: maxFileBytes,
		logger:       logger,
		locks:        make(map[string]*sync.Mutex),
		queue:        make(chan models.MetricSample, queueCapacity),
		done:         make(chan struct{}),
	}
	go j.run()
	return j
}

// Dir returns the metrics directory.
func (j *Journal) Dir() string {
	return j.dir
}

// Enqueue hands a sample to the background writer without blocking. If the
// queue is full the sample is dropped from the journal (the in-memory path
// has already accepted it).
func (j *Journal) Enqueue(sample models.MetricSample) {
	select {
	case j.queue <- sample:
	default:
		queueDrops.Inc()
		j.logger.Warn("journal queue full, dropping sample",
			zap.String("device_id", sample.DeviceID),
		)
	}
}

// Close drains the queue and stops the background writer.
func (j *Journal) Close() {
	close(j.queue)
	<-j.done
}

func (j *Journal) run() {
	defer close(j.done)
	for sample := range j.queue {
		if err := j.Append(sample); err != nil {
			appendFailures.Inc()
			j.logger.Error("journal append failed",
				zap.String("device_id", sample.DeviceID),
				zap.Error(err),
			)
		}
	}
}

// Append serializes the sample as one JSON line and appends it durably to
// the device's file, rotating first if the file would exceed the size cap.
func (j *Journal) Append(sample models.MetricSample) error {
	line, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}
	line = append(line, '\n')

	lock := j.deviceLock(sample.DeviceID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}

	path := j.deviceFile(sample.DeviceID)
	if err := j.maybeRotate(path, int64(len(line))); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return nil
}

// maybeRotate moves the file aside (single .1 generation) when the next
// append would push it past the size cap. Must hold the device lock.
func (j *Journal) maybeRotate(path string, incoming int64) error {
	if j.maxFileBytes <= 0 {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size()+incoming <= j.maxFileBytes {
		return nil
	}
	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("rotate %s: %w", path, err)
	}
	j.logger.Info("rotated journal file", zap.String("path", path))
	return nil
}

// ReadRecent returns the device's samples with timestamp >= cutoff, newest
// parts of the file first, capped at limit, in chronological order. It
// reads only the trailing tail window of the file and skips malformed
// lines rather than failing.
func (j *Journal) ReadRecent(deviceID string, cutoff time.Time, limit int) []models.MetricSample {
	if limit <= 0 {
		limit = 500
	}
	text, err := readTail(j.deviceFile(deviceID), tailWindowBytes)
	if err != nil {
		return nil
	}

	lines := splitLines(text)
	out := make([]models.MetricSample, 0, min(limit, len(lines)))
	for i := len(lines) - 1; i >= 0; i-- {
		var s models.MetricSample
		if err := json.Unmarshal([]byte(lines[i]), &s); err != nil {
			continue
		}
		if s.Timestamp.IsZero() {
			continue
		}
		if s.Timestamp.Before(cutoff) {
			break
		}
		out = append(out, s)
		if len(out) >= limit {
			break
		}
	}

	// Reverse into chronological order.
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// ListDeviceIDs enumerates the devices with a journal file on disk.
func (j *Journal) ListDeviceIDs() []string {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
	}
	return ids
}

// ReadRecentAll merges recent samples across every device journal, sorted
// ascending by timestamp and truncated to the newest limit. Per-device
// reads run concurrently.
func (j *Journal) ReadRecentAll(cutoff time.Time, limit int) []models.MetricSample {
	if limit <= 0 {
		limit = 300
	}
	ids := j.ListDeviceIDs()
	if len(ids) == 0 {
		return nil
	}

	perDevice := make([][]models.MetricSample, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			perDevice[i] = j.ReadRecent(id, cutoff, min(limit, perDeviceMergeCap))
			return nil
		})
	}
	_ = g.Wait()

	var merged []models.MetricSample
	for _, samples := range perDevice {
		merged = append(merged, samples...)
	}
	sort.Slice(merged, func(a, b int) bool {
		return merged[a].Timestamp.Before(merged[b].Timestamp)
	})
	if len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}

func (j *Journal) deviceFile(deviceID string) string {
	return filepath.Join(j.dir, safeID(deviceID)+".jsonl")
}

func (j *Journal) deviceLock(deviceID string) *sync.Mutex {
	key := safeID(deviceID)
	j.mu.Lock()
	defer j.mu.Unlock()
	lock, ok := j.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		j.locks[key] = lock
	}
	return lock
}

// readTail returns up to maxBytes from the end of the file.
func readTail(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	start := info.Size() - maxBytes
	if start < 0 {
		start = 0
	}
	buf := make([]byte, info.Size()-start)
	if _, err := f.ReadAt(buf, start); err != nil {
		return "", err
	}
	return string(buf), nil
}

func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := raw[:0]
	for _, l := range raw {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
