// Package busstat records HostStatistics snapshots to rotating CSV files
// (spec §4.10), adapted from sagostin-goefidash/internal/logger.Logger —
// same rotation policy, same csv.Writer plumbing — repurposed from ECU
// telemetry rows to per-device bus-health snapshots.
package busstat

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"busmaster/internal/busio"
)

const maxRowsPerFile = 100_000

var csvHeader = []string{
	"timestamp", "address", "successes", "checksum_errors",
	"no_answer", "missing_data", "transmit_errors",
}

// Config holds busstat configuration (spec §6 "logging" section).
type Config struct {
	Enabled    bool
	Path       string
	IntervalMs int
}

// Recorder appends timestamped HostStatistics rows, one address at a
// time, rotating to a new file after maxRowsPerFile rows.
type Recorder struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// New creates a Recorder from cfg.
func New(cfg Config) *Recorder {
	if cfg.Path == "" {
		cfg.Path = "/var/log/busmaster"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 50*time.Millisecond {
		interval = time.Second
	}
	return &Recorder{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
	}
}

// SetEnabled toggles recording at runtime.
func (r *Recorder) SetEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = on
	if !on && r.file != nil {
		r.closeFile()
	}
}

// IsEnabled reports whether recording is active.
func (r *Recorder) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Record appends one row for addr's stats if the minimum interval has
// elapsed since the last row written by this Recorder.
func (r *Recorder) Record(addr byte, stats busio.HostStatistics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return
	}

	now := time.Now()
	if now.Sub(r.lastTs) < r.interval {
		return
	}
	r.lastTs = now

	if r.writer == nil || r.rows >= maxRowsPerFile {
		if err := r.rotateFile(now); err != nil {
			log.Printf("[busstat] rotate failed: %v", err)
			return
		}
	}

	row := buildRow(now, addr, stats)
	if err := r.writer.Write(row); err != nil {
		log.Printf("[busstat] write failed: %v", err)
		return
	}
	r.writer.Flush()
	r.rows++
}

// Close flushes and closes the current file.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeFile()
}

func (r *Recorder) rotateFile(now time.Time) error {
	r.closeFile()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", r.dir, err)
	}

	filename := fmt.Sprintf("busmaster_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(r.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	r.file = f
	r.writer = csv.NewWriter(f)
	r.rows = 0

	if err := r.writer.Write(csvHeader); err != nil {
		return err
	}
	r.writer.Flush()

	log.Printf("[busstat] opened %s", path)
	return nil
}

func (r *Recorder) closeFile() {
	if r.writer != nil {
		r.writer.Flush()
		r.writer = nil
	}
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}

func buildRow(ts time.Time, addr byte, s busio.HostStatistics) []string {
	return []string{
		ts.Format(time.RFC3339Nano),
		fmt.Sprintf("%d", addr),
		fmt.Sprintf("%d", s.Successes),
		fmt.Sprintf("%d", s.ChecksumErrors),
		fmt.Sprintf("%d", s.NoAnswer),
		fmt.Sprintf("%d", s.MissingData),
		fmt.Sprintf("%d", s.TransmitErrors),
	}
}
