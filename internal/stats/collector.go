package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector accumulates sync counters across cycles. Executor workers
// write through lock-free atomics; the exit summary reads a Snapshot.
type Collector struct {
	started       time.Time
	cycles        atomic.Int64
	cyclesFailed  atomic.Int64
	filesHashed   atomic.Int64
	filesCopied   atomic.Int64
	filesDeleted  atomic.Int64
	actionsFailed atomic.Int64
	bytesCopied   atomic.Int64
}

// NewCollector starts a collector; Elapsed counts from this moment.
func NewCollector() *Collector {
	return &Collector{started: time.Now()}
}

func (c *Collector) AddCycles(n int64)        { c.cycles.Add(n) }
func (c *Collector) AddCyclesFailed(n int64)  { c.cyclesFailed.Add(n) }
func (c *Collector) AddFilesHashed(n int64)   { c.filesHashed.Add(n) }
func (c *Collector) AddFilesCopied(n int64)   { c.filesCopied.Add(n) }
func (c *Collector) AddFilesDeleted(n int64)  { c.filesDeleted.Add(n) }
func (c *Collector) AddActionsFailed(n int64) { c.actionsFailed.Add(n) }
func (c *Collector) AddBytesCopied(n int64)   { c.bytesCopied.Add(n) }

// Elapsed returns the time since the collector was created.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.started)
}

// Snapshot is a point-in-time read of every counter. Each field is read
// atomically; the set as a whole is not a single consistent cut, which
// is fine for summary output.
type Snapshot struct {
	Cycles        int64
	CyclesFailed  int64
	FilesHashed   int64
	FilesCopied   int64
	FilesDeleted  int64
	ActionsFailed int64
	BytesCopied   int64
	Elapsed       time.Duration
}

// Snapshot reads all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Cycles:        c.cycles.Load(),
		CyclesFailed:  c.cyclesFailed.Load(),
		FilesHashed:   c.filesHashed.Load(),
		FilesCopied:   c.filesCopied.Load(),
		FilesDeleted:  c.filesDeleted.Load(),
		ActionsFailed: c.actionsFailed.Load(),
		BytesCopied:   c.bytesCopied.Load(),
		Elapsed:       c.Elapsed(),
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"cycles=%d failed=%d hashed=%d copied=%d deleted=%d errors=%d bytes=%d",
		s.Cycles, s.CyclesFailed, s.FilesHashed, s.FilesCopied,
		s.FilesDeleted, s.ActionsFailed, s.BytesCopied,
	)
}

// FormatBytes renders b in binary units, e.g. "3.4 MiB".
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	v := float64(b)
	for _, suffix := range [...]string{"KiB", "MiB", "GiB", "TiB", "PiB"} {
		v /= unit
		if v < unit {
			return fmt.Sprintf("%.1f %s", v, suffix)
		}
	}
	return fmt.Sprintf("%.1f EiB", v/unit)
}
