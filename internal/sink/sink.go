// Package sink writes the audit log: one timestamped line per completed
// sync action, appended to a file and mirrored to stdout.
package sink

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mirra-sync/mirra/internal/event"
)

// timeLayout renders timestamps as DD/MM/YYYY HH:MM:SS.
const timeLayout = "02/01/2006 15:04:05"

// Config configures a Sink.
type Config struct {
	// Path is the audit log file. It is created if missing and always
	// opened in append mode.
	Path string
	// Mirror receives a copy of every line. Defaults to os.Stdout.
	Mirror io.Writer
	// Quiet disables the mirror entirely.
	Quiet bool
}

// Sink is the audit log writer. A single mutex serializes all writers,
// so lines never interleave.
type Sink struct {
	mu     sync.Mutex
	file   *os.File
	mirror io.Writer
}

// New opens the audit log file for appending.
func New(cfg Config) (*Sink, error) {
	f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	s := &Sink{file: f}
	if !cfg.Quiet {
		s.mirror = cfg.Mirror
		if s.mirror == nil {
			s.mirror = os.Stdout
		}
	}
	return s, nil
}

// Record appends one timestamped line to the log file and the mirror.
func (s *Sink) Record(msg string) error {
	line := fmt.Sprintf("%s - SyncTask - %s\n", time.Now().Format(timeLayout), msg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.WriteString(line); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	if s.mirror != nil {
		_, _ = io.WriteString(s.mirror, line)
	}
	return nil
}

// Run consumes events until the channel is closed, recording one line
// per loggable event. Write failures are reported but do not stop the
// consumer; the sender must never block on a broken log.
func (s *Sink) Run(events <-chan event.Event) {
	for ev := range events {
		msg, ok := formatEvent(ev)
		if !ok {
			continue
		}
		if err := s.Record(msg); err != nil {
			slog.Warn("audit log write failed", "error", err)
		}
	}
}

// Close closes the underlying log file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// formatEvent renders an event as an audit message. The second return
// is false for event types that never reach the audit log.
func formatEvent(e event.Event) (string, bool) {
	switch e.Type {
	case event.FileCopied:
		return fmt.Sprintf("Copied %s to %s - Hash: %s", e.Src, e.Dst, e.Digest), true
	case event.FileDeleted:
		return fmt.Sprintf("Removed %s - Hash: %s", e.Dst, e.Digest), true
	case event.ActionFailed:
		return fmt.Sprintf("Failed %s: %v", e.Path, e.Error), true
	case event.CycleCompleted:
		return fmt.Sprintf("Synchronization completed from %s to %s", e.Src, e.Dst), true
	case event.CycleFailed:
		return fmt.Sprintf("Synchronization failed: %v", e.Error), true
	case event.Interrupted:
		return "Synchronization interrupted by user.", true
	default:
		return "", false
	}
}
