package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/mirra-sync/mirra/internal/event"
	"github.com/mirra-sync/mirra/internal/filter"
	"github.com/mirra-sync/mirra/internal/stats"
)

// State describes where the loop currently is.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrLoopStopped is returned by Run when the loop has already stopped.
var ErrLoopStopped = errors.New("sync loop already stopped")

// LoopConfig holds everything a Loop needs for its lifetime. It is
// treated as immutable after NewLoop.
type LoopConfig struct {
	SrcRoot  string
	DstRoot  string
	Interval time.Duration
	Workers  int
	Hasher   *Hasher
	Filter   *filter.Chain
	Cache    *DigestCache
	BWLimit  *rate.Limiter
	DryRun   bool
	Once     bool // run a single cycle and return
	Events   chan<- event.Event
	Stats    *stats.Collector
}

// Loop drives repeated scan, diff, apply cycles on a timer.
//
// Cancellation is observed at two points: the top of each cycle and the
// inter-cycle sleep. A cycle that has started always runs its whole
// action list, so the destination is never left mid-plan by an
// interrupt (per-action failures aside).
type Loop struct {
	cfg      LoopConfig
	state    atomic.Int32
	cycle    atomic.Uint64
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLoop validates the config and creates an idle loop.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Interval <= 0 && !cfg.Once {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	if cfg.Hasher == nil {
		cfg.Hasher = NewHasher("")
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	return &Loop{cfg: cfg, stop: make(chan struct{})}, nil
}

// State returns the loop's current state. Safe for concurrent use.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Cycle returns the number of cycles started so far.
func (l *Loop) Cycle() uint64 {
	return l.cycle.Load()
}

// Stop requests a graceful stop. Safe to call from any goroutine, any
// number of times. A sleeping loop wakes immediately; a running cycle
// finishes first.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Run blocks until the loop reaches Stopped: after the single cycle in
// Once mode, or on cancellation otherwise. The context serves as a
// second stop signal alongside Stop.
func (l *Loop) Run(ctx context.Context) error {
	if l.State() == StateStopped {
		return ErrLoopStopped
	}
	defer l.state.Store(int32(StateStopped))

	for {
		if l.stopRequested(ctx) {
			l.emit(event.Event{Type: event.Interrupted})
			return nil
		}

		l.state.Store(int32(StateRunning))
		l.cycle.Add(1)
		// The cycle must not be torn mid-plan, so it runs on a
		// detached context; cancellation waits for the sleep.
		l.runCycle(context.WithoutCancel(ctx))

		if l.cfg.Once {
			return nil
		}

		l.state.Store(int32(StateSleeping))
		timer := time.NewTimer(l.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.emit(event.Event{Type: event.Interrupted})
			return nil
		case <-l.stop:
			timer.Stop()
			l.emit(event.Event{Type: event.Interrupted})
			return nil
		case <-timer.C:
		}
	}
}

func (l *Loop) stopRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-l.stop:
		return true
	default:
		return false
	}
}

// runCycle performs one scan, diff, apply pass. Scan failures abort
// only this cycle; the loop sleeps and retries on the next interval.
func (l *Loop) runCycle(ctx context.Context) {
	l.emit(event.Event{Type: event.CycleStarted})

	srcMap, err := l.scanTree(ctx, l.cfg.SrcRoot)
	if err != nil {
		l.failCycle(err)
		return
	}

	// The destination may not exist yet on the first run. Creating it
	// here keeps the scanner's missing-root contract strict while a
	// missing source still fails the cycle instead of emptying the
	// destination.
	if err := os.MkdirAll(l.cfg.DstRoot, 0755); err != nil {
		l.failCycle(fmt.Errorf("create destination root: %w", err))
		return
	}
	dstMap, err := l.scanTree(ctx, l.cfg.DstRoot)
	if err != nil {
		l.failCycle(err)
		return
	}
	l.cfg.Stats.AddFilesHashed(int64(len(srcMap) + len(dstMap)))

	plan := BuildPlan(srcMap, dstMap)
	result := Apply(ctx, ExecConfig{
		SrcRoot: l.cfg.SrcRoot,
		DstRoot: l.cfg.DstRoot,
		Cycle:   l.cycle.Load(),
		DryRun:  l.cfg.DryRun,
		BWLimit: l.cfg.BWLimit,
		Events:  l.cfg.Events,
		Stats:   l.cfg.Stats,
	}, plan)

	l.cfg.Stats.AddCycles(1)
	l.emit(event.Event{
		Type:     event.CycleCompleted,
		Src:      l.cfg.SrcRoot,
		Dst:      l.cfg.DstRoot,
		Copies:   result.Copied,
		Deletes:  result.Deleted,
		Failures: result.Failed,
	})
}

func (l *Loop) scanTree(ctx context.Context, root string) (DigestMap, error) {
	scanner := NewScanner(ScanConfig{
		Root:    root,
		Workers: l.cfg.Workers,
		Hasher:  l.cfg.Hasher,
		Filter:  l.cfg.Filter,
		Cache:   l.cfg.Cache,
	})
	return scanner.Scan(ctx)
}

func (l *Loop) failCycle(err error) {
	l.cfg.Stats.AddCyclesFailed(1)
	l.emit(event.Event{Type: event.CycleFailed, Error: err})
}

func (l *Loop) emit(e event.Event) {
	if l.cfg.Events == nil {
		return
	}
	e.Timestamp = time.Now()
	e.Cycle = l.cycle.Load()
	l.cfg.Events <- e
}
