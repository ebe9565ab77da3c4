package sink

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirra-sync/mirra/internal/event"
)

// lineRE matches one complete audit line: DD/MM/YYYY HH:MM:SS - SyncTask - msg
var lineRE = regexp.MustCompile(`^\d{2}/\d{2}/\d{4} \d{2}:\d{2}:\d{2} - SyncTask - (.*)$`)

func newTestSink(t *testing.T, cfg Config) (*Sink, string) {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "audit.log")
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, cfg.Path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	trimmed := strings.TrimSuffix(string(data), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestSink_LineFormat(t *testing.T) {
	s, path := newTestSink(t, Config{Quiet: true})
	require.NoError(t, s.Record("hello world"))

	lines := readLines(t, path)
	require.Len(t, lines, 1)

	m := lineRE.FindStringSubmatch(lines[0])
	require.NotNil(t, m, "malformed audit line: %q", lines[0])
	assert.Equal(t, "hello world", m[1])
}

func TestSink_MirrorsLines(t *testing.T) {
	var mirror bytes.Buffer
	s, path := newTestSink(t, Config{Mirror: &mirror})
	require.NoError(t, s.Record("mirrored"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(data), mirror.String())
}

func TestSink_QuietSuppressesMirror(t *testing.T) {
	var mirror bytes.Buffer
	s, _ := newTestSink(t, Config{Mirror: &mirror, Quiet: true})
	require.NoError(t, s.Record("silent"))
	assert.Empty(t, mirror.String())
}

func TestSink_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	s, err := New(Config{Path: path, Quiet: true})
	require.NoError(t, err)
	require.NoError(t, s.Record("first"))
	require.NoError(t, s.Close())

	s, err = New(Config{Path: path, Quiet: true})
	require.NoError(t, err)
	require.NoError(t, s.Record("second"))
	require.NoError(t, s.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "first")
	assert.Contains(t, lines[1], "second")
}

func TestFormatEvent(t *testing.T) {
	failErr := errors.New("permission denied")

	tests := []struct {
		name   string
		event  event.Event
		want   string
		logged bool
	}{
		{
			name:   "copied",
			event:  event.Event{Type: event.FileCopied, Src: "/src/a.txt", Dst: "/dst/a.txt", Digest: "abc123"},
			want:   "Copied /src/a.txt to /dst/a.txt - Hash: abc123",
			logged: true,
		},
		{
			name:   "removed",
			event:  event.Event{Type: event.FileDeleted, Dst: "/dst/b.txt", Digest: "def456"},
			want:   "Removed /dst/b.txt - Hash: def456",
			logged: true,
		},
		{
			name:   "action_failed",
			event:  event.Event{Type: event.ActionFailed, Path: "c.txt", Error: failErr},
			want:   "Failed c.txt: permission denied",
			logged: true,
		},
		{
			name:   "cycle_completed",
			event:  event.Event{Type: event.CycleCompleted, Src: "/src", Dst: "/dst"},
			want:   "Synchronization completed from /src to /dst",
			logged: true,
		},
		{
			name:   "cycle_failed",
			event:  event.Event{Type: event.CycleFailed, Error: failErr},
			want:   "Synchronization failed: permission denied",
			logged: true,
		},
		{
			name:   "interrupted",
			event:  event.Event{Type: event.Interrupted},
			want:   "Synchronization interrupted by user.",
			logged: true,
		},
		{
			name:   "cycle_started_not_logged",
			event:  event.Event{Type: event.CycleStarted},
			logged: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := formatEvent(tt.event)
			require.Equal(t, tt.logged, ok)
			if tt.logged {
				assert.Equal(t, tt.want, msg)
			}
		})
	}
}

func TestSink_RunConsumesEvents(t *testing.T) {
	s, path := newTestSink(t, Config{Quiet: true})

	ch := make(chan event.Event)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ch)
	}()

	ch <- event.Event{Type: event.FileCopied, Src: "/s/a", Dst: "/d/a", Digest: "h1"}
	ch <- event.Event{Type: event.CycleStarted} // must not produce a line
	ch <- event.Event{Type: event.FileDeleted, Dst: "/d/b", Digest: "h2"}
	ch <- event.Event{Type: event.CycleCompleted, Src: "/s", Dst: "/d"}
	close(ch)
	<-done

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Copied /s/a to /d/a - Hash: h1")
	assert.Contains(t, lines[1], "Removed /d/b - Hash: h2")
	assert.Contains(t, lines[2], "Synchronization completed from /s to /d")
}

func TestSink_ConcurrentRecordsDoNotInterleave(t *testing.T) {
	s, path := newTestSink(t, Config{Quiet: true})

	const writers, perWriter = 10, 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				require.NoError(t, s.Record("concurrent message"))
			}
		}()
	}
	wg.Wait()

	lines := readLines(t, path)
	require.Len(t, lines, writers*perWriter)
	for _, line := range lines {
		assert.Regexp(t, lineRE, line)
	}
}
