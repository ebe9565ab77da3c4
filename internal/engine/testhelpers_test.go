package engine_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirra-sync/mirra/internal/engine"
	"github.com/mirra-sync/mirra/internal/event"
)

// createTestTree populates root with the standard fixture: three small
// text files at varying depth, one binary file large enough to span
// many hash-read chunks, and a symlink that must never be mirrored.
//
//	root.txt
//	big.bin           (384 KiB)
//	sub/mid.txt
//	sub/deep/leaf.txt
//	link.txt          → root.txt
func createTestTree(t *testing.T, root string) {
	t.Helper()

	for rel, content := range map[string]string{
		"root.txt":          "alpha at the root\n",
		"sub/mid.txt":       "bravo one level down\n",
		"sub/deep/leaf.txt": "charlie two levels down\n",
	} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	big := bytes.Repeat([]byte{0xA5, 0x5A, 0xC3, 0x3C}, 96*1024)
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.bin"), big, 0o644))

	require.NoError(t, os.Symlink("root.txt", filepath.Join(root, "link.txt")))
}

// modifySourceTree rewrites root.txt wholesale and patches 16 bytes in
// the middle of big.bin, so the next cycle must re-copy exactly those
// two files and nothing else.
func modifySourceTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.WriteFile(
		filepath.Join(root, "root.txt"),
		[]byte("alpha, second edition\n"),
		0o644,
	))

	bigPath := filepath.Join(root, "big.bin")
	data, err := os.ReadFile(bigPath)
	require.NoError(t, err)
	copy(data[4096:4112], "@@REWRITTEN-16@@")
	require.NoError(t, os.WriteFile(bigPath, data, 0o644))
}

// scanTree builds a digest map for root using default scanner settings.
func scanTree(t *testing.T, root string) engine.DigestMap {
	t.Helper()
	m, err := engine.NewScanner(engine.ScanConfig{Root: root}).Scan(context.Background())
	require.NoError(t, err)
	return m
}

// eventTap records everything a loop emits. stop closes the feed, waits
// for the recorder goroutine, and returns the events; it is safe to call
// more than once, and t.Cleanup calls it if the test never does.
type eventTap struct {
	ch     chan event.Event
	done   chan struct{}
	events []event.Event
	once   sync.Once
}

func newEventTap(t *testing.T) *eventTap {
	t.Helper()
	tap := &eventTap{
		ch:   make(chan event.Event, 2048),
		done: make(chan struct{}),
	}
	go func() {
		defer close(tap.done)
		for ev := range tap.ch {
			tap.events = append(tap.events, ev)
		}
	}()
	t.Cleanup(func() { tap.stop() })
	return tap
}

func (tap *eventTap) stop() []event.Event {
	tap.once.Do(func() { close(tap.ch) })
	<-tap.done
	return tap.events
}

// syncOnce runs a single scan, diff, apply cycle from src to dst and
// returns every event it emitted.
func syncOnce(t *testing.T, src, dst string) []event.Event {
	t.Helper()

	tap := newEventTap(t)
	l, err := engine.NewLoop(engine.LoopConfig{
		SrcRoot: src,
		DstRoot: dst,
		Once:    true,
		Events:  tap.ch,
	})
	require.NoError(t, err)
	require.NoError(t, l.Run(context.Background()))
	return tap.stop()
}

// verifyMirror checks that dstRoot is an exact mirror of srcRoot: every
// regular file in src exists in dst with identical content, dst holds
// nothing extraneous, and no symlinks or leftover temp files appear.
func verifyMirror(t *testing.T, srcRoot, dstRoot string) {
	t.Helper()

	err := filepath.WalkDir(srcRoot, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() || d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(srcRoot, path)
		require.NoError(t, err)

		want, err := os.ReadFile(path)
		require.NoError(t, err, "source unreadable: %s", rel)
		got, err := os.ReadFile(filepath.Join(dstRoot, rel))
		require.NoError(t, err, "missing from mirror: %s", rel)
		require.Equal(t, want, got, "mirror diverges at %s", rel)
		return nil
	})
	require.NoError(t, err)

	err = filepath.WalkDir(dstRoot, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		rel, relErr := filepath.Rel(dstRoot, path)
		require.NoError(t, relErr)

		require.Zero(t, d.Type()&os.ModeSymlink, "symlink mirrored: %s", rel)
		if !d.IsDir() {
			require.FileExists(t, filepath.Join(srcRoot, rel), "extraneous file: %s", rel)
		}
		return nil
	})
	require.NoError(t, err)

	require.Empty(t, findTmpFiles(t, dstRoot))
}

// findTmpFiles returns the paths of any in-flight temp files under root.
func findTmpFiles(t *testing.T, root string) []string {
	t.Helper()
	var stale []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && strings.HasSuffix(d.Name(), ".mirra-tmp") {
			stale = append(stale, path)
		}
		return err
	})
	require.NoError(t, err)
	return stale
}

func countEvents(events []event.Event, typ event.Type) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}
