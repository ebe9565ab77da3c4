package engine

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/mirra-sync/mirra/internal/filter"
)

// DigestMap maps slash-separated relative paths to hex content digests,
// describing one tree at one instant. Maps are built fresh every cycle
// and never persisted.
type DigestMap map[string]string

// ScanConfig controls a tree scan.
type ScanConfig struct {
	Root    string
	Workers int
	Hasher  *Hasher
	Filter  *filter.Chain
	Cache   *DigestCache // optional; nil means hash every file
}

// Scanner walks a directory tree and produces its DigestMap.
//
// Symbolic links are never followed: a symlinked directory is not
// descended into and a symlinked file is not hashed. Both trees are
// scanned with the same rule, so links can never cause spurious diffs
// or walk cycles.
type Scanner struct {
	cfg ScanConfig
}

// NewScanner creates a Scanner. Zero workers defaults to one per CPU,
// capped at 8; a nil Hasher gets the default algorithm.
func NewScanner(cfg ScanConfig) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = min(runtime.NumCPU(), 8)
	}
	if cfg.Hasher == nil {
		cfg.Hasher = NewHasher("")
	}
	return &Scanner{cfg: cfg}
}

type scanEntry struct {
	relPath string
	absPath string
	size    int64
	mtime   int64
}

// Scan returns the DigestMap of the configured root.
//
// The scan is fail-fast: the first unreadable directory or file aborts
// the whole scan with an error and no partial map is returned. A file
// that vanishes between listing and hashing counts as a failure too;
// the next cycle simply rescans.
func (s *Scanner) Scan(ctx context.Context) (DigestMap, error) {
	entries, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}
	return s.hashAll(ctx, entries)
}

// collect walks the tree and gathers regular files that pass the filter.
// Filtered directories are pruned without descending.
func (s *Scanner) collect(ctx context.Context) ([]scanEntry, error) {
	var entries []scanEntry
	root := s.cfg.Root

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if s.cfg.Filter != nil && !s.cfg.Filter.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if s.cfg.Filter != nil && !s.cfg.Filter.Match(rel, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, scanEntry{
			relPath: rel,
			absPath: path,
			size:    info.Size(),
			mtime:   info.ModTime().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return entries, nil
}

// hashAll fans the entries out to a worker pool and assembles the map.
// The first hash error cancels the remaining work.
func (s *Scanner) hashAll(ctx context.Context, entries []scanEntry) (DigestMap, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskCh := make(chan scanEntry, s.cfg.Workers*2)
	digests := make(DigestMap, len(entries))
	var mu sync.Mutex
	var firstErr error
	var wg sync.WaitGroup

	for range s.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range taskCh {
				if ctx.Err() != nil {
					return
				}

				digest, err := s.hashEntry(e)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
						cancel()
					}
				} else {
					digests[e.relPath] = digest
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, e := range entries {
		select {
		case <-ctx.Done():
			break feed
		case taskCh <- e:
		}
	}
	close(taskCh)
	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("scan %s: %w", s.cfg.Root, firstErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.cfg.Root, err)
	}
	return digests, nil
}

// hashEntry computes one digest, consulting the cache when configured.
func (s *Scanner) hashEntry(e scanEntry) (string, error) {
	if s.cfg.Cache != nil {
		if digest, ok := s.cfg.Cache.Lookup(e.absPath, e.size, e.mtime); ok {
			return digest, nil
		}
	}
	digest, err := s.cfg.Hasher.HashFile(e.absPath)
	if err != nil {
		return "", err
	}
	if s.cfg.Cache != nil {
		// Best-effort: a cache write failure only costs a re-hash later.
		_ = s.cfg.Cache.Store(e.absPath, e.size, e.mtime, digest)
	}
	return digest, nil
}
