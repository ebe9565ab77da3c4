package engine

import (
	"os"
	"sync"
)

// tmpRegistry remembers temp files that have been created but not yet
// renamed into place. A copy interrupted between those two points leaves
// its temp file on disk; the shutdown sweep removes it so aborted runs
// never litter the destination tree.
type tmpRegistry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

var tmpFiles = &tmpRegistry{paths: make(map[string]struct{})}

func (r *tmpRegistry) add(path string) {
	r.mu.Lock()
	r.paths[path] = struct{}{}
	r.mu.Unlock()
}

func (r *tmpRegistry) remove(path string) {
	r.mu.Lock()
	delete(r.paths, path)
	r.mu.Unlock()
}

// sweep removes every tracked temp file and returns how many it deleted.
func (r *tmpRegistry) sweep() int {
	r.mu.Lock()
	paths := make([]string, 0, len(r.paths))
	for p := range r.paths {
		paths = append(paths, p)
	}
	r.paths = make(map[string]struct{})
	r.mu.Unlock()

	n := 0
	for _, p := range paths {
		if os.Remove(p) == nil {
			n++
		}
	}
	return n
}

// RegisterTmp tracks an in-flight temp file for the shutdown sweep.
func RegisterTmp(path string) { tmpFiles.add(path) }

// DeregisterTmp stops tracking a temp file once it has been renamed into
// place or removed by its creator.
func DeregisterTmp(path string) { tmpFiles.remove(path) }

// CleanupTmpFiles deletes any temp files still registered and reports
// how many were swept.
func CleanupTmpFiles() int { return tmpFiles.sweep() }
