package engine

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"
)

// DigestCache is an optional SQLite-backed cache of (path, size, mtime)
// to digest. With it enabled a cycle only re-hashes files whose metadata
// changed, trading the full re-hash guarantee for speed: a file
// modified without changing size or mtime goes unnoticed. Off by
// default for that reason.
type DigestCache struct {
	db   *sql.DB
	path string

	// Batch buffer for Store calls.
	mu      sync.Mutex
	batch   []digestEntry
	done    chan struct{}
	stopped bool
}

type digestEntry struct {
	path   string
	size   int64
	mtime  int64
	digest string
}

// OpenDigestCache opens (or creates) the digest cache for the given
// source/destination pair and hash algorithm. The DB lives under the
// user cache dir, keyed by the pair, so concurrent syncs of different
// trees never share state. A cache written by a different algorithm is
// discarded on open.
func OpenDigestCache(src, dst string, algo Algorithm) (*DigestCache, error) {
	dbPath := digestCachePath(digestCacheID(src, dst))

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open digest cache: %w", err)
	}

	c := &DigestCache{
		db:   db,
		path: dbPath,
		done: make(chan struct{}),
	}

	if err := c.init(algo); err != nil {
		db.Close()
		return nil, err
	}

	go c.flushLoop()

	return c, nil
}

func (c *DigestCache) init(algo Algorithm) error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS digests (
			path   TEXT PRIMARY KEY,
			size   INTEGER NOT NULL,
			mtime  INTEGER NOT NULL,
			digest TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	var storedAlgo string
	row := c.db.QueryRow("SELECT value FROM meta WHERE key = 'algorithm'")
	if err := row.Scan(&storedAlgo); err == nil {
		if storedAlgo != string(algo) {
			// Entries from another algorithm are useless; start over.
			if _, err := c.db.Exec("DELETE FROM digests"); err != nil {
				return fmt.Errorf("reset cache: %w", err)
			}
		}
	}
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES ('algorithm', ?)", string(algo),
	)
	if err != nil {
		return fmt.Errorf("store meta: %w", err)
	}

	return nil
}

// Lookup returns the cached digest for path if its recorded size and
// mtime still match.
func (c *DigestCache) Lookup(path string, size, mtimeNano int64) (string, bool) {
	var storedSize, storedMtime int64
	var digest string
	err := c.db.QueryRow(
		"SELECT size, mtime, digest FROM digests WHERE path = ?", path,
	).Scan(&storedSize, &storedMtime, &digest)
	if err != nil {
		return "", false
	}
	if storedSize != size || storedMtime != mtimeNano {
		return "", false
	}
	return digest, true
}

// Store records a freshly computed digest. Writes are batched and
// flushed periodically; a miss caused by an unflushed entry only costs
// a re-hash.
func (c *DigestCache) Store(path string, size, mtimeNano int64, digest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.batch = append(c.batch, digestEntry{
		path:   path,
		size:   size,
		mtime:  mtimeNano,
		digest: digest,
	})

	if len(c.batch) >= 100 {
		return c.flushLocked()
	}
	return nil
}

// Flush writes any pending batch entries to the database.
func (c *DigestCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *DigestCache) flushLocked() error {
	if len(c.batch) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO digests (path, size, mtime, digest) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range c.batch {
		if _, err := stmt.Exec(e.path, e.size, e.mtime, e.digest); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", e.path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	c.batch = c.batch[:0]
	return nil
}

func (c *DigestCache) flushLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			_ = c.flushLocked()
			c.mu.Unlock()
		}
	}
}

// Close flushes any pending writes and closes the database.
func (c *DigestCache) Close() error {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		close(c.done)
	}
	_ = c.flushLocked()
	c.mu.Unlock()
	return c.db.Close()
}

// Remove deletes the cache database file.
func (c *DigestCache) Remove() error {
	return os.Remove(c.path)
}

// Path returns the path to the cache database file.
func (c *DigestCache) Path() string {
	return c.path
}

// digestCacheID computes a deterministic cache ID from the tree roots.
func digestCacheID(src, dst string) string {
	h := blake3.New()
	h.Write([]byte(src))
	h.Write([]byte{0})
	h.Write([]byte(dst))
	digest := h.Sum(nil)
	return hex.EncodeToString(digest[:8])
}

// digestCachePath returns the filesystem path for a cache DB.
func digestCachePath(cacheID string) string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "mirra", cacheID+".db")
	}
	return filepath.Join(os.TempDir(), "mirra-"+cacheID+".db")
}
