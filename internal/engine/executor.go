package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/mirra-sync/mirra/internal/event"
	"github.com/mirra-sync/mirra/internal/platform"
	"github.com/mirra-sync/mirra/internal/stats"
)

// ExecConfig controls how a plan is applied.
type ExecConfig struct {
	SrcRoot string
	DstRoot string
	Cycle   uint64
	DryRun  bool
	BWLimit *rate.Limiter // nil = unlimited
	Events  chan<- event.Event
	Stats   *stats.Collector
}

func (c ExecConfig) emit(e event.Event) {
	if c.Events == nil {
		return
	}
	e.Timestamp = time.Now()
	e.Cycle = c.Cycle
	// Sends block: every action must reach the audit log.
	c.Events <- e
}

// ApplyResult summarizes one plan application.
type ApplyResult struct {
	Copied  int
	Deleted int
	Failed  int
	Bytes   int64
}

// Apply performs the plan's copies, then its deletes. A failing action
// is reported as an ActionFailed event and counted, and the remaining
// actions still run; one bad file never aborts a cycle. Apply never
// stops mid-plan on cancellation, so a started cycle either converges
// or fails per action.
func Apply(ctx context.Context, cfg ExecConfig, plan Plan) ApplyResult {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}

	var result ApplyResult
	for _, action := range plan.Copies {
		bytes, err := applyCopy(ctx, cfg, action)
		if err != nil {
			result.Failed++
			cfg.Stats.AddActionsFailed(1)
			cfg.emit(event.Event{Type: event.ActionFailed, Path: action.Path, Error: err})
			continue
		}
		result.Copied++
		result.Bytes += bytes
		cfg.Stats.AddFilesCopied(1)
		cfg.Stats.AddBytesCopied(bytes)
		cfg.emit(event.Event{
			Type:   event.FileCopied,
			Path:   action.Path,
			Src:    filepath.Join(cfg.SrcRoot, filepath.FromSlash(action.Path)),
			Dst:    filepath.Join(cfg.DstRoot, filepath.FromSlash(action.Path)),
			Digest: action.Digest,
			Size:   bytes,
		})
	}

	for _, action := range plan.Deletes {
		if err := applyDelete(cfg, action); err != nil {
			result.Failed++
			cfg.Stats.AddActionsFailed(1)
			cfg.emit(event.Event{Type: event.ActionFailed, Path: action.Path, Error: err})
			continue
		}
		result.Deleted++
		cfg.Stats.AddFilesDeleted(1)
		cfg.emit(event.Event{
			Type:   event.FileDeleted,
			Path:   action.Path,
			Dst:    filepath.Join(cfg.DstRoot, filepath.FromSlash(action.Path)),
			Digest: action.Digest,
		})
	}

	return result
}

// applyCopy copies one file into place via a temp file and atomic
// rename, so a crashed or failed copy never leaves a half-written file
// at the destination path.
func applyCopy(ctx context.Context, cfg ExecConfig, action Action) (int64, error) {
	srcPath := filepath.Join(cfg.SrcRoot, filepath.FromSlash(action.Path))
	dstPath := filepath.Join(cfg.DstRoot, filepath.FromSlash(action.Path))

	info, err := os.Stat(srcPath)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", srcPath, err)
	}

	if cfg.DryRun {
		return info.Size(), nil
	}

	dir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create parent dir %s: %w", dir, err)
	}

	base := filepath.Base(dstPath)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.mirra-tmp", base, uuid.New().String()[:8]))

	RegisterTmp(tmpPath)
	defer func() {
		DeregisterTmp(tmpPath)
		_ = os.Remove(tmpPath) // no-op if rename succeeded
	}()

	tmpFd, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return 0, fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}

	written, err := copyData(ctx, cfg, srcPath, tmpFd, info.Size())
	if err != nil {
		tmpFd.Close()
		return 0, fmt.Errorf("copy data %s: %w", srcPath, err)
	}

	setFileMetadata(tmpFd, info)

	if err := tmpFd.Close(); err != nil {
		return 0, fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		return 0, fmt.Errorf("rename %s -> %s: %w", tmpPath, dstPath, err)
	}
	return written, nil
}

// copyData moves the bytes. Unlimited copies take the platform fast
// path; rate-limited ones go through a throttled reader.
func copyData(ctx context.Context, cfg ExecConfig, srcPath string, dstFd *os.File, size int64) (int64, error) {
	if cfg.BWLimit == nil {
		result, err := platform.CopyFile(platform.CopyFileParams{
			SrcPath: srcPath,
			DstFd:   dstFd,
			SrcSize: size,
		})
		return result.BytesWritten, err
	}

	srcFd, err := os.Open(srcPath)
	if err != nil {
		return 0, err
	}
	defer srcFd.Close()

	return io.Copy(dstFd, newRateLimitedReader(ctx, srcFd, cfg.BWLimit))
}

// setFileMetadata mirrors the source's permissions and mtime onto the
// temp file before the rename. Both are best-effort; a filesystem that
// refuses them does not fail the copy.
func setFileMetadata(fd *os.File, info os.FileInfo) {
	rawFd := int(fd.Fd())
	_ = unix.Fchmod(rawFd, uint32(info.Mode().Perm()))
	_ = setFileTimes(rawFd, fd.Name(), info.ModTime())
}

// applyDelete removes one destination file. A file already gone counts
// as success; deletes are idempotent.
func applyDelete(cfg ExecConfig, action Action) error {
	if cfg.DryRun {
		return nil
	}
	dstPath := filepath.Join(cfg.DstRoot, filepath.FromSlash(action.Path))
	if err := os.Remove(dstPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", dstPath, err)
	}
	return nil
}
