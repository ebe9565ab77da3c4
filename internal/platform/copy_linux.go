//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// CopyFile moves a whole file with the cheapest method the kernel offers:
// copy_file_range keeps the transfer in-kernel (and reflinks on btrfs/XFS),
// sendfile is the older in-kernel path, pread/pwrite is the portable tail.
// Unsupported-operation and cross-device errors fall through to the next
// method; real I/O errors surface immediately.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	preallocate(params.DstFd, params.SrcSize)

	src, err := os.Open(params.SrcPath)
	if err != nil {
		return CopyResult{}, err
	}
	defer src.Close()

	result, err := copyFileRange(src, params.DstFd, params.SrcSize)
	if err == nil || !isFallbackErr(err) {
		return result, err
	}

	result, err = sendfileCopy(src, params.DstFd, params.SrcSize)
	if err == nil || !isFallbackErr(err) {
		return result, err
	}

	return copyReadWrite(params)
}

// copyFileRange loops copy_file_range(2) until size bytes moved or EOF.
// Offsets are explicit, so the shared src descriptor's position is never
// disturbed for the fallback paths.
func copyFileRange(src, dst *os.File, size int64) (CopyResult, error) {
	var roff, woff, written int64
	for written < size {
		n, err := unix.CopyFileRange(
			int(src.Fd()), &roff,
			int(dst.Fd()), &woff,
			int(size-written), 0,
		)
		if err != nil {
			return CopyResult{BytesWritten: written, Method: CopyFileRange}, err
		}
		if n == 0 {
			break
		}
		written += int64(n)
	}
	return CopyResult{BytesWritten: written, Method: CopyFileRange}, nil
}

// sendfileCopy loops sendfile(2) with an explicit source offset.
func sendfileCopy(src, dst *os.File, size int64) (CopyResult, error) {
	var off, written int64
	for written < size {
		n, err := unix.Sendfile(int(dst.Fd()), int(src.Fd()), &off, int(size-written))
		if err != nil {
			return CopyResult{BytesWritten: written, Method: Sendfile}, err
		}
		if n == 0 {
			break
		}
		written += int64(n)
	}
	return CopyResult{BytesWritten: written, Method: Sendfile}, nil
}
