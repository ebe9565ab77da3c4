package platform

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Transfer buffer for the pread/pwrite path. 1 MiB keeps the syscall count
// low without pinning large allocations between copies.
const bufferSize = 1 << 20

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// copyReadWrite copies the whole source with pread/pwrite and a pooled
// buffer. Positional I/O leaves the destination descriptor's file offset
// untouched, so it is safe on an fd the caller still writes through.
func copyReadWrite(params CopyFileParams) (CopyResult, error) {
	src, err := os.Open(params.SrcPath)
	if err != nil {
		return CopyResult{}, err
	}
	defer src.Close()

	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)

	res := CopyResult{Method: ReadWrite}
	srcFd := int(src.Fd())
	dstFd := int(params.DstFd.Fd())

	// Read offset and bytes written advance in lockstep, so one counter
	// serves as both.
	for res.BytesWritten < params.SrcSize {
		chunk := *bufp
		if left := params.SrcSize - res.BytesWritten; left < int64(len(chunk)) {
			chunk = chunk[:left]
		}

		n, err := unix.Pread(srcFd, chunk, res.BytesWritten)
		if err != nil {
			return res, err
		}
		if n == 0 {
			break
		}
		if err := pwriteFull(dstFd, chunk[:n], res.BytesWritten); err != nil {
			return res, err
		}
		res.BytesWritten += int64(n)
	}
	return res, nil
}

// pwriteFull writes all of b at off, retrying short writes.
func pwriteFull(fd int, b []byte, off int64) error {
	for len(b) > 0 {
		n, err := unix.Pwrite(fd, b, off)
		if err != nil {
			return err
		}
		b = b[n:]
		off += int64(n)
	}
	return nil
}

// isFallbackErr reports whether err means the current copy strategy is
// unavailable here and the next one should be tried.
func isFallbackErr(err error) bool {
	switch err {
	case unix.ENOSYS, unix.EXDEV, unix.EINVAL, unix.ENOTSUP:
		return true
	}
	if e, ok := err.(*os.PathError); ok {
		return isFallbackErr(e.Err)
	}
	return false
}
