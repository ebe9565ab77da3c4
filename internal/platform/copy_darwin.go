//go:build darwin

package platform

import "golang.org/x/sys/unix"

// CopyFile prefers clonefile(2), which makes CoW copies on APFS without
// moving data. When the clone is refused the copy degrades to plain
// pread/pwrite into the already-open destination.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	switch err := unix.Clonefile(params.SrcPath, params.DstFd.Name(), 0); {
	case err == nil:
		return CopyResult{Method: Clonefile, BytesWritten: params.SrcSize}, nil
	case err != unix.ENOTSUP && err != unix.EXDEV && err != unix.EEXIST:
		return CopyResult{}, err
	}

	preallocate(params.DstFd, params.SrcSize)
	return copyReadWrite(params)
}
