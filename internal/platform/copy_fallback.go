//go:build !linux && !darwin

package platform

// CopyFile on platforms without a kernel fast path: plain pread/pwrite.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	preallocate(params.DstFd, params.SrcSize)
	return copyReadWrite(params)
}
