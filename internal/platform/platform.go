package platform

import "os"

// CopyMethod identifies the syscall strategy a copy ended up using.
type CopyMethod int

const (
	// ReadWrite is the portable pread/pwrite fallback and the zero value.
	ReadWrite CopyMethod = iota
	// CopyFileRange is Linux copy_file_range(2).
	CopyFileRange
	// Sendfile is Linux sendfile(2).
	Sendfile
	// Clonefile is macOS clonefile(2).
	Clonefile
)

var methodNames = map[CopyMethod]string{
	ReadWrite:     "read_write",
	CopyFileRange: "copy_file_range",
	Sendfile:      "sendfile",
	Clonefile:     "clonefile",
}

func (m CopyMethod) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return "unknown"
}

// CopyFileParams describes a whole-file copy. The destination descriptor
// is opened and closed by the caller.
type CopyFileParams struct {
	SrcPath string
	SrcSize int64
	DstFd   *os.File
}

// CopyResult describes a finished copy: how many bytes landed and which
// strategy moved them.
type CopyResult struct {
	Method       CopyMethod
	BytesWritten int64
}
