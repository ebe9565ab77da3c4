package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	CycleStarted   Type = iota + 1
	FileCopied
	FileDeleted
	ActionFailed
	CycleCompleted
	CycleFailed
	Interrupted
)

var typeNames = [...]string{
	CycleStarted:   "CycleStarted",
	FileCopied:     "FileCopied",
	FileDeleted:    "FileDeleted",
	ActionFailed:   "ActionFailed",
	CycleCompleted: "CycleCompleted",
	CycleFailed:    "CycleFailed",
	Interrupted:    "Interrupted",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event describes a single observable step of a sync cycle.
type Event struct {
	Type      Type
	Timestamp time.Time
	Cycle     uint64
	Path      string // relative path within the trees
	Src       string // absolute source path (FileCopied)
	Dst       string // absolute destination path (FileCopied, FileDeleted)
	Digest    string // hex digest of the affected file
	Size      int64  // bytes written (FileCopied)
	Copies    int    // actions in the cycle (CycleCompleted)
	Deletes   int
	Failures  int
	Error     error
}
