package engine

import "sort"

// ActionOp discriminates the two kinds of sync action.
type ActionOp int

const (
	OpCopy ActionOp = iota + 1
	OpDelete
)

func (op ActionOp) String() string {
	switch op {
	case OpCopy:
		return "copy"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Action is one unit of work needed to converge the destination.
// For copies, Digest is the source digest the destination will assume;
// for deletes, it is the digest the destination file had when scanned.
type Action struct {
	Op     ActionOp
	Path   string // slash-separated relative path
	Digest string
}

// Plan is the ordered work list for one cycle: all copies, then all
// deletes. Within each group actions are sorted by path, which makes
// plans deterministic for a given pair of maps.
type Plan struct {
	Copies  []Action
	Deletes []Action
}

// Empty reports whether the plan contains no actions.
func (p Plan) Empty() bool {
	return len(p.Copies) == 0 && len(p.Deletes) == 0
}

// Len returns the total number of actions.
func (p Plan) Len() int {
	return len(p.Copies) + len(p.Deletes)
}

// BuildPlan computes the actions that make the destination tree match
// the source tree. A path present in src but absent from dst, or
// present in both with different digests, becomes a copy. A path
// present only in dst becomes a delete. Equal digests produce no
// action regardless of timestamps.
//
// BuildPlan is pure: it reads the maps and touches no I/O.
func BuildPlan(src, dst DigestMap) Plan {
	var plan Plan

	for path, digest := range src {
		if dst[path] != digest {
			plan.Copies = append(plan.Copies, Action{Op: OpCopy, Path: path, Digest: digest})
		}
	}
	for path, digest := range dst {
		if _, ok := src[path]; !ok {
			plan.Deletes = append(plan.Deletes, Action{Op: OpDelete, Path: path, Digest: digest})
		}
	}

	sort.Slice(plan.Copies, func(i, j int) bool { return plan.Copies[i].Path < plan.Copies[j].Path })
	sort.Slice(plan.Deletes, func(i, j int) bool { return plan.Deletes[i].Path < plan.Deletes[j].Path })
	return plan
}
