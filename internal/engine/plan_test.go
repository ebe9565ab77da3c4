package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPlan_IdenticalMaps(t *testing.T) {
	m := DigestMap{"a.txt": "d1", "sub/b.txt": "d2"}
	plan := BuildPlan(m, m)
	assert.True(t, plan.Empty())
	assert.Zero(t, plan.Len())
}

func TestBuildPlan_BothEmpty(t *testing.T) {
	plan := BuildPlan(DigestMap{}, DigestMap{})
	assert.True(t, plan.Empty())
}

func TestBuildPlan_NewFile(t *testing.T) {
	src := DigestMap{"a.txt": "d1"}
	dst := DigestMap{}

	plan := BuildPlan(src, dst)
	require.Len(t, plan.Copies, 1)
	assert.Empty(t, plan.Deletes)
	assert.Equal(t, Action{Op: OpCopy, Path: "a.txt", Digest: "d1"}, plan.Copies[0])
}

func TestBuildPlan_ChangedFile(t *testing.T) {
	src := DigestMap{"a.txt": "new"}
	dst := DigestMap{"a.txt": "old"}

	plan := BuildPlan(src, dst)
	require.Len(t, plan.Copies, 1)
	assert.Empty(t, plan.Deletes)
	assert.Equal(t, "new", plan.Copies[0].Digest)
}

func TestBuildPlan_ExtraneousFile(t *testing.T) {
	src := DigestMap{}
	dst := DigestMap{"stale.txt": "d9"}

	plan := BuildPlan(src, dst)
	assert.Empty(t, plan.Copies)
	require.Len(t, plan.Deletes, 1)
	assert.Equal(t, Action{Op: OpDelete, Path: "stale.txt", Digest: "d9"}, plan.Deletes[0])
}

func TestBuildPlan_CopyAndDelete(t *testing.T) {
	// Source has a.txt("hi"); destination has a.txt("bye") and b.txt("x").
	src := DigestMap{"a.txt": "hash-hi"}
	dst := DigestMap{"a.txt": "hash-bye", "b.txt": "hash-x"}

	plan := BuildPlan(src, dst)
	require.Len(t, plan.Copies, 1)
	require.Len(t, plan.Deletes, 1)
	assert.Equal(t, "a.txt", plan.Copies[0].Path)
	assert.Equal(t, "b.txt", plan.Deletes[0].Path)
}

func TestBuildPlan_SortedWithinGroups(t *testing.T) {
	src := DigestMap{"z.txt": "d1", "a.txt": "d2", "m/n.txt": "d3"}
	dst := DigestMap{"x.bin": "d4", "b.bin": "d5"}

	plan := BuildPlan(src, dst)
	require.Len(t, plan.Copies, 3)
	require.Len(t, plan.Deletes, 2)
	assert.Equal(t, []string{"a.txt", "m/n.txt", "z.txt"},
		[]string{plan.Copies[0].Path, plan.Copies[1].Path, plan.Copies[2].Path})
	assert.Equal(t, []string{"b.bin", "x.bin"},
		[]string{plan.Deletes[0].Path, plan.Deletes[1].Path})
}

func TestBuildPlan_DeterministicAcrossCalls(t *testing.T) {
	src := DigestMap{"c": "1", "a": "2", "b": "3"}
	dst := DigestMap{"e": "4", "d": "5"}

	first := BuildPlan(src, dst)
	for range 10 {
		assert.Equal(t, first, BuildPlan(src, dst))
	}
}

func TestActionOpString(t *testing.T) {
	assert.Equal(t, "copy", OpCopy.String())
	assert.Equal(t, "delete", OpDelete.String())
	assert.Equal(t, "unknown", ActionOp(0).String())
}
