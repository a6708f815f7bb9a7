package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetAdd(t *testing.T) {
	set := NewSet[int]()
	assert.True(t, set.Add(1))
	assert.True(t, set.Add(2))
	assert.True(t, set.Add(3))

	assert.Equal(t, 3, set.Size())
	assert.True(t, set.Contains(1))
	assert.False(t, set.Contains(4))
}

func TestSetAddDuplicate(t *testing.T) {
	set := NewSet("apple")
	assert.False(t, set.Add("apple"))
	assert.Equal(t, 1, set.Size())
}

func TestSetRemove(t *testing.T) {
	set := NewSet(1, 2, 3)
	set.Remove(2)
	set.Remove(42)

	assert.Equal(t, 2, set.Size())
	assert.False(t, set.Contains(2))
	assert.Equal(t, []int{1, 3}, set.ToSlice())
}

func TestSetToSliceKeepsInsertionOrder(t *testing.T) {
	set := NewSet("c", "a", "b", "a")
	assert.Equal(t, []string{"c", "a", "b"}, set.ToSlice())

	// The returned slice is a copy.
	out := set.ToSlice()
	out[0] = "z"
	assert.Equal(t, "c", set.ToSlice()[0])
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 3, "a": 1, "b": 2}))
	assert.Empty(t, SortedKeys(map[int]bool{}))
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []int{3, 1, 2}, dedupe([]int{3, 1, 3, 2, 1}))
	assert.Empty(t, dedupe[int](nil))
}
