package typeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	set := NewSet("alice", "bob")
	assert.True(t, set.Contain("alice", "bob"))
	assert.False(t, set.Contain("alice", "carol"))
	assert.Equal(t, 2, set.Len())

	set.Insert("bob", "carol")
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, []string{"alice", "bob", "carol"}, Sorted(set))

	clone := set.Clone()
	set.Remove("alice")
	assert.False(t, set.Contain("alice"))
	assert.True(t, clone.Contain("alice"))

	visited := 0
	clone.Range(func(string) bool {
		visited++
		return visited < 2
	})
	assert.Equal(t, 2, visited)

	set.Clear()
	assert.Equal(t, 0, set.Len())
}

func TestNilSetRemove(t *testing.T) {
	var set Set[int]
	set.Remove(1)
	assert.False(t, set.Contain(1))
	assert.Empty(t, set.Collect())
}
