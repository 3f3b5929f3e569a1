package proximity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRadius = 150

func TestIndex_SoloInsertHasNoGroup(t *testing.T) {
	idx := New(testRadius)

	changed := idx.Insert("a", 100, 100)
	assert.Equal(t, []string{"a"}, changed)
	assert.Equal(t, None, idx.GroupOf("a"))
}

func TestIndex_SecondPlayerInsideProximity(t *testing.T) {
	idx := New(testRadius)
	idx.Insert("b-user", 100, 100)

	changed := idx.Insert("a-user", 120, 100)

	require.ElementsMatch(t, []string{"a-user", "b-user"}, changed)
	assert.Equal(t, "a-user", idx.GroupOf("a-user"))
	assert.Equal(t, "a-user", idx.GroupOf("b-user"))
}

func TestIndex_MoveOutOfProximity(t *testing.T) {
	idx := New(testRadius)
	idx.Insert("a-user", 100, 100)
	idx.Insert("b-user", 120, 100)
	require.Equal(t, "a-user", idx.GroupOf("a-user"))

	changed := idx.Move("b-user", 400, 100)

	require.ElementsMatch(t, []string{"a-user", "b-user"}, changed)
	assert.Equal(t, None, idx.GroupOf("a-user"))
	assert.Equal(t, None, idx.GroupOf("b-user"))
}

func TestIndex_RemoveLastMemberLeavesNoGroup(t *testing.T) {
	idx := New(testRadius)
	idx.Insert("a-user", 0, 0)
	idx.Insert("b-user", 10, 0)
	require.NotEqual(t, None, idx.GroupOf("a-user"))

	changed := idx.Remove("b-user")

	require.Equal(t, []string{"a-user"}, changed)
	assert.Equal(t, None, idx.GroupOf("a-user"))
	assert.Equal(t, 1, idx.Len())
}

func TestIndex_RemoveAbsentPlayerIsNoOp(t *testing.T) {
	idx := New(testRadius)
	idx.Insert("a-user", 0, 0)

	changed := idx.Remove("ghost")
	assert.Empty(t, changed)
}

func TestIndex_MoveAbsentPlayerIsNoOp(t *testing.T) {
	idx := New(testRadius)
	changed := idx.Move("ghost", 1, 1)
	assert.Nil(t, changed)
}

func TestIndex_TransitiveChain(t *testing.T) {
	idx := New(testRadius)
	idx.Insert("a", 0, 0)
	idx.Insert("b", 100, 0)
	idx.Insert("c", 200, 0)

	// a-b within radius, b-c within radius, a-c (200) is not.
	assert.Equal(t, "a", idx.GroupOf("a"))
	assert.Equal(t, "a", idx.GroupOf("b"))
	assert.Equal(t, "a", idx.GroupOf("c"))
}

func TestIndex_TieBreakIsLexSmallestAndStableOnRejoin(t *testing.T) {
	idx := New(testRadius)
	idx.Insert("zzz", 0, 0)
	idx.Insert("aaa", 10, 0)
	idx.Insert("mmm", 20, 0)

	rep := idx.GroupOf("zzz")
	assert.Equal(t, "aaa", rep)
	assert.Equal(t, rep, idx.GroupOf("mmm"))

	// leave and rejoin the same component: representative must be the same.
	idx.Remove("aaa")
	idx.Insert("aaa", 10, 0)
	assert.Equal(t, "aaa", idx.GroupOf("zzz"))
}

func TestIndex_RoomsAreIndependent(t *testing.T) {
	room0 := New(testRadius)
	room1 := New(testRadius)

	room0.Insert("a", 0, 0)
	room1.Insert("a", 0, 0)
	room1.Insert("b", 10, 0)

	assert.Equal(t, None, room0.GroupOf("a"))
	assert.NotEqual(t, None, room1.GroupOf("a"))
}
