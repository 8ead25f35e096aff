package player

import (
	"testing"

	"EchoFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queueOf(ids ...string) *Queue {
	q := &Queue{}
	for _, id := range ids {
		q.Append(track(id))
	}
	return q
}

func trackIDs(q *Queue) []string {
	out := make([]string, 0, q.Len())
	for _, e := range q.Entries() {
		out = append(out, e.Track.ID)
	}
	return out
}

func TestQueueAppendAssignsDistinctIDs(t *testing.T) {
	q := &Queue{}
	e1 := q.Append(track("A"))
	e2 := q.Append(track("A"))

	assert.NotEqual(t, e1.ID, e2.ID, "duplicate tracks get distinct entry identities")
	assert.Equal(t, 2, q.Len())
}

func TestQueueMoveForward(t *testing.T) {
	q := queueOf("A", "B", "C", "D")

	require.True(t, q.Move(0, 2))
	assert.Equal(t, []string{"B", "C", "A", "D"}, trackIDs(q))
}

func TestQueueMoveBackward(t *testing.T) {
	q := queueOf("A", "B", "C", "D")

	require.True(t, q.Move(3, 1))
	assert.Equal(t, []string{"A", "D", "B", "C"}, trackIDs(q))
}

func TestQueueMoveSamePosition(t *testing.T) {
	q := queueOf("A", "B")

	assert.True(t, q.Move(1, 1))
	assert.Equal(t, []string{"A", "B"}, trackIDs(q))
}

func TestQueueMoveOutOfRange(t *testing.T) {
	q := queueOf("A", "B")

	assert.False(t, q.Move(-1, 0))
	assert.False(t, q.Move(0, 2))
	assert.False(t, q.Move(5, 0))
	assert.Equal(t, []string{"A", "B"}, trackIDs(q))
}

func TestQueueMovePreservesIdentity(t *testing.T) {
	q := queueOf("A", "B", "C")
	entries := q.Entries()
	movedID := entries[0].ID

	require.True(t, q.Move(0, 2))

	after := q.Entries()
	assert.Equal(t, movedID, after[2].ID)
}

func TestQueueRemoveFirstTrackOnly(t *testing.T) {
	q := queueOf("A", "B", "A")
	entries := q.Entries()

	removed, ok := q.RemoveFirstTrack("A")
	require.True(t, ok)
	assert.Equal(t, entries[0].ID, removed.ID, "the first occurrence is removed")
	assert.Equal(t, []string{"B", "A"}, trackIDs(q))
}

func TestQueueRemoveMissingTrack(t *testing.T) {
	q := queueOf("A")

	_, ok := q.RemoveFirstTrack("Z")
	assert.False(t, ok)
	assert.Equal(t, 1, q.Len())
}

func TestQueueIndexOfEntryEmptyID(t *testing.T) {
	q := queueOf("A")

	assert.Equal(t, -1, q.IndexOfEntry(""))
}

func TestQueueReplaceRegeneratesIdentities(t *testing.T) {
	q := queueOf("A")
	oldID := q.Entries()[0].ID

	q.Replace([]model.Track{track("A"), track("B")})

	entries := q.Entries()
	require.Len(t, entries, 2)
	assert.NotEqual(t, oldID, entries[0].ID)
}
