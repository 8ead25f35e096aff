package player

import (
	"testing"

	"EchoFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reconcilerFixture(ids ...string) (*QueueReconciler, *Engine) {
	engine, _, _ := newTestEngine()
	tracks := make([]model.Track, 0, len(ids))
	for _, id := range ids {
		tracks = append(tracks, track(id))
	}
	engine.LoadQueue(tracks)
	return NewQueueReconciler(engine), engine
}

func engineTrackIDs(engine *Engine) []string {
	entries := engine.Queue()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Track.ID)
	}
	return out
}

func TestReconcilerDragEndMapsEntriesToIndices(t *testing.T) {
	r, engine := reconcilerFixture("A", "B", "C")
	entries := engine.Queue()

	r.OnDragEnd(entries[0].ID, entries[2].ID)

	assert.Equal(t, []string{"B", "C", "A"}, engineTrackIDs(engine))
}

func TestReconcilerDragEndSameEntryIsNoop(t *testing.T) {
	r, engine := reconcilerFixture("A", "B")
	entries := engine.Queue()

	r.OnDragEnd(entries[0].ID, entries[0].ID)

	assert.Equal(t, []string{"A", "B"}, engineTrackIDs(engine))
}

func TestReconcilerDragEndUnknownEntryIsNoop(t *testing.T) {
	r, engine := reconcilerFixture("A", "B")
	entries := engine.Queue()

	r.OnDragEnd(entries[0].ID, "vanished")
	r.OnDragEnd("", entries[1].ID)

	assert.Equal(t, []string{"A", "B"}, engineTrackIDs(engine))
}

// 拖拽释放前条目被删掉，落点失效，整个手势静默作废
func TestReconcilerDragEndAfterRemoval(t *testing.T) {
	r, engine := reconcilerFixture("A", "B", "C")
	entries := engine.Queue()

	engine.RemoveFromQueue("C")
	r.OnDragEnd(entries[0].ID, entries[2].ID)

	assert.Equal(t, []string{"A", "B"}, engineTrackIDs(engine))
}

func TestReconcilerOnMovePassthrough(t *testing.T) {
	r, engine := reconcilerFixture("A", "B", "C")

	r.OnMove(2, 0)
	assert.Equal(t, []string{"C", "A", "B"}, engineTrackIDs(engine))

	r.OnMove(0, 9)
	assert.Equal(t, []string{"C", "A", "B"}, engineTrackIDs(engine), "out of range moves are ignored")
}

func TestReconcilerRequiresEngineQueueAsSource(t *testing.T) {
	r, engine := reconcilerFixture("A", "B", "C", "D")
	entries := engine.Queue()

	// 两次连续拖拽：第二次的落点按第一次之后的实际位置解析
	r.OnDragEnd(entries[0].ID, entries[1].ID) // [B,A,C,D]
	require.Equal(t, []string{"B", "A", "C", "D"}, engineTrackIDs(engine))

	r.OnDragEnd(entries[3].ID, entries[0].ID) // D 移到 B 的当前位置
	assert.Equal(t, []string{"D", "B", "A", "C"}, engineTrackIDs(engine))
}
