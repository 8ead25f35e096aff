package player

import (
	"EchoFM/model"

	"github.com/google/uuid"
)

// Entry 队列中的一个条目
// 同一首曲目可以重复入队，所以每次入队生成独立的实例ID，
// 当前播放项按实例ID追踪，索引只在需要时现算
type Entry struct {
	ID    string
	Track model.Track
}

// Queue 播放队列，插入顺序即播放顺序
type Queue struct {
	entries []Entry
}

// Len 返回队列长度
func (q *Queue) Len() int {
	return len(q.entries)
}

// At 返回指定位置的条目，越界时返回零值
func (q *Queue) At(i int) (Entry, bool) {
	if i < 0 || i >= len(q.entries) {
		return Entry{}, false
	}
	return q.entries[i], true
}

// Entries 返回队列内容的副本
func (q *Queue) Entries() []Entry {
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// IndexOfEntry 按实例ID查找位置，不存在返回 -1
func (q *Queue) IndexOfEntry(entryID string) int {
	if entryID == "" {
		return -1
	}
	for i, e := range q.entries {
		if e.ID == entryID {
			return i
		}
	}
	return -1
}

// FirstIndexOfTrack 按曲目ID查找第一个匹配位置，不存在返回 -1
func (q *Queue) FirstIndexOfTrack(trackID string) int {
	for i, e := range q.entries {
		if e.Track.ID == trackID {
			return i
		}
	}
	return -1
}

// Append 追加一首曲目并返回新条目
func (q *Queue) Append(track model.Track) Entry {
	entry := Entry{ID: uuid.NewString(), Track: track}
	q.entries = append(q.entries, entry)
	return entry
}

// Replace 整体替换队列内容
func (q *Queue) Replace(tracks []model.Track) {
	entries := make([]Entry, 0, len(tracks))
	for _, t := range tracks {
		entries = append(entries, Entry{ID: uuid.NewString(), Track: t})
	}
	q.entries = entries
}

// Move 把 oldIndex 处的条目稳定移动到 newIndex，其余条目相对顺序不变
// 越界时不做任何修改
func (q *Queue) Move(oldIndex, newIndex int) bool {
	n := len(q.entries)
	if oldIndex < 0 || oldIndex >= n || newIndex < 0 || newIndex >= n {
		return false
	}
	if oldIndex == newIndex {
		return true
	}

	entry := q.entries[oldIndex]
	q.entries = append(q.entries[:oldIndex], q.entries[oldIndex+1:]...)
	q.entries = append(q.entries, Entry{})
	copy(q.entries[newIndex+1:], q.entries[newIndex:])
	q.entries[newIndex] = entry
	return true
}

// RemoveFirstTrack 按曲目ID删除第一个匹配条目
func (q *Queue) RemoveFirstTrack(trackID string) (Entry, bool) {
	idx := q.FirstIndexOfTrack(trackID)
	if idx < 0 {
		return Entry{}, false
	}
	entry := q.entries[idx]
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	return entry, true
}
