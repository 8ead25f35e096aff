package player

import (
	"fmt"
	"sync"

	"EchoFM/logger"
	"EchoFM/model"
)

// activityIdle 空闲时上报的活动文案
const activityIdle = "Idle"

// playingActivity 播放中上报的活动文案
func playingActivity(t model.Track) string {
	return fmt.Sprintf("Playing %s by %s", t.Title, t.Artist)
}

// AudioBackend 底层音频渲染原语
// Play 是异步生命周期里的一步，可能因自动播放策略或网络停顿而失败
type AudioBackend interface {
	// Load 切换音频源并重置播放位置
	Load(src string)
	// Play 开始或恢复播放，失败时返回错误
	Play() error
	// Pause 暂停播放
	Pause()
}

// Notifier 播放状态变化的对外通知
// 生产实现把这些转成实时通道上的 update_activity / add_to_recent_plays
type Notifier interface {
	ActivityChanged(activity string)
	TrackPlayed(trackID string)
}

// Engine 播放引擎：当前曲目、有序队列、播放标志
// 当前项按入队实例的身份追踪，队列变动后索引现算，不做算术偏移
type Engine struct {
	mu    sync.Mutex
	queue Queue

	// currentID 当前条目的实例ID，空串表示无当前曲目
	currentID string
	isPlaying bool

	// loadedSrc 后端当前加载的音频源，用于判断是否需要重新加载
	loadedSrc string

	// playSeq 播放代次，每次启动或停止递增
	// 迟到的 Play 完成回调如果代次不匹配则直接丢弃
	playSeq uint64

	backend  AudioBackend
	notifier Notifier
	onError  func(track model.Track, err error)
}

// NewEngine 创建播放引擎
func NewEngine(backend AudioBackend, notifier Notifier) *Engine {
	return &Engine{
		backend:  backend,
		notifier: notifier,
	}
}

// SetErrorHandler 设置播放失败（重试后仍失败）时的回调
func (e *Engine) SetErrorHandler(fn func(track model.Track, err error)) {
	e.mu.Lock()
	e.onError = fn
	e.mu.Unlock()
}

// LoadQueue 整体替换队列
// 无当前曲目时默认指向第一项（不开始播放）；当前曲目在新队列中仍存在时
// 按身份重新定位；否则保持原数值位置（越界则收到新队尾），不隐式起停音频
func (e *Engine) LoadQueue(tracks []model.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()

	oldIdx := e.queue.IndexOfEntry(e.currentID)
	var curTrackID string
	if entry, ok := e.queue.At(oldIdx); ok {
		curTrackID = entry.Track.ID
	}

	e.queue.Replace(tracks)

	if e.queue.Len() == 0 {
		e.currentID = ""
		e.isPlaying = false
		return
	}

	if curTrackID == "" {
		// 之前没有当前曲目，默认指向队首，等调用方显式 Play
		entry, _ := e.queue.At(0)
		e.currentID = entry.ID
		return
	}

	if idx := e.queue.FirstIndexOfTrack(curTrackID); idx >= 0 {
		entry, _ := e.queue.At(idx)
		e.currentID = entry.ID
		return
	}

	// 当前曲目已不在新队列里，保持数值位置不变，越界则收到队尾
	if oldIdx < 0 || oldIdx >= e.queue.Len() {
		oldIdx = e.queue.Len() - 1
	}
	entry, _ := e.queue.At(oldIdx)
	e.currentID = entry.ID
}

// PlayTrack 播放指定曲目
// 曲目已在队列中则定位到它的第一个实例，否则追加入队
// 对已是当前曲目的重复调用视为恢复播放，不重新加载音频源
func (e *Engine) PlayTrack(track model.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var entry Entry
	if idx := e.queue.FirstIndexOfTrack(track.ID); idx >= 0 {
		entry, _ = e.queue.At(idx)
	} else {
		entry = e.queue.Append(track)
	}
	e.startEntry(entry)
}

// TogglePlay 切换播放/暂停；没有当前曲目时是空操作
func (e *Engine) TogglePlay() {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.queue.IndexOfEntry(e.currentID)
	entry, ok := e.queue.At(idx)
	if !ok {
		return // 无当前曲目，无从播放
	}

	if e.isPlaying {
		e.stopPlayback()
		return
	}

	// 恢复播放，同样上报活动并记一次最近播放
	e.startEntry(entry)
}

// Advance 前进到下一首（曲目播完或手动切歌）
// 已在最后一首时停止播放，位置保持不变，不回绕
func (e *Engine) Advance() {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.queue.IndexOfEntry(e.currentID)
	if next, ok := e.queue.At(idx + 1); ok {
		e.startEntry(next)
		return
	}
	e.stopPlayback()
}

// Retreat 后退到上一首，边界策略与 Advance 对称
func (e *Engine) Retreat() {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.queue.IndexOfEntry(e.currentID)
	if idx >= 1 {
		if prev, ok := e.queue.At(idx - 1); ok {
			e.startEntry(prev)
			return
		}
	}
	e.stopPlayback()
}

// Reorder 把 oldIndex 处的条目稳定移动到 newIndex
// 当前曲目按实例身份追踪，移动后无需任何索引修正
func (e *Engine) Reorder(oldIndex, newIndex int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue.Move(oldIndex, newIndex)
}

// RemoveFromQueue 删除第一个匹配曲目ID的条目
// 删到当前曲目时清空当前项并停止播放，不自动切到下一首，
// 由调用方显式选择下一步动作
func (e *Engine) RemoveFromQueue(trackID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.queue.RemoveFirstTrack(trackID)
	if !ok {
		return
	}
	if entry.ID == e.currentID {
		e.currentID = ""
		e.stopPlayback()
	}
}

// ========== 状态查询 ==========

// Current 返回当前曲目
func (e *Engine) Current() (model.Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.queue.At(e.queue.IndexOfEntry(e.currentID))
	if !ok {
		return model.Track{}, false
	}
	return entry.Track, true
}

// CurrentIndex 返回当前曲目在队列中的位置，无当前曲目时为 -1
func (e *Engine) CurrentIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.IndexOfEntry(e.currentID)
}

// IsPlaying 返回播放标志
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isPlaying
}

// Queue 返回队列内容的副本
func (e *Engine) Queue() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Entries()
}

// ========== 内部转移 ==========

// startEntry 把条目设为当前并开始播放（调用方持锁）
// 只有音频源实际变化时才重新加载，避免重复赋源造成的爆音
func (e *Engine) startEntry(entry Entry) {
	e.currentID = entry.ID
	e.isPlaying = true

	if entry.Track.AudioURL != e.loadedSrc {
		e.backend.Load(entry.Track.AudioURL)
		e.loadedSrc = entry.Track.AudioURL
	}
	e.dispatchPlay(entry.ID)

	e.notifier.ActivityChanged(playingActivity(entry.Track))
	e.notifier.TrackPlayed(entry.Track.ID)
}

// stopPlayback 停止播放并上报空闲（调用方持锁）
func (e *Engine) stopPlayback() {
	e.playSeq++ // 使未完成的播放回调失效
	if !e.isPlaying {
		return
	}
	e.isPlaying = false
	e.backend.Pause()
	e.notifier.ActivityChanged(activityIdle)
}

// dispatchPlay 异步触发后端播放（调用方持锁）
func (e *Engine) dispatchPlay(entryID string) {
	e.playSeq++
	seq := e.playSeq
	src := e.loadedSrc

	go func() {
		err := e.backend.Play()
		if err != nil {
			// 一次有界重试：重新加载后再播
			// 重试前确认代次未变，引擎已切到别的曲目时放弃，
			// 不能把旧音频源盖回后端
			e.mu.Lock()
			if seq != e.playSeq || entryID != e.currentID {
				e.mu.Unlock()
				return
			}
			e.backend.Load(src)
			e.mu.Unlock()
			err = e.backend.Play()
		}
		e.finishPlay(seq, entryID, err)
	}()
}

// finishPlay 应用一次播放尝试的结果
// 引擎已经切到别的曲目或新的播放代次时，迟到的结果直接丢弃
func (e *Engine) finishPlay(seq uint64, entryID string, err error) {
	e.mu.Lock()

	if seq != e.playSeq || entryID != e.currentID {
		e.mu.Unlock()
		return
	}
	if err == nil {
		e.mu.Unlock()
		return
	}

	// 重试后仍失败：回落到暂停态，错误对外可见
	e.isPlaying = false
	var track model.Track
	if entry, ok := e.queue.At(e.queue.IndexOfEntry(entryID)); ok {
		track = entry.Track
	}
	handler := e.onError
	e.notifier.ActivityChanged(activityIdle)
	e.mu.Unlock()

	logger.Warn("playback failed after retry",
		logger.ErrorField(err),
		logger.String("track", track.ID))
	if handler != nil {
		handler(track, err)
	}
}
