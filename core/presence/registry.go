package presence

import (
	"sort"
	"sync"
	"time"
)

// Entry 一条在线状态记录，connectionId 是所有权键
// 同一用户多开（多标签页）时会存在多条记录
type Entry struct {
	ConnID    string
	UserID    string
	Activity  string
	UpdatedAt time.Time

	// seq 单调写序号，同一用户多条记录比较新旧时用它，不依赖时钟精度
	seq uint64
}

// Registry 在线状态注册表
// 显式构造、按实例注入，不做包级单例，方便多实例测试
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry // connID -> entry
	seq     uint64
}

// NewRegistry 创建在线状态注册表
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// Connect 登记一条连接，初始活动为 Idle
// 重复登记同一 connID 时静默覆盖，后写者生效
func (r *Registry) Connect(connID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.entries[connID] = &Entry{
		ConnID:    connID,
		UserID:    userID,
		Activity:  "Idle",
		UpdatedAt: time.Now(),
		seq:       r.seq,
	}
}

// Disconnect 移除一条连接的记录
// 返回被移除记录的用户ID、该用户是否已无其余连接、以及是否真的发生了移除
func (r *Registry) Disconnect(connID string) (userID string, last bool, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[connID]
	if !ok {
		return "", false, false
	}
	delete(r.entries, connID)

	for _, e := range r.entries {
		if e.UserID == entry.UserID {
			return entry.UserID, false, true
		}
	}
	return entry.UserID, true, true
}

// SetActivity 更新指定连接的活动状态
// connID 未知时静默忽略，过期连接的事件不应干扰广播循环
func (r *Registry) SetActivity(connID, activity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[connID]; ok {
		r.seq++
		entry.Activity = activity
		entry.UpdatedAt = time.Now()
		entry.seq = r.seq
	}
}

// UserOf 返回连接对应的用户ID，未登记时返回空串
func (r *Registry) UserOf(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.entries[connID]; ok {
		return entry.UserID
	}
	return ""
}

// ConnectionCount 返回某用户当前的连接数
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.UserID == userID {
			n++
		}
	}
	return n
}

// Snapshot 返回当前去重后的在线用户列表和 userID -> 活动 的映射
// 同一用户多连接时取最近写入的活动，后写者生效，不做聚合
func (r *Registry) Snapshot() ([]string, map[string]string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	latest := make(map[string]*Entry)
	for _, e := range r.entries {
		if cur, ok := latest[e.UserID]; !ok || e.seq > cur.seq {
			latest[e.UserID] = e
		}
	}

	users := make([]string, 0, len(latest))
	activities := make(map[string]string, len(latest))
	for userID, e := range latest {
		users = append(users, userID)
		activities[userID] = e.Activity
	}
	sort.Strings(users)

	return users, activities
}
