package player

// QueueReconciler 把界面上的拖拽手势映射为引擎的队列移动
// 纯转换层，自身不持有任何队列状态，队列的唯一事实源是引擎
type QueueReconciler struct {
	engine *Engine
}

// NewQueueReconciler 创建队列同步器
func NewQueueReconciler(engine *Engine) *QueueReconciler {
	return &QueueReconciler{engine: engine}
}

// OnDragEnd 处理一次拖拽落点
// 按拖拽开始和结束时的条目实例ID定位，拖拽期间队列变动也不会错位
func (r *QueueReconciler) OnDragEnd(activeEntryID, overEntryID string) {
	if activeEntryID == "" || overEntryID == "" || activeEntryID == overEntryID {
		return
	}

	entries := r.engine.Queue()
	oldIndex, newIndex := -1, -1
	for i, e := range entries {
		if e.ID == activeEntryID {
			oldIndex = i
		}
		if e.ID == overEntryID {
			newIndex = i
		}
	}
	if oldIndex < 0 || newIndex < 0 {
		return
	}

	r.engine.Reorder(oldIndex, newIndex)
}

// OnMove 按位置直接下发一次移动
func (r *QueueReconciler) OnMove(sourcePosition, targetPosition int) {
	r.engine.Reorder(sourcePosition, targetPosition)
}
