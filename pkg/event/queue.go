package event

import "github.com/eapache/queue"

// Queue 是单个服务的待投递事件队列，入队顺序即投递顺序。
//
// 零值可直接使用。Queue 不是并发安全的，只在清扫协程中访问。
type Queue struct {
	items    *queue.Queue
	listener Listener

	// batch 为正在投递的一批事件，仅在 Flush 期间非 nil
	batch *queue.Queue
}

// NewQueue 创建一个绑定到 l 的事件队列，l 可以为 nil。
func NewQueue(l Listener) *Queue {
	q := &Queue{}
	q.Bind(l)
	return q
}

// Bind 设置监听者，传入 nil 表示解除绑定。
func (q *Queue) Bind(l Listener) {
	if f, ok := l.(ListenerFunc); ok && f == nil {
		l = nil
	}
	q.listener = l
}

// Listener 返回当前绑定的监听者。
func (q *Queue) Listener() Listener {
	return q.listener
}

// Push 把事件追加到队尾。
func (q *Queue) Push(ev Event) {
	if q.items == nil {
		q.items = queue.New()
	}
	q.items.Add(ev)
}

// Len 返回待投递事件数量，包含本次 Flush 尚未投递的部分。
func (q *Queue) Len() int {
	n := 0
	if q.items != nil {
		n += q.items.Length()
	}
	if q.batch != nil {
		n += q.batch.Length()
	}
	return n
}

// Flush 按顺序投递开始时已在队列中的全部事件，返回投递数量。
// 投递过程中新入队的事件留到下一次 Flush；投递中调用 Discard 会终止本次 Flush。
// 投递中的重入调用直接返回 0。
func (q *Queue) Flush() int {
	if q.batch != nil || q.items == nil || q.items.Length() == 0 {
		return 0
	}
	q.batch, q.items = q.items, nil
	defer func() { q.batch = nil }()

	delivered := 0
	for q.batch != nil && q.batch.Length() > 0 {
		ev := q.batch.Remove().(Event)
		delivered++
		q.Dispatch(ev)
	}
	return delivered
}

// Discard 丢弃全部待投递事件，返回丢弃数量。
func (q *Queue) Discard() int {
	n := q.Len()
	q.items = nil
	if q.batch != nil {
		q.batch = queue.New()
	}
	return n
}

// Dispatch 立即把事件交给监听者，未绑定时静默丢弃。
func (q *Queue) Dispatch(ev Event) {
	if q.listener == nil {
		return
	}
	q.listener.OnEvent(ev)
}
