package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
)

// 写流程状态常量
const (
	StatePending     = "pending"
	StateMediaStored = "media_stored"
	StatePersisted   = "persisted"
	StateCompensated = "compensated"
	StateFailed      = "failed"
)

// 事件常量
const (
	EventStoreMedia = "store_media"
	EventPersist    = "persist"
	EventFail       = "fail"
	EventCompensate = "compensate"
)

// WriteFlow 一次创建/更新请求的写流程：先存图片，再写库，写库失败时回滚图片
type WriteFlow struct {
	mu           sync.Mutex
	op           string
	fsm          *fsm.FSM
	mediaURL     string
	onTransition func(op, from, to string)
}

// NewWriteFlow 创建写流程，onTransition 可为 nil
func NewWriteFlow(op string, onTransition func(op, from, to string)) *WriteFlow {
	w := &WriteFlow{
		op:           op,
		onTransition: onTransition,
	}

	w.fsm = fsm.NewFSM(
		StatePending,
		fsm.Events{
			// 图片先于数据库写入
			{Name: EventStoreMedia, Src: []string{StatePending}, Dst: StateMediaStored},
			{Name: EventPersist, Src: []string{StatePending, StateMediaStored}, Dst: StatePersisted},

			// 失败路径
			{Name: EventFail, Src: []string{StatePending}, Dst: StateFailed},
			{Name: EventCompensate, Src: []string{StateMediaStored}, Dst: StateCompensated},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if w.onTransition != nil && e.Src != e.Dst {
					w.onTransition(w.op, e.Src, e.Dst)
				}
			},
		},
	)

	return w
}

func (w *WriteFlow) trigger(event string) error {
	if err := w.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("%s: trigger event %s: %w", w.op, event, err)
	}
	return nil
}

// MediaStored 图片已保存
func (w *WriteFlow) MediaStored(url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.trigger(EventStoreMedia); err != nil {
		return err
	}
	w.mediaURL = url
	return nil
}

// Persisted 数据库写入成功
func (w *WriteFlow) Persisted() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.trigger(EventPersist)
}

// Fail 未保存任何图片时的失败
func (w *WriteFlow) Fail() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.trigger(EventFail)
}

// Compensate 图片已保存但写库失败，返回需要删除的图片 URL
func (w *WriteFlow) Compensate() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.trigger(EventCompensate); err != nil {
		return "", err
	}
	return w.mediaURL, nil
}

// NeedsCompensation 是否有已保存但未落库的图片
func (w *WriteFlow) NeedsCompensation() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fsm.Current() == StateMediaStored
}

// MediaURL 已保存的图片 URL
func (w *WriteFlow) MediaURL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mediaURL
}

// Can 检查是否可以触发事件
func (w *WriteFlow) Can(event string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fsm.Can(event)
}

// Current 当前状态
func (w *WriteFlow) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fsm.Current()
}
