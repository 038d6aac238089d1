package broadcast

import (
	"sync"

	"OddsSync/internal/model"

	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 16

// Broadcaster 进程内发布/订阅通道。更新完成后由调度侧Publish，
// 读者订阅后收到feed-updated/cycle-completed事件刷新自己的视图，无需轮询提供商。
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint64]chan model.BroadcastEvent
	nextID uint64
	closed bool
	logger *logrus.Logger
}

// NewBroadcaster 创建Broadcaster
func NewBroadcaster(logger *logrus.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[uint64]chan model.BroadcastEvent),
		logger: logger,
	}
}

// Subscribe 返回事件通道和取消函数；取消后通道会被关闭
func (b *Broadcaster) Subscribe() (<-chan model.BroadcastEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan model.BroadcastEvent, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish 向所有订阅者投递事件；订阅者缓冲满时丢弃，发布方绝不阻塞
func (b *Broadcaster) Publish(event model.BroadcastEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.WithFields(logrus.Fields{
				"type":     event.Type,
				"feed_key": event.FeedKey,
			}).Warn("订阅者缓冲已满，丢弃广播事件")
		}
	}
}

// Close 关闭所有订阅通道，之后的Publish为no-op
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
