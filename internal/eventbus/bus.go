package eventbus

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed 总线已关闭
var ErrClosed = errors.New("event bus closed")

const (
	defaultBufferSize = 64
	seenCapacity      = 1024
)

// Handler 事件处理函数
type Handler func(ctx context.Context, e Event)

// Bus 发布/订阅契约
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(handler Handler, names ...Name) (unsubscribe func())
}

type subscriber struct {
	id      int
	names   map[Name]struct{}
	handler Handler
	ch      chan Event
	done    chan struct{}
}

func (s *subscriber) wants(name Name) bool {
	if len(s.names) == 0 {
		return true
	}
	_, ok := s.names[name]
	return ok
}

// LocalBus 进程内总线
// 每个订阅者一个缓冲队列和一个 goroutine，队列满时丢弃并告警（尽力投递）
// 相同 ID 的事件只投递一次
type LocalBus struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
	seen        *seenSet
	bufferSize  int
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewLocalBus 创建进程内总线
func NewLocalBus(bufferSize int, logger *zap.Logger) *LocalBus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalBus{
		subscribers: make(map[int]*subscriber),
		seen:        newSeenSet(seenCapacity),
		bufferSize:  bufferSize,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Subscribe 订阅事件；names 为空表示订阅全部
// 返回的取消函数会等待处理中的事件结束，不能在 handler 内调用
func (b *LocalBus) Subscribe(handler Handler, names ...Name) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	sub := &subscriber{
		id:      b.nextID,
		names:   make(map[Name]struct{}, len(names)),
		handler: handler,
		ch:      make(chan Event, b.bufferSize),
		done:    make(chan struct{}),
	}
	for _, n := range names {
		sub.names[n] = struct{}{}
	}
	b.nextID++
	b.subscribers[sub.id] = sub

	b.wg.Add(1)
	go b.run(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subscribers[sub.id]; ok {
				delete(b.subscribers, sub.id)
				close(sub.ch)
			}
			b.mu.Unlock()
			<-sub.done
		})
	}
}

func (b *LocalBus) run(sub *subscriber) {
	defer b.wg.Done()
	defer close(sub.done)
	for e := range sub.ch {
		sub.handler(b.ctx, e)
	}
}

// Publish 发布事件；重复 ID 静默忽略
func (b *LocalBus) Publish(_ context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if e.ID != "" {
		if b.seen.has(e.ID) {
			b.logger.Debug("Duplicate bus event ignored",
				zap.String("event_id", e.ID),
				zap.String("name", string(e.Name)),
			)
			return nil
		}
		b.seen.add(e.ID)
	}

	for _, sub := range b.subscribers {
		if !sub.wants(e.Name) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.logger.Warn("Subscriber queue full, dropping bus event",
				zap.String("event_id", e.ID),
				zap.String("name", string(e.Name)),
			)
		}
	}
	return nil
}

// Close 关闭总线，等待已入队事件处理完毕
func (b *LocalBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.cancel()
}

// seenSet 有界的已见事件ID集合
type seenSet struct {
	capacity int
	order    []string
	items    map[string]struct{}
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{capacity: capacity, items: make(map[string]struct{}, capacity)}
}

func (s *seenSet) add(id string) {
	if len(s.order) >= s.capacity {
		delete(s.items, s.order[0])
		s.order = s.order[1:]
	}
	s.order = append(s.order, id)
	s.items[id] = struct{}{}
}

func (s *seenSet) has(id string) bool {
	_, ok := s.items[id]
	return ok
}
