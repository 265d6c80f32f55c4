package alerts

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultBufferSize is the number of pending messages kept per subscriber.
const DefaultBufferSize = 100

// Bus fans published messages out to independent subscriptions.
type Bus struct {
	mu         sync.Mutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
	closed     bool
	logger     *zap.Logger
}

// NewBus creates a bus whose subscriptions buffer up to bufferSize messages.
func NewBus(bufferSize int, logger *zap.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Publish delivers msg to every current subscriber. With no subscribers the
// message is discarded.
func (b *Bus) Publish(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		sub.offer(msg)
	}
}

// Subscribe registers a new subscription. It ends when ctx is done, when
// Close is called on it, or when the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:   b.nextID,
		bus:  b,
		ch:   make(chan string, b.bufferSize),
		done: make(chan struct{}),
	}

	if b.closed {
		sub.closeLocked()
		return sub
	}
	b.subs[sub.id] = sub

	b.logger.Debug("alert subscriber added",
		zap.Uint64("subscriber", sub.id),
		zap.Int("subscribers", len(b.subs)))

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Close()
			case <-sub.done:
			}
		}()
	}

	return sub
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription. Later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.closeLocked()
		delete(b.subs, id)
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	sub.closeLocked()

	b.logger.Debug("alert subscriber removed",
		zap.Uint64("subscriber", sub.id),
		zap.Uint64("dropped", sub.Dropped()),
		zap.Int("subscribers", len(b.subs)))
}

// Subscription is one consumer's view of the bus.
type Subscription struct {
	id      uint64
	bus     *Bus
	ch      chan string
	done    chan struct{}
	closed  bool
	dropped atomic.Uint64
}

// C returns the message stream. It is closed when the subscription ends.
func (s *Subscription) C() <-chan string {
	return s.ch
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Dropped returns how many messages this subscriber lost to overflow.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.remove(s)
}

// offer enqueues msg, evicting the oldest pending message when the buffer is
// full. Caller holds bus.mu, so only the consumer races with us.
func (s *Subscription) offer(msg string) {
	for {
		select {
		case s.ch <- msg:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

// closeLocked must be called with bus.mu held.
func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}
