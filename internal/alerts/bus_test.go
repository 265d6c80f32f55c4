package alerts

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func recv(t *testing.T, sub *Subscription) string {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case msg := <-sub.C():
		t.Fatalf("unexpected message %q", msg)
	default:
	}
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(10, zap.NewNop())
	assert.NotPanics(t, func() { bus.Publish("blocked:x") })
	assert.Equal(t, 0, bus.Subscribers())
}

func TestBus_FanOutInOrder(t *testing.T) {
	bus := NewBus(10, zap.NewNop())
	a := bus.Subscribe(context.Background())
	b := bus.Subscribe(context.Background())
	require.Equal(t, 2, bus.Subscribers())

	bus.Publish("one")
	bus.Publish("two")
	bus.Publish("three")

	for _, sub := range []*Subscription{a, b} {
		assert.Equal(t, "one", recv(t, sub))
		assert.Equal(t, "two", recv(t, sub))
		assert.Equal(t, "three", recv(t, sub))
	}
}

func TestBus_TwoSubscribersReceiveOnce(t *testing.T) {
	bus := NewBus(10, zap.NewNop())
	a := bus.Subscribe(context.Background())
	b := bus.Subscribe(context.Background())

	bus.Publish("blocked:x")

	assert.Equal(t, "blocked:x", recv(t, a))
	assert.Equal(t, "blocked:x", recv(t, b))
	assertEmpty(t, a)
	assertEmpty(t, b)
}

func TestBus_OnlyMessagesAfterSubscribe(t *testing.T) {
	bus := NewBus(10, zap.NewNop())
	bus.Publish("early")

	sub := bus.Subscribe(context.Background())
	bus.Publish("late")

	assert.Equal(t, "late", recv(t, sub))
	assertEmpty(t, sub)
}

func TestBus_SlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus(3, zap.NewNop())
	slow := bus.Subscribe(context.Background())

	for i := 1; i <= 5; i++ {
		bus.Publish(fmt.Sprintf("m%d", i))
	}

	assert.Equal(t, "m3", recv(t, slow))
	assert.Equal(t, "m4", recv(t, slow))
	assert.Equal(t, "m5", recv(t, slow))
	assertEmpty(t, slow)
	assert.Equal(t, uint64(2), slow.Dropped())
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus(1, zap.NewNop())
	_ = bus.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			bus.Publish("flood")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBus_CancelOneSubscriber(t *testing.T) {
	bus := NewBus(10, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	leaving := bus.Subscribe(ctx)
	staying := bus.Subscribe(context.Background())

	cancel()
	select {
	case <-leaving.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not ended by context")
	}
	assert.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish("after")
	assert.Equal(t, "after", recv(t, staying))

	_, ok := <-leaving.C()
	assert.False(t, ok)
}

func TestSubscription_CloseIdempotent(t *testing.T) {
	bus := NewBus(10, zap.NewNop())
	sub := bus.Subscribe(context.Background())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.Subscribers())

	bus.Publish("ignored")
	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(10, zap.NewNop())
	sub := bus.Subscribe(context.Background())

	bus.Close()
	bus.Close()

	<-sub.Done()
	assert.Equal(t, 0, bus.Subscribers())

	late := bus.Subscribe(context.Background())
	_, ok := <-late.C()
	assert.False(t, ok)
	assert.NotPanics(t, func() { bus.Publish("x") })
}

func TestBus_ConcurrentPublishers(t *testing.T) {
	bus := NewBus(1000, nil)
	sub := bus.Subscribe(context.Background())

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				bus.Publish("msg")
			}
		}()
	}
	wg.Wait()

	assert.Len(t, sub.C(), 400)
	assert.Equal(t, uint64(0), sub.Dropped())
}

func TestNewBus_DefaultBuffer(t *testing.T) {
	bus := NewBus(0, nil)
	assert.Equal(t, DefaultBufferSize, bus.bufferSize)
}
