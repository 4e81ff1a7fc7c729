package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_PublishSubscribe(t *testing.T) {
	b := NewBroadcaster[int](4)
	first := b.Subscribe()
	second := b.Subscribe()
	assert.Equal(t, 2, b.Subscribers())

	b.Publish(7)

	assert.Equal(t, 7, <-first)
	assert.Equal(t, 7, <-second)
}

func TestBroadcaster_DropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster[int](1)
	ch := b.Subscribe()

	b.Publish(1)
	b.Publish(2) // buffer is full, dropped

	assert.Equal(t, 1, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %d", v)
	default:
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster[string](0)
	ch := b.Subscribe()

	b.Unsubscribe(ch)
	_, ok := <-ch
	require.False(t, ok, "channel must be closed")
	assert.Equal(t, 0, b.Subscribers())

	// second unsubscribe is a no-op
	b.Unsubscribe(ch)
	b.Publish("ignored")
}

func TestBroadcaster_NilPublish(t *testing.T) {
	var b *Broadcaster[int]
	assert.NotPanics(t, func() { b.Publish(1) })
}

func TestLatestBroadcaster_KeepsNewest(t *testing.T) {
	b := NewLatestBroadcaster[int]()
	ch := b.Subscribe()

	for i := 1; i <= 200; i++ {
		b.Publish(i)
	}

	assert.Equal(t, 200, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %d", v)
	default:
	}

	b.Publish(201)
	assert.Equal(t, 201, <-ch)
}

func TestLatestBroadcaster_ConcurrentReader(t *testing.T) {
	b := NewLatestBroadcaster[int]()
	ch := b.Subscribe()

	const last = 5000
	done := make(chan int)
	go func() {
		seen := 0
		for v := range ch {
			assert.Greater(t, v, seen)
			seen = v
			if v == last {
				break
			}
		}
		done <- seen
	}()

	for i := 1; i <= last; i++ {
		b.Publish(i)
	}

	assert.Equal(t, last, <-done)
}
