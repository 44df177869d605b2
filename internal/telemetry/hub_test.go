package telemetry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishSubscribe(t *testing.T) {
	h := NewHub(10)
	defer h.Stop()

	sub, err := h.Subscribe("us", 0)
	require.NoError(t, err)
	all, err := h.Subscribe("", 0)
	require.NoError(t, err)

	require.NoError(t, h.PublishDevice("us", Event{Type: "freeze"}))
	require.NoError(t, h.PublishDevice("other", Event{Type: "unfreeze"}))

	e := <-sub.Events
	assert.Equal(t, "freeze", e.Type)
	assert.Equal(t, int64(1), e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Len(t, sub.Events, 0)

	assert.Equal(t, "freeze", (<-all.Events).Type)
	assert.Equal(t, "unfreeze", (<-all.Events).Type)
}

func TestHub_MonotonicIDsPerDevice(t *testing.T) {
	h := NewHub(10)
	defer h.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.PublishDevice("a", Event{Type: "x"}))
	}
	require.NoError(t, h.PublishDevice("b", Event{Type: "x"}))

	a := h.Buffered("a")
	require.Len(t, a, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{a[0].ID, a[1].ID, a[2].ID})
	assert.Equal(t, int64(1), h.Buffered("b")[0].ID)
}

func TestHub_ReplayAfterLastID(t *testing.T) {
	h := NewHub(3)
	defer h.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, h.PublishDevice("us", Event{Type: "commandCompleted"}))
	}

	sub, err := h.Subscribe("us", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), (<-sub.Events).ID)
	assert.Equal(t, int64(5), (<-sub.Events).ID)

	// ring holds ids 3..5 only
	old, err := h.Subscribe("us", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), (<-old.Events).ID)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(1)
	defer h.Stop()

	sub, err := h.Subscribe("us", 0)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		require.NoError(t, h.PublishDevice("us", Event{Type: "x"}))
	}
	assert.Equal(t, int64(200-cap(sub.events)), sub.Dropped())
}

func TestHub_CloseAndStop(t *testing.T) {
	h := NewHub(5)

	sub, err := h.Subscribe("us", 0)
	require.NoError(t, err)
	sub.Close()
	sub.Close()
	_, open := <-sub.Events
	assert.False(t, open)

	other, err := h.Subscribe("", 0)
	require.NoError(t, err)
	h.Stop()
	h.Stop()
	_, open = <-other.Events
	assert.False(t, open)

	assert.Error(t, h.Publish(Event{Type: "x"}))
	_, err = h.Subscribe("us", 0)
	assert.Error(t, err)
}

func TestHub_ConcurrentPublish(t *testing.T) {
	h := NewHub(1000)
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = h.PublishDevice("us", Event{Type: "x"})
			}
		}()
	}
	wg.Wait()

	events := h.Buffered("us")
	require.Len(t, events, 400)
	seen := make(map[int64]bool)
	for _, e := range events {
		seen[e.ID] = true
	}
	assert.Len(t, seen, 400)
}

func TestHub_ConcurrentPublishKeepsBufferInIDOrder(t *testing.T) {
	h := NewHub(2000)
	defer h.Stop()

	all, err := h.Subscribe("us", 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = h.PublishDevice("us", Event{Type: "x"})
			}
		}()
	}
	wg.Wait()

	events := h.Buffered("us")
	require.Len(t, events, 800)
	for i, e := range events {
		require.Equal(t, int64(i+1), e.ID, "buffer position %d", i)
	}

	// subscribers see the same order as the buffer
	require.Len(t, all.Events, 800)
	for i := 0; i < 800; i++ {
		require.Equal(t, int64(i+1), (<-all.Events).ID)
	}
}
