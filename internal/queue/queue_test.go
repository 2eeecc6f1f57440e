package queue

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inputEvent struct {
	Code  uint16
	Value int32
}

func TestEventQueue(t *testing.T) {
	assert := assert.New(t)

	t.Run("Empty Queue", func(t *testing.T) {
		q := NewEventQueue[inputEvent](4, nil)

		assert.True(q.IsEmpty())
		assert.Equal(0, q.Len())
		assert.Equal(4, q.Cap())
		_, ok := q.TryPop()
		assert.False(ok)
	})

	t.Run("FIFO order", func(t *testing.T) {
		q := NewEventQueue[inputEvent](4, nil)

		assert.True(q.TryPush(inputEvent{304, 1}))
		assert.True(q.TryPush(inputEvent{305, 1}))
		assert.Equal(2, q.Len())

		ev, ok := q.TryPop()
		assert.True(ok)
		assert.Equal(inputEvent{304, 1}, ev)

		ev, ok = q.TryPop()
		assert.True(ok)
		assert.Equal(inputEvent{305, 1}, ev)
		assert.True(q.IsEmpty())
	})

	t.Run("Overflow drops newest", func(t *testing.T) {
		var dropped []inputEvent
		q := NewEventQueue(3, func(ev inputEvent) { dropped = append(dropped, ev) })

		for i := 0; i < 4; i++ {
			accepted := q.TryPush(inputEvent{Code: uint16(300 + i), Value: 1})
			assert.Equal(i < 3, accepted)
		}

		assert.Equal(uint64(1), q.Dropped())
		assert.Equal([]inputEvent{{303, 1}}, dropped)

		var got []uint16
		n := q.Drain(func(ev inputEvent) { got = append(got, ev.Code) })
		assert.Equal(3, n)
		assert.Equal([]uint16{300, 301, 302}, got)
	})

	t.Run("Concurrency", func(t *testing.T) {
		q := NewEventQueue[int](1000, nil)

		var wg sync.WaitGroup
		for i := 0; i < 1200; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				q.TryPush(i)
			}(i)
		}
		wg.Wait()

		assert.Equal(1000, q.Len())
		assert.Equal(uint64(200), q.Dropped())

		seen := make(map[int]struct{})
		var mu sync.Mutex
		wg.Add(1000)
		for i := 0; i < 1000; i++ {
			go func() {
				defer wg.Done()
				v, ok := q.TryPop()
				if ok {
					mu.Lock()
					seen[v] = struct{}{}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.True(q.IsEmpty())
		assert.Len(seen, 1000)
	})
}

func TestLatestQueue(t *testing.T) {
	require := require.New(t)

	t.Run("Empty Queue", func(t *testing.T) {
		q := NewLatestQueue[int](4)
		_, ok := q.Latest()
		require.False(ok)
	})

	t.Run("Newest wins", func(t *testing.T) {
		q := NewLatestQueue[string](10)
		q.Push("v1")
		q.Push("v2")
		q.Push("v3")

		v, ok := q.Latest()
		require.True(ok)
		require.Equal("v3", v)
		require.True(q.IsEmpty())

		_, ok = q.Latest()
		require.False(ok)
	})

	t.Run("Overflow keeps newest", func(t *testing.T) {
		q := NewLatestQueue[int](2)
		for i := 1; i <= 5; i++ {
			q.Push(i)
		}

		require.Equal(2, q.Len())
		require.Equal(uint64(3), q.Overwritten())

		v, ok := q.Latest()
		require.True(ok)
		require.Equal(5, v)
	})

	t.Run("Concurrent producers", func(t *testing.T) {
		q := NewLatestQueue[int](8)

		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				q.Push(i)
			}(i)
		}
		wg.Wait()

		require.LessOrEqual(q.Len(), 8)
		_, ok := q.Latest()
		require.True(ok)
	})
}

func BenchmarkEventQueue_100(b *testing.B) {
	ctx := context.Background()
	q := NewEventQueue[int](128, nil)

	b.ResetTimer()
	for i := 0; i <= b.N; i++ {
		stopCh := make(chan struct{})
		go func(ctx context.Context) {
			for {
				select {
				case <-ctx.Done():
					return
				default:
					item, ok := q.TryPop()
					if ok && item == 100 {
						close(stopCh)
						return
					}
				}
			}
		}(ctx)

		for j := 0; j < 100; j++ {
			for !q.TryPush(j + 1) {
			}
		}
		<-stopCh
	}
	b.StopTimer()
}

func BenchmarkLatestQueue_Push(b *testing.B) {
	q := NewLatestQueue[int](16)
	for i := 0; i < b.N; i++ {
		q.Push(i)
		if i%10 == 0 {
			_, _ = q.Latest()
		}
	}
}
