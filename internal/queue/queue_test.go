package queue

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		q, err := New[int](c)
		assert.Nil(t, q)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
	}
}

func TestFIFOOrder(t *testing.T) {
	q, err := New[int](4)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, q.TryPush(i))
	}
	for i := 0; i < 4; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestWrapAround(t *testing.T) {
	q, err := New[int](3)
	require.NoError(t, err)

	next := 0
	want := 0
	for round := 0; round < 10; round++ {
		require.NoError(t, q.TryPush(next))
		next++
		require.NoError(t, q.TryPush(next))
		next++
		for i := 0; i < 2; i++ {
			v, ok := q.Pop()
			require.True(t, ok)
			assert.Equal(t, want, v)
			want++
		}
	}
}

func TestTryPushFull(t *testing.T) {
	q, err := New[string](2)
	require.NoError(t, err)

	require.NoError(t, q.TryPush("a"))
	require.NoError(t, q.TryPush("b"))
	assert.ErrorIs(t, q.TryPush("c"), ErrFull)
	assert.Equal(t, 2, q.Len())

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.NoError(t, q.TryPush("c"))
}

func TestPopBlocksUntilPush(t *testing.T) {
	q, err := New[int](1)
	require.NoError(t, err)

	got := make(chan int, 1)
	go func() {
		v, ok := q.Pop()
		if ok {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, q.TryPush(42))
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after push")
	}
}

func TestCloseWakesAllWaiters(t *testing.T) {
	q, err := New[int](1)
	require.NoError(t, err)

	const waiters = 8
	var wg sync.WaitGroup
	var closedSeen atomic.Int32
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := q.Pop(); !ok {
				closedSeen.Add(1)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiters still blocked after Close")
	}
	assert.Equal(t, int32(waiters), closedSeen.Load())
}

func TestCloseDeliversBufferedItems(t *testing.T) {
	q, err := New[int](4)
	require.NoError(t, err)

	require.NoError(t, q.TryPush(1))
	require.NoError(t, q.TryPush(2))
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.ErrorIs(t, q.TryPush(3), ErrClosed)

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestDrain(t *testing.T) {
	q, err := New[int](4)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.TryPush(i))
	}
	assert.Equal(t, []int{0, 1, 2}, q.Drain())
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

// Producers and consumers race on a small queue; every accepted item must
// come out exactly once and the length must never exceed capacity.
func TestConcurrentPushPop(t *testing.T) {
	const (
		capacity  = 8
		producers = 8
		consumers = 8
		perProd   = 2000
	)
	q, err := New[int](capacity)
	require.NoError(t, err)

	seen := make([]atomic.Int32, producers*perProd)
	var accepted, rejected atomic.Int64
	var overCap atomic.Bool

	var consumersWg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		consumersWg.Add(1)
		go func() {
			defer consumersWg.Done()
			for {
				v, ok := q.Pop()
				if !ok {
					return
				}
				seen[v].Add(1)
				if q.Len() > capacity {
					overCap.Store(true)
				}
			}
		}()
	}

	var producersWg sync.WaitGroup
	for p := 0; p < producers; p++ {
		producersWg.Add(1)
		go func(p int) {
			defer producersWg.Done()
			r := rand.New(rand.NewSource(int64(p)))
			for i := 0; i < perProd; i++ {
				if r.Intn(4) == 0 {
					time.Sleep(time.Duration(r.Intn(50)) * time.Microsecond)
				}
				if err := q.TryPush(p*perProd + i); err != nil {
					assert.ErrorIs(t, err, ErrFull)
					rejected.Add(1)
					continue
				}
				accepted.Add(1)
			}
		}(p)
	}

	producersWg.Wait()
	q.Close()
	consumersWg.Wait()

	assert.False(t, overCap.Load())
	assert.Equal(t, int64(producers*perProd), accepted.Load()+rejected.Load())

	var delivered int64
	for i := range seen {
		n := seen[i].Load()
		require.LessOrEqual(t, n, int32(1), "item %d delivered %d times", i, n)
		delivered += int64(n)
	}
	assert.Equal(t, accepted.Load(), delivered)
}
