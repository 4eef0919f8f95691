package ringbuffer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func produceInt(r *Ring[int], v int) {
	r.Produce(func(slot *int) { *slot = v })
}

func consumeInt(t *testing.T, r *Ring[int]) int {
	t.Helper()
	var got int
	ok := r.Consume(func(slot *int) { got = *slot })
	require.True(t, ok, "consume returned false")
	return got
}

func TestProduceOverflowDropsOldest(t *testing.T) {
	for n := 1; n <= 10; n++ {
		t.Run(fmt.Sprintf("capacity_%d", n), func(t *testing.T) {
			r := New[int](n)

			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i <= n; i++ {
					produceInt(r, i)
				}
			}()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("producer blocked")
			}

			assert.Equal(t, n, r.Len())
			assert.True(t, r.Full())
			assert.Equal(t, uint64(1), r.Stats().Dropped)

			for want := 1; want <= n; want++ {
				assert.Equal(t, want, consumeInt(t, r))
			}
			assert.True(t, r.Empty())
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestDefaultCapacity(t *testing.T) {
	r := New[int](0)
	assert.Equal(t, DefaultCapacity, r.Cap())
}

func TestLenWrapsAround(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 3; i++ {
		produceInt(r, i)
	}
	consumeInt(t, r)
	consumeInt(t, r)
	produceInt(r, 3)
	produceInt(r, 4)
	// head has wrapped past tail's index
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 2, consumeInt(t, r))
	assert.Equal(t, 3, consumeInt(t, r))
	assert.Equal(t, 4, consumeInt(t, r))
}

func TestConsumeBlocksUntilProduce(t *testing.T) {
	r := New[int](2)
	got := make(chan int, 1)
	go func() {
		r.Consume(func(v *int) { got <- *v })
	}()

	select {
	case <-got:
		t.Fatal("consume returned on an empty buffer")
	case <-time.After(50 * time.Millisecond):
	}

	produceInt(r, 42)
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken by produce")
	}
}

func TestQuitWakesBlockedConsumer(t *testing.T) {
	r := New[int](2)
	result := make(chan bool, 1)
	go func() {
		result <- r.Consume(func(*int) { t.Error("use called after quit") })
	}()

	time.Sleep(20 * time.Millisecond)
	r.Quit()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("quit did not wake the consumer")
	}

	// Further calls return immediately.
	assert.False(t, r.Consume(func(*int) {}))
	produceInt(r, 1)
	assert.Equal(t, 0, r.Len())
}

func TestProducerNotBlockedDuringConsume(t *testing.T) {
	r := New[int](2)
	produceInt(r, 0)

	inUse := make(chan struct{})
	release := make(chan struct{})
	go r.Consume(func(*int) {
		close(inUse)
		<-release
	})
	<-inUse

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 5; i++ {
			produceInt(r, i)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer blocked while the consumer was busy")
	}
	close(release)

	assert.Equal(t, 4, consumeInt(t, r))
	assert.Equal(t, 5, consumeInt(t, r))
}

func TestConsumerRecordNotOverwritten(t *testing.T) {
	r := New[[]int](1)
	r.ForEach(func(s *[]int) { *s = make([]int, 4) })
	r.Produce(func(s *[]int) { fillAll(*s, 7) })

	inUse := make(chan struct{})
	release := make(chan struct{})
	seen := make(chan []int, 1)
	go r.Consume(func(s *[]int) {
		close(inUse)
		<-release
		seen <- append([]int(nil), (*s)...)
	})
	<-inUse
	for i := 0; i < 3; i++ {
		r.Produce(func(s *[]int) { fillAll(*s, 9) })
	}
	close(release)

	select {
	case got := <-seen:
		assert.Equal(t, []int{7, 7, 7, 7}, got)
	case <-time.After(time.Second):
		t.Fatal("consumer did not finish")
	}
	assert.Equal(t, 1, r.Len())
}

func TestForEachDefersBusyRecord(t *testing.T) {
	r := New[[]uint16](3)
	produce := func() { r.Produce(func(s *[]uint16) { *s = (*s)[:0] }) }
	produce()

	inUse := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		r.Consume(func(s *[]uint16) {
			close(inUse)
			<-release
		})
	}()
	<-inUse

	var mu sync.Mutex
	visited := 0
	r.ForEach(func(s *[]uint16) {
		mu.Lock()
		visited++
		mu.Unlock()
		*s = make([]uint16, 10)
	})
	mu.Lock()
	assert.Equal(t, 3, visited, "busy record must be skipped until released")
	mu.Unlock()

	close(release)
	<-finished

	mu.Lock()
	assert.Equal(t, 4, visited)
	mu.Unlock()
	r.ForEach(func(s *[]uint16) { assert.Len(t, *s, 10) })
}

func TestConcurrentProduceConsume(t *testing.T) {
	const frames = 2000
	r := New[int](8)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < frames; i++ {
			produceInt(r, i)
		}
	}()

	last := -1
	received := 0
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for r.Consume(func(v *int) {
			if *v <= last {
				t.Errorf("out of order: %d after %d", *v, last)
			}
			last = *v
			received++
		}) {
		}
	}()

	wg.Wait()
	require.Eventually(t, r.Empty, 2*time.Second, time.Millisecond)
	r.Quit()
	<-consumerDone

	stats := r.Stats()
	assert.Equal(t, uint64(frames), stats.Produced)
	assert.Equal(t, stats.Produced, stats.Consumed+stats.Dropped)
	assert.Equal(t, uint64(received), stats.Consumed)
	assert.Equal(t, frames-1, last)
}

func fillAll(s []int, v int) {
	for i := range s {
		s[i] = v
	}
}
