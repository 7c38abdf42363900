package clawless

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMessageQueueFIFOOrder(t *testing.T) {
	q := NewMessageQueue()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := q.Enqueue(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("enqueue %d: %v", n, err)
			}
		}(i)
		// Serialize submission so FIFO order is deterministic for this test.
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 5 {
		t.Fatalf("expected 5 processed items, got %d", len(order))
	}
	for i, n := range order {
		if i != n {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestMessageQueueNoInternalParallelism(t *testing.T) {
	q := NewMessageQueue()

	var active int32Counter
	var maxActive int32Counter

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Enqueue(context.Background(), func(ctx context.Context) error {
				active.inc()
				if cur := active.get(); cur > maxActive.get() {
					maxActive.set(cur)
				}
				time.Sleep(2 * time.Millisecond)
				active.dec()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxActive.get() > 1 {
		t.Fatalf("expected at most 1 concurrently active item, saw %d", maxActive.get())
	}
}

func TestMessageQueueReturnsProcessError(t *testing.T) {
	q := NewMessageQueue()
	wantErr := errStub("boom")
	err := q.Enqueue(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestMessageQueueLen(t *testing.T) {
	q := NewMessageQueue()
	release := make(chan struct{})
	started := make(chan struct{})

	go q.Enqueue(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	go q.Enqueue(context.Background(), func(ctx context.Context) error { return nil })
	time.Sleep(10 * time.Millisecond)

	if l := q.Len(); l != 1 {
		t.Fatalf("expected queue len 1 while first item in flight, got %d", l)
	}
	close(release)
}

type errStub string

func (e errStub) Error() string { return string(e) }

type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *int32Counter) dec() {
	c.mu.Lock()
	c.n--
	c.mu.Unlock()
}

func (c *int32Counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *int32Counter) set(v int) {
	c.mu.Lock()
	if v > c.n {
		c.n = v
	}
	c.mu.Unlock()
}
