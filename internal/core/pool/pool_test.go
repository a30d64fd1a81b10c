package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitDeliversResult(t *testing.T) {
	p := New(2)

	resCh, err := p.Submit(context.Background(), func(ctx context.Context) (string, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	res := <-resCh
	if res.Err != nil {
		t.Errorf("Expected no error, got %v", res.Err)
	}
	if res.Value != "done" {
		t.Errorf("Expected done, got %q", res.Value)
	}
}

func TestBoundedConcurrency(t *testing.T) {
	const size = 3
	p := New(size)

	var current, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resCh, err := p.Submit(context.Background(), func(ctx context.Context) (string, error) {
				n := current.Add(1)
				for {
					prev := peak.Load()
					if n <= prev || peak.CompareAndSwap(prev, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				current.Add(-1)
				return "", nil
			})
			if err != nil {
				t.Errorf("Submit failed: %v", err)
				return
			}
			<-resCh
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > size {
		t.Errorf("Expected at most %d concurrent tasks, saw %d", size, got)
	}
}

func TestSubmitRespectsContext(t *testing.T) {
	p := New(1)

	block := make(chan struct{})
	p.Submit(context.Background(), func(ctx context.Context) (string, error) {
		<-block
		return "", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Submit(ctx, func(ctx context.Context) (string, error) {
		return "", nil
	})
	if err == nil {
		t.Error("Expected admission to fail when pool is full and context expires")
	}
	close(block)
}

func TestAbandonedTaskStillCompletes(t *testing.T) {
	p := New(1)

	done := make(chan struct{})
	_, err := p.Submit(context.Background(), func(ctx context.Context) (string, error) {
		defer close(done)
		return "late", nil
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Nobody reads the result channel; the buffered channel lets the task
	// finish and release its slot anyway.
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Task did not complete after waiter walked away")
	}

	// The slot must be free again.
	resCh, err := p.Submit(context.Background(), func(ctx context.Context) (string, error) {
		return "next", nil
	})
	if err != nil {
		t.Fatalf("Submit after abandoned task failed: %v", err)
	}
	res := <-resCh
	if res.Value != "next" {
		t.Errorf("Expected next, got %q", res.Value)
	}
}
