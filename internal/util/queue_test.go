package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueueOrdering(t *testing.T) {
	q := NewQueue[string](10)
	for _, s := range []string{"a", "b", "c"} {
		if err := q.Push(s); err != nil {
			t.Fatalf("Push returned error: %v", err)
		}
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop returned error: %v", err)
		}
		if got != want {
			t.Errorf("Pop = %q, want %q", got, want)
		}
	}
}

func TestQueueTryPopEmpty(t *testing.T) {
	q := NewQueue[int](10)
	if _, err := q.TryPop(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("TryPop on empty queue = %v, want ErrQueueEmpty", err)
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue[int](10)
	done := make(chan int, 1)

	go func() {
		v, err := q.Pop(context.Background())
		if err != nil {
			return
		}
		done <- v
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Push(42); err != nil {
		t.Fatalf("Push returned error: %v", err)
	}

	select {
	case v := <-done:
		if v != 42 {
			t.Errorf("Pop = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueuePopHonoursContext(t *testing.T) {
	q := NewQueue[int](10)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Pop = %v, want context.DeadlineExceeded", err)
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := NewQueue[int](2)
	for i := 1; i <= 3; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("Push returned error: %v", err)
		}
	}

	got, err := q.TryPop()
	if err != nil {
		t.Fatalf("TryPop returned error: %v", err)
	}
	if got != 2 {
		t.Errorf("expected oldest item dropped, head = %d, want 2", got)
	}
}

func TestQueueClearAndClose(t *testing.T) {
	q := NewQueue[int](10)
	_ = q.Push(1)
	_ = q.Push(2)
	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", q.Len())
	}

	q.Close()
	if err := q.Push(3); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Push after Close = %v, want ErrQueueClosed", err)
	}
	if _, err := q.Pop(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Pop after Close = %v, want ErrQueueClosed", err)
	}
}
