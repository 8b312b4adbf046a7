package buffer

import (
	"sort"
	"sync"
	"testing"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[int]()
	q.Enqueue(1)
	q.EnqueueAll([]int{2, 3, 4})

	if got := q.Dequeue(2); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("Dequeue(2) = %v", got)
	}
	if got := q.Dequeue(10); len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("Dequeue(10) = %v", got)
	}
	if !q.IsEmpty() {
		t.Fatalf("queue should be empty, count = %d", q.Count())
	}
	if got := q.Dequeue(0); got != nil {
		t.Fatalf("Dequeue(0) = %v, want nil", got)
	}
}

func TestQueue_PushFrontRestoresHead(t *testing.T) {
	q := NewQueue[string]()
	q.EnqueueAll([]string{"a", "b"})

	drained := q.DequeueAll()
	q.Enqueue("c")
	q.PushFront(drained)

	got := q.DequeueAll()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("DequeueAll() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("DequeueAll() = %v, want %v", got, want)
		}
	}
}

func TestQueue_ConcurrentWritersSingleDrainer(t *testing.T) {
	q := NewQueue[int]()

	const writers = 8
	const perWriter = 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				q.Enqueue(base*perWriter + i)
			}
		}(w)
	}

	collected := make([]int, 0, writers*perWriter)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		collected = append(collected, q.DequeueAll()...)
		select {
		case <-done:
			collected = append(collected, q.DequeueAll()...)
			sort.Ints(collected)
			if len(collected) != writers*perWriter {
				t.Fatalf("collected %d items, want %d", len(collected), writers*perWriter)
			}
			for i, v := range collected {
				if v != i {
					t.Fatalf("item %d missing or duplicated", i)
				}
			}
			return
		default:
		}
	}
}
