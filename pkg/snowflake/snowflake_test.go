package snowflake

import (
	"sync"
	"testing"
	"time"
)

func TestNewNodeRange(t *testing.T) {
	if _, err := NewNode(-1); err != ErrNodeRange {
		t.Errorf("expected ErrNodeRange for -1, got %v", err)
	}
	if _, err := NewNode(1024); err != ErrNodeRange {
		t.Errorf("expected ErrNodeRange for 1024, got %v", err)
	}
}

func TestGenerateIncreasing(t *testing.T) {
	n, err := NewNode(3)
	if err != nil {
		t.Fatal(err)
	}
	prev := n.Generate()
	for i := 0; i < 10000; i++ {
		id := n.Generate()
		if id <= prev {
			t.Fatalf("id %d not greater than %d", id, prev)
		}
		prev = id
	}
	if NodeOf(prev) != 3 {
		t.Errorf("expected node 3, got %d", NodeOf(prev))
	}
	if d := time.Since(Time(prev)); d < 0 || d > time.Minute {
		t.Errorf("unexpected id time %v", Time(prev))
	}
}

func TestGenerateConcurrentUnique(t *testing.T) {
	n, _ := NewNode(1)
	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				id := n.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 8000 {
		t.Errorf("expected 8000 unique ids, got %d", len(seen))
	}
}
