package queue

import "testing"

type testItem struct {
	key string
	pri float64
}

func (t testItem) QueueKey() string   { return t.key }
func (t testItem) Priority() float64 { return t.pri }

func TestPriorityPopsHighestFirst(t *testing.T) {
	pq := NewPriority()
	pq.PushItem(testItem{"low", 1})
	pq.PushItem(testItem{"high", 10})
	pq.PushItem(testItem{"mid", 5})

	item, ok := pq.PopHighest()
	if !ok || item.QueueKey() != "high" {
		t.Fatalf("expected high first, got %+v", item)
	}
	item, ok = pq.PopHighest()
	if !ok || item.QueueKey() != "mid" {
		t.Fatalf("expected mid second, got %+v", item)
	}
	item, ok = pq.PopHighest()
	if !ok || item.QueueKey() != "low" {
		t.Fatalf("expected low third, got %+v", item)
	}
	if _, ok := pq.PopHighest(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestPriorityMoveRescoresInPlace(t *testing.T) {
	pq := NewPriority()
	pq.PushItem(testItem{"a", 1})
	pq.PushItem(testItem{"b", 2})

	if pq.Size() != 2 {
		t.Fatalf("expected size 2, got %d", pq.Size())
	}

	// Rescore "a" to outrank "b" via a move, not a fresh insert.
	pq.Move("a", testItem{"a", 100})

	if pq.Size() != 2 {
		t.Fatalf("expected size to remain 2 after a move, got %d", pq.Size())
	}

	item, ok := pq.PopHighest()
	if !ok || item.QueueKey() != "a" {
		t.Fatalf("expected rescored 'a' to pop first, got %+v", item)
	}
}

func TestPriorityRemove(t *testing.T) {
	pq := NewPriority()
	pq.PushItem(testItem{"a", 1})
	pq.PushItem(testItem{"b", 2})

	pq.Remove("b")
	if pq.Contains("b") {
		t.Fatal("expected 'b' to be removed")
	}
	if pq.Size() != 1 {
		t.Fatalf("expected size 1, got %d", pq.Size())
	}

	item, ok := pq.PopHighest()
	if !ok || item.QueueKey() != "a" {
		t.Fatalf("expected 'a' to remain, got %+v", item)
	}
}
