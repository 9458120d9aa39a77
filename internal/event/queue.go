package event

import "container/heap"

// eventHeap implements heap.Interface over *Event, ordered by the
// strict lexicographic key (Time, Kind, ID) from spec §4.3. Adapted
// from the teacher's pkg/orderbook min/max heap (which ordered *Order
// by (Price, Timestamp)): here there's only one heap, one owner (the
// Engine, never called from more than one goroutine — spec §5), so
// the teacher's guarding sync.Mutex is dropped rather than copied.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.ID < b.ID
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Queue is the time-ordered priority queue of pending events. Owned
// exclusively by one Engine for the lifetime of a replication. byID
// is the side-channel registry that makes Invalidate O(1) without
// touching the heap — removing an arbitrary element from a binary
// heap is O(n); flagging it and skipping on pop is O(log n) to
// reinsert nothing and O(1) to mark (spec §9 "stale events vs mutable
// heap").
type Queue struct {
	h    eventHeap
	byID map[int64]*Event
}

// NewQueue returns an empty event queue.
func NewQueue() *Queue {
	return &Queue{h: make(eventHeap, 0), byID: make(map[int64]*Event)}
}

// Push inserts an event and registers it for invalidation lookup.
func (q *Queue) Push(e *Event) {
	e.Valid = true
	q.byID[e.ID] = e
	heap.Push(&q.h, e)
}

// PopMin removes and returns the earliest event by (Time, Kind, ID).
// Invalid events are discarded silently, per spec §4.3 — the caller
// never sees them. Returns false once the queue is empty.
func (q *Queue) PopMin() (*Event, bool) {
	for q.h.Len() > 0 {
		e := heap.Pop(&q.h).(*Event)
		delete(q.byID, e.ID)
		if !e.Valid {
			continue
		}
		return e, true
	}
	return nil, false
}

// Invalidate flags the event with the given id, if still pending, so
// it is discarded without dispatch when popped. Returns false if no
// such event is pending (already popped, or never existed).
func (q *Queue) Invalidate(id int64) bool {
	e, ok := q.byID[id]
	if !ok {
		return false
	}
	e.Valid = false
	return true
}

// PeekTime returns the timestamp of the earliest valid-or-not event
// without removing it, or false if the queue is empty. Used only by
// tests that assert ordering without consuming events.
func (q *Queue) PeekTime() (float64, bool) {
	if q.h.Len() == 0 {
		return 0, false
	}
	return q.h[0].Time, true
}

// Len reports the number of events still queued, valid or not.
func (q *Queue) Len() int { return q.h.Len() }
