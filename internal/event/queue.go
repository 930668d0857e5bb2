// Package event implements the simulator's monotonic priority queue: a
// binary heap ordered first by firing time, then by insertion sequence, so
// events pushed at the same simulated millisecond fire strictly FIFO.
//
// Grounded on LarryRuane-minesim's eventlist, which implements the same
// container/heap.Interface shape for a single event kind; here the event
// carries a kind and an opaque payload per spec.md's (t_ms, eid, kind,
// payload) shape, and ties are additionally broken by eid.
package event

import "container/heap"

// Kind distinguishes the three event types the driver dispatches.
type Kind int

const (
	Tick Kind = iota
	Work
	RecvBlock
)

func (k Kind) String() string {
	switch k {
	case Tick:
		return "tick"
	case Work:
		return "work"
	case RecvBlock:
		return "recv_block"
	default:
		return "unknown"
	}
}

// Event is a single scheduled occurrence. Payload is kind-specific: nil for
// Tick/Work (the node index travels via NodeID), a *RecvBlockPayload for
// RecvBlock.
type Event struct {
	TMs    int64
	Eid    int64
	Kind   Kind
	NodeID int
	Payload any
}

// RecvBlockPayload is the payload carried by a RecvBlock event.
type RecvBlockPayload struct {
	Src int
	Dst int
	Blk any // a chain.Block value; kept as any to avoid an import cycle
}

type innerHeap []Event

func (h innerHeap) Len() int { return len(h) }
func (h innerHeap) Less(i, j int) bool {
	if h[i].TMs != h[j].TMs {
		return h[i].TMs < h[j].TMs
	}
	return h[i].Eid < h[j].Eid
}
func (h innerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *innerHeap) Push(x any)   { *h = append(*h, x.(Event)) }
func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Queue is the event priority queue. The zero value is not usable; call
// New.
type Queue struct {
	h      innerHeap
	nextID int64
}

// New returns an empty queue.
func New() *Queue {
	q := &Queue{}
	heap.Init(&q.h)
	return q
}

// Push schedules ev to fire at tMs, assigning the next monotonic eid.
func (q *Queue) Push(tMs int64, kind Kind, nodeID int, payload any) {
	ev := Event{TMs: tMs, Eid: q.nextID, Kind: kind, NodeID: nodeID, Payload: payload}
	q.nextID++
	heap.Push(&q.h, ev)
}

// Pop removes and returns the earliest-firing event. Callers must check
// Empty first.
func (q *Queue) Pop() Event {
	return heap.Pop(&q.h).(Event)
}

// Empty reports whether the queue has no pending events.
func (q *Queue) Empty() bool {
	return q.h.Len() == 0
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	return q.h.Len()
}
