package kernel

import "container/heap"

// timerEvent is one scheduled event: fire fn once virtual time reaches
// fireAt. seq disambiguates events scheduled for the identical instant,
// breaking ties in FIFO submission order — grounded on the teacher's
// eventloop.timerHeap, generalized from wall-clock time.Time deadlines to a
// virtual int64 nanosecond clock.
type timerEvent struct {
	fireAt int64
	seq    uint64
	fn     func()
	cancel bool
}

// eventHeap is a min-heap of timerEvent ordered by (fireAt, seq).
type eventHeap []*timerEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].fireAt != h[j].fireAt {
		return h[i].fireAt < h[j].fireAt
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*timerEvent))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Clock exposes the simulation's virtual time to collaborators that only
// need to read it (actions recording start/end dates, loggers stamping
// lines) without granting them scheduling authority.
type Clock interface {
	// Now returns the current simulated time, in nanoseconds since the
	// simulation's epoch (t=0 at Simulation construction).
	Now() int64
}

// clockImpl is the Simulation's own Clock, backed directly by its event
// heap's notion of "now" (the fireAt of the event currently executing, or
// the last one that did).
type clockImpl struct {
	sim *Simulation
}

func (c clockImpl) Now() int64 { return c.sim.now }

// eventQueue is the min-heap plus a monotonic sequence counter, grounded on
// eventloop.timerHeap + eventloop.Loop.tickCount.
type eventQueue struct {
	heap eventHeap
	seq  uint64
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	heap.Init(&q.heap)
	return q
}

// schedule enqueues fn to run once virtual time reaches fireAt (which must
// be >= the queue's most recently dispatched fireAt; callers never schedule
// into the past). Returns a handle that can be used to cancel the event
// before it fires.
func (q *eventQueue) schedule(fireAt int64, fn func()) *timerEvent {
	q.seq++
	ev := &timerEvent{fireAt: fireAt, seq: q.seq, fn: fn}
	heap.Push(&q.heap, ev)
	return ev
}

// cancel marks ev so popReady skips it instead of running fn. Safe to call
// even after ev has already fired (no-op in that case).
func (q *eventQueue) cancelEvent(ev *timerEvent) {
	ev.cancel = true
}

// empty reports whether the queue has no pending (non-cancelled) events.
// Cancelled events are lazily dropped by popReady, so this drains them too.
func (q *eventQueue) empty() bool {
	for q.heap.Len() > 0 {
		top := q.heap[0]
		if !top.cancel {
			return false
		}
		heap.Pop(&q.heap)
	}
	return true
}

// nextFireAt returns the fire time of the next non-cancelled event, and
// whether one exists.
func (q *eventQueue) nextFireAt() (int64, bool) {
	for q.heap.Len() > 0 {
		top := q.heap[0]
		if !top.cancel {
			return top.fireAt, true
		}
		heap.Pop(&q.heap)
	}
	return 0, false
}

// popReady pops and returns the next non-cancelled event if its fireAt is
// <= at, else returns nil.
func (q *eventQueue) popReady(at int64) *timerEvent {
	for q.heap.Len() > 0 {
		top := q.heap[0]
		if top.cancel {
			heap.Pop(&q.heap)
			continue
		}
		if top.fireAt > at {
			return nil
		}
		return heap.Pop(&q.heap).(*timerEvent)
	}
	return nil
}
