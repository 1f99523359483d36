package storage

import "github.com/joeycumines/wrenchsim/kernel"

// slotSemaphore is a fixed-capacity counting semaphore used to enforce
// MAX_NUM_CONCURRENT_DATA_CONNECTIONS: excess acquire calls queue FIFO on a
// waiter list and are handed the slot directly on release, rather than
// re-entering the "is there room" check, preserving submission order.
//
// Grounded on the teacher's catrate.Limiter: a category-scoped admission
// check against a budget, generalized here from a sliding-window rate to a
// fixed concurrent-slot count, since a storage service's concurrency cap is
// not time-windowed.
type slotSemaphore struct {
	capacity int
	inUse    int
	waiters  []*kernel.Actor
}

func newSlotSemaphore(capacity int) *slotSemaphore {
	return &slotSemaphore{capacity: capacity}
}

// acquire blocks the calling actor until a slot is available. A
// non-positive capacity means unlimited concurrency (acquire never blocks).
func (s *slotSemaphore) acquire(a *kernel.Actor) error {
	if s.capacity <= 0 {
		return nil
	}
	if s.inUse < s.capacity {
		s.inUse++
		return nil
	}
	s.waiters = append(s.waiters, a)
	return a.Block()
}

// release frees the caller's slot, handing it directly to the oldest
// waiter (if any) to preserve FIFO admission order.
func (s *slotSemaphore) release() {
	if s.capacity <= 0 {
		return
	}
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		next.Resume(nil)
		return
	}
	s.inUse--
}
