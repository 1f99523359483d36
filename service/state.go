// Package service provides the abstract lifecycle every simulated service
// (storage, compute) embeds: an UP/DOWN/SUSPENDED state machine, a daemon
// CommPort, a property map, and a payload-size map.
package service

import "sync/atomic"

// State is a service's lifecycle state.
type State uint32

const (
	// Up is the only state in which requests are honored.
	Up State = iota
	// Down is entered via Stop; every request fails with ServiceIsDown.
	Down
	// Suspended is entered via Suspend; every request fails with
	// ServiceIsSuspended, and can return to Up via Resume.
	Suspended
)

func (s State) String() string {
	switch s {
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Suspended:
		return "Suspended"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state holder, grounded on the teacher's
// eventloop.FastState: an atomic value with CAS-based transitions, no
// validation beyond the CAS itself.
type fastState struct {
	v atomic.Uint32
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint32(Up))
	return s
}

func (s *fastState) Load() State { return State(s.v.Load()) }

func (s *fastState) Store(v State) { s.v.Store(uint32(v)) }

func (s *fastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
