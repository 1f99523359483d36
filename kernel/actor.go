package kernel

import (
	"time"

	"github.com/joeycumines/wrenchsim/failurecause"
)

// Actor is a lightweight handle to a goroutine that runs cooperatively
// inside a Simulation: it only ever blocks at the suspension points exposed
// by this type (SuspendUntil, Sleep, Compute, Block), and control always passes
// back to the Simulation's dispatch loop across those points — never
// concurrently with another actor.
type Actor struct {
	id   ActorID
	Host HostName
	sim  *Simulation

	// yield is sent to (by this actor) each time it reaches a suspension
	// point or finishes, handing control back to whichever goroutine woke
	// it (Spawn, or the dispatch loop delivering a wake).
	yield chan struct{}
	// wake is sent to (by the dispatch loop) to resume this actor; the
	// payload carries a kill cause, if the suspension was interrupted.
	wake chan error
	done chan struct{}

	killed  bool
	pending *timerEvent
}

// ID returns the actor's simulation-assigned identifier.
func (a *Actor) ID() ActorID { return a.id }

// Spawn launches fn as a new Actor bound to host. fn runs synchronously
// (on its own goroutine, but without interleaving with any other actor)
// until it calls a suspension method or returns; Spawn itself does not
// return until fn reaches that first suspension point or finishes, so that
// by the time Spawn returns the new actor is safely parked or gone.
func (s *Simulation) Spawn(host HostName, fn func(a *Actor)) (*Actor, error) {
	if _, ok := s.Host(host); !ok {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "host " + string(host) + " does not exist"})
	}
	a := &Actor{
		Host:  host,
		sim:   s,
		yield: make(chan struct{}),
		wake:  make(chan error),
		done:  make(chan struct{}),
	}
	s.registerActor(a)

	go func() {
		defer func() {
			s.deregisterActor(a)
			close(a.done)
		}()
		fn(a)
	}()

	select {
	case <-a.yield:
	case <-a.done:
	}
	return a, nil
}

// SuspendUntil blocks the calling actor until virtual time reaches fireAt,
// handing control of the Simulation's dispatch loop back while it waits.
// Returns the error the actor was killed with, if Kill was called while it
// was suspended.
func (a *Actor) SuspendUntil(fireAt int64) error {
	a.sim.mu.Lock()
	if a.sim.finished {
		a.sim.mu.Unlock()
		panic("kernel: SuspendUntil called after Simulation.Run returned")
	}
	if fireAt < a.sim.now {
		fireAt = a.sim.now
	}
	ev := a.sim.queue.schedule(fireAt, func() {
		var err error
		if a.killed {
			err = failurecause.Wrap(&failurecause.NetworkError{Message: "actor killed while suspended"})
		}
		a.pending = nil
		a.wake <- err
		select {
		case <-a.yield:
		case <-a.done:
		}
	})
	a.pending = ev
	a.sim.mu.Unlock()

	a.yield <- struct{}{}
	return <-a.wake
}

// Sleep suspends the calling actor for d of virtual time.
func (a *Actor) Sleep(d time.Duration) error {
	return a.SuspendUntil(a.sim.Now() + int64(d))
}

// Compute suspends the calling actor for the virtual duration it takes this
// actor's host to perform flops floating-point operations on a single core,
// per the host's Speed (flop/s per core).
func (a *Actor) Compute(flops float64) error {
	host, ok := a.sim.Host(a.Host)
	if !ok || host.Speed <= 0 {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "host has no valid compute speed"})
	}
	seconds := flops / host.Speed
	return a.Sleep(time.Duration(seconds * float64(time.Second)))
}

// Sim returns the Simulation this actor is bound to, so collaborators
// (CommPort, semaphores) can schedule their own wake conditions.
func (a *Actor) Sim() *Simulation { return a.sim }

// Block hands control of the Simulation's dispatch loop back to its caller
// and waits to be resumed via Resume. Unlike SuspendUntil, Block does not
// schedule anything itself — it is the primitive collaborators use to
// implement condition-based waits (a message arriving, a semaphore slot
// freeing) that aren't known up front as a fixed virtual-time deadline.
func (a *Actor) Block() error {
	a.yield <- struct{}{}
	return <-a.wake
}

// Resume wakes an actor previously parked in Block, delivering err (nil on
// success). Must be called from the Simulation's dispatch loop goroutine —
// i.e. from inside a Schedule/ScheduleAt callback.
func (a *Actor) Resume(err error) {
	a.wake <- err
	select {
	case <-a.yield:
	case <-a.done:
	}
}

// Kill marks a as killed; if a is currently suspended, its pending wake is
// brought forward to the current instant so it returns immediately instead
// of waiting out its original duration. Any future SuspendUntil call also
// returns a FailureCause-wrapped error instead of nil.
func (a *Actor) Kill() {
	a.sim.mu.Lock()
	a.killed = true
	pending := a.pending
	a.sim.mu.Unlock()
	if pending != nil {
		a.sim.mu.Lock()
		a.sim.queue.cancelEvent(pending)
		a.sim.mu.Unlock()
		a.sim.ScheduleAt(a.sim.Now(), pending.fn)
	}
}

// Killed reports whether Kill has been called on this actor.
func (a *Actor) Killed() bool {
	a.sim.mu.Lock()
	defer a.sim.mu.Unlock()
	return a.killed
}

// Done returns a channel closed once the actor's function has returned.
func (a *Actor) Done() <-chan struct{} { return a.done }
