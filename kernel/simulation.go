package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/rs/zerolog"
)

// Simulation is the single top-level object owning the event queue, the
// host/link/disk arena, and the actor registry. Construct one with
// NewSimulation, populate any remaining disks with CreateNewDisk, spawn
// actors with Spawn, then call Run once.
//
// Time only ever advances inside Run's dispatch loop, which is the sole
// goroutine permitted to pop the event queue — every other goroutine
// (spawned actors) only ever touches simulation state while "holding the
// token", handed to it by Run or by a previous suspension's wake, and always
// hands it back before returning. This mirrors the teacher's eventloop.Loop:
// one dispatch goroutine, a min-heap of timed work, everything else
// communicating through channels.
type Simulation struct {
	platform *Platform
	queue    *eventQueue
	logger   *zerolog.Logger

	mu       sync.Mutex
	now      int64
	started  bool
	finished bool
	nextID   uint64
	actors   map[ActorID]*Actor
}

// SimulationOption configures a Simulation at construction time.
type SimulationOption interface {
	applySimulationOption(*Simulation) error
}

type simulationOptionFunc func(*Simulation) error

func (f simulationOptionFunc) applySimulationOption(s *Simulation) error { return f(s) }

// WithLogger injects the structured logger every actor-owning component
// should log through. Without this option, zerolog.Nop() is used.
func WithLogger(logger zerolog.Logger) SimulationOption {
	return simulationOptionFunc(func(s *Simulation) error {
		s.logger = &logger
		return nil
	})
}

// NewSimulation constructs a Simulation bound to platform, at virtual time
// zero. platform must not be modified with new hosts/links after this call;
// CreateNewDisk remains available for late disk attachment per spec.
func NewSimulation(platform *Platform, opts ...SimulationOption) (*Simulation, error) {
	if platform == nil {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "platform must not be nil"})
	}
	s := &Simulation{
		platform: platform,
		queue:    newEventQueue(),
		actors:   make(map[ActorID]*Actor),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applySimulationOption(s); err != nil {
			return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: err.Error()})
		}
	}
	if s.logger == nil {
		nop := zerolog.Nop()
		s.logger = &nop
	}
	return s, nil
}

// Logger returns the structured logger this Simulation was constructed with.
func (s *Simulation) Logger() *zerolog.Logger { return s.logger }

// Clock returns a read-only view of this Simulation's virtual clock.
func (s *Simulation) Clock() Clock { return clockImpl{sim: s} }

// Now returns the current virtual time in nanoseconds since t=0.
func (s *Simulation) Now() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Host looks up a host on the underlying platform.
func (s *Simulation) Host(name HostName) (*Host, bool) { return s.platform.Host(name) }

// Route looks up a route on the underlying platform.
func (s *Simulation) Route(from, to HostName) (Route, bool) { return s.platform.Route(from, to) }

// CreateNewDisk attaches a new disk to host after Simulation construction.
// Per the platform's wire format, a late-added disk requires a single
// symmetric bandwidth: readBps must equal writeBps, or
// failurecause.InvalidArgument is returned.
func (s *Simulation) CreateNewDisk(host HostName, name DiskName, readBps, writeBps float64, capacity int64) (*Disk, error) {
	if readBps != writeBps {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "late-added disks require read_bw == write_bw"})
	}
	return s.platform.NewDisk(host, name, readBps, capacity)
}

// Schedule enqueues fn to run once virtual time reaches now+delay, on the
// Run dispatch goroutine. fn must not block. Panics if called after Run has
// returned.
func (s *Simulation) Schedule(delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		panic("kernel: Schedule called after Simulation.Run returned")
	}
	s.queue.schedule(s.now+int64(delay), fn)
}

// ScheduleAt enqueues fn to run once virtual time reaches fireAt, which must
// be >= Now().
func (s *Simulation) ScheduleAt(fireAt int64, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		panic("kernel: ScheduleAt called after Simulation.Run returned")
	}
	if fireAt < s.now {
		panic("kernel: ScheduleAt called with a time in the past")
	}
	s.queue.schedule(fireAt, fn)
}

// CancelHandle identifies a previously scheduled event that ScheduleCancelAt
// returned, so a caller can cancel it before it fires.
type CancelHandle struct {
	ev *timerEvent
}

// ScheduleCancelAt is ScheduleAt, but returns a handle that Cancel can use
// to suppress fn before it fires — used by collaborators (CommPort get
// timeouts) that may resolve their wait through another path first.
func (s *Simulation) ScheduleCancelAt(fireAt int64, fn func()) CancelHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		panic("kernel: ScheduleCancelAt called after Simulation.Run returned")
	}
	if fireAt < s.now {
		fireAt = s.now
	}
	return CancelHandle{ev: s.queue.schedule(fireAt, fn)}
}

// Cancel suppresses a pending event scheduled via ScheduleCancelAt. A no-op
// if the event already fired.
func (s *Simulation) Cancel(h CancelHandle) {
	if h.ev == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.cancelEvent(h.ev)
}

// Run drains the event queue, advancing virtual time from event to event,
// until the queue is empty or ctx is cancelled. Calling Run twice panics, as
// does calling it concurrently with itself — this package's single
// top-level dispatch invariant (spec fatal condition: "double platform
// instantiation").
func (s *Simulation) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		panic("kernel: Simulation.Run called more than once")
	}
	s.started = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.finished = true
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.mu.Lock()
		fireAt, ok := s.queue.nextFireAt()
		if !ok {
			s.mu.Unlock()
			return nil
		}
		s.now = fireAt
		ev := s.queue.popReady(fireAt)
		s.mu.Unlock()
		if ev == nil {
			continue
		}
		ev.fn()
	}
}

func (s *Simulation) registerActor(a *Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a.id = ActorID(s.nextID)
	s.actors[a.id] = a
}

func (s *Simulation) deregisterActor(a *Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actors, a.id)
}

// Actor looks up a previously spawned actor by id.
func (s *Simulation) Actor(id ActorID) (*Actor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[id]
	return a, ok
}
