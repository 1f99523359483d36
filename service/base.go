package service

import (
	"sync"

	"github.com/joeycumines/wrenchsim/commport"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/rs/zerolog"
)

// ControlKind tags the control messages every service daemon understands on
// its CommPort, alongside whatever service-specific message kinds the
// embedding service adds.
type ControlKind string

// StopDaemon asks a service's daemon actor to exit cleanly.
const StopDaemon ControlKind = "StopDaemon"

// Stoppable is the narrow capability Base.Stop needs from an owned
// sub-service, so Base can request best-effort graceful teardown without
// importing the concrete compute/storage packages (which would import
// service, forming an import cycle).
type Stoppable interface {
	Stop() error
}

// Base is embedded by every concrete service (storage, compute). It owns
// the {state, commport, properties, payload sizes} every service shares,
// grounded on the teacher's FastState atomic state machine, generalized
// from {Awake, Running, Sleeping, Terminated} to {Up, Down, Suspended}.
type Base struct {
	Name     string
	CommPort *commport.CommPort
	Logger   *zerolog.Logger

	state *fastState

	mu           sync.Mutex
	properties   map[string]string
	payloadSizes map[string]int64
	subServices  []Stoppable
}

// NewBase constructs a Base in the Up state, bound to port. properties and
// payloadSizes are copied so later mutation by the caller doesn't alias
// this service's configuration.
func NewBase(name string, port *commport.CommPort, logger *zerolog.Logger, properties map[string]string, payloadSizes map[string]int64) *Base {
	b := &Base{
		Name:         name,
		CommPort:     port,
		Logger:       logger,
		state:        newFastState(),
		properties:   make(map[string]string, len(properties)),
		payloadSizes: make(map[string]int64, len(payloadSizes)),
	}
	for k, v := range properties {
		b.properties[k] = v
	}
	for k, v := range payloadSizes {
		b.payloadSizes[k] = v
	}
	return b
}

// State returns the service's current lifecycle state.
func (b *Base) State() State { return b.state.Load() }

// Property looks up a configuration property by key.
func (b *Base) Property(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.properties[key]
	return v, ok
}

// PayloadSize looks up a configured message payload size by key.
func (b *Base) PayloadSize(key string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.payloadSizes[key]
}

// CheckUp returns nil if the service is Up, or the appropriate FailureCause
// (wrapped) otherwise. Every public service method should call this first.
func (b *Base) CheckUp() error {
	switch b.State() {
	case Down:
		return failurecause.Wrap(&failurecause.ServiceIsDown{ServiceName: b.Name})
	case Suspended:
		return failurecause.Wrap(&failurecause.ServiceIsSuspended{ServiceName: b.Name})
	default:
		return nil
	}
}

// RegisterSubService records a sub-service Stop should also stop, best
// effort, on teardown.
func (b *Base) RegisterSubService(s Stoppable) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subServices = append(b.subServices, s)
}

// Stop transitions the service to Down. Idempotent: a second call observes
// Down and returns nil without re-running teardown (RT-3). Sub-services are
// stopped best-effort; their errors are not propagated.
func (b *Base) Stop() error {
	if !b.state.TryTransition(Up, Down) && !b.state.TryTransition(Suspended, Down) {
		return nil
	}
	b.mu.Lock()
	subs := append([]Stoppable(nil), b.subServices...)
	b.mu.Unlock()
	for _, s := range subs {
		_ = s.Stop()
	}
	return nil
}

// Suspend transitions Up to Suspended.
func (b *Base) Suspend() error {
	if err := b.CheckUp(); err != nil {
		return err
	}
	b.state.TryTransition(Up, Suspended)
	return nil
}

// Resume transitions Suspended back to Up.
func (b *Base) Resume() error {
	if b.State() != Suspended {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "cannot resume a service that is not suspended"})
	}
	b.state.TryTransition(Suspended, Up)
	return nil
}

// RunDaemon spawns the service's daemon actor on host, dispatching each
// incoming message on b.CommPort to handle, until a StopDaemon control
// message is received — grounded on the teacher's Loop.Run dispatch shape:
// a single goroutine, blocking receive, type-switch on message kind.
func (b *Base) RunDaemon(sim *kernel.Simulation, host kernel.HostName, handle func(a *kernel.Actor, msg commport.Message)) (*kernel.Actor, error) {
	return sim.Spawn(host, func(a *kernel.Actor) {
		for {
			msg, err := b.CommPort.Get(a, 0)
			if err != nil {
				return
			}
			if msg.Kind == string(StopDaemon) {
				return
			}
			handle(a, msg)
		}
	})
}
