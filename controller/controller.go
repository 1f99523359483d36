// Package controller implements Controller: a long-lived actor that drives a
// simulation by submitting jobs/copies to a JobManager and DataMovementManager
// and reacting to the typed events they publish.
package controller

import (
	"time"

	"github.com/joeycumines/wrenchsim/commport"
	"github.com/joeycumines/wrenchsim/datamovement"
	"github.com/joeycumines/wrenchsim/jobs"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/rs/zerolog"
)

// TimerGoesOffEvent is published to a Controller's own port when a timer
// registered with ScheduleTimer elapses.
type TimerGoesOffEvent struct {
	ID string
}

// Handlers holds one callback per controller-visible event kind. A nil field
// means "do nothing" — a controller only overrides the events it cares about.
type Handlers struct {
	OnStandardJobCompleted func(jobs.StandardJobCompletedEvent)
	OnStandardJobFailed    func(jobs.StandardJobFailedEvent)
	OnCompoundJobCompleted func(jobs.CompoundJobCompletedEvent)
	OnCompoundJobFailed    func(jobs.CompoundJobFailedEvent)
	OnPilotJobStarted      func(jobs.PilotJobStartedEvent)
	OnPilotJobExpired      func(jobs.PilotJobExpiredEvent)
	OnFileCopyCompleted    func(datamovement.FileCopyCompletedEvent)
	OnFileCopyFailed       func(datamovement.FileCopyFailedEvent)
	OnTimerGoesOff         func(TimerGoesOffEvent)
}

// Controller is the user-written execution-control actor: it owns a
// JobManager and a DataMovementManager (both publishing onto Port), waits for
// their events with WaitForNextEvent, and dispatches each to the matching
// Handlers field with WaitForAndProcessNextEvent — the same
// dispatch-by-event-kind shape as the teacher's JS adapter dispatches
// callbacks by timer/microtask kind, generalized to a type switch over a
// closed set of simulation event structs instead of a registry of numeric
// ids.
//
// An event kind with no matching case (or a nil handler) is simply dropped:
// per spec.md's error-handling design, raising on unhandled events is a
// choice left to the controller's own handler bodies, not something
// Controller itself enforces.
type Controller struct {
	sim         *kernel.Simulation
	controlHost kernel.HostName
	Port        *commport.CommPort
	Handlers    Handlers
	logger      *zerolog.Logger

	Jobs         *jobs.JobManager
	DataMovement *datamovement.DataMovementManager
}

// NewController constructs a Controller whose JobManager/DataMovementManager
// run on controlHost and publish onto a dedicated CommPort that only this
// Controller consumes.
func NewController(sim *kernel.Simulation, controlHost kernel.HostName, logger *zerolog.Logger, handlers Handlers) *Controller {
	port := commport.NewCommPort(sim, "controller:"+string(controlHost), controlHost, 0)
	return &Controller{
		sim:          sim,
		controlHost:  controlHost,
		Port:         port,
		Handlers:     handlers,
		logger:       logger,
		Jobs:         jobs.NewJobManager(sim, controlHost, port, logger),
		DataMovement: datamovement.NewDataMovementManager(sim, controlHost, port),
	}
}

// ScheduleTimer arranges for a TimerGoesOffEvent carrying id to be published
// on Port once delay elapses.
func (c *Controller) ScheduleTimer(id string, delay time.Duration) {
	c.sim.Schedule(delay, func() {
		_, _ = c.sim.Spawn(c.controlHost, func(a *kernel.Actor) {
			_ = c.Port.Put(a, commport.Message{Kind: "TimerGoesOff", Payload: TimerGoesOffEvent{ID: id}})
		})
	})
}

// WaitForNextEvent blocks actor until an event arrives on Port, or timeout
// elapses if positive, returning the raw payload.
func (c *Controller) WaitForNextEvent(actor *kernel.Actor, timeout time.Duration) (any, error) {
	msg, err := c.Port.Get(actor, timeout)
	if err != nil {
		return nil, err
	}
	return msg.Payload, nil
}

// WaitForAndProcessNextEvent waits for the next event and dispatches it to
// the matching Handlers field, if set.
func (c *Controller) WaitForAndProcessNextEvent(actor *kernel.Actor, timeout time.Duration) error {
	payload, err := c.WaitForNextEvent(actor, timeout)
	if err != nil {
		return err
	}
	c.dispatch(payload)
	return nil
}

func (c *Controller) dispatch(payload any) {
	switch ev := payload.(type) {
	case jobs.StandardJobCompletedEvent:
		if c.Handlers.OnStandardJobCompleted != nil {
			c.Handlers.OnStandardJobCompleted(ev)
		}
	case jobs.StandardJobFailedEvent:
		if c.Handlers.OnStandardJobFailed != nil {
			c.Handlers.OnStandardJobFailed(ev)
		}
	case jobs.CompoundJobCompletedEvent:
		if c.Handlers.OnCompoundJobCompleted != nil {
			c.Handlers.OnCompoundJobCompleted(ev)
		}
	case jobs.CompoundJobFailedEvent:
		if c.Handlers.OnCompoundJobFailed != nil {
			c.Handlers.OnCompoundJobFailed(ev)
		}
	case jobs.PilotJobStartedEvent:
		if c.Handlers.OnPilotJobStarted != nil {
			c.Handlers.OnPilotJobStarted(ev)
		}
	case jobs.PilotJobExpiredEvent:
		if c.Handlers.OnPilotJobExpired != nil {
			c.Handlers.OnPilotJobExpired(ev)
		}
	case datamovement.FileCopyCompletedEvent:
		if c.Handlers.OnFileCopyCompleted != nil {
			c.Handlers.OnFileCopyCompleted(ev)
		}
	case datamovement.FileCopyFailedEvent:
		if c.Handlers.OnFileCopyFailed != nil {
			c.Handlers.OnFileCopyFailed(ev)
		}
	case TimerGoesOffEvent:
		if c.Handlers.OnTimerGoesOff != nil {
			c.Handlers.OnTimerGoesOff(ev)
		}
	default:
		if c.logger != nil {
			c.logger.Warn().Msgf("controller: unhandled event type %T", payload)
		}
	}
}

// Run loops WaitForAndProcessNextEvent with no timeout and returns the first
// error it reports. It returns nil only when actor.Killed() is true after an
// event has been dispatched; Kill does not wake an actor parked waiting on
// Port, so a killed controller that receives no further event stays parked.
func (c *Controller) Run(actor *kernel.Actor) error {
	for {
		if err := c.WaitForAndProcessNextEvent(actor, 0); err != nil {
			return err
		}
		if actor.Killed() {
			return nil
		}
	}
}
