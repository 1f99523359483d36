package jobs

import (
	"sync"
	"time"

	"github.com/joeycumines/wrenchsim/action"
	"github.com/joeycumines/wrenchsim/commport"
	"github.com/joeycumines/wrenchsim/compute"
	"github.com/joeycumines/wrenchsim/datafile"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/joeycumines/wrenchsim/workflow"
	"github.com/rs/zerolog"
)

// CompoundJobCompletedEvent is forwarded to a controller's CommPort when a
// directly-submitted action.CompoundJob completes.
type CompoundJobCompletedEvent struct {
	Job            *action.CompoundJob
	ComputeService *compute.BareMetalComputeService
}

// CompoundJobFailedEvent is forwarded when a directly-submitted
// action.CompoundJob fails.
type CompoundJobFailedEvent struct {
	Job            *action.CompoundJob
	ComputeService *compute.BareMetalComputeService
	Cause          failurecause.FailureCause
}

// StandardJobCompletedEvent is forwarded when a StandardJob's lowered
// CompoundJob completes.
type StandardJobCompletedEvent struct {
	Job            *StandardJob
	ComputeService *compute.BareMetalComputeService
}

// StandardJobFailedEvent is forwarded when a StandardJob's lowered
// CompoundJob fails.
type StandardJobFailedEvent struct {
	Job            *StandardJob
	ComputeService *compute.BareMetalComputeService
	Cause          failurecause.FailureCause
}

// PilotJobStartedEvent is forwarded when a submitted PilotJob's child
// compute service has come up.
type PilotJobStartedEvent struct {
	Job *PilotJob
}

// PilotJobExpiredEvent is forwarded when a submitted PilotJob's expiration
// elapses. Stopping a pilot job early with PilotJob.Stop publishes no event.
type PilotJobExpiredEvent struct {
	Job *PilotJob
}

// JobManager tracks which jobs a controller has submitted (rejecting a
// second submission of the same job), and forwards each target compute
// service's raw completion/failure events as the typed ExecutionEvents
// above, published onto the controller's own CommPort.
//
// Grounded on spawning one lightweight forwarding actor per distinct
// compute service — not per job — that blocks on the service's EventPort
// and republishes a typed event once it recognizes the job, mirroring the
// teacher's stats-handler begin/end hook pairing in
// inprocgrpc.Channel.Invoke, adapted so the "hook" is this package's own
// typed event rather than a gRPC stats callback.
type JobManager struct {
	sim            *kernel.Simulation
	controlHost    kernel.HostName
	controllerPort *commport.CommPort
	logger         *zerolog.Logger

	mu           sync.Mutex
	submitted    map[string]bool
	standardJobs map[string]*StandardJob
	dispatchers  map[*compute.BareMetalComputeService]bool
}

// NewJobManager constructs a JobManager that forwards events onto
// controllerPort, running its dispatcher actors on controlHost.
func NewJobManager(sim *kernel.Simulation, controlHost kernel.HostName, controllerPort *commport.CommPort, logger *zerolog.Logger) *JobManager {
	return &JobManager{
		sim:            sim,
		controlHost:    controlHost,
		controllerPort: controllerPort,
		logger:         logger,
		submitted:      make(map[string]bool),
		standardJobs:   make(map[string]*StandardJob),
		dispatchers:    make(map[*compute.BareMetalComputeService]bool),
	}
}

// CreateCompoundJob is a thin convenience wrapper over action.NewCompoundJob.
func (m *JobManager) CreateCompoundJob(id string, priority int) *action.CompoundJob {
	return action.NewCompoundJob(id, priority)
}

// CreateStandardJob is a thin convenience wrapper over NewStandardJob.
func (m *JobManager) CreateStandardJob(id string, tasks []*workflow.Task, fileLocations map[workflow.FileID]datafile.Location, preCopies, postCopies []FileCopySpec, cleanupDeletions []datafile.Location) (*StandardJob, error) {
	return NewStandardJob(id, tasks, fileLocations, preCopies, postCopies, cleanupDeletions)
}

// CreatePilotJob is a thin convenience wrapper over NewPilotJob.
func (m *JobManager) CreatePilotJob(id string, resources []compute.ResourceSlot, expiration time.Duration) (*PilotJob, error) {
	return NewPilotJob(id, resources, expiration)
}

// CreateStandardJobWithGeneratedID is a thin convenience wrapper over
// NewStandardJobWithGeneratedID, for controllers that don't mind a
// generated job id.
func (m *JobManager) CreateStandardJobWithGeneratedID(tasks []*workflow.Task, fileLocations map[workflow.FileID]datafile.Location, preCopies, postCopies []FileCopySpec, cleanupDeletions []datafile.Location) (*StandardJob, error) {
	return NewStandardJobWithGeneratedID(tasks, fileLocations, preCopies, postCopies, cleanupDeletions)
}

// CreatePilotJobWithGeneratedID is a thin convenience wrapper over
// NewPilotJobWithGeneratedID.
func (m *JobManager) CreatePilotJobWithGeneratedID(resources []compute.ResourceSlot, expiration time.Duration) (*PilotJob, error) {
	return NewPilotJobWithGeneratedID(resources, expiration)
}

// SubmitJob submits a raw action.CompoundJob to cs, enforcing "a job is
// submitted at most once", and arranges for its completion/failure to be
// forwarded as a CompoundJobCompletedEvent/CompoundJobFailedEvent.
func (m *JobManager) SubmitJob(cs *compute.BareMetalComputeService, job *action.CompoundJob, args map[action.ID]string) error {
	if job == nil || cs == nil {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "job and compute service must not be nil"})
	}
	m.mu.Lock()
	if m.submitted[job.ID] {
		m.mu.Unlock()
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "job " + job.ID + " was already submitted"})
	}
	m.mu.Unlock()

	if err := cs.SubmitJob(job, args); err != nil {
		return err
	}

	m.mu.Lock()
	m.submitted[job.ID] = true
	m.mu.Unlock()

	m.ensureDispatcher(cs)
	return nil
}

// SubmitStandardJob lowers sj to its action.CompoundJob, submits that to cs,
// and arranges for the job's completion/failure to forward as a
// StandardJobCompletedEvent/StandardJobFailedEvent instead of the raw
// CompoundJob-level events.
func (m *JobManager) SubmitStandardJob(cs *compute.BareMetalComputeService, sj *StandardJob, args map[action.ID]string) error {
	if sj == nil {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "standard job must not be nil"})
	}
	cj, err := sj.Lower()
	if err != nil {
		return err
	}
	if err := m.SubmitJob(cs, cj, args); err != nil {
		return err
	}
	m.mu.Lock()
	m.standardJobs[cj.ID] = sj
	m.mu.Unlock()
	return nil
}

// SubmitPilotJob starts pj's child compute service and publishes
// PilotJobStartedEvent immediately, then PilotJobExpiredEvent once it
// expires (if it has an Expiration).
func (m *JobManager) SubmitPilotJob(pj *PilotJob) error {
	if pj == nil {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "pilot job must not be nil"})
	}
	m.mu.Lock()
	if m.submitted[pj.ID] {
		m.mu.Unlock()
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "pilot job " + pj.ID + " was already submitted"})
	}
	m.submitted[pj.ID] = true
	m.mu.Unlock()

	if err := pj.Start(m.sim, m.controlHost, m.logger, func() {
		m.publish("PilotJobExpired", PilotJobExpiredEvent{Job: pj})
	}); err != nil {
		return err
	}
	m.publish("PilotJobStarted", PilotJobStartedEvent{Job: pj})
	return nil
}

// TerminateJob forwards to the owning compute service's TerminateJob.
func (m *JobManager) TerminateJob(cs *compute.BareMetalComputeService, job *action.CompoundJob) error {
	return cs.TerminateJob(job)
}

// ensureDispatcher spawns exactly one forwarding actor per compute service,
// the first time that service is used — a single consumer of its EventPort
// avoids the race multiple concurrent Get waiters would have over which
// in-flight job a delivered message belongs to.
func (m *JobManager) ensureDispatcher(cs *compute.BareMetalComputeService) {
	m.mu.Lock()
	if m.dispatchers[cs] {
		m.mu.Unlock()
		return
	}
	m.dispatchers[cs] = true
	m.mu.Unlock()

	_, _ = m.sim.Spawn(m.controlHost, func(a *kernel.Actor) {
		for {
			msg, err := cs.EventPort.Get(a, 0)
			if err != nil {
				return
			}
			switch ev := msg.Payload.(type) {
			case compute.CompoundJobCompletedEvent:
				m.dispatchCompletion(a, cs, ev.Job, nil)
			case compute.CompoundJobFailedEvent:
				m.dispatchCompletion(a, cs, ev.Job, ev.Cause)
			}
		}
	})
}

func (m *JobManager) dispatchCompletion(a *kernel.Actor, cs *compute.BareMetalComputeService, job *action.CompoundJob, cause failurecause.FailureCause) {
	m.mu.Lock()
	sj := m.standardJobs[job.ID]
	m.mu.Unlock()

	if sj != nil {
		if cause == nil {
			m.publishVia(a, "StandardJobCompleted", StandardJobCompletedEvent{Job: sj, ComputeService: cs})
		} else {
			m.publishVia(a, "StandardJobFailed", StandardJobFailedEvent{Job: sj, ComputeService: cs, Cause: cause})
		}
		return
	}
	if cause == nil {
		m.publishVia(a, "CompoundJobCompleted", CompoundJobCompletedEvent{Job: job, ComputeService: cs})
	} else {
		m.publishVia(a, "CompoundJobFailed", CompoundJobFailedEvent{Job: job, ComputeService: cs, Cause: cause})
	}
}

// publishVia puts msg using an actor already in hand, avoiding a throwaway
// forwarding actor when one is already on the call stack (the dispatcher
// loop).
func (m *JobManager) publishVia(a *kernel.Actor, kind string, payload any) {
	if m.controllerPort == nil {
		return
	}
	_ = m.controllerPort.Put(a, commport.Message{Kind: kind, Payload: payload})
}

// publish is publishVia for callers with no actor of their own (e.g.
// SubmitPilotJob, called from outside any actor's run loop): it spawns a
// short-lived actor solely to carry the Put.
func (m *JobManager) publish(kind string, payload any) {
	if m.controllerPort == nil {
		return
	}
	_, _ = m.sim.Spawn(m.controlHost, func(a *kernel.Actor) {
		_ = m.controllerPort.Put(a, commport.Message{Kind: kind, Payload: payload})
	})
}
