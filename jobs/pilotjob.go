package jobs

import (
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/wrenchsim/compute"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/rs/zerolog"
)

// PilotJobState is a PilotJob's position in its lifecycle.
type PilotJobState int

const (
	PilotJobNotStarted PilotJobState = iota
	PilotJobStarted
	PilotJobExpired
)

func (s PilotJobState) String() string {
	switch s {
	case PilotJobNotStarted:
		return "NotStarted"
	case PilotJobStarted:
		return "Started"
	case PilotJobExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// PilotJob reserves a pool of resources for a bounded (or unbounded)
// duration and, once started, exposes a dynamically created compute service
// carved out of that reservation — a sub-allocation a job manager can then
// submit ordinary CompoundJobs/StandardJobs to.
type PilotJob struct {
	ID                  string
	RequestedResources  []compute.ResourceSlot
	Expiration          time.Duration // zero means no expiration
	ChildComputeService *compute.BareMetalComputeService

	State PilotJobState
}

// NewPilotJob constructs a PilotJob requesting resources, with an optional
// expiration (zero means the pilot job runs until explicitly stopped).
func NewPilotJob(id string, resources []compute.ResourceSlot, expiration time.Duration) (*PilotJob, error) {
	if id == "" {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "pilot job id must not be empty"})
	}
	if len(resources) == 0 {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "pilot job " + id + " requests no resources"})
	}
	if expiration < 0 {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "pilot job " + id + " has a negative expiration"})
	}
	return &PilotJob{ID: id, RequestedResources: resources, Expiration: expiration, State: PilotJobNotStarted}, nil
}

// NewPilotJobWithGeneratedID is NewPilotJob with a generated id (a random
// UUID), for callers with no natural id of their own.
func NewPilotJobWithGeneratedID(resources []compute.ResourceSlot, expiration time.Duration) (*PilotJob, error) {
	return NewPilotJob(uuid.NewString(), resources, expiration)
}

// Start carves out the pilot job's ChildComputeService on sim, bound to
// controlHost, and (if Expiration is set) arranges for onExpire to be
// invoked — and the child service stopped — once Expiration elapses.
// Rejects a job that has already been started.
func (pj *PilotJob) Start(sim *kernel.Simulation, controlHost kernel.HostName, logger *zerolog.Logger, onExpire func()) error {
	if pj.State != PilotJobNotStarted {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "pilot job " + pj.ID + " was already started"})
	}

	var opts []compute.Option
	if pj.Expiration > 0 {
		opts = append(opts, compute.WithTTL(pj.Expiration))
	}
	svc, err := compute.NewBareMetalComputeService(sim, pj.ID, controlHost, pj.RequestedResources, logger, opts...)
	if err != nil {
		return err
	}

	pj.ChildComputeService = svc
	pj.State = PilotJobStarted

	if pj.Expiration > 0 {
		sim.Schedule(pj.Expiration, func() {
			if pj.State != PilotJobStarted {
				return
			}
			pj.State = PilotJobExpired
			_ = svc.Stop()
			if onExpire != nil {
				onExpire()
			}
		})
	}
	return nil
}

// Stop transitions a started pilot job straight to Expired, stopping its
// child compute service early (e.g. the controller no longer needs it,
// ahead of any configured Expiration).
func (pj *PilotJob) Stop() error {
	if pj.State != PilotJobStarted {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "pilot job " + pj.ID + " is not running"})
	}
	pj.State = PilotJobExpired
	return pj.ChildComputeService.Stop()
}
