package compute

import (
	"errors"
	"sync"
	"time"

	"github.com/joeycumines/wrenchsim/action"
	"github.com/joeycumines/wrenchsim/datafile"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/joeycumines/wrenchsim/storage"
)

type killReason int

const (
	noKill killReason = iota
	killByJobTermination
	killByHostCrash
)

// ActionExecutor is a short-lived actor that runs exactly one attempt of one
// Action under a fixed core/RAM reservation, then reports the outcome back
// to the owning BareMetalComputeService.
type ActionExecutor struct {
	host                   kernel.HostName
	numCores               int
	ram                    int64
	threadCreationOverhead time.Duration
	simulateComputeAsSleep bool

	action *action.Action
	job    *action.CompoundJob

	onDone func(actor *kernel.Actor, exec *ActionExecutor, wasCrash bool)

	mu       sync.Mutex
	finished bool
	reason   killReason

	actor *kernel.Actor
}

// kill implements the kill contract: atomically, under the executor's own
// lock, asks the kernel to kill the underlying actor. A no-op once the
// executor has already finished. jobTermination distinguishes a
// terminateJob-driven kill from a host-crash-driven kill, so the run loop's
// on-exit finalization can attach the right FailureCause.
func (e *ActionExecutor) kill(jobTermination bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	if jobTermination {
		e.reason = killByJobTermination
	} else if e.reason == noKill {
		e.reason = killByHostCrash
	}
	e.actor.Kill()
}

func (e *ActionExecutor) killReason() killReason {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reason
}

func (e *ActionExecutor) markFinished() {
	e.mu.Lock()
	e.finished = true
	e.mu.Unlock()
}

// run is the executor's actor body, spawned by BareMetalComputeService on
// e.host. It implements the four-step protocol: mark STARTED, execute,
// advance descendant readiness (left to the caller via onDone, since that
// needs the CompoundJob the executor doesn't itself mutate), set end_date
// and report.
func (e *ActionExecutor) run(a *kernel.Actor) {
	e.actor = a
	act := e.action
	act.StartDate = a.Sim().Now()
	act.State = action.Started
	act.AllocatedCores = e.numCores
	act.AllocatedRAM = e.ram
	act.ExecutionHost = e.host

	finalize := func(outcome action.State, cause failurecause.FailureCause) {
		act.EndDate = a.Sim().Now()
		act.State = outcome
		act.FailureCause = cause
		e.markFinished()
		e.onDone(a, e, e.killReason() == killByHostCrash)
	}

	if e.threadCreationOverhead > 0 {
		if err := a.Sleep(e.threadCreationOverhead); err != nil {
			e.finalizeKilled(finalize)
			return
		}
	}

	if err := e.execute(a); err != nil {
		if e.killReason() != noKill {
			e.finalizeKilled(finalize)
			return
		}
		var fc failurecause.FailureCause
		if !errors.As(err, &fc) {
			fc = &failurecause.InvalidArgument{Message: err.Error()}
		}
		finalize(action.Failed, fc)
		return
	}
	finalize(action.Completed, nil)
}

func (e *ActionExecutor) finalizeKilled(finalize func(action.State, failurecause.FailureCause)) {
	switch e.killReason() {
	case killByJobTermination:
		finalize(action.Killed, &failurecause.JobKilled{JobID: e.job.ID})
	default:
		finalize(action.Failed, &failurecause.HostError{Host: string(e.host)})
	}
}

func (e *ActionExecutor) execute(a *kernel.Actor) error {
	act := e.action
	switch act.Kind {
	case action.Sleep:
		return a.Sleep(time.Duration(act.SleepSeconds * float64(time.Second)))

	case action.Compute:
		host, ok := a.Sim().Host(e.host)
		if !ok || host.Speed <= 0 {
			return failurecause.Wrap(&failurecause.InvalidArgument{Message: "host has no valid compute speed"})
		}
		// simulate_compute_as_sleep is a no-op here: Compute's cost is
		// already modeled analytically as a duration, not as literal CPU
		// contention, so there is no heavier body to replace.
		seconds := act.Flops / (host.Speed * float64(e.numCores))
		return a.Sleep(time.Duration(seconds * float64(time.Second)))

	case action.FileRead:
		ss, err := storageServiceOf(act.FileLocation)
		if err != nil {
			return err
		}
		return ss.ReadFile(a, act.FileLocation)

	case action.FileWrite:
		ss, err := storageServiceOf(act.FileLocation)
		if err != nil {
			return err
		}
		return ss.WriteFile(a, act.FileLocation)

	case action.FileDelete:
		ss, err := storageServiceOf(act.FileLocation)
		if err != nil {
			return err
		}
		_, err = ss.DeleteFile(act.FileLocation)
		return err

	case action.FileCopy:
		src, err := storageServiceOf(act.SrcLocation)
		if err != nil {
			return err
		}
		dst, err := storageServiceOf(act.DstLocation)
		if err != nil {
			return err
		}
		return storage.CopyFile(a, src, act.SrcLocation, dst, act.DstLocation)

	case action.Custom:
		if act.CustomFn == nil {
			return failurecause.Wrap(&failurecause.InvalidArgument{Message: "custom action " + string(act.ID) + " has no function"})
		}
		return act.CustomFn(action.Context{Actor: a, Action: act})

	default:
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "unsupported action kind " + string(act.Kind)})
	}
}

func storageServiceOf(loc datafile.Location) (*storage.StorageService, error) {
	ss, ok := loc.Service.(*storage.StorageService)
	if !ok {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "location is not backed by a storage service"})
	}
	return ss, nil
}
