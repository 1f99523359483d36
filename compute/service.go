// Package compute implements BareMetalComputeService: a scheduler that
// accepts CompoundJobs and runs their ready Actions on ActionExecutors under
// a fixed pool of (host, cores, RAM) slots.
package compute

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joeycumines/wrenchsim/action"
	"github.com/joeycumines/wrenchsim/commport"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/joeycumines/wrenchsim/service"
	"github.com/joeycumines/wrenchsim/storage"
	"github.com/rs/zerolog"
)

// ResourceSlot describes one (host, cores, RAM) partition the service may
// schedule work onto.
type ResourceSlot struct {
	Host  kernel.HostName
	Cores int
	RAM   int64
}

type hostSlot struct {
	totalCores int
	totalRAM   int64
	idleCores  int
	freeRAM    int64
}

// Option configures a BareMetalComputeService at construction time.
type Option interface{ apply(*config) error }

type config struct {
	taskStartupOverhead      time.Duration
	failActionAfterCrash     bool
	legacyUnconditionalRetry bool
	simulateComputeAsSleep   bool
	scratch                  *storage.StorageService
	ttl                      time.Duration
}

type optionFunc func(*config) error

func (f optionFunc) apply(c *config) error { return f(c) }

// WithTaskStartupOverhead sets TASK_STARTUP_OVERHEAD: every executor sleeps
// this long before running its action's body, modeling thread-creation
// cost.
func WithTaskStartupOverhead(d time.Duration) Option {
	return optionFunc(func(c *config) error {
		if d < 0 {
			return failurecause.Wrap(&failurecause.InvalidArgument{Message: "task startup overhead must not be negative"})
		}
		c.taskStartupOverhead = d
		return nil
	})
}

// WithFailActionAfterActionExecutorCrash sets
// FAIL_ACTION_AFTER_ACTION_EXECUTOR_CRASH. true (the default) leaves a
// crashed action FAILED with no retry; false re-queues it as READY with the
// crash recorded as a past execution_history attempt.
func WithFailActionAfterActionExecutorCrash(b bool) Option {
	return optionFunc(func(c *config) error {
		c.failActionAfterCrash = b
		return nil
	})
}

// WithLegacyUnconditionalRetry enables the legacy behavior of older service
// variants: any action failure, not just an executor crash, is retried.
// Unwired by default; opt in only to exercise or reproduce that behavior.
func WithLegacyUnconditionalRetry() Option {
	return optionFunc(func(c *config) error {
		c.legacyUnconditionalRetry = true
		return nil
	})
}

// WithSimulateComputeAsSleep toggles simulate_compute_as_sleep, preserved as
// a construction-time property for API parity; Compute actions already cost
// an analytic sleep-equivalent duration in this simulator, so the flag has
// no further effect on behavior.
func WithSimulateComputeAsSleep(b bool) Option {
	return optionFunc(func(c *config) error {
		c.simulateComputeAsSleep = b
		return nil
	})
}

// WithScratchStorageService attaches an optional scratch storage service.
// The service is only stored: ActionExecutor does not resolve
// datafile.Scratch locations against it, so an action whose location is a
// Scratch sentinel fails with InvalidArgument.
func WithScratchStorageService(ss *storage.StorageService) Option {
	return optionFunc(func(c *config) error {
		c.scratch = ss
		return nil
	})
}

// WithTTL bounds the service's remaining lifetime, consumed by
// canRunJob/GetTTL; used for PilotJob-backed child compute services. Zero
// (the default) means unlimited.
func WithTTL(d time.Duration) Option {
	return optionFunc(func(c *config) error {
		if d < 0 {
			return failurecause.Wrap(&failurecause.InvalidArgument{Message: "ttl must not be negative"})
		}
		c.ttl = d
		return nil
	})
}

// placement is a parsed, validated placement hint.
type placement struct {
	host     kernel.HostName
	hasHost  bool
	cores    int
	hasCores bool
}

// BareMetalComputeService schedules CompoundJob actions across a fixed pool
// of host slots.
type BareMetalComputeService struct {
	*service.Base

	sim         *kernel.Simulation
	controlHost kernel.HostName
	logger      *zerolog.Logger

	slots map[kernel.HostName]*hostSlot
	cfg   config

	jobs           map[string]*action.CompoundJob
	placementHints map[string]map[action.ID]placement
	submissionSeq  map[action.ID]uint64
	seqCounter     uint64

	executors     map[action.ID]*ActionExecutor
	hostExecutors map[kernel.HostName]map[action.ID]*ActionExecutor

	// EventPort carries CompoundJobCompletedEvent/CompoundJobFailedEvent to
	// whatever forwards them onward (a JobManager's subscribing actor).
	EventPort *commport.CommPort
}

// NewBareMetalComputeService constructs a service owning the given
// resource slots, each carved out of an existing, up host.
func NewBareMetalComputeService(sim *kernel.Simulation, name string, controlHost kernel.HostName, resources []ResourceSlot, logger *zerolog.Logger, opts ...Option) (*BareMetalComputeService, error) {
	if sim == nil {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "simulation must not be nil"})
	}
	if len(resources) == 0 {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "compute service requires at least one resource slot"})
	}
	if _, ok := sim.Host(controlHost); !ok {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "control host " + string(controlHost) + " does not exist"})
	}

	cfg := config{failActionAfterCrash: true}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o.apply(&cfg); err != nil {
			return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: err.Error()})
		}
	}

	slots := make(map[kernel.HostName]*hostSlot, len(resources))
	for _, r := range resources {
		host, ok := sim.Host(r.Host)
		if !ok {
			return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "unknown host " + string(r.Host)})
		}
		if _, dup := slots[r.Host]; dup {
			return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "duplicate resource slot for host " + string(r.Host)})
		}
		if r.Cores <= 0 || r.Cores > host.CoreCount {
			return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "invalid core count for host " + string(r.Host)})
		}
		if r.RAM < 0 || r.RAM > host.RAM {
			return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "invalid RAM for host " + string(r.Host)})
		}
		slots[r.Host] = &hostSlot{totalCores: r.Cores, totalRAM: r.RAM, idleCores: r.Cores, freeRAM: r.RAM}
	}

	port := commport.NewCommPort(sim, name, controlHost, 0)
	s := &BareMetalComputeService{
		Base:           service.NewBase(name, port, logger, nil, nil),
		sim:            sim,
		controlHost:    controlHost,
		logger:         logger,
		slots:          slots,
		cfg:            cfg,
		jobs:           make(map[string]*action.CompoundJob),
		placementHints: make(map[string]map[action.ID]placement),
		submissionSeq:  make(map[action.ID]uint64),
		executors:      make(map[action.ID]*ActionExecutor),
		hostExecutors:  make(map[kernel.HostName]map[action.ID]*ActionExecutor),
		EventPort:      commport.NewCommPort(sim, name+"-events", controlHost, 0),
	}
	return s, nil
}

// Name returns the service's configured name.
func (s *BareMetalComputeService) Name() string { return s.Base.Name }

// parsePlacementHint parses the "HOST | HOST:CORES | CORES" grammar.
func (s *BareMetalComputeService) parsePlacementHint(hint string) (placement, error) {
	if hint == "" {
		return placement{}, nil
	}
	if host, cores, found := strings.Cut(hint, ":"); found {
		n, err := strconv.Atoi(cores)
		if err != nil || n <= 0 {
			return placement{}, failurecause.Wrap(&failurecause.InvalidArgument{Message: "malformed placement hint " + hint})
		}
		slot, ok := s.slots[kernel.HostName(host)]
		if !ok || n > slot.totalCores {
			return placement{}, failurecause.Wrap(&failurecause.InvalidArgument{Message: "placement hint " + hint + " names an unknown host or too many cores"})
		}
		return placement{host: kernel.HostName(host), hasHost: true, cores: n, hasCores: true}, nil
	}
	if n, err := strconv.Atoi(hint); err == nil {
		if n <= 0 {
			return placement{}, failurecause.Wrap(&failurecause.InvalidArgument{Message: "malformed placement hint " + hint})
		}
		return placement{cores: n, hasCores: true}, nil
	}
	if _, ok := s.slots[kernel.HostName(hint)]; !ok {
		return placement{}, failurecause.Wrap(&failurecause.InvalidArgument{Message: "placement hint " + hint + " names an unknown host"})
	}
	return placement{host: kernel.HostName(hint), hasHost: true}, nil
}

// canEverPlace reports whether a could ever be scheduled under p, ignoring
// current load (used by SubmitJob's up-front feasibility check).
func (s *BareMetalComputeService) canEverPlace(a *action.Action, p placement) bool {
	check := func(slot *hostSlot) bool {
		cores := a.MinCores
		if p.hasCores {
			cores = p.cores
		}
		if cores > slot.totalCores || a.MinCores > slot.totalCores {
			return false
		}
		return a.RAM <= slot.totalRAM
	}
	if p.hasHost {
		slot, ok := s.slots[p.host]
		return ok && check(slot)
	}
	for _, slot := range s.slots {
		if check(slot) {
			return true
		}
	}
	return false
}

// SubmitJob validates and registers job for scheduling. args maps action id
// to an optional placement hint. Rejects, without side effects, any job
// that cannot fit under any placement.
func (s *BareMetalComputeService) SubmitJob(job *action.CompoundJob, args map[action.ID]string) error {
	if err := s.CheckUp(); err != nil {
		return err
	}
	if job == nil {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "job must not be nil"})
	}
	if _, exists := s.jobs[job.ID]; exists || job.State != action.NotSubmitted {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "job " + job.ID + " was already submitted"})
	}

	hints := make(map[action.ID]placement, len(args))
	for id, hint := range args {
		if _, ok := job.Actions[id]; !ok {
			return failurecause.Wrap(&failurecause.InvalidArgument{Message: "placement hint names unknown action " + string(id)})
		}
		p, err := s.parsePlacementHint(hint)
		if err != nil {
			return err
		}
		hints[id] = p
	}
	for id, a := range job.Actions {
		if !s.canEverPlace(a, hints[id]) {
			return failurecause.Wrap(&failurecause.NotEnoughResources{JobID: job.ID, ServiceName: s.Name()})
		}
	}

	if err := job.Finalize(); err != nil {
		return err
	}
	job.State = action.Submitted
	s.jobs[job.ID] = job
	s.placementHints[job.ID] = hints
	for id := range job.Actions {
		s.seqCounter++
		s.submissionSeq[id] = s.seqCounter
	}
	s.scheduleReadyActions()
	return nil
}

// TerminateJob kills every running executor of job, transitions its unrun
// ready actions to KILLED, and discontinues it.
func (s *BareMetalComputeService) TerminateJob(job *action.CompoundJob) error {
	if err := s.CheckUp(); err != nil {
		return err
	}
	if job.State != action.Submitted {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "job " + job.ID + " is not running"})
	}
	for id, a := range job.Actions {
		switch a.State {
		case action.Ready:
			a.State = action.Killed
			a.FailureCause = &failurecause.JobKilled{JobID: job.ID}
		case action.Started:
			if exec, ok := s.executors[id]; ok {
				exec.kill(true)
			}
		}
	}
	job.State = action.Discontinued
	return nil
}

// Stop transitions the service Down and kills every in-flight executor, the
// same way TerminateJob kills a single job's executors, then discontinues
// every still-submitted job. Like TerminateJob and kernel.Actor.Kill, must be
// called from the Simulation's dispatch loop goroutine whenever an executor
// may be running.
func (s *BareMetalComputeService) Stop() error {
	if s.State() == service.Down {
		return nil
	}
	for _, exec := range s.executors {
		exec.kill(true)
	}
	for _, job := range s.jobs {
		if job.State != action.Submitted {
			continue
		}
		for _, a := range job.Actions {
			if a.State == action.Ready {
				a.State = action.Killed
				a.FailureCause = &failurecause.ServiceIsDown{ServiceName: s.Name()}
			}
		}
		job.State = action.Discontinued
	}
	return s.Base.Stop()
}

// candidate pairs a ready action with its job, for the priority/FIFO sort.
type candidate struct {
	job *action.CompoundJob
	a   *action.Action
	seq uint64
}

// scheduleReadyActions implements the scheduling loop: gather every ready
// action across submitted jobs, sort by (descending action priority,
// descending job priority, FIFO submission order), and place each in turn,
// parking any that don't currently fit.
// A no-op unless the service is Up — Down/Suspended must not place new work.
func (s *BareMetalComputeService) scheduleReadyActions() {
	if s.State() != service.Up {
		return
	}
	var candidates []candidate
	for _, job := range s.jobs {
		if job.State != action.Submitted {
			continue
		}
		for _, id := range job.ReadyActions() {
			candidates = append(candidates, candidate{job: job, a: job.Actions[id], seq: s.submissionSeq[id]})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].a.Priority != candidates[j].a.Priority {
			return candidates[i].a.Priority > candidates[j].a.Priority
		}
		if candidates[i].job.Priority != candidates[j].job.Priority {
			return candidates[i].job.Priority > candidates[j].job.Priority
		}
		return candidates[i].seq < candidates[j].seq
	})

	for _, cd := range candidates {
		host, cores, ok := s.place(cd.job, cd.a)
		if !ok {
			continue
		}
		s.startExecutor(cd.job, cd.a, host, cores)
	}
}

func (s *BareMetalComputeService) place(job *action.CompoundJob, a *action.Action) (kernel.HostName, int, bool) {
	p := s.placementHints[job.ID][a.ID]

	fits := func(host kernel.HostName, slot *hostSlot) (int, bool) {
		if h, ok := s.sim.Host(host); !ok || !h.Up() {
			return 0, false
		}
		if a.MinCores > slot.idleCores || a.RAM > slot.freeRAM {
			return 0, false
		}
		cores := slot.idleCores
		if p.hasCores {
			cores = p.cores
			if cores > slot.idleCores {
				return 0, false
			}
		} else if cores > a.MaxCores {
			cores = a.MaxCores
		}
		if cores < a.MinCores {
			return 0, false
		}
		return cores, true
	}

	if p.hasHost {
		slot, ok := s.slots[p.host]
		if !ok {
			return "", 0, false
		}
		cores, ok := fits(p.host, slot)
		return p.host, cores, ok
	}

	var bestHost kernel.HostName
	var bestCores int
	found := false
	for host, slot := range s.slots {
		cores, ok := fits(host, slot)
		if !ok {
			continue
		}
		if !found || slot.idleCores > s.slots[bestHost].idleCores ||
			(slot.idleCores == s.slots[bestHost].idleCores && host < bestHost) {
			bestHost, bestCores, found = host, cores, true
		}
	}
	return bestHost, bestCores, found
}

func (s *BareMetalComputeService) startExecutor(job *action.CompoundJob, a *action.Action, host kernel.HostName, cores int) {
	slot := s.slots[host]
	slot.idleCores -= cores
	slot.freeRAM -= a.RAM

	exec := &ActionExecutor{
		host:                   host,
		numCores:               cores,
		ram:                    a.RAM,
		threadCreationOverhead: s.cfg.taskStartupOverhead,
		simulateComputeAsSleep: s.cfg.simulateComputeAsSleep,
		action:                 a,
		job:                    job,
		onDone:                 s.onExecutorDone,
	}
	s.executors[a.ID] = exec
	if s.hostExecutors[host] == nil {
		s.hostExecutors[host] = make(map[action.ID]*ActionExecutor)
	}
	s.hostExecutors[host][a.ID] = exec

	_, _ = s.sim.Spawn(host, exec.run)
}

func (s *BareMetalComputeService) onExecutorDone(actor *kernel.Actor, exec *ActionExecutor, wasCrash bool) {
	slot := s.slots[exec.host]
	slot.idleCores += exec.numCores
	slot.freeRAM += exec.ram
	delete(s.executors, exec.action.ID)
	if m := s.hostExecutors[exec.host]; m != nil {
		delete(m, exec.action.ID)
	}

	job := exec.job
	a := exec.action

	switch a.State {
	case action.Completed:
		job.PromoteReadyChildren(a.ID)
	case action.Failed:
		retry := (wasCrash && !s.cfg.failActionAfterCrash) || s.cfg.legacyUnconditionalRetry
		a.PushAttempt(action.Failed)
		if retry {
			a.FailureCause = nil
			a.State = action.Ready
		}
	case action.Killed:
		a.PushAttempt(action.Killed)
	}

	if job.State != action.Submitted {
		return
	}
	if job.IsTerminal() {
		if job.Succeeded() {
			job.State = action.CompletedJob
			s.publish(actor, "CompoundJobCompleted", CompoundJobCompletedEvent{Job: job})
		} else {
			job.State = action.Discontinued
			s.publish(actor, "CompoundJobFailed", CompoundJobFailedEvent{Job: job, Cause: &failurecause.SomeActionsHaveFailed{JobID: job.ID}})
		}
		return
	}
	s.scheduleReadyActions()
}

func (s *BareMetalComputeService) publish(actor *kernel.Actor, kind string, payload any) {
	msg := commport.Message{Kind: kind, Payload: payload}
	if actor.Killed() {
		// A killed executor's own Put fails at its first suspension, so a
		// fresh actor on the control host carries the event instead.
		_, _ = s.sim.Spawn(s.controlHost, func(a *kernel.Actor) { _ = s.EventPort.Put(a, msg) })
		return
	}
	_ = s.EventPort.Put(actor, msg)
}

// NotifyHostDown fails every executor currently running on host with
// HostError, per the host-crash contract: the service itself stays up.
// Callers crash a host by flipping kernel.Host's up flag and then invoking
// this method, since Simulation has no built-in host-state pub/sub.
func (s *BareMetalComputeService) NotifyHostDown(host kernel.HostName) {
	for _, exec := range s.hostExecutors[host] {
		exec.kill(false)
	}
}

// NotifyHostUp re-enters the scheduling loop after host recovers, so any
// actions parked waiting on its slots get a chance to place.
func (s *BareMetalComputeService) NotifyHostUp(_ kernel.HostName) {
	s.scheduleReadyActions()
}

// GetPerHostAvailableMemoryCapacity returns each host slot's free RAM, read
// directly from the service's ledger (no daemon round trip). Fails unless
// the service is Up.
func (s *BareMetalComputeService) GetPerHostAvailableMemoryCapacity() (map[kernel.HostName]int64, error) {
	if err := s.CheckUp(); err != nil {
		return nil, err
	}
	out := make(map[kernel.HostName]int64, len(s.slots))
	for h, slot := range s.slots {
		out[h] = slot.freeRAM
	}
	return out, nil
}

// GetNumIdleCores returns each host slot's idle core count, read directly
// from the service's ledger (no daemon round trip). Fails unless the
// service is Up.
func (s *BareMetalComputeService) GetNumIdleCores() (map[kernel.HostName]int, error) {
	if err := s.CheckUp(); err != nil {
		return nil, err
	}
	out := make(map[kernel.HostName]int, len(s.slots))
	for h, slot := range s.slots {
		out[h] = slot.idleCores
	}
	return out, nil
}

// GetCoreFlopRate returns each slot host's per-core speed, read directly
// from the platform (no daemon round trip). Fails unless the service is Up.
func (s *BareMetalComputeService) GetCoreFlopRate() (map[kernel.HostName]float64, error) {
	if err := s.CheckUp(); err != nil {
		return nil, err
	}
	out := make(map[kernel.HostName]float64, len(s.slots))
	for h := range s.slots {
		host, _ := s.sim.Host(h)
		out[h] = host.Speed
	}
	return out, nil
}

// GetTTL returns the configured TTL, read directly from the service's
// configuration (no daemon round trip). Zero means unlimited. Fails unless
// the service is Up.
func (s *BareMetalComputeService) GetTTL() (time.Duration, error) {
	if err := s.CheckUp(); err != nil {
		return 0, err
	}
	return s.cfg.ttl, nil
}

func (s *BareMetalComputeService) maxIdleCores() int {
	max := 0
	for _, slot := range s.slots {
		if slot.idleCores > max {
			max = slot.idleCores
		}
	}
	return max
}

func (s *BareMetalComputeService) maxCoreFlopRate() float64 {
	var max float64
	for h := range s.slots {
		host, ok := s.sim.Host(h)
		if ok && host.Speed > max {
			max = host.Speed
		}
	}
	return max
}

// CanRunJob is the canRunJob gatekeeper: false if DOWN, false if idle_cores
// is below minCores, false if a positive TTL can't cover flops at the
// fastest single core's rate. The TTL check is deliberately conservative
// (single-core, sequential-execution assumption), per the source's own
// acknowledgment that it is an overestimate of remaining risk.
func (s *BareMetalComputeService) CanRunJob(minCores int, flops float64) bool {
	if s.State() != service.Up {
		return false
	}
	if s.maxIdleCores() < minCores {
		return false
	}
	if s.cfg.ttl > 0 {
		rate := s.maxCoreFlopRate()
		if rate <= 0 || float64(s.cfg.ttl)/float64(time.Second) < flops/rate {
			return false
		}
	}
	return true
}

// CompoundJobCompletedEvent is published to EventPort when every action of
// a job has Completed.
type CompoundJobCompletedEvent struct{ Job *action.CompoundJob }

// CompoundJobFailedEvent is published to EventPort when a job reaches a
// terminal state with at least one non-Completed action.
type CompoundJobFailedEvent struct {
	Job   *action.CompoundJob
	Cause failurecause.FailureCause
}
