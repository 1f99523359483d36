package action

import "github.com/joeycumines/wrenchsim/failurecause"

// JobState is a CompoundJob's submission lifecycle, distinct from the
// lifecycle of the Actions it contains.
type JobState int

const (
	NotSubmitted JobState = iota
	Submitted
	CompletedJob
	Discontinued
)

func (s JobState) String() string {
	switch s {
	case NotSubmitted:
		return "NotSubmitted"
	case Submitted:
		return "Submitted"
	case CompletedJob:
		return "Completed"
	case Discontinued:
		return "Discontinued"
	default:
		return "Unknown"
	}
}

// CompoundJob is a DAG of Actions submitted to a compute service as a unit.
// The graph is an arena: Actions is keyed by stable id, and adjacency
// (Action.Parents/Children) holds ids rather than pointers, so the graph can
// be walked without chasing ownership through pointer cycles.
type CompoundJob struct {
	ID      string
	Actions map[ID]*Action
	State   JobState

	// Priority is the job-level scheduling priority. Higher runs first
	// among ready actions of equal action-level priority.
	Priority int
}

// NewCompoundJob constructs an empty CompoundJob.
func NewCompoundJob(id string, priority int) *CompoundJob {
	return &CompoundJob{
		ID:       id,
		Actions:  make(map[ID]*Action),
		State:    NotSubmitted,
		Priority: priority,
	}
}

// AddAction inserts a into the job's arena. Rejects a nil Action, a
// duplicate id, or addition after submission.
func (j *CompoundJob) AddAction(a *Action) error {
	if a == nil {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "action must not be nil"})
	}
	if j.State != NotSubmitted {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "cannot add actions to job " + j.ID + " after submission"})
	}
	if _, exists := j.Actions[a.ID]; exists {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "duplicate action id " + string(a.ID)})
	}
	j.Actions[a.ID] = a
	return nil
}

// AddDependency makes child depend on parent's completion. Rejects unknown
// ids, a self-dependency, a duplicate edge, and any edge that would close a
// cycle, detected by a DFS from child forward through the existing
// children-adjacency in search of parent.
func (j *CompoundJob) AddDependency(parent, child ID) error {
	if j.State != NotSubmitted {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "cannot modify job " + j.ID + " dependencies after submission"})
	}
	if parent == child {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "action " + string(parent) + " cannot depend on itself"})
	}
	p, ok := j.Actions[parent]
	if !ok {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "unknown parent action " + string(parent)})
	}
	c, ok := j.Actions[child]
	if !ok {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "unknown child action " + string(child)})
	}
	for _, existing := range p.Children {
		if existing == child {
			return failurecause.Wrap(&failurecause.InvalidArgument{Message: "dependency " + string(parent) + " -> " + string(child) + " already exists"})
		}
	}
	if j.reaches(child, parent) {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "adding " + string(parent) + " -> " + string(child) + " would close a cycle"})
	}

	p.Children = append(p.Children, child)
	c.Parents = append(c.Parents, parent)
	if c.State == Ready {
		c.State = NotReady
	}
	return nil
}

// reaches reports whether to is reachable from from by following
// children-adjacency.
func (j *CompoundJob) reaches(from, to ID) bool {
	visited := make(map[ID]bool)
	var dfs func(ID) bool
	dfs = func(id ID) bool {
		if id == to {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		a := j.Actions[id]
		if a == nil {
			return false
		}
		for _, next := range a.Children {
			if dfs(next) {
				return true
			}
		}
		return false
	}
	return dfs(from)
}

// Finalize promotes every still-NotReady, zero-parent action to Ready. It
// is idempotent and must be called once, at submission time, before a
// compute service starts scheduling the job's actions.
func (j *CompoundJob) Finalize() error {
	if len(j.Actions) == 0 {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "job " + j.ID + " has no actions"})
	}
	for _, a := range j.Actions {
		if a.State == NotReady && len(a.Parents) == 0 {
			a.State = Ready
		}
	}
	return nil
}

// HasBlockedAncestor reports whether any transitive parent of id is Failed
// or Killed, meaning id can never become Ready.
func (j *CompoundJob) HasBlockedAncestor(id ID) bool {
	visited := make(map[ID]bool)
	var dfs func(ID) bool
	dfs = func(id ID) bool {
		a := j.Actions[id]
		if a == nil {
			return false
		}
		for _, pid := range a.Parents {
			if visited[pid] {
				continue
			}
			visited[pid] = true
			p := j.Actions[pid]
			if p == nil {
				continue
			}
			if p.State == Failed || p.State == Killed {
				return true
			}
			if dfs(pid) {
				return true
			}
		}
		return false
	}
	return dfs(id)
}

// PromoteReadyChildren promotes each child of the just-completed action
// whose parents have all Completed from NotReady to Ready. Called by a
// compute service after it observes an action transition to Completed.
func (j *CompoundJob) PromoteReadyChildren(completed ID) []ID {
	a := j.Actions[completed]
	if a == nil {
		return nil
	}
	var promoted []ID
	for _, cid := range a.Children {
		c := j.Actions[cid]
		if c == nil || c.State != NotReady {
			continue
		}
		allDone := true
		for _, pid := range c.Parents {
			p := j.Actions[pid]
			if p == nil || p.State != Completed {
				allDone = false
				break
			}
		}
		if allDone {
			c.State = Ready
			promoted = append(promoted, cid)
		}
	}
	return promoted
}

// IsTerminal reports whether the job has no action left that could still
// run: every action is either in a terminal state, or NotReady with a
// blocked ancestor that will never complete.
func (j *CompoundJob) IsTerminal() bool {
	for id, a := range j.Actions {
		switch a.State {
		case Completed, Failed, Killed:
			continue
		case Ready, Started:
			return false
		case NotReady:
			if !j.HasBlockedAncestor(id) {
				return false
			}
		}
	}
	return true
}

// Succeeded reports whether every action in the job Completed. Only
// meaningful once IsTerminal is true.
func (j *CompoundJob) Succeeded() bool {
	for _, a := range j.Actions {
		if a.State != Completed {
			return false
		}
	}
	return true
}

// ReadyActions returns the ids of every action currently in the Ready
// state, in map iteration order (callers that need a stable order, e.g. for
// priority/FIFO scheduling, must sort the result themselves).
func (j *CompoundJob) ReadyActions() []ID {
	var ready []ID
	for id, a := range j.Actions {
		if a.State == Ready {
			ready = append(ready, id)
		}
	}
	return ready
}
