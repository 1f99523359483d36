// Package action implements Action (the smallest unit of work an executor
// runs) and CompoundJob (the DAG of actions submitted as a unit), per the
// arena-keyed-by-id graph representation: adjacency lists hold ids, not
// owning pointers, so back-edges never leak ownership.
package action

import (
	"github.com/joeycumines/wrenchsim/datafile"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/kernel"
)

// ID identifies an Action within a CompoundJob.
type ID string

// Kind is the tagged variant of work an Action performs.
type Kind string

const (
	Sleep      Kind = "Sleep"
	Compute    Kind = "Compute"
	FileRead   Kind = "FileRead"
	FileWrite  Kind = "FileWrite"
	FileCopy   Kind = "FileCopy"
	FileDelete Kind = "FileDelete"
	Custom     Kind = "Custom"
)

// State is an Action's position in its lifecycle.
type State int

const (
	NotReady State = iota
	Ready
	Started
	Completed
	Failed
	Killed
)

func (s State) String() string {
	switch s {
	case NotReady:
		return "NotReady"
	case Ready:
		return "Ready"
	case Started:
		return "Started"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case Killed:
		return "Killed"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is one of {Completed, Failed, Killed}.
func (s State) IsTerminal() bool {
	return s == Completed || s == Failed || s == Killed
}

// Attempt records one STARTED execution of an Action, oldest on the bottom
// of Action.ExecutionHistory.
type Attempt struct {
	StartDate, EndDate int64
	AllocatedCores     int
	AllocatedRAM       int64
	Host               kernel.HostName
	Outcome            State
	FailureCause       failurecause.FailureCause
}

// Action is one node of a CompoundJob's DAG.
type Action struct {
	ID       ID
	Kind     Kind
	MinCores int
	MaxCores int
	RAM      int64
	Priority int

	State    State
	Parents  []ID
	Children []ID

	ExecutionHistory []Attempt
	StartDate        int64
	EndDate          int64
	FailureCause     failurecause.FailureCause

	AllocatedCores int
	AllocatedRAM   int64
	ExecutionHost  kernel.HostName

	// Kind-specific parameters.
	SleepSeconds float64
	Flops        float64
	FileLocation datafile.Location
	SrcLocation  datafile.Location
	DstLocation  datafile.Location
	CustomFn     func(exec Context) error
}

// Context is what a Custom action's CustomFn runs with: the executing
// actor, for suspension primitives, and the action itself, for reading its
// configured parameters.
type Context struct {
	Actor  *kernel.Actor
	Action *Action
}

// NewAction constructs an Action with the given id/kind, initial state
// NotReady (promoted to Ready once its CompoundJob is finalized, if it has
// no parents).
func NewAction(id ID, kind Kind, minCores, maxCores int, ram int64, priority int) *Action {
	return &Action{
		ID:       id,
		Kind:     kind,
		MinCores: minCores,
		MaxCores: maxCores,
		RAM:      ram,
		Priority: priority,
		State:    NotReady,
	}
}

// PushAttempt records the outcome of the Action's current attempt onto its
// execution history, in preparation for a possible retry. The per-attempt
// fields (StartDate, EndDate, allocation, FailureCause) are left as they are.
func (a *Action) PushAttempt(outcome State) {
	a.ExecutionHistory = append(a.ExecutionHistory, Attempt{
		StartDate:      a.StartDate,
		EndDate:        a.EndDate,
		AllocatedCores: a.AllocatedCores,
		AllocatedRAM:   a.AllocatedRAM,
		Host:           a.ExecutionHost,
		Outcome:        outcome,
		FailureCause:   a.FailureCause,
	})
}
