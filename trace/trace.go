// Package trace assembles the ordered simulation-output trace: a sequence of
// timestamped entries, each pair of Start/Completion (or Start/Failure/
// Termination) endpoints carrying mutual pointers so a consumer can
// reconstruct episodes without re-matching by id.
package trace

import (
	"sort"
	"sync"

	"github.com/joeycumines/wrenchsim/action"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/kernel"
)

// EntryKind tags one row of the trace.
type EntryKind string

const (
	TaskStart       EntryKind = "TaskStart"
	TaskCompletion  EntryKind = "TaskCompletion"
	TaskFailure     EntryKind = "TaskFailure"
	TaskTermination EntryKind = "TaskTermination"

	FileReadStart       EntryKind = "FileReadStart"
	FileReadCompletion  EntryKind = "FileReadCompletion"
	FileReadFailure     EntryKind = "FileReadFailure"
	FileWriteStart      EntryKind = "FileWriteStart"
	FileWriteCompletion EntryKind = "FileWriteCompletion"
	FileWriteFailure    EntryKind = "FileWriteFailure"
	FileCopyStart       EntryKind = "FileCopyStart"
	FileCopyCompletion  EntryKind = "FileCopyCompletion"
	FileCopyFailure     EntryKind = "FileCopyFailure"

	DiskReadStart      EntryKind = "DiskReadStart"
	DiskReadCompletion EntryKind = "DiskReadCompletion"
	DiskWriteStart     EntryKind = "DiskWriteStart"
	DiskWriteCompletion EntryKind = "DiskWriteCompletion"

	PstateSet         EntryKind = "PstateSet"
	EnergyConsumption EntryKind = "EnergyConsumption"
	LinkUsage         EntryKind = "LinkUsage"
)

// Entry is one row of the trace. Counterpart, when non-nil, is the mutual
// endpoint of a Start/Completion (or Start/Failure/Termination) pair —
// following it resolves an episode without re-matching by ActionID/Time.
type Entry struct {
	Kind        EntryKind
	Time        int64
	JobID       string
	ActionID    action.ID
	Host        kernel.HostName
	FileID      string
	Cause       failurecause.FailureCause
	Counterpart *Entry

	seq uint64
}

// Tracer accumulates Entry values as a simulation runs (or, via
// BuildFromCompoundJob, reconstructs them after the fact from a finished
// CompoundJob's per-action execution history) and returns them in a stable
// Time-then-insertion order.
type Tracer struct {
	mu      sync.Mutex
	entries []*Entry
	nextSeq uint64
}

// NewTracer constructs an empty Tracer.
func NewTracer() *Tracer {
	return &Tracer{}
}

func (t *Tracer) record(e *Entry) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.seq = t.nextSeq
	t.nextSeq++
	t.entries = append(t.entries, e)
	return e
}

// Entries returns every recorded Entry, ordered by Time and, for ties, by
// recording order.
func (t *Tracer) Entries() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// RecordStart records a Start-family entry (kind should be one of the
// *Start constants) and returns it, ready to be passed as the start
// argument to RecordEnd.
func (t *Tracer) RecordStart(kind EntryKind, time int64, jobID string, actionID action.ID, host kernel.HostName, fileID string) *Entry {
	return t.record(&Entry{Kind: kind, Time: time, JobID: jobID, ActionID: actionID, Host: host, FileID: fileID})
}

// RecordEnd records a Completion/Failure/Termination-family entry, wiring
// its Counterpart to start and start's Counterpart back to it.
func (t *Tracer) RecordEnd(start *Entry, kind EntryKind, time int64, cause failurecause.FailureCause) *Entry {
	end := t.record(&Entry{
		Kind:     kind,
		Time:     time,
		JobID:    start.JobID,
		ActionID: start.ActionID,
		Host:     start.Host,
		FileID:   start.FileID,
		Cause:    cause,
	})
	start.Counterpart = end
	end.Counterpart = start
	return end
}

// RecordPstateSet records a host power-state change (schema-complete; no
// in-repo producer calls this yet, since the kernel package doesn't model
// host power states).
func (t *Tracer) RecordPstateSet(host kernel.HostName, time int64) *Entry {
	return t.record(&Entry{Kind: PstateSet, Time: time, Host: host})
}

// RecordEnergyConsumption records an energy-consumption sample (schema-
// complete; no in-repo producer, for the same reason as RecordPstateSet).
func (t *Tracer) RecordEnergyConsumption(host kernel.HostName, time int64) *Entry {
	return t.record(&Entry{Kind: EnergyConsumption, Time: time, Host: host})
}

// RecordLinkUsage records a link-bandwidth-usage sample.
func (t *Tracer) RecordLinkUsage(time int64, fileID string) *Entry {
	return t.record(&Entry{Kind: LinkUsage, Time: time, FileID: fileID})
}

// entryKindsFor maps an action.Kind to the (start, completion, failure)
// trace entry kinds it produces. Sleep, FileDelete and Custom actions are
// generic units of work and fall under the Task family, same as Compute.
func entryKindsFor(k action.Kind) (start, completion, failure EntryKind) {
	switch k {
	case action.FileRead:
		return FileReadStart, FileReadCompletion, FileReadFailure
	case action.FileWrite:
		return FileWriteStart, FileWriteCompletion, FileWriteFailure
	case action.FileCopy:
		return FileCopyStart, FileCopyCompletion, FileCopyFailure
	default:
		return TaskStart, TaskCompletion, TaskFailure
	}
}

// BuildFromCompoundJob reconstructs the trace for a finished CompoundJob
// from each Action's recorded StartDate/EndDate/State/FailureCause, plus any
// earlier retried attempts in ExecutionHistory. Actions that never started
// (NotReady/Ready, left behind by a job's blocked descendants) are skipped —
// they carry no timestamps to report.
func BuildFromCompoundJob(jobID string, actions map[action.ID]*action.Action) []*Entry {
	t := NewTracer()
	for id, a := range actions {
		for _, attempt := range a.ExecutionHistory {
			emitEpisode(t, jobID, id, a.Kind, attempt.StartDate, attempt.EndDate, attempt.Host, attempt.Outcome, attempt.FailureCause)
		}
		if a.State == action.NotReady || a.State == action.Ready {
			continue
		}
		emitEpisode(t, jobID, id, a.Kind, a.StartDate, a.EndDate, a.ExecutionHost, a.State, a.FailureCause)
	}
	return t.Entries()
}

func emitEpisode(t *Tracer, jobID string, id action.ID, kind action.Kind, startDate, endDate int64, host kernel.HostName, outcome action.State, cause failurecause.FailureCause) {
	startKind, completionKind, failureKind := entryKindsFor(kind)
	fileID := ""
	start := t.RecordStart(startKind, startDate, jobID, id, host, fileID)
	switch outcome {
	case action.Completed:
		t.RecordEnd(start, completionKind, endDate, nil)
	case action.Failed:
		t.RecordEnd(start, failureKind, endDate, cause)
	case action.Killed:
		if startKind == TaskStart {
			t.RecordEnd(start, TaskTermination, endDate, cause)
		} else {
			t.RecordEnd(start, failureKind, endDate, cause)
		}
	}
}
