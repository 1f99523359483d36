// Package jobs implements StandardJob and PilotJob (the two concrete job
// kinds a user submits) and JobManager (per-controller submission
// bookkeeping and event forwarding), layered on package action's CompoundJob
// and package compute's BareMetalComputeService.
package jobs

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/joeycumines/wrenchsim/action"
	"github.com/joeycumines/wrenchsim/datafile"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/workflow"
)

// FileCopySpec is one entry of a StandardJob's pre- or post-copy list: copy
// file from src to dst before (or after) the job's tasks run.
type FileCopySpec struct {
	File workflow.FileID
	Src  datafile.Location
	Dst  datafile.Location
}

// StandardJob bundles a set of workflow.Tasks with the file-staging work
// (pre-copies, per-task reads/writes, post-copies, cleanup deletions)
// needed to run them, and lowers that bundle into a single action.CompoundJob
// a compute service can schedule.
type StandardJob struct {
	ID                string
	Tasks             []*workflow.Task
	FileLocations     map[workflow.FileID]datafile.Location
	PreCopies         []FileCopySpec
	PostCopies        []FileCopySpec
	CleanupDeletions  []datafile.Location
	NumCompletedTasks int
	State             action.JobState

	compoundJob *action.CompoundJob
}

// NewStandardJob validates and constructs a StandardJob. Every task must
// have no parents or have all its parents already Completed, i.e. must be
// Ready at construction time — a StandardJob is submitted as a single unit,
// so partially-finished task graphs make no sense as input.
func NewStandardJob(id string, tasks []*workflow.Task, fileLocations map[workflow.FileID]datafile.Location, preCopies, postCopies []FileCopySpec, cleanupDeletions []datafile.Location) (*StandardJob, error) {
	if id == "" {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "standard job id must not be empty"})
	}
	if len(tasks) == 0 {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "standard job " + id + " has no tasks"})
	}
	for _, t := range tasks {
		if t == nil {
			return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "standard job " + id + " has a nil task"})
		}
		if t.State != workflow.Ready {
			return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "task " + string(t.ID) + " is not ready"})
		}
	}
	return &StandardJob{
		ID:               id,
		Tasks:            tasks,
		FileLocations:    fileLocations,
		PreCopies:        preCopies,
		PostCopies:       postCopies,
		CleanupDeletions: cleanupDeletions,
		State:            action.NotSubmitted,
	}, nil
}

// NewStandardJobWithGeneratedID is NewStandardJob for callers that have no
// natural id of their own to supply — it generates one (a random UUID)
// rather than forcing every caller to invent a naming scheme.
func NewStandardJobWithGeneratedID(tasks []*workflow.Task, fileLocations map[workflow.FileID]datafile.Location, preCopies, postCopies []FileCopySpec, cleanupDeletions []datafile.Location) (*StandardJob, error) {
	return NewStandardJob(uuid.NewString(), tasks, fileLocations, preCopies, postCopies, cleanupDeletions)
}

// Lower synthesizes the job's action.CompoundJob: pre-copy FileCopy actions,
// then per task an input-read/compute/output-write chain wired by the
// task-level parent/child edges, then post-copy FileCopy actions, then
// cleanup FileDelete actions. Idempotent: a second call returns the job
// already built by the first.
func (sj *StandardJob) Lower() (*action.CompoundJob, error) {
	if sj.compoundJob != nil {
		return sj.compoundJob, nil
	}

	job := action.NewCompoundJob(sj.ID, 0)

	preIDs := make([]action.ID, 0, len(sj.PreCopies))
	for i, c := range sj.PreCopies {
		id := action.ID(fmt.Sprintf("%s:precopy:%d", sj.ID, i))
		a := action.NewAction(id, action.FileCopy, 1, 1, 0, 0)
		a.SrcLocation = c.Src
		a.DstLocation = c.Dst
		if err := job.AddAction(a); err != nil {
			return nil, err
		}
		preIDs = append(preIDs, id)
	}

	taskFirst := make(map[workflow.TaskID]action.ID, len(sj.Tasks))
	taskLast := make(map[workflow.TaskID][]action.ID, len(sj.Tasks))

	for _, t := range sj.Tasks {
		var firstID action.ID
		var readIDs []action.ID
		for i, f := range t.InputFiles {
			loc, ok := sj.FileLocations[f]
			if !ok {
				return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "no location configured for input file " + string(f) + " of task " + string(t.ID)})
			}
			id := action.ID(fmt.Sprintf("%s:read:%d", t.ID, i))
			a := action.NewAction(id, action.FileRead, 1, 1, 0, t.Priority)
			a.FileLocation = loc
			if err := job.AddAction(a); err != nil {
				return nil, err
			}
			readIDs = append(readIDs, id)
			if firstID == "" {
				firstID = id
			}
		}

		computeID := action.ID(fmt.Sprintf("%s:compute", t.ID))
		ca := action.NewAction(computeID, action.Compute, t.MinCores, t.MaxCores, t.RAM, t.Priority)
		ca.Flops = t.Flops
		if err := job.AddAction(ca); err != nil {
			return nil, err
		}
		if firstID == "" {
			firstID = computeID
		}
		for _, rid := range readIDs {
			if err := job.AddDependency(rid, computeID); err != nil {
				return nil, err
			}
		}

		var writeIDs []action.ID
		for i, f := range t.OutputFiles {
			loc, ok := sj.FileLocations[f]
			if !ok {
				return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "no location configured for output file " + string(f) + " of task " + string(t.ID)})
			}
			id := action.ID(fmt.Sprintf("%s:write:%d", t.ID, i))
			a := action.NewAction(id, action.FileWrite, 1, 1, 0, t.Priority)
			a.FileLocation = loc
			if err := job.AddAction(a); err != nil {
				return nil, err
			}
			if err := job.AddDependency(computeID, id); err != nil {
				return nil, err
			}
			writeIDs = append(writeIDs, id)
		}

		taskFirst[t.ID] = firstID
		if len(writeIDs) > 0 {
			taskLast[t.ID] = writeIDs
		} else {
			taskLast[t.ID] = []action.ID{computeID}
		}
	}

	for _, t := range sj.Tasks {
		childFirst, ok := taskFirst[t.ID]
		if !ok {
			continue
		}
		for _, pid := range t.Parents {
			for _, parentLast := range taskLast[pid] {
				if parentLast == childFirst {
					continue
				}
				if err := job.AddDependency(parentLast, childFirst); err != nil {
					return nil, err
				}
			}
		}
		if len(t.Parents) == 0 {
			for _, pre := range preIDs {
				if err := job.AddDependency(pre, childFirst); err != nil {
					return nil, err
				}
			}
		}
	}

	var exitLast []action.ID
	for _, t := range sj.Tasks {
		if len(t.Children) == 0 {
			exitLast = append(exitLast, taskLast[t.ID]...)
		}
	}

	postIDs := make([]action.ID, 0, len(sj.PostCopies))
	for i, c := range sj.PostCopies {
		id := action.ID(fmt.Sprintf("%s:postcopy:%d", sj.ID, i))
		a := action.NewAction(id, action.FileCopy, 1, 1, 0, 0)
		a.SrcLocation = c.Src
		a.DstLocation = c.Dst
		if err := job.AddAction(a); err != nil {
			return nil, err
		}
		for _, last := range exitLast {
			if err := job.AddDependency(last, id); err != nil {
				return nil, err
			}
		}
		postIDs = append(postIDs, id)
	}

	cleanupDeps := postIDs
	if len(cleanupDeps) == 0 {
		cleanupDeps = exitLast
	}
	for i, loc := range sj.CleanupDeletions {
		id := action.ID(fmt.Sprintf("%s:cleanup:%d", sj.ID, i))
		a := action.NewAction(id, action.FileDelete, 1, 1, 0, 0)
		a.FileLocation = loc
		if err := job.AddAction(a); err != nil {
			return nil, err
		}
		for _, d := range cleanupDeps {
			if err := job.AddDependency(d, id); err != nil {
				return nil, err
			}
		}
	}

	sj.compoundJob = job
	return job, nil
}

// CompoundJob returns the action.CompoundJob this StandardJob lowers to,
// building it via Lower if that hasn't happened yet.
func (sj *StandardJob) CompoundJob() (*action.CompoundJob, error) {
	return sj.Lower()
}
