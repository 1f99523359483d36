// Package workflow implements the abstract task/file DAG a StandardJob is
// synthesized from: tasks indexed by id, files indexed by id, a task DAG,
// and a file DAG induced by producer/consumer relationships.
package workflow

import (
	"github.com/joeycumines/wrenchsim/datafile"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/kernel"
)

// TaskID identifies a Task within a Workflow.
type TaskID string

// FileID identifies a File within a Workflow.
type FileID string

// TaskState is a WorkflowTask's position in its lifecycle.
type TaskState int

const (
	NotReady TaskState = iota
	Ready
	Pending
	Running
	Completed
	Failed
)

func (s TaskState) String() string {
	switch s {
	case NotReady:
		return "NotReady"
	case Ready:
		return "Ready"
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Task is one node of a Workflow's task DAG.
type Task struct {
	ID           TaskID
	Flops        float64
	MinCores     int
	MaxCores     int
	RAM          int64
	Priority     int
	ClusterID    string
	FailureCount int

	State       TaskState
	InputFiles  []FileID
	OutputFiles []FileID
	Parents     []TaskID
	Children    []TaskID

	StartDate     int64
	EndDate       int64
	ExecutionHost kernel.HostName

	// CallbackPortStack names the chain of CommPorts a pipeline-clustered
	// task's result should be forwarded through before reaching the
	// controller, oldest caller on the bottom.
	CallbackPortStack []string
}

// NewTask constructs a Task in state NotReady.
func NewTask(id TaskID, flops float64, minCores, maxCores int, ram int64, priority int) *Task {
	return &Task{ID: id, Flops: flops, MinCores: minCores, MaxCores: maxCores, RAM: ram, Priority: priority, State: NotReady}
}

// File is one node of a Workflow's file DAG: an immutable DataFile plus the
// task that produces it (empty for a workflow input file) and the tasks
// that consume it.
type File struct {
	ID        FileID
	File      *datafile.DataFile
	Producer  TaskID
	Consumers []TaskID
}

// Workflow owns a DAG of Tasks and the File DAG induced by their
// input/output relationships.
type Workflow struct {
	Tasks map[TaskID]*Task
	Files map[FileID]*File
}

// NewWorkflow returns an empty Workflow.
func NewWorkflow() *Workflow {
	return &Workflow{Tasks: make(map[TaskID]*Task), Files: make(map[FileID]*File)}
}

// AddTask inserts t into the workflow's task arena.
func (w *Workflow) AddTask(t *Task) error {
	if t == nil {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "task must not be nil"})
	}
	if _, exists := w.Tasks[t.ID]; exists {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "duplicate task id " + string(t.ID)})
	}
	w.Tasks[t.ID] = t
	return nil
}

// AddFile inserts f into the workflow's file arena.
func (w *Workflow) AddFile(f *File) error {
	if f == nil {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "file must not be nil"})
	}
	if _, exists := w.Files[f.ID]; exists {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "duplicate file id " + string(f.ID)})
	}
	w.Files[f.ID] = f
	return nil
}

// AddDependency makes child depend on parent's completion, rejecting
// unknown ids, self-dependencies, duplicate edges, and cycles (DFS from
// child forward through children-adjacency, searching for parent).
func (w *Workflow) AddDependency(parent, child TaskID) error {
	if parent == child {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "task " + string(parent) + " cannot depend on itself"})
	}
	p, ok := w.Tasks[parent]
	if !ok {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "unknown parent task " + string(parent)})
	}
	c, ok := w.Tasks[child]
	if !ok {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "unknown child task " + string(child)})
	}
	for _, existing := range p.Children {
		if existing == child {
			return failurecause.Wrap(&failurecause.InvalidArgument{Message: "dependency " + string(parent) + " -> " + string(child) + " already exists"})
		}
	}
	if w.reaches(child, parent) {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "adding " + string(parent) + " -> " + string(child) + " would close a cycle"})
	}
	p.Children = append(p.Children, child)
	c.Parents = append(c.Parents, parent)
	return nil
}

func (w *Workflow) reaches(from, to TaskID) bool {
	visited := make(map[TaskID]bool)
	var dfs func(TaskID) bool
	dfs = func(id TaskID) bool {
		if id == to {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		t := w.Tasks[id]
		if t == nil {
			return false
		}
		for _, next := range t.Children {
			if dfs(next) {
				return true
			}
		}
		return false
	}
	return dfs(from)
}

// AddDataDependency records file as produced by producer and consumed by
// consumer, and derives the equivalent task dependency (consumer depends on
// producer), since the file DAG here is induced by, not independent of, the
// task DAG.
func (w *Workflow) AddDataDependency(producer TaskID, file FileID, consumer TaskID) error {
	f, ok := w.Files[file]
	if !ok {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "unknown file " + string(file)})
	}
	if f.Producer != "" && f.Producer != producer {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "file " + string(file) + " already has a producer"})
	}
	f.Producer = producer
	f.Consumers = append(f.Consumers, consumer)
	return w.AddDependency(producer, consumer)
}

// Finalize promotes every still-NotReady, zero-parent task to Ready.
func (w *Workflow) Finalize() error {
	if len(w.Tasks) == 0 {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "workflow has no tasks"})
	}
	for _, t := range w.Tasks {
		if t.State == NotReady && len(t.Parents) == 0 {
			t.State = Ready
		}
	}
	return nil
}

// PromoteReadyChildren promotes each child of the just-completed task whose
// parents have all Completed from NotReady to Ready.
func (w *Workflow) PromoteReadyChildren(completed TaskID) []TaskID {
	t := w.Tasks[completed]
	if t == nil {
		return nil
	}
	var promoted []TaskID
	for _, cid := range t.Children {
		c := w.Tasks[cid]
		if c == nil || c.State != NotReady {
			continue
		}
		allDone := true
		for _, pid := range c.Parents {
			p := w.Tasks[pid]
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

// ReadyTasks returns the ids of every task currently Ready.
func (w *Workflow) ReadyTasks() []TaskID {
	var ready []TaskID
	for id, t := range w.Tasks {
		if t.State == Ready {
			ready = append(ready, id)
		}
	}
	return ready
}
