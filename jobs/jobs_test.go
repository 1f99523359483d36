package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/joeycumines/wrenchsim/action"
	"github.com/joeycumines/wrenchsim/commport"
	"github.com/joeycumines/wrenchsim/compute"
	"github.com/joeycumines/wrenchsim/datafile"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/joeycumines/wrenchsim/storage"
	"github.com/joeycumines/wrenchsim/workflow"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSim(t *testing.T, hosts ...string) *kernel.Simulation {
	t.Helper()
	p := kernel.NewPlatform()
	for _, h := range hosts {
		_, err := p.NewHost(kernel.HostName(h), 4, 1<<30, 1e9)
		require.NoError(t, err)
	}
	sim, err := kernel.NewSimulation(p)
	require.NoError(t, err)
	return sim
}

func TestStandardJob_RejectsNonReadyTask(t *testing.T) {
	task := workflow.NewTask("t1", 10, 1, 1, 0, 0)
	_, err := NewStandardJob("sj1", []*workflow.Task{task}, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestStandardJob_LowersBareComputeTask(t *testing.T) {
	t1 := workflow.NewTask("t1", 10, 1, 1, 0, 0)
	t1.State = workflow.Ready

	sj, err := NewStandardJob("sj1", []*workflow.Task{t1}, map[workflow.FileID]datafile.Location{}, nil, nil, nil)
	require.NoError(t, err)

	cj, err := sj.Lower()
	require.NoError(t, err)
	assert.Len(t, cj.Actions, 1) // just the compute action, no i/o files
	assert.Contains(t, cj.Actions, action.ID("t1:compute"))
}

func TestStandardJob_PreAndPostCopyBracketTasks(t *testing.T) {
	t1 := workflow.NewTask("t1", 10, 1, 1, 0, 0)
	t1.State = workflow.Ready

	sj, err := NewStandardJob("sj1", []*workflow.Task{t1}, map[workflow.FileID]datafile.Location{},
		[]FileCopySpec{{File: "stage-in", Src: datafile.Location{}, Dst: datafile.Location{}}},
		[]FileCopySpec{{File: "stage-out", Src: datafile.Location{}, Dst: datafile.Location{}}},
		nil,
	)
	require.NoError(t, err)

	cj, err := sj.Lower()
	require.NoError(t, err)
	require.Contains(t, cj.Actions, action.ID("sj1:precopy:0"))
	require.Contains(t, cj.Actions, action.ID("sj1:postcopy:0"))

	compute := cj.Actions["t1:compute"]
	assert.Contains(t, compute.Parents, action.ID("sj1:precopy:0"))
	post := cj.Actions["sj1:postcopy:0"]
	assert.Contains(t, post.Parents, action.ID("t1:compute"))
}

func TestStandardJob_EndToEndReadComputeWrite(t *testing.T) {
	p := kernel.NewPlatform()
	_, err := p.NewHost("B", 1, 1<<30, 1e9)
	require.NoError(t, err)
	sim, err := kernel.NewSimulation(p)
	require.NoError(t, err)

	disk, err := sim.CreateNewDisk("B", "disk0", 1e9, 1e9, 1<<30)
	require.NoError(t, err)

	logger := zerolog.Nop()
	ss, err := storage.NewStorageService(sim, "ss", "B", []storage.Mount{{Path: "/mnt", Disk: disk}}, &logger)
	require.NoError(t, err)

	inFile := &datafile.DataFile{ID: "in", Size: 100}
	inLoc := datafile.Location{Service: ss, MountPoint: "/mnt", PathAtMount: "in", File: inFile}
	require.NoError(t, ss.CreateFile(inLoc))

	outFile := &datafile.DataFile{ID: "out", Size: 100}
	outLoc := datafile.Location{Service: ss, MountPoint: "/mnt", PathAtMount: "out", File: outFile}

	task := workflow.NewTask("t1", 0, 1, 1, 0, 0)
	task.State = workflow.Ready
	task.InputFiles = []workflow.FileID{"in"}
	task.OutputFiles = []workflow.FileID{"out"}

	sj, err := NewStandardJob("sj1", []*workflow.Task{task}, map[workflow.FileID]datafile.Location{
		"in": inLoc, "out": outLoc,
	}, nil, nil, nil)
	require.NoError(t, err)

	cs, err := compute.NewBareMetalComputeService(sim, "cs", "B", []compute.ResourceSlot{{Host: "B", Cores: 1, RAM: 1}}, &logger)
	require.NoError(t, err)

	controllerPort := commport.NewCommPort(sim, "controller", "B", 0)
	mgr := NewJobManager(sim, "B", controllerPort, &logger)

	require.NoError(t, mgr.SubmitStandardJob(cs, sj, nil))
	require.NoError(t, sim.Run(context.Background()))

	cj, err := sj.Lower()
	require.NoError(t, err)
	assert.Equal(t, action.CompletedJob, cj.State)
	assert.Equal(t, action.Completed, cj.Actions["t1:read:0"].State)
	assert.Equal(t, action.Completed, cj.Actions["t1:compute"].State)
	assert.Equal(t, action.Completed, cj.Actions["t1:write:0"].State)
}

func TestPilotJob_StartExposesChildComputeServiceAndExpires(t *testing.T) {
	sim := newTestSim(t, "B")
	logger := zerolog.Nop()

	pj, err := NewPilotJob("pj1", []compute.ResourceSlot{{Host: "B", Cores: 2, RAM: 100}}, 5*time.Second)
	require.NoError(t, err)

	var expired bool
	require.NoError(t, pj.Start(sim, "B", &logger, func() { expired = true }))
	assert.NotNil(t, pj.ChildComputeService)
	assert.Equal(t, PilotJobStarted, pj.State)

	require.NoError(t, sim.Run(context.Background()))
	assert.True(t, expired)
	assert.Equal(t, PilotJobExpired, pj.State)
}

func TestPilotJob_RejectsDoubleStart(t *testing.T) {
	sim := newTestSim(t, "B")
	logger := zerolog.Nop()

	pj, err := NewPilotJob("pj1", []compute.ResourceSlot{{Host: "B", Cores: 1, RAM: 10}}, 0)
	require.NoError(t, err)
	require.NoError(t, pj.Start(sim, "B", &logger, nil))
	err = pj.Start(sim, "B", &logger, nil)
	require.Error(t, err)
}

func TestJobManager_RejectsDoubleSubmission(t *testing.T) {
	sim := newTestSim(t, "B")
	logger := zerolog.Nop()
	cs, err := compute.NewBareMetalComputeService(sim, "cs", "B", []compute.ResourceSlot{{Host: "B", Cores: 1, RAM: 10}}, &logger)
	require.NoError(t, err)

	controllerPort := commport.NewCommPort(sim, "controller", "B", 0)
	mgr := NewJobManager(sim, "B", controllerPort, &logger)

	job := action.NewCompoundJob("j1", 0)
	a := action.NewAction("a", action.Sleep, 1, 1, 0, 0)
	a.SleepSeconds = 1
	require.NoError(t, job.AddAction(a))

	require.NoError(t, mgr.SubmitJob(cs, job, nil))
	err = mgr.SubmitJob(cs, job, nil)
	require.Error(t, err)
}

func TestNewStandardJobWithGeneratedID_AssignsNonEmptyUniqueIDs(t *testing.T) {
	t1 := workflow.NewTask("t1", 10, 1, 1, 0, 0)
	t1.State = workflow.Ready
	sj1, err := NewStandardJobWithGeneratedID([]*workflow.Task{t1}, map[workflow.FileID]datafile.Location{}, nil, nil, nil)
	require.NoError(t, err)

	t2 := workflow.NewTask("t2", 10, 1, 1, 0, 0)
	t2.State = workflow.Ready
	sj2, err := NewStandardJobWithGeneratedID([]*workflow.Task{t2}, map[workflow.FileID]datafile.Location{}, nil, nil, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, sj1.ID)
	assert.NotEmpty(t, sj2.ID)
	assert.NotEqual(t, sj1.ID, sj2.ID)
}

func TestNewPilotJobWithGeneratedID_AssignsNonEmptyID(t *testing.T) {
	pj, err := NewPilotJobWithGeneratedID([]compute.ResourceSlot{{Host: "B", Cores: 1, RAM: 10}}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, pj.ID)
}

func TestJobManager_ForwardsCompoundJobCompletedEvent(t *testing.T) {
	sim := newTestSim(t, "B")
	logger := zerolog.Nop()
	cs, err := compute.NewBareMetalComputeService(sim, "cs", "B", []compute.ResourceSlot{{Host: "B", Cores: 1, RAM: 10}}, &logger)
	require.NoError(t, err)

	controllerPort := commport.NewCommPort(sim, "controller", "B", 0)
	mgr := NewJobManager(sim, "B", controllerPort, &logger)

	job := action.NewCompoundJob("j1", 0)
	a := action.NewAction("a", action.Sleep, 1, 1, 0, 0)
	a.SleepSeconds = 1
	require.NoError(t, job.AddAction(a))
	require.NoError(t, mgr.SubmitJob(cs, job, nil))

	var received *CompoundJobCompletedEvent
	_, err = sim.Spawn("B", func(act *kernel.Actor) {
		msg, err := controllerPort.Get(act, 0)
		require.NoError(t, err)
		ev, ok := msg.Payload.(CompoundJobCompletedEvent)
		require.True(t, ok)
		received = &ev
	})
	require.NoError(t, err)

	require.NoError(t, sim.Run(context.Background()))
	require.NotNil(t, received)
	assert.Equal(t, "j1", received.Job.ID)
}
