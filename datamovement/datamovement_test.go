package datamovement

import (
	"context"
	"testing"

	"github.com/joeycumines/wrenchsim/commport"
	"github.com/joeycumines/wrenchsim/datafile"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/joeycumines/wrenchsim/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServices(t *testing.T) (*kernel.Simulation, *storage.StorageService, *storage.StorageService) {
	t.Helper()
	p := kernel.NewPlatform()
	_, err := p.NewHost("A", 1, 1<<30, 1e9)
	require.NoError(t, err)
	_, err = p.NewHost("B", 1, 1<<30, 1e9)
	require.NoError(t, err)
	link, err := p.NewLink("l1", 1e9, 0)
	require.NoError(t, err)
	require.NoError(t, p.AddRoute("A", "B", link))
	require.NoError(t, p.AddRoute("B", "A", link))
	sim, err := kernel.NewSimulation(p)
	require.NoError(t, err)

	diskA, err := sim.CreateNewDisk("A", "diskA", 1e9, 1e9, 1<<30)
	require.NoError(t, err)
	diskB, err := sim.CreateNewDisk("B", "diskB", 1e9, 1e9, 1<<30)
	require.NoError(t, err)

	logger := zerolog.Nop()
	src, err := storage.NewStorageService(sim, "src", "A", []storage.Mount{{Path: "/mnt", Disk: diskA}}, &logger)
	require.NoError(t, err)
	dst, err := storage.NewStorageService(sim, "dst", "B", []storage.Mount{{Path: "/mnt", Disk: diskB}}, &logger)
	require.NoError(t, err)
	return sim, src, dst
}

func TestDataMovementManager_SynchronousCopySucceeds(t *testing.T) {
	sim, src, dst := newTestServices(t)

	file := &datafile.DataFile{ID: "f1", Size: 100}
	srcLoc := datafile.Location{Service: src, MountPoint: "/mnt", PathAtMount: "f1", File: file}
	dstLoc := datafile.Location{Service: dst, MountPoint: "/mnt", PathAtMount: "f1", File: file}
	require.NoError(t, src.CreateFile(srcLoc))

	mgr := NewDataMovementManager(sim, "A", nil)

	var copyErr error
	_, err := sim.Spawn("A", func(a *kernel.Actor) {
		copyErr = mgr.DoSynchronousFileCopy(a, file, src, srcLoc, dst, dstLoc)
	})
	require.NoError(t, err)
	require.NoError(t, sim.Run(context.Background()))
	assert.NoError(t, copyErr)

	present, err := dst.LookupFile(dstLoc)
	require.NoError(t, err)
	assert.True(t, present)
}

func TestDataMovementManager_AsynchronousCopyPublishesCompletedEvent(t *testing.T) {
	sim, src, dst := newTestServices(t)

	file := &datafile.DataFile{ID: "f1", Size: 100}
	srcLoc := datafile.Location{Service: src, MountPoint: "/mnt", PathAtMount: "f1", File: file}
	dstLoc := datafile.Location{Service: dst, MountPoint: "/mnt", PathAtMount: "f1", File: file}
	require.NoError(t, src.CreateFile(srcLoc))

	controllerPort := commport.NewCommPort(sim, "controller", "A", 0)
	mgr := NewDataMovementManager(sim, "A", controllerPort)

	_, err := mgr.InitiateAsynchronousFileCopy(file, src, srcLoc, dst, dstLoc)
	require.NoError(t, err)

	var received *FileCopyCompletedEvent
	_, err = sim.Spawn("A", func(a *kernel.Actor) {
		msg, err := controllerPort.Get(a, 0)
		require.NoError(t, err)
		ev, ok := msg.Payload.(FileCopyCompletedEvent)
		require.True(t, ok)
		received = &ev
	})
	require.NoError(t, err)

	require.NoError(t, sim.Run(context.Background()))
	require.NotNil(t, received)
	assert.Equal(t, "f1", received.File.ID)
}

func TestDataMovementManager_CopyFailsWhenSourceFileMissing(t *testing.T) {
	sim, src, dst := newTestServices(t)

	file := &datafile.DataFile{ID: "missing", Size: 10}
	srcLoc := datafile.Location{Service: src, MountPoint: "/mnt", PathAtMount: "missing", File: file}
	dstLoc := datafile.Location{Service: dst, MountPoint: "/mnt", PathAtMount: "missing", File: file}

	controllerPort := commport.NewCommPort(sim, "controller", "A", 0)
	mgr := NewDataMovementManager(sim, "A", controllerPort)

	_, err := mgr.InitiateAsynchronousFileCopy(file, src, srcLoc, dst, dstLoc)
	require.NoError(t, err)

	var received *FileCopyFailedEvent
	_, err = sim.Spawn("A", func(a *kernel.Actor) {
		msg, err := controllerPort.Get(a, 0)
		require.NoError(t, err)
		ev, ok := msg.Payload.(FileCopyFailedEvent)
		require.True(t, ok)
		received = &ev
	})
	require.NoError(t, err)

	require.NoError(t, sim.Run(context.Background()))
	require.NotNil(t, received)
	assert.NotNil(t, received.Cause)
}
