package storage

import (
	"context"
	"testing"

	"github.com/joeycumines/wrenchsim/datafile"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTwoHostPlatform(t *testing.T) (*kernel.Simulation, *kernel.Disk, *kernel.Disk) {
	t.Helper()
	p := kernel.NewPlatform()
	_, err := p.NewHost("A", 1, 1<<30, 1e9)
	require.NoError(t, err)
	_, err = p.NewHost("B", 10, 1<<30, 1e10)
	require.NoError(t, err)
	link, err := p.NewLink("AB", 1e8, 0)
	require.NoError(t, err)
	require.NoError(t, p.AddRoute("A", "B", link))
	require.NoError(t, p.AddRoute("B", "A", link))
	diskA, err := p.NewDisk("A", "diskA", 1e8, 1<<30)
	require.NoError(t, err)
	diskB, err := p.NewDisk("B", "diskB", 1e8, 1<<30)
	require.NoError(t, err)
	sim, err := kernel.NewSimulation(p)
	require.NoError(t, err)
	return sim, diskA, diskB
}

func TestStorageService_CreateDeleteRoundTrip(t *testing.T) {
	sim, diskA, _ := newTwoHostPlatform(t)
	logger := zerolog.Nop()
	ss, err := NewStorageService(sim, "ssA", "A", []Mount{{Path: "/mnt", Disk: diskA}}, &logger)
	require.NoError(t, err)

	f := &datafile.DataFile{ID: "f1", Size: 1000}
	loc := datafile.Location{Service: ss, MountPoint: "/mnt", PathAtMount: "", File: f}

	free0 := diskA.FreeSpace()
	require.NoError(t, ss.CreateFile(loc))
	ok, err := ss.DeleteFile(loc)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, free0, diskA.FreeSpace())
}

func TestStorageService_CopyThenLookupDoesNotRemoveSource(t *testing.T) {
	sim, diskA, diskB := newTwoHostPlatform(t)
	logger := zerolog.Nop()
	ssA, err := NewStorageService(sim, "ssA", "A", []Mount{{Path: "/mnt", Disk: diskA}}, &logger)
	require.NoError(t, err)
	ssB, err := NewStorageService(sim, "ssB", "B", []Mount{{Path: "/mnt", Disk: diskB}}, &logger)
	require.NoError(t, err)

	f := &datafile.DataFile{ID: "f1", Size: 1 << 20}
	srcLoc := datafile.Location{Service: ssA, MountPoint: "/mnt", File: f}
	dstLoc := datafile.Location{Service: ssB, MountPoint: "/mnt", File: f}
	require.NoError(t, ssA.CreateFile(srcLoc))

	var copyErr error
	_, err = sim.Spawn("A", func(a *kernel.Actor) {
		copyErr = CopyFile(a, ssA, srcLoc, ssB, dstLoc)
	})
	require.NoError(t, err)
	require.NoError(t, sim.Run(context.Background()))
	require.NoError(t, copyErr)

	present, err := ssB.LookupFile(dstLoc)
	require.NoError(t, err)
	assert.True(t, present)

	present, err = ssA.LookupFile(srcLoc)
	require.NoError(t, err)
	assert.True(t, present)
}

func TestStorageService_ReadMissingFileFails(t *testing.T) {
	sim, diskA, _ := newTwoHostPlatform(t)
	logger := zerolog.Nop()
	ss, err := NewStorageService(sim, "ssA", "A", []Mount{{Path: "/mnt", Disk: diskA}}, &logger)
	require.NoError(t, err)
	f := &datafile.DataFile{ID: "missing", Size: 100}
	loc := datafile.Location{Service: ss, MountPoint: "/mnt", File: f}

	var readErr error
	_, err = sim.Spawn("A", func(a *kernel.Actor) {
		readErr = ss.ReadFile(a, loc)
	})
	require.NoError(t, err)
	require.NoError(t, sim.Run(context.Background()))
	require.Error(t, readErr)
	var fnf *failurecause.FileNotFound
	assert.ErrorAs(t, readErr, &fnf)
}

func TestStorageService_BufferizedVsNonBufferizedNegotiation(t *testing.T) {
	sim, diskA, diskB := newTwoHostPlatform(t)
	logger := zerolog.Nop()
	ssBuffered, err := NewStorageService(sim, "ssA", "A", []Mount{{Path: "/mnt", Disk: diskA}}, &logger, WithBufferSize(1<<16))
	require.NoError(t, err)
	ssPlain, err := NewStorageService(sim, "ssB", "B", []Mount{{Path: "/mnt", Disk: diskB}}, &logger)
	require.NoError(t, err)

	assert.Equal(t, NonBufferized, negotiateMode(ssBuffered, ssPlain))
}

func TestStorageService_CreateFileExceedingSpaceFails(t *testing.T) {
	sim, diskA, _ := newTwoHostPlatform(t)
	logger := zerolog.Nop()
	ss, err := NewStorageService(sim, "ssA", "A", []Mount{{Path: "/mnt", Disk: diskA}}, &logger)
	require.NoError(t, err)
	f := &datafile.DataFile{ID: "huge", Size: diskA.Capacity + 1}
	loc := datafile.Location{Service: ss, MountPoint: "/mnt", File: f}
	err = ss.CreateFile(loc)
	require.Error(t, err)
	var nes *failurecause.NotEnoughSpace
	assert.ErrorAs(t, err, &nes)
}
