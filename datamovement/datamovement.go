// Package datamovement implements DataMovementManager: synchronous and
// asynchronous file copies between storage services, decoupled from
// whichever compute service or controller requested them.
package datamovement

import (
	"errors"

	"github.com/joeycumines/wrenchsim/commport"
	"github.com/joeycumines/wrenchsim/datafile"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/joeycumines/wrenchsim/storage"
)

// FileCopyCompletedEvent is forwarded to a controller's CommPort when an
// asynchronous file copy finishes successfully.
type FileCopyCompletedEvent struct {
	File *datafile.DataFile
	Src  datafile.Location
	Dst  datafile.Location
}

// FileCopyFailedEvent is forwarded when an asynchronous file copy fails.
type FileCopyFailedEvent struct {
	File  *datafile.DataFile
	Src   datafile.Location
	Dst   datafile.Location
	Cause failurecause.FailureCause
}

// Handle is a pending asynchronous file copy, in the same shape as
// commport.Handle: check-then-park, so a caller that later wants to block
// on it doesn't race a copy that already finished.
type Handle struct {
	done         chan struct{}
	err          error
	waitingActor *kernel.Actor
}

// Wait blocks the calling actor until the copy resolves.
func (h *Handle) Wait(actor *kernel.Actor) error {
	select {
	case <-h.done:
		return h.err
	default:
	}
	h.waitingActor = actor
	return actor.Block()
}

func (h *Handle) resolve(err error) {
	h.err = err
	close(h.done)
	if h.waitingActor != nil {
		h.waitingActor.Resume(err)
	}
}

// DataMovementManager runs file copies as their own actors, so the
// requesting actor need not block on one (InitiateAsynchronousFileCopy), and
// reports completion/failure on controllerPort as typed events.
type DataMovementManager struct {
	sim            *kernel.Simulation
	controlHost    kernel.HostName
	controllerPort *commport.CommPort
}

// NewDataMovementManager constructs a DataMovementManager whose copy actors
// run on controlHost and whose events publish to controllerPort (nil is
// accepted: events are then simply not published).
func NewDataMovementManager(sim *kernel.Simulation, controlHost kernel.HostName, controllerPort *commport.CommPort) *DataMovementManager {
	return &DataMovementManager{sim: sim, controlHost: controlHost, controllerPort: controllerPort}
}

// InitiateAsynchronousFileCopy returns immediately, having spawned an actor
// that copies file from (src, srcLoc) to (dst, dstLoc) — the copy itself
// forwards to dst, which pulls from src, per storage.CopyFile — and
// publishes FileCopyCompletedEvent/FileCopyFailedEvent to controllerPort
// once it finishes.
func (m *DataMovementManager) InitiateAsynchronousFileCopy(file *datafile.DataFile, src *storage.StorageService, srcLoc datafile.Location, dst *storage.StorageService, dstLoc datafile.Location) (*Handle, error) {
	if file == nil || src == nil || dst == nil {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "file copy requires a non-nil file and source/destination storage service"})
	}
	h := &Handle{done: make(chan struct{})}
	_, err := m.sim.Spawn(m.controlHost, func(a *kernel.Actor) {
		copyErr := storage.CopyFile(a, src, srcLoc, dst, dstLoc)
		h.resolve(copyErr)
		if copyErr != nil {
			var fc failurecause.FailureCause
			if !errors.As(copyErr, &fc) {
				fc = &failurecause.InvalidArgument{Message: copyErr.Error()}
			}
			m.publish(a, "FileCopyFailed", FileCopyFailedEvent{File: file, Src: srcLoc, Dst: dstLoc, Cause: fc})
			return
		}
		m.publish(a, "FileCopyCompleted", FileCopyCompletedEvent{File: file, Src: srcLoc, Dst: dstLoc})
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// DoSynchronousFileCopy is InitiateAsynchronousFileCopy followed by
// Handle.Wait on actor — the blocking convenience wrapper every direct
// caller (an action executor, say) actually wants.
func (m *DataMovementManager) DoSynchronousFileCopy(actor *kernel.Actor, file *datafile.DataFile, src *storage.StorageService, srcLoc datafile.Location, dst *storage.StorageService, dstLoc datafile.Location) error {
	h, err := m.InitiateAsynchronousFileCopy(file, src, srcLoc, dst, dstLoc)
	if err != nil {
		return err
	}
	return h.Wait(actor)
}

func (m *DataMovementManager) publish(actor *kernel.Actor, kind string, payload any) {
	if m.controllerPort == nil {
		return
	}
	_ = m.controllerPort.Put(actor, commport.Message{Kind: kind, Payload: payload})
}
