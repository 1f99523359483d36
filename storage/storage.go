// Package storage implements StorageService: file lookup, create, delete,
// read, write, and copy over one or more LogicalFileSystems, with
// bufferized (streaming, chunked) or non-bufferized (single-shot) transfer
// modes.
package storage

import (
	"time"

	"github.com/joeycumines/wrenchsim/commport"
	"github.com/joeycumines/wrenchsim/datafile"
	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/filesystem"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/joeycumines/wrenchsim/service"
	"github.com/rs/zerolog"
)

func newStoragePort(sim *kernel.Simulation, name string, host kernel.HostName) *commport.CommPort {
	return commport.NewCommPort(sim, name, host, 0)
}

// Mode is a storage service's transfer mode.
type Mode int

const (
	// NonBufferized models a transfer as one atomic disk+network operation.
	NonBufferized Mode = iota
	// Bufferized models a transfer as a streaming pipeline of fixed-size
	// chunks, overlapping disk read, network send, network receive, and
	// disk write across chunks.
	Bufferized
)

// Option configures a StorageService at construction time.
type Option interface{ apply(*options) error }

type options struct {
	bufferSize                       int64
	maxConcurrentDataConnections     int
}

type optionFunc func(*options) error

func (f optionFunc) apply(o *options) error { return f(o) }

// WithBufferSize sets BUFFER_SIZE. 0 (the default) means non-bufferized.
func WithBufferSize(bytes int64) Option {
	return optionFunc(func(o *options) error {
		if bytes < 0 {
			return failurecause.Wrap(&failurecause.InvalidArgument{Message: "buffer size must not be negative"})
		}
		o.bufferSize = bytes
		return nil
	})
}

// WithMaxConcurrentDataConnections sets MAX_NUM_CONCURRENT_DATA_CONNECTIONS.
// A non-positive value (the default) means unlimited.
func WithMaxConcurrentDataConnections(n int) Option {
	return optionFunc(func(o *options) error {
		o.maxConcurrentDataConnections = n
		return nil
	})
}

// Mount associates a mount point path with the disk backing it.
type Mount struct {
	Path string
	Disk *kernel.Disk
}

// StorageService owns one or more LogicalFileSystems over its host's disks.
type StorageService struct {
	*service.Base

	sim    *kernel.Simulation
	host   kernel.HostName
	mounts map[string]*filesystem.LogicalFileSystem
	disks  map[string]*kernel.Disk

	bufferSize int64
	dataConns  *slotSemaphore
}

// Name satisfies datafile.StorageService.
func (s *StorageService) Name() string { return s.Base.Name }

// NewStorageService constructs a StorageService over host, with one
// LogicalFileSystem per given mount.
func NewStorageService(sim *kernel.Simulation, name string, host kernel.HostName, mounts []Mount, logger *zerolog.Logger, opts ...Option) (*StorageService, error) {
	if sim == nil {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "simulation must not be nil"})
	}
	if _, ok := sim.Host(host); !ok {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "host " + string(host) + " does not exist"})
	}
	cfg := &options{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o.apply(cfg); err != nil {
			return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: err.Error()})
		}
	}

	registry := filesystem.NewRegistry()
	fsByMount := make(map[string]*filesystem.LogicalFileSystem, len(mounts))
	diskByMount := make(map[string]*kernel.Disk, len(mounts))
	for _, m := range mounts {
		fs, err := registry.New(filesystem.Key{Host: host, Service: name, Mount: m.Path}, m.Disk)
		if err != nil {
			return nil, err
		}
		fsByMount[m.Path] = fs
		diskByMount[m.Path] = m.Disk
	}

	port := newStoragePort(sim, name, host)
	ss := &StorageService{
		Base:       service.NewBase(name, port, logger, nil, nil),
		sim:        sim,
		host:       host,
		mounts:     fsByMount,
		disks:      diskByMount,
		bufferSize: cfg.bufferSize,
		dataConns:  newSlotSemaphore(cfg.maxConcurrentDataConnections),
	}
	return ss, nil
}

func (s *StorageService) mode() Mode {
	if s.bufferSize > 0 {
		return Bufferized
	}
	return NonBufferized
}

// negotiateMode returns NonBufferized if either endpoint is non-bufferized,
// per the cross-mode transfer rule.
func negotiateMode(src, dst *StorageService) Mode {
	if src.mode() == NonBufferized || dst.mode() == NonBufferized {
		return NonBufferized
	}
	return Bufferized
}

func (s *StorageService) fsFor(loc datafile.Location) (*filesystem.LogicalFileSystem, error) {
	fs, ok := s.mounts[loc.MountPoint]
	if !ok {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "mount " + loc.MountPoint + " is not owned by storage service " + s.Name()})
	}
	return fs, nil
}

// LookupFile reports whether a file is present at location. No side
// effects. Fails if location's service is not this service.
func (s *StorageService) LookupFile(loc datafile.Location) (bool, error) {
	if err := s.CheckUp(); err != nil {
		return false, err
	}
	if loc.Service != datafile.StorageService(s) {
		return false, failurecause.Wrap(&failurecause.InvalidArgument{Message: "location does not belong to this storage service"})
	}
	fs, err := s.fsFor(loc)
	if err != nil {
		return false, err
	}
	return fs.Contains(loc.PathAtMount, loc.File.ID), nil
}

// CreateFile reserves location.File.Size bytes at location. Fails with
// NotEnoughSpace if the mount cannot accommodate it.
func (s *StorageService) CreateFile(loc datafile.Location) error {
	if err := s.CheckUp(); err != nil {
		return err
	}
	fs, err := s.fsFor(loc)
	if err != nil {
		return err
	}
	return fs.Reserve(loc.PathAtMount, loc.File.ID, loc.File.Size)
}

// DeleteFile frees location's reservation, if present. Never fails merely
// because the file is absent (needed by cleanup actions); the bool return
// distinguishes "removed" from "already absent".
func (s *StorageService) DeleteFile(loc datafile.Location) (bool, error) {
	if err := s.CheckUp(); err != nil {
		return false, err
	}
	fs, err := s.fsFor(loc)
	if err != nil {
		return false, err
	}
	return fs.Release(loc.PathAtMount, loc.File.ID)
}

func diskRate(disk *kernel.Disk, read bool) float64 {
	if read {
		return disk.ReadBps
	}
	return disk.WriteBps
}

// ReadFile simulates reading location.File off its mount's disk, blocking
// the calling actor for the corresponding duration.
func (s *StorageService) ReadFile(actor *kernel.Actor, loc datafile.Location) error {
	return s.diskOp(actor, loc, true)
}

// WriteFile simulates writing location.File to its mount's disk, blocking
// the calling actor for the corresponding duration.
func (s *StorageService) WriteFile(actor *kernel.Actor, loc datafile.Location) error {
	return s.diskOp(actor, loc, false)
}

func (s *StorageService) diskOp(actor *kernel.Actor, loc datafile.Location, read bool) error {
	if err := s.CheckUp(); err != nil {
		return err
	}
	fs, err := s.fsFor(loc)
	if err != nil {
		return err
	}
	if read && !fs.Contains(loc.PathAtMount, loc.File.ID) {
		return failurecause.Wrap(&failurecause.FileNotFound{FileID: loc.File.ID, Location: loc.AbsolutePath()})
	}
	disk := s.disks[loc.MountPoint]
	if err := s.dataConns.acquire(actor); err != nil {
		return err
	}
	defer s.dataConns.release()

	rate := diskRate(disk, read)
	seconds := float64(loc.File.Size) / rate
	if err := actor.SuspendUntil(actor.Sim().Now() + int64(seconds*float64(time.Second))); err != nil {
		return err
	}
	host, ok := s.sim.Host(s.host)
	if ok && !host.Up() {
		return failurecause.Wrap(&failurecause.HostError{Host: string(s.host)})
	}
	return nil
}

// CopyFile is the synchronous helper that copies src (owned by a peer
// StorageService) into dst on this service. DataMovementManager uses the
// same underlying mechanism asynchronously.
func CopyFile(actor *kernel.Actor, src *StorageService, srcLoc datafile.Location, dst *StorageService, dstLoc datafile.Location) error {
	if err := src.CheckUp(); err != nil {
		return err
	}
	if err := dst.CheckUp(); err != nil {
		return err
	}
	present, err := src.LookupFile(srcLoc)
	if err != nil {
		return err
	}
	if !present {
		return failurecause.Wrap(&failurecause.FileNotFound{FileID: srcLoc.File.ID, Location: srcLoc.AbsolutePath()})
	}

	if err := dst.CreateFile(dstLoc); err != nil {
		return err
	}

	if err := src.dataConns.acquire(actor); err != nil {
		_, _ = dst.DeleteFile(dstLoc)
		return err
	}
	defer src.dataConns.release()
	if dst != src {
		if err := dst.dataConns.acquire(actor); err != nil {
			_, _ = dst.DeleteFile(dstLoc)
			return err
		}
		defer dst.dataConns.release()
	}

	duration, err := transferDuration(src, srcLoc, dst, dstLoc)
	if err != nil {
		_, _ = dst.DeleteFile(dstLoc)
		return err
	}
	if err := actor.SuspendUntil(actor.Sim().Now() + int64(duration)); err != nil {
		_, _ = dst.DeleteFile(dstLoc)
		return err
	}

	for _, h := range []kernel.HostName{src.host, dst.host} {
		host, ok := src.sim.Host(h)
		if ok && !host.Up() {
			_, _ = dst.DeleteFile(dstLoc)
			return failurecause.Wrap(&failurecause.HostError{Host: string(h)})
		}
	}
	return nil
}

func transferDuration(src *StorageService, srcLoc datafile.Location, dst *StorageService, dstLoc datafile.Location) (time.Duration, error) {
	size := srcLoc.File.Size
	srcDisk := src.disks[srcLoc.MountPoint]
	dstDisk := dst.disks[dstLoc.MountPoint]

	var bandwidth, latency float64
	if src.host == dst.host {
		bandwidth = 0 // no network hop for same-host copies
	} else {
		route, ok := src.sim.Route(src.host, dst.host)
		if !ok {
			return 0, failurecause.Wrap(&failurecause.NetworkError{Message: "no route from " + string(src.host) + " to " + string(dst.host)})
		}
		bandwidth = route.EndToEndBandwidth()
		latency = route.EndToEndLatency()
	}

	switch negotiateMode(src, dst) {
	case NonBufferized:
		rates := []float64{srcDisk.ReadBps, dstDisk.WriteBps}
		if bandwidth > 0 {
			rates = append(rates, bandwidth)
		}
		slowest := rates[0]
		for _, r := range rates[1:] {
			if r < slowest {
				slowest = r
			}
		}
		seconds := float64(size)/slowest + latency
		return time.Duration(seconds * float64(time.Second)), nil
	default: // Bufferized
		chunk := dst.bufferSize
		if src.bufferSize > 0 && src.bufferSize < chunk {
			chunk = src.bufferSize
		}
		if chunk <= 0 || chunk > size {
			chunk = size
		}
		numChunks := (size + chunk - 1) / chunk

		stages := []float64{float64(chunk) / srcDisk.ReadBps}
		if bandwidth > 0 {
			stages = append(stages, float64(chunk)/bandwidth, float64(chunk)/bandwidth)
		}
		stages = append(stages, float64(chunk)/dstDisk.WriteBps)

		var sum, bottleneck float64
		for _, st := range stages {
			sum += st
			if st > bottleneck {
				bottleneck = st
			}
		}
		seconds := float64(numChunks-1)*bottleneck + sum + latency
		return time.Duration(seconds * float64(time.Second)), nil
	}
}
