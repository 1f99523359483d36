// Package datafile implements DataFile identity and FileLocation, the
// address of a file at a storage service's mount point.
package datafile

import "github.com/joeycumines/wrenchsim/failurecause"

// DataFile is an immutable, globally-unique-by-id file identity.
type DataFile struct {
	ID   string
	Size int64
}

// StorageService is the narrow capability FileLocation needs from a storage
// service: its name, for equality and lookups. The concrete
// *storage.StorageService satisfies this; kept as an interface here so this
// package has no import-cycle dependency on package storage.
type StorageService interface {
	Name() string
}

// Location is either (1) concrete: bound to a service and an absolute path
// under one of its mount points, or (2) the Scratch sentinel, which
// late-binds to whichever compute service is running the action that
// references it. Equality is by (Service, AbsolutePath(), File).
type Location struct {
	Service     StorageService
	MountPoint  string
	PathAtMount string
	File        *DataFile
	IsScratch   bool
}

// Scratch returns the sentinel location that late-binds to the running
// compute service's scratch space.
func Scratch(file *DataFile) Location {
	return Location{File: file, IsScratch: true}
}

// AbsolutePath returns MountPoint joined with PathAtMount.
func (l Location) AbsolutePath() string {
	if l.PathAtMount == "" {
		return l.MountPoint
	}
	return l.MountPoint + "/" + l.PathAtMount
}

// Equal reports whether l and other refer to the same location, per the
// (service, absolute-path, file) equality rule. Two Scratch locations for
// the same file are equal only before late-binding; once resolved, compare
// the resolved concrete locations instead.
func (l Location) Equal(other Location) bool {
	if l.IsScratch != other.IsScratch {
		return false
	}
	if l.IsScratch {
		return l.File == other.File
	}
	return l.Service == other.Service && l.AbsolutePath() == other.AbsolutePath() && l.File == other.File
}

// Resolve binds a Scratch location to a concrete one under the given
// compute service's scratch storage service and mount point. Resolving a
// non-scratch location is a no-op that returns l unchanged.
func (l Location) Resolve(scratchService StorageService, scratchMount string) (Location, error) {
	if !l.IsScratch {
		return l, nil
	}
	if scratchService == nil {
		return Location{}, failurecause.Wrap(&failurecause.InvalidArgument{Message: "scratch location has no running compute service's scratch space to bind to"})
	}
	return Location{
		Service:     scratchService,
		MountPoint:  scratchMount,
		PathAtMount: l.File.ID,
		File:        l.File,
	}, nil
}
