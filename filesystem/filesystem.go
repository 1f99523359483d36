// Package filesystem implements LogicalFileSystem: the per (host,
// storage-service, mount-point) namespace and reservation ledger a
// StorageService manages over a kernel.Disk.
package filesystem

import (
	"sync"

	"github.com/joeycumines/wrenchsim/failurecause"
	"github.com/joeycumines/wrenchsim/kernel"
)

// Key identifies a LogicalFileSystem instance. At most one instance may
// exist per Key within a Registry.
type Key struct {
	Host    kernel.HostName
	Service string
	Mount   string
}

// LogicalFileSystem tracks a directory tree and, for each directory, a
// mapping of file id to reserved bytes. Invariants enforced by every
// mutating method: (i) sum of reservations never exceeds the disk's
// capacity; (ii) a file appears in at most one directory; (iii) a create
// that would exceed free space fails without partial reservation.
type LogicalFileSystem struct {
	Key  Key
	disk *kernel.Disk

	mu       sync.Mutex
	dirs     map[string]map[string]int64 // dir -> fileID -> reserved bytes
	fileDir  map[string]string           // fileID -> dir, for invariant (ii)
	reserved int64
}

// Registry holds the LogicalFileSystem instances created for one
// StorageService, enforcing the "at most one instance per key" rule.
type Registry struct {
	mu  sync.Mutex
	fss map[Key]*LogicalFileSystem
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{fss: make(map[Key]*LogicalFileSystem)}
}

// New creates a LogicalFileSystem over disk, mounted at key.Mount. Returns
// failurecause.InvalidArgument if key is already registered.
func (r *Registry) New(key Key, disk *kernel.Disk) (*LogicalFileSystem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fss[key]; exists {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "a logical file system already exists for " + string(key.Host) + ":" + key.Service + ":" + key.Mount})
	}
	fs := &LogicalFileSystem{
		Key:     key,
		disk:    disk,
		dirs:    make(map[string]map[string]int64),
		fileDir: make(map[string]string),
	}
	r.fss[key] = fs
	return fs, nil
}

// Get looks up a previously created LogicalFileSystem by key.
func (r *Registry) Get(key Key) (*LogicalFileSystem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fs, ok := r.fss[key]
	return fs, ok
}

// FreeSpace returns the disk capacity not currently reserved.
func (fs *LogicalFileSystem) FreeSpace() int64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.disk.Capacity - fs.reserved
}

// Contains reports whether fileID is present at dir in this file system.
func (fs *LogicalFileSystem) Contains(dir, fileID string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	d, ok := fs.fileDir[fileID]
	return ok && d == dir
}

// Reserve records fileID (of the given size) under dir, reserving size
// bytes against the disk's capacity. Fails with NotEnoughSpace (no partial
// reservation) if size exceeds free space, or InvalidArgument if fileID is
// already present in a different directory on this mount.
func (fs *LogicalFileSystem) Reserve(dir, fileID string, size int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if existingDir, ok := fs.fileDir[fileID]; ok && existingDir != dir {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "file " + fileID + " already present in another directory on this mount"})
	}
	if fs.disk.Capacity-fs.reserved < size {
		return failurecause.Wrap(&failurecause.NotEnoughSpace{
			MountPoint: fs.Key.Mount,
			Requested:  size,
			Available:  fs.disk.Capacity - fs.reserved,
		})
	}
	if fs.dirs[dir] == nil {
		fs.dirs[dir] = make(map[string]int64)
	}
	fs.dirs[dir][fileID] = size
	fs.fileDir[fileID] = dir
	fs.reserved += size
	return nil
}

// Release frees fileID's reservation under dir. Returns (true, nil) if a
// reservation was found and freed, (false, nil) if absent — deleteFile
// callers use the flag to distinguish the two without treating "absent" as
// an error, per the cleanup-action contract.
func (fs *LogicalFileSystem) Release(dir, fileID string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	byFile, ok := fs.dirs[dir]
	if !ok {
		return false, nil
	}
	size, ok := byFile[fileID]
	if !ok {
		return false, nil
	}
	delete(byFile, fileID)
	if len(byFile) == 0 {
		delete(fs.dirs, dir)
	}
	delete(fs.fileDir, fileID)
	fs.reserved -= size
	return true, nil
}
