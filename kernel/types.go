package kernel

import "fmt"

// HostName identifies a Host within a Simulation.
type HostName string

// DiskName identifies a Disk mounted on a Host.
type DiskName string

// ActorID identifies a spawned Actor.
type ActorID uint64

// Host is a compute node: some number of cores, some RAM, a flop/s rate per
// core, and zero or more attached disks.
type Host struct {
	Name      HostName
	CoreCount int
	RAM       int64
	// Speed is flop/s delivered by a single core.
	Speed float64
	Disks []*Disk

	up bool
}

// Up reports whether the host currently accepts new operations.
func (h *Host) Up() bool { return h.up }

// SetUp flips the host's up/down state, modeling a crash (false) or a
// restart (true). Does not itself notify actors or services running on the
// host; callers that simulate a crash affecting in-flight work must follow
// up with the owning service's own notification method.
func (h *Host) SetUp(up bool) { h.up = up }

// Disk is a storage device attached to exactly one Host.
type Disk struct {
	Host     HostName
	Name     DiskName
	ReadBps  float64
	WriteBps float64
	Capacity int64

	reserved int64
}

// FreeSpace returns Capacity minus the disk's own reserved counter, which
// nothing in this module updates: reservations made through a
// filesystem.LogicalFileSystem are tracked there (see its FreeSpace) and are
// not reflected here.
func (d *Disk) FreeSpace() int64 { return d.Capacity - d.reserved }

// Link is one hop of a Route: a bandwidth and a one-way latency.
type Link struct {
	Name          string
	BandwidthBps  float64
	LatencySeconds float64

	up bool
}

// Up reports whether the link currently carries traffic.
func (l *Link) Up() bool { return l.up }

// SetUp flips the link's up/down state, modeling a network outage (false)
// or recovery (true).
func (l *Link) SetUp(up bool) { l.up = up }

// Route is an ordered sequence of Links connecting two hosts.
type Route []*Link

// EndToEndBandwidth is the bottleneck bandwidth along the route: the
// minimum of each link's bandwidth.
func (r Route) EndToEndBandwidth() float64 {
	if len(r) == 0 {
		return 0
	}
	bw := r[0].BandwidthBps
	for _, l := range r[1:] {
		if l.BandwidthBps < bw {
			bw = l.BandwidthBps
		}
	}
	return bw
}

// EndToEndLatency is the sum of each link's one-way latency.
func (r Route) EndToEndLatency() float64 {
	var total float64
	for _, l := range r {
		total += l.LatencySeconds
	}
	return total
}

// diskOption configures a Disk at construction time, grounded on
// inprocgrpc's functional-option-over-a-config-struct pattern.
type diskOption struct {
	fn func(*Disk) error
}

// DiskOption configures a Disk built by Platform.NewDisk.
type DiskOption interface {
	applyDiskOption(*Disk) error
}

func (o *diskOption) applyDiskOption(d *Disk) error { return o.fn(d) }

// WithReadWriteBandwidth sets asymmetric read/write bandwidths. Without this
// option, ReadBps == WriteBps == the bandwidth passed to NewDisk.
func WithReadWriteBandwidth(readBps, writeBps float64) DiskOption {
	return &diskOption{fn: func(d *Disk) error {
		if readBps <= 0 || writeBps <= 0 {
			return fmt.Errorf("kernel: read/write bandwidth must be positive")
		}
		d.ReadBps = readBps
		d.WriteBps = writeBps
		return nil
	}}
}
