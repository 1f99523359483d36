package kernel

import "github.com/joeycumines/wrenchsim/failurecause"

// Platform assembles the zones/hosts/disks/links/routes graph a Simulation
// runs against, in lieu of an XML platform description. Construct one with
// NewPlatform, populate it with NewHost/NewLink/NewDisk/AddRoute, then pass
// it to NewSimulation.
type Platform struct {
	hosts map[HostName]*Host
	links map[string]*Link
	routes map[routeKey]Route
}

type routeKey struct {
	from, to HostName
}

// NewPlatform returns an empty Platform ready for NewHost/NewLink/NewDisk
// calls.
func NewPlatform() *Platform {
	return &Platform{
		hosts:  make(map[HostName]*Host),
		links:  make(map[string]*Link),
		routes: make(map[routeKey]Route),
	}
}

// NewHost adds a host with the given core count, RAM, and flop/s-per-core
// speed. Returns failurecause.InvalidArgument if name is already taken or
// any numeric argument is non-positive.
func (p *Platform) NewHost(name HostName, coreCount int, ram int64, speed float64) (*Host, error) {
	if name == "" {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "host name must not be empty"})
	}
	if _, exists := p.hosts[name]; exists {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "host " + string(name) + " already exists"})
	}
	if coreCount <= 0 || ram <= 0 || speed <= 0 {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "host resources must be positive"})
	}
	h := &Host{Name: name, CoreCount: coreCount, RAM: ram, Speed: speed, up: true}
	p.hosts[name] = h
	return h, nil
}

// NewLink adds a named link with the given bandwidth (bytes/sec) and
// one-way latency (seconds).
func (p *Platform) NewLink(name string, bandwidthBps, latencySeconds float64) (*Link, error) {
	if name == "" {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "link name must not be empty"})
	}
	if _, exists := p.links[name]; exists {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "link " + name + " already exists"})
	}
	if bandwidthBps <= 0 || latencySeconds < 0 {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "link bandwidth must be positive and latency non-negative"})
	}
	l := &Link{Name: name, BandwidthBps: bandwidthBps, LatencySeconds: latencySeconds, up: true}
	p.links[name] = l
	return l, nil
}

// NewDisk attaches a disk to host, with symmetric read/write bandwidth
// unless WithReadWriteBandwidth is given.
func (p *Platform) NewDisk(host HostName, name DiskName, bandwidthBps float64, capacity int64, opts ...DiskOption) (*Disk, error) {
	h, ok := p.hosts[host]
	if !ok {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "host " + string(host) + " does not exist"})
	}
	if bandwidthBps <= 0 || capacity <= 0 {
		return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: "disk bandwidth and capacity must be positive"})
	}
	d := &Disk{Host: host, Name: name, ReadBps: bandwidthBps, WriteBps: bandwidthBps, Capacity: capacity}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyDiskOption(d); err != nil {
			return nil, failurecause.Wrap(&failurecause.InvalidArgument{Message: err.Error()})
		}
	}
	h.Disks = append(h.Disks, d)
	return d, nil
}

// AddRoute records the ordered link sequence connecting from to to. Routes
// are directional; call AddRoute twice (swapping from/to) for a
// bidirectional path.
func (p *Platform) AddRoute(from, to HostName, links ...*Link) error {
	if _, ok := p.hosts[from]; !ok {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "host " + string(from) + " does not exist"})
	}
	if _, ok := p.hosts[to]; !ok {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "host " + string(to) + " does not exist"})
	}
	if len(links) == 0 {
		return failurecause.Wrap(&failurecause.InvalidArgument{Message: "route must contain at least one link"})
	}
	p.routes[routeKey{from, to}] = append(Route(nil), links...)
	return nil
}

// Host looks up a previously added host.
func (p *Platform) Host(name HostName) (*Host, bool) {
	h, ok := p.hosts[name]
	return h, ok
}

// Route looks up the route previously added between from and to.
func (p *Platform) Route(from, to HostName) (Route, bool) {
	r, ok := p.routes[routeKey{from, to}]
	return r, ok
}
