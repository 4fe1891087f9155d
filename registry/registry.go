/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package registry implements the component registry (§4.E): the
(CID → System → Group → Point → Details) tree, its expiry policy, and the
change-event stream that is the only interface between the registry and
upper layers (merger, producer, consumer).
*/
package registry

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/esta-otp/otp/protocol"
)

// Kind distinguishes a producer component from a consumer component.
type Kind int

// Component kinds.
const (
	KindProducer Kind = iota
	KindConsumer
)

// ComponentExpiry, PointExpiry and ModuleInterestExpiry are the timeouts
// from §4.E's expiry policy table.
const (
	ComponentExpiry      = 30 * time.Second
	PointExpiry          = 7500 * time.Millisecond
	ModuleInterestExpiry = 30 * time.Second
)

// ModuleState is the last-received state of one module on one point.
type ModuleState struct {
	Payload  protocol.ModulePayload
	LastSeen time.Time
}

// PointDetails is the per-Point state described in §4.E.
type PointDetails struct {
	Priority protocol.Priority
	Name     protocol.Name
	Modules  map[protocol.ModuleIdent]*ModuleState
	LastSeen time.Time
	Expired  bool
	order    uint64 // insertion order, for merger tie-breaking (§4.F)
}

// systemDetails is the Group → Point tree for one System under one component.
type systemDetails struct {
	groups map[protocol.Group]map[protocol.Point]*PointDetails
}

// Component is the per-CID state described in §4.E.
type Component struct {
	CID      protocol.CID
	Name     protocol.Name
	IP       net.IP
	Kind     Kind
	LastSeen time.Time
	// Modules is the set of module-interest entries this component has
	// advertised, each with its own last-seen for 30s expiry.
	Modules  map[protocol.ModuleIdent]time.Time
	systems  map[protocol.System]*systemDetails
}

// Registry is a single-lock component registry. Mutations are always
// serialized under mu (§4.E, §5); change events are buffered while the
// lock is held and dispatched after release so a slow consumer of Events
// never blocks a mutator.
type Registry struct {
	mu         sync.Mutex
	components map[protocol.CID]*Component
	winning    map[protocol.Address]protocol.CID
	order      uint64
	events     chan Event
	dirty      chan protocol.System
}

// New returns an empty Registry. events is the channel change notifications
// are delivered on; it should be drained continuously by the caller.
func New(events chan Event) *Registry {
	return &Registry{
		components: make(map[protocol.CID]*Component),
		winning:    make(map[protocol.Address]protocol.CID),
		events:     events,
		dirty:      make(chan protocol.System, 1024),
	}
}

// Dirty returns the channel the priority merger (§4.F) reads System
// numbers from whenever a mutation may have changed the winning contributor.
func (r *Registry) Dirty() <-chan protocol.System {
	return r.dirty
}

func (r *Registry) markDirty(system protocol.System) {
	select {
	case r.dirty <- system:
	default:
		// merger will still catch this system on its next 1s sweep
	}
}

func (r *Registry) sink() *eventSink {
	return &eventSink{out: r.events}
}

// touchComponent finds or creates a component, updating its last-seen and
// emitting newComponent the first time it is observed.
func (r *Registry) touchComponent(sink *eventSink, cid protocol.CID, name protocol.Name, ip net.IP, kind Kind, now time.Time) *Component {
	c, ok := r.components[cid]
	if !ok {
		c = &Component{
			CID:     cid,
			Modules: make(map[protocol.ModuleIdent]time.Time),
			systems: make(map[protocol.System]*systemDetails),
		}
		r.components[cid] = c
		sink.emit(Event{Kind: NewComponent, CID: cid})
	}
	c.LastSeen = now
	if name != "" {
		c.Name = name
	}
	if ip != nil {
		c.IP = ip
	}
	c.Kind = kind
	return c
}

func (c *Component) touchSystem(sink *eventSink, system protocol.System) *systemDetails {
	sd, ok := c.systems[system]
	if !ok {
		sd = &systemDetails{groups: make(map[protocol.Group]map[protocol.Point]*PointDetails)}
		c.systems[system] = sd
		sink.emit(Event{Kind: NewSystem, CID: c.CID, Address: protocol.Address{System: system}})
	}
	return sd
}

func (sd *systemDetails) touchGroup(sink *eventSink, cid protocol.CID, system protocol.System, group protocol.Group) map[protocol.Point]*PointDetails {
	g, ok := sd.groups[group]
	if !ok {
		g = make(map[protocol.Point]*PointDetails)
		sd.groups[group] = g
		sink.emit(Event{Kind: NewGroup, CID: cid, Address: protocol.Address{System: system, Group: group}})
	}
	return g
}

// UpsertTransformPoint records one Point layer's worth of module data
// received in a Transform message (§4.G ingress handling). It upserts the
// point, diffs each module's payload against the previous value, and
// returns the set of module kinds whose value changed.
func (r *Registry) UpsertTransformPoint(cid protocol.CID, name protocol.Name, ip net.IP, addr protocol.Address, priority protocol.Priority, modules []protocol.Module, now time.Time) []protocol.ModuleIdent {
	r.mu.Lock()
	sink := r.sink()
	defer func() {
		r.mu.Unlock()
		sink.flush()
	}()

	c := r.touchComponent(sink, cid, name, ip, KindProducer, now)
	sd := c.touchSystem(sink, addr.System)
	g := sd.touchGroup(sink, cid, addr.System, addr.Group)

	pd, ok := g[addr.Point]
	if !ok {
		r.order++
		pd = &PointDetails{Modules: make(map[protocol.ModuleIdent]*ModuleState), order: r.order}
		g[addr.Point] = pd
		sink.emit(Event{Kind: NewPoint, CID: cid, Address: addr})
	}
	pd.Priority = priority
	pd.LastSeen = now
	pd.Expired = false
	r.markDirty(addr.System)

	var changed []protocol.ModuleIdent
	for i := range modules {
		m := &modules[i]
		ident := m.Ident()
		ms, ok := pd.Modules[ident]
		if !ok || !modulePayloadEqual(ms.Payload, m.Additional) {
			pd.Modules[ident] = &ModuleState{Payload: m.Additional, LastSeen: now}
			changed = append(changed, ident)
		} else {
			ms.LastSeen = now
		}
	}
	sink.emit(Event{Kind: UpdatedPoint, CID: cid, Address: addr})
	for _, ident := range changed {
		for _, k := range moduleUpdateEvents(ident) {
			sink.emit(Event{Kind: k, CID: cid, Address: addr})
		}
	}
	return changed
}

// moduleUpdateEvents maps a module identifier to the axis-level events §4.G
// names: PositionVelAcc and RotationVelAcc each produce their event kind
// twice (UpdatedPositionVelAcc or UpdatedRotationVelAcc, repeated), since
// they carry both a velocity and an acceleration; every other standard
// module produces one event.
func moduleUpdateEvents(ident protocol.ModuleIdent) []EventKind {
	if ident.ManufacturerID != protocol.ESTAManufacturerID {
		return nil
	}
	switch ident.ModuleNumber {
	case protocol.ModulePosition:
		return []EventKind{UpdatedPosition}
	case protocol.ModulePositionVelAcc:
		return []EventKind{UpdatedPositionVelAcc, UpdatedPositionVelAcc}
	case protocol.ModuleRotation:
		return []EventKind{UpdatedRotation}
	case protocol.ModuleRotationVelAcc:
		return []EventKind{UpdatedRotationVelAcc, UpdatedRotationVelAcc}
	case protocol.ModuleScale:
		return []EventKind{UpdatedScale}
	case protocol.ModuleReferenceFrame:
		return []EventKind{UpdatedReferenceFrame}
	default:
		return nil
	}
}

func modulePayloadEqual(a, b protocol.ModulePayload) bool {
	if a == nil || b == nil {
		return a == b
	}
	sa := protocol.NewStreamSize(a.EncodedSize())
	a.EncodeTo(sa)
	sb := protocol.NewStreamSize(b.EncodedSize())
	b.EncodeTo(sb)
	if len(sa.Bytes()) != len(sb.Bytes()) {
		return false
	}
	for i := range sa.Bytes() {
		if sa.Bytes()[i] != sb.Bytes()[i] {
			return false
		}
	}
	return true
}

// UpsertPointName records a Name-Advertisement Response descriptor (§4.G):
// upserts the address with the advertised PointName.
func (r *Registry) UpsertPointName(cid protocol.CID, addr protocol.Address, pointName protocol.Name, now time.Time) {
	r.mu.Lock()
	sink := r.sink()
	defer func() {
		r.mu.Unlock()
		sink.flush()
	}()

	c := r.touchComponent(sink, cid, "", nil, KindProducer, now)
	sd := c.touchSystem(sink, addr.System)
	g := sd.touchGroup(sink, cid, addr.System, addr.Group)

	pd, ok := g[addr.Point]
	if !ok {
		r.order++
		pd = &PointDetails{Modules: make(map[protocol.ModuleIdent]*ModuleState), order: r.order}
		g[addr.Point] = pd
		sink.emit(Event{Kind: NewPoint, CID: cid, Address: addr})
	}
	pd.Name = pointName
	pd.LastSeen = now
}

// ReplaceSystems implements the System-Advertisement Response rule (§4.G):
// the list is authoritative for the sending CID. Systems present before but
// absent from systems are removed; systems newly present are added.
func (r *Registry) ReplaceSystems(cid protocol.CID, name protocol.Name, ip net.IP, systems []protocol.System, now time.Time) {
	r.mu.Lock()
	sink := r.sink()
	defer func() {
		r.mu.Unlock()
		sink.flush()
	}()

	c := r.touchComponent(sink, cid, name, ip, KindProducer, now)

	want := make(map[protocol.System]bool, len(systems))
	for _, s := range systems {
		want[s] = true
	}
	for existing := range c.systems {
		if !want[existing] {
			delete(c.systems, existing)
			sink.emit(Event{Kind: RemovedSystem, CID: cid, Address: protocol.Address{System: existing}})
			r.markDirty(existing)
		}
	}
	for _, s := range systems {
		c.touchSystem(sink, s)
		r.markDirty(s)
	}
}

// UpsertModuleInterest records one entry of a Module-Advertisement (§4.G):
// the sending component understands the given module kind.
func (r *Registry) UpsertModuleInterest(cid protocol.CID, name protocol.Name, ip net.IP, modules []protocol.ModuleIdent, now time.Time) {
	r.mu.Lock()
	sink := r.sink()
	defer func() {
		r.mu.Unlock()
		sink.flush()
	}()

	c := r.touchComponent(sink, cid, name, ip, KindConsumer, now)
	for _, m := range modules {
		c.Modules[m] = now
	}
}

// ChangeComponentCID atomically moves the entire subtree rooted at old to
// new (§4.E), provided new is unused. Upper layers see newComponent(new)
// then removedComponent(old).
func (r *Registry) ChangeComponentCID(old, new protocol.CID) error {
	r.mu.Lock()
	sink := r.sink()
	defer func() {
		r.mu.Unlock()
		sink.flush()
	}()

	if _, taken := r.components[new]; taken {
		return fmt.Errorf("registry: CID %s is already in use", new)
	}
	c, ok := r.components[old]
	if !ok {
		return fmt.Errorf("registry: unknown CID %s", old)
	}
	delete(r.components, old)
	c.CID = new
	r.components[new] = c
	sink.emit(Event{Kind: NewComponent, CID: new})
	sink.emit(Event{Kind: RemovedComponent, CID: old})
	return nil
}

// GetWinningComponent returns the CID the merger has selected as the
// highest-priority contributor for addr, or the zero CID if none.
func (r *Registry) GetWinningComponent(addr protocol.Address) (protocol.CID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cid, ok := r.winning[addr]
	return cid, ok
}

// Component returns a shallow, lock-free copy of a component's identity
// fields (not its address tree) for read-only inspection.
func (r *Registry) Component(cid protocol.CID) (Kind, protocol.Name, net.IP, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.components[cid]
	if !ok {
		return 0, "", nil, false
	}
	return c.Kind, c.Name, c.IP, true
}

// Counts returns the current (components, systems, points) gauges for stats.
func (r *Registry) Counts() (components, systems, points int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seenSystems := map[protocol.System]bool{}
	components = int64(len(r.components))
	for _, c := range r.components {
		for sys, sd := range c.systems {
			seenSystems[sys] = true
			for _, g := range sd.groups {
				points += int64(len(g))
			}
		}
	}
	systems = int64(len(seenSystems))
	return
}
