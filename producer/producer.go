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
Package producer implements the Producer role (§4.H): it holds the
local set of Points a component is sourcing, emits Transform folios at
a regulated cadence per System, and answers unicast advertisement
requests after a randomized backoff. Scheduling follows the teacher's
SubscriptionClient pattern (ptp4u server/subscription.go): one ticker
per periodic concern, reset in place rather than recreated, observing
a shutdown channel at each iteration boundary.
*/
package producer

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/esta-otp/otp/protocol"
	"github.com/esta-otp/otp/socket"
	log "github.com/sirupsen/logrus"
)

// StartupDelay is the minimum time after construction before any
// Transform datagram is emitted (§4.H.4).
const StartupDelay = 12 * time.Second

// MinTransformInterval and MaxTransformInterval bound the configurable
// per-System Transform cadence (§4.H.1).
const (
	MinTransformInterval = 1 * time.Millisecond
	MaxTransformInterval = 50 * time.Millisecond
)

// MinFullPointSetInterval and MaxFullPointSetInterval bound how often a
// Full Point Set folio MUST be emitted regardless of changes (§4.H.2).
const (
	MinFullPointSetInterval = 2800 * time.Millisecond
	MaxFullPointSetInterval = 3000 * time.Millisecond
)

// MaxReplyBackoff bounds the randomized unicast reply delay to an
// advertisement Request (§4.H.3).
const MaxReplyBackoff = 5000 * time.Millisecond

type pointState struct {
	name     protocol.Name
	priority protocol.Priority
	modules  map[protocol.ModuleIdent]protocol.Module
	dirty    bool
}

type systemState struct {
	folio  protocol.Folio
	points map[protocol.Address]*pointState
}

// Config configures a Producer's identity and transmission cadence.
type Config struct {
	CID               protocol.CID
	Name              protocol.Name
	TransformInterval time.Duration // clamped to [MinTransformInterval, MaxTransformInterval]
	IPv6              bool          // use IPv6 multicast groups instead of IPv4
}

// Producer holds local Point state and drives Transform/advertisement
// transmission for one OTP component.
type Producer struct {
	cfg  Config
	sock socket.Socket

	mu              sync.Mutex
	systems         map[protocol.System]*systemState
	advertFolio     protocol.Folio // Module/Name/System advertisement folio counter
	lastFullPointAt map[protocol.System]time.Time

	startedAt time.Time
	rng       *rand.Rand
	rngMu     sync.Mutex
}

// New builds a Producer bound to sock. Transmission does not begin
// until Run is called, and Transform emission still waits out
// StartupDelay from this call's return.
func New(cfg Config, sock socket.Socket) *Producer {
	if cfg.TransformInterval < MinTransformInterval {
		cfg.TransformInterval = MinTransformInterval
	}
	if cfg.TransformInterval > MaxTransformInterval {
		cfg.TransformInterval = MaxTransformInterval
	}
	return &Producer{
		cfg:             cfg,
		sock:            sock,
		systems:         make(map[protocol.System]*systemState),
		lastFullPointAt: make(map[protocol.System]time.Time),
		startedAt:       time.Now(),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetPoint creates or updates the local state for (system, addr),
// marking it dirty so the next Transform folio includes it even
// outside a Full Point Set cycle.
func (p *Producer) SetPoint(system protocol.System, addr protocol.Address, priority protocol.Priority, name protocol.Name, modules []protocol.Module) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sys := p.systemLocked(system)
	ps, ok := sys.points[addr]
	if !ok {
		ps = &pointState{modules: make(map[protocol.ModuleIdent]protocol.Module)}
		sys.points[addr] = ps
	}
	ps.name = name
	ps.priority = priority
	for _, m := range modules {
		ps.modules[m.Ident()] = m
	}
	ps.dirty = true
}

// RemovePoint drops local state for (system, addr); it will no longer
// appear in subsequent Transform folios.
func (p *Producer) RemovePoint(system protocol.System, addr protocol.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sys, ok := p.systems[system]
	if !ok {
		return
	}
	delete(sys.points, addr)
}

func (p *Producer) systemLocked(system protocol.System) *systemState {
	sys, ok := p.systems[system]
	if !ok {
		sys = &systemState{points: make(map[protocol.Address]*pointState)}
		p.systems[system] = sys
	}
	return sys
}

func (p *Producer) transformGroup(system protocol.System) net.IP {
	if p.cfg.IPv6 {
		return socket.TransformGroupIPv6(system)
	}
	return socket.TransformGroupIPv4(system)
}

func (p *Producer) advertisementGroup() net.IP {
	if p.cfg.IPv6 {
		return socket.AdvertisementGroupIPv6
	}
	return socket.AdvertisementGroupIPv4
}

// Run blocks, driving Transform emission and advertisement-request
// handling until done is closed.
func (p *Producer) Run(done <-chan struct{}) {
	if err := p.sock.Join(p.advertisementGroup()); err != nil {
		log.Errorf("producer: joining advertisement group: %v", err)
	}

	incoming := make(chan socket.Packet, 64)
	go p.readLoop(done, incoming)

	ticker := time.NewTicker(p.cfg.TransformInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.emitDue()
		case pkt := <-incoming:
			p.handleAdvertisementRequest(done, pkt)
		}
	}
}

func (p *Producer) readLoop(done <-chan struct{}, out chan<- socket.Packet) {
	for {
		pkt, err := p.sock.Recv()
		if err != nil {
			return
		}
		select {
		case out <- pkt:
		case <-done:
			return
		}
	}
}

// emitDue sends a Transform folio for every registered System, once the
// startup delay has elapsed, promoting to a Full Point Set whenever the
// per-System full-refresh window has expired.
func (p *Producer) emitDue() {
	if time.Since(p.startedAt) < StartupDelay {
		return
	}

	p.mu.Lock()
	systems := make([]protocol.System, 0, len(p.systems))
	for sys := range p.systems {
		systems = append(systems, sys)
	}
	p.mu.Unlock()

	for _, sys := range systems {
		p.emitTransform(sys)
	}
}

func (p *Producer) fullPointSetDue(system protocol.System) bool {
	last, ok := p.lastFullPointAt[system]
	if !ok {
		return true
	}
	window := MinFullPointSetInterval + time.Duration(p.randInt63n(int64(MaxFullPointSetInterval-MinFullPointSetInterval)))
	return time.Since(last) >= window
}

func (p *Producer) emitTransform(system protocol.System) {
	p.mu.Lock()
	sys, ok := p.systems[system]
	if !ok {
		p.mu.Unlock()
		return
	}
	full := p.fullPointSetDue(system)
	points := make([]protocol.PointLayer, 0, len(sys.points))
	for addr, ps := range sys.points {
		if !full && !ps.dirty {
			continue
		}
		points = append(points, pointLayerFrom(addr, ps))
		ps.dirty = false
	}
	if full {
		p.lastFullPointAt[system] = time.Now()
	}
	sys.folio++
	folio := sys.folio
	p.mu.Unlock()

	if len(points) == 0 {
		return
	}

	msg := protocol.NewTransformMessage(p.cfg.CID, p.cfg.Name, folio, system, protocol.Timestamp(time.Now().UnixMicro()), full)
	for _, pl := range points {
		if err := msg.AddPoint(pl); err != nil {
			log.Warnf("producer: system %d: point dropped, folio would overflow: %v", system, err)
			break
		}
	}
	pages, err := msg.Paginate()
	if err != nil {
		log.Errorf("producer: system %d: paginating transform folio %d: %v", system, folio, err)
		return
	}
	group := p.transformGroup(system)
	for _, page := range pages {
		if err := p.sock.SendTo(group, page); err != nil {
			log.Errorf("producer: system %d: sending transform page: %v", system, err)
			return
		}
	}
}

func pointLayerFrom(addr protocol.Address, ps *pointState) protocol.PointLayer {
	pl := protocol.PointLayer{
		Vector:    protocol.VectorOTPModule,
		Priority:  ps.priority,
		Group:     addr.Group,
		Point:     addr.Point,
		Timestamp: protocol.Timestamp(time.Now().UnixMicro()),
	}
	for _, m := range ps.modules {
		pl.Modules = append(pl.Modules, m)
	}
	return pl
}

func (p *Producer) randInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Int63n(n)
}

func (p *Producer) nextAdvertFolio() protocol.Folio {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advertFolio++
	return p.advertFolio
}
