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

package registry

import (
	"time"

	"github.com/esta-otp/otp/protocol"
)

// sweepInterval is how often RunExpirySweeps checks timestamps. Per-entity
// OS timers (one per component, one per point) don't scale to the point
// cardinalities OTP allows; a periodic sweep over last-seen timestamps
// produces the same observable 7.5s/30s expiry behaviour (mirrors the
// teacher's own inventoryClients() sweep, §4.E).
const sweepInterval = 500 * time.Millisecond

// RunExpirySweeps blocks, periodically expiring components, points and
// module-interest entries until done is closed.
func (r *Registry) RunExpirySweeps(done <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	sink := r.sink()

	for cid, c := range r.components {
		if now.Sub(c.LastSeen) >= ComponentExpiry {
			delete(r.components, cid)
			sink.emit(Event{Kind: RemovedComponent, CID: cid})
			continue
		}
		for module, lastSeen := range c.Modules {
			if now.Sub(lastSeen) >= ModuleInterestExpiry {
				delete(c.Modules, module)
			}
		}
		for system, sd := range c.systems {
			for group, points := range sd.groups {
				for point, pd := range points {
					if pd.Expired {
						continue
					}
					if now.Sub(pd.LastSeen) >= PointExpiry {
						pd.Expired = true
						addr := protocol.Address{System: system, Group: group, Point: point}
						sink.emit(Event{Kind: ExpiredPoint, CID: cid, Address: addr})
						r.markDirty(system)
					}
				}
			}
		}
	}

	r.mu.Unlock()
	sink.flush()
}

// RemovePoint drops a point entirely (rather than just marking it
// expired), emitting removedPoint. Exposed for an explicit local
// remove-point operation (§6 public API surface).
func (r *Registry) RemovePoint(cid protocol.CID, addr protocol.Address) {
	r.mu.Lock()
	sink := r.sink()
	defer func() {
		r.mu.Unlock()
		sink.flush()
	}()

	c, ok := r.components[cid]
	if !ok {
		return
	}
	sd, ok := c.systems[addr.System]
	if !ok {
		return
	}
	g, ok := sd.groups[addr.Group]
	if !ok {
		return
	}
	if _, ok := g[addr.Point]; !ok {
		return
	}
	delete(g, addr.Point)
	sink.emit(Event{Kind: RemovedPoint, CID: cid, Address: addr})
	r.markDirty(addr.System)
	if len(g) == 0 {
		delete(sd.groups, addr.Group)
		sink.emit(Event{Kind: RemovedGroup, CID: cid, Address: protocol.Address{System: addr.System, Group: addr.Group}})
	}
}
