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
Package merger implements the per-System priority merger (§4.F): on a
dirty signal or at most every second, it recomputes, for every Address
in a System, which non-expired contributing Component currently wins
(highest Priority, ties broken by first-observed order).
*/
package merger

import (
	"time"

	"github.com/esta-otp/otp/protocol"
	"github.com/esta-otp/otp/registry"
)

// Result is the tri-state outcome of comparing two contributors, in the
// same shape as a Best-Master-Clock-style comparison: one is better, the
// other is better, or the comparison could not distinguish them.
type Result int

// Comparison results.
const (
	Unknown Result = iota
	ABetter
	BBetter
)

// sweepInterval bounds how long a dirty System can wait for a merge pass (§4.F).
const sweepInterval = 1 * time.Second

// compare picks the winning contributor between a and b: non-expired beats
// expired, higher Priority wins, ties broken by earlier insertion order.
func compare(a, b registry.Contribution) Result {
	if a.Expired != b.Expired {
		if a.Expired {
			return BBetter
		}
		return ABetter
	}
	if a.Priority != b.Priority {
		if a.Priority > b.Priority {
			return ABetter
		}
		return BBetter
	}
	if a.Order != b.Order {
		if a.Order < b.Order {
			return ABetter
		}
		return BBetter
	}
	return Unknown
}

// Merger runs the merge loop for a Registry.
type Merger struct {
	reg   *registry.Registry
	dirty map[protocol.System]bool
}

// New returns a Merger bound to reg.
func New(reg *registry.Registry) *Merger {
	return &Merger{reg: reg, dirty: make(map[protocol.System]bool)}
}

// Run blocks, performing merge passes until done is closed.
func (m *Merger) Run(done <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	dirtyCh := m.reg.Dirty()

	for {
		select {
		case <-done:
			return
		case sys := <-dirtyCh:
			m.dirty[sys] = true
		case <-ticker.C:
		}
		m.drainDirtyNonBlocking(dirtyCh)
		m.pass()
	}
}

func (m *Merger) drainDirtyNonBlocking(dirtyCh <-chan protocol.System) {
	for {
		select {
		case sys := <-dirtyCh:
			m.dirty[sys] = true
		default:
			return
		}
	}
}

// pass recomputes winners for every currently-dirty System and clears them.
func (m *Merger) pass() {
	for sys := range m.dirty {
		winners := m.winnersFor(sys)
		m.reg.PublishWinners(winners)
		delete(m.dirty, sys)
	}
}

// winnersFor computes the winning CID for every Address observed in system.
func (m *Merger) winnersFor(system protocol.System) map[protocol.Address]protocol.CID {
	contributors := m.reg.Contributors(system)
	winners := make(map[protocol.Address]protocol.CID, len(contributors))
	for addr, contribs := range contributors {
		if len(contribs) == 0 {
			continue
		}
		best := contribs[0]
		for _, c := range contribs[1:] {
			if compare(c, best) == ABetter {
				best = c
			}
		}
		winners[addr] = best.CID
	}
	return winners
}
