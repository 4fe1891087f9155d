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

import "github.com/esta-otp/otp/protocol"

// Contribution is one component's claim on an Address, as seen by the
// priority merger (§4.F).
type Contribution struct {
	CID      protocol.CID
	Priority protocol.Priority
	Order    uint64
	Expired  bool
}

// Contributors returns, for every Address observed under system, the list
// of components that have reported a point there. The merger reads this
// under the registry's shared lock and never mutates it (§4.F, §5).
func (r *Registry) Contributors(system protocol.System) map[protocol.Address][]Contribution {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[protocol.Address][]Contribution)
	for cid, c := range r.components {
		sd, ok := c.systems[system]
		if !ok {
			continue
		}
		for group, points := range sd.groups {
			for point, pd := range points {
				addr := protocol.Address{System: system, Group: group, Point: point}
				out[addr] = append(out[addr], Contribution{
					CID:      cid,
					Priority: pd.Priority,
					Order:    pd.order,
					Expired:  pd.Expired,
				})
			}
		}
	}
	return out
}

// PublishWinners atomically replaces the winning-component map for every
// Address in winners (§4.F: "published by the registry for read-only
// lookup", "under the same mutex"). Addresses in system not present in
// winners are left untouched by the caller's choice; the merger always
// passes a complete map for the systems it just scanned.
func (r *Registry) PublishWinners(winners map[protocol.Address]protocol.CID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr, cid := range winners {
		r.winning[addr] = cid
	}
}
