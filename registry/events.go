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

// EventKind names the logical entity a change event describes (§6, change
// events: newComponent, removedComponent, newSystem, removedSystem,
// newGroup, removedGroup, newPoint, updatedPoint, expiredPoint,
// removedPoint, and per-module updated* events).
type EventKind int

// Event kinds.
const (
	NewComponent EventKind = iota
	RemovedComponent
	NewSystem
	RemovedSystem
	NewGroup
	RemovedGroup
	NewPoint
	UpdatedPoint
	ExpiredPoint
	RemovedPoint
	UpdatedPosition
	UpdatedPositionVelAcc
	UpdatedRotation
	UpdatedRotationVelAcc
	UpdatedScale
	UpdatedReferenceFrame
)

var eventKindToString = map[EventKind]string{
	NewComponent:          "newComponent",
	RemovedComponent:      "removedComponent",
	NewSystem:             "newSystem",
	RemovedSystem:         "removedSystem",
	NewGroup:              "newGroup",
	RemovedGroup:          "removedGroup",
	NewPoint:              "newPoint",
	UpdatedPoint:          "updatedPoint",
	ExpiredPoint:          "expiredPoint",
	RemovedPoint:          "removedPoint",
	UpdatedPosition:       "updatedPosition",
	UpdatedPositionVelAcc: "updatedPositionVelAcc",
	UpdatedRotation:       "updatedRotation",
	UpdatedRotationVelAcc: "updatedRotationVelAcc",
	UpdatedScale:          "updatedScale",
	UpdatedReferenceFrame: "updatedReferenceFrame",
}

func (k EventKind) String() string {
	if s, ok := eventKindToString[k]; ok {
		return s
	}
	return "unknown"
}

// Event is a single change notification. Fields not relevant to Kind are
// left at their zero value (e.g. Address is unset for a component-level event).
type Event struct {
	Kind    EventKind
	CID     protocol.CID
	Address protocol.Address
}

// eventSink buffers events produced while a mutation holds the registry
// lock and dispatches them once the lock is released, per §5's
// "change events MUST be deliverable without holding that mutex".
type eventSink struct {
	out     chan<- Event
	pending []Event
}

func (s *eventSink) emit(e Event) {
	s.pending = append(s.pending, e)
}

func (s *eventSink) flush() {
	for _, e := range s.pending {
		select {
		case s.out <- e:
		default:
			// a slow/absent consumer must never block a registry mutation
		}
	}
	s.pending = nil
}
