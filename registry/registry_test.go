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
	"testing"
	"time"

	"github.com/esta-otp/otp/protocol"
	"github.com/stretchr/testify/require"
)

func testCID(b byte) protocol.CID {
	var c protocol.CID
	for i := range c {
		c[i] = b
	}
	return c
}

func drain(t *testing.T, ch chan Event) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestUpsertTransformPointEmitsNewComponentSystemGroupPoint(t *testing.T) {
	events := make(chan Event, 64)
	r := New(events)
	now := time.Now()

	addr := protocol.Address{System: 1, Group: 1, Point: 1}
	modules := []protocol.Module{{
		ManufacturerID: protocol.ESTAManufacturerID,
		ModuleNumber:   protocol.ModulePosition,
		Additional:     &protocol.PositionModule{X: 1, Y: 2, Z: 3},
	}}
	changed := r.UpsertTransformPoint(testCID(1), "Light-1", nil, addr, 100, modules, now)
	require.Len(t, changed, 1)

	kinds := map[EventKind]bool{}
	for _, e := range drain(t, events) {
		kinds[e.Kind] = true
	}
	require.True(t, kinds[NewComponent])
	require.True(t, kinds[NewSystem])
	require.True(t, kinds[NewGroup])
	require.True(t, kinds[NewPoint])
	require.True(t, kinds[UpdatedPoint])
	require.True(t, kinds[UpdatedPosition])
}

func TestUpsertTransformPointNoChangeEmitsNoModuleEvent(t *testing.T) {
	events := make(chan Event, 64)
	r := New(events)
	now := time.Now()
	addr := protocol.Address{System: 1, Group: 1, Point: 1}
	modules := []protocol.Module{{
		ManufacturerID: protocol.ESTAManufacturerID,
		ModuleNumber:   protocol.ModulePosition,
		Additional:     &protocol.PositionModule{X: 1, Y: 2, Z: 3},
	}}
	r.UpsertTransformPoint(testCID(2), "Light-2", nil, addr, 100, modules, now)
	drain(t, events)

	changed := r.UpsertTransformPoint(testCID(2), "Light-2", nil, addr, 100, modules, now.Add(time.Millisecond))
	require.Empty(t, changed)

	found := false
	for _, e := range drain(t, events) {
		if e.Kind == UpdatedPosition {
			found = true
		}
	}
	require.False(t, found)
}

func TestReplaceSystemsIsAuthoritative(t *testing.T) {
	events := make(chan Event, 64)
	r := New(events)
	now := time.Now()
	cid := testCID(3)

	r.ReplaceSystems(cid, "Console", nil, []protocol.System{1, 2}, now)
	drain(t, events)

	r.ReplaceSystems(cid, "Console", nil, []protocol.System{2, 3}, now.Add(time.Second))
	events2 := drain(t, events)

	var removed, added []protocol.System
	for _, e := range events2 {
		if e.Kind == RemovedSystem {
			removed = append(removed, e.Address.System)
		}
		if e.Kind == NewSystem {
			added = append(added, e.Address.System)
		}
	}
	require.Equal(t, []protocol.System{1}, removed)
	require.Equal(t, []protocol.System{3}, added)
}

func TestChangeComponentCIDMovesSubtree(t *testing.T) {
	events := make(chan Event, 64)
	r := New(events)
	now := time.Now()
	oldCID, newCID := testCID(4), testCID(5)

	addr := protocol.Address{System: 1, Group: 1, Point: 1}
	r.UpsertTransformPoint(oldCID, "Light", nil, addr, 10, nil, now)
	drain(t, events)

	require.NoError(t, r.ChangeComponentCID(oldCID, newCID))
	kind, name, _, ok := r.Component(newCID)
	require.True(t, ok)
	require.Equal(t, KindProducer, kind)
	require.Equal(t, protocol.Name("Light"), name)

	_, _, _, ok = r.Component(oldCID)
	require.False(t, ok)

	events2 := drain(t, events)
	require.Equal(t, NewComponent, events2[0].Kind)
	require.Equal(t, RemovedComponent, events2[1].Kind)
}

func TestChangeComponentCIDRejectsCollision(t *testing.T) {
	events := make(chan Event, 64)
	r := New(events)
	now := time.Now()
	a, b := testCID(6), testCID(7)
	addr := protocol.Address{System: 1, Group: 1, Point: 1}
	r.UpsertTransformPoint(a, "A", nil, addr, 1, nil, now)
	r.UpsertTransformPoint(b, "B", nil, addr, 1, nil, now)

	require.Error(t, r.ChangeComponentCID(a, b))
}

func TestSweepExpiresComponentAndPoints(t *testing.T) {
	events := make(chan Event, 64)
	r := New(events)
	now := time.Now()
	cid := testCID(8)
	addr := protocol.Address{System: 1, Group: 1, Point: 1}
	r.UpsertTransformPoint(cid, "Light", nil, addr, 1, nil, now)
	drain(t, events)

	r.sweep(now.Add(PointExpiry + time.Millisecond))
	var sawExpiredPoint bool
	for _, e := range drain(t, events) {
		if e.Kind == ExpiredPoint {
			sawExpiredPoint = true
		}
	}
	require.True(t, sawExpiredPoint)

	r.sweep(now.Add(ComponentExpiry + time.Millisecond))
	var sawRemovedComponent bool
	for _, e := range drain(t, events) {
		if e.Kind == RemovedComponent {
			sawRemovedComponent = true
		}
	}
	require.True(t, sawRemovedComponent)

	_, _, _, ok := r.Component(cid)
	require.False(t, ok)
}

func TestContributorsAndPublishWinners(t *testing.T) {
	events := make(chan Event, 64)
	r := New(events)
	now := time.Now()
	addr := protocol.Address{System: 1, Group: 1, Point: 1}

	r.UpsertTransformPoint(testCID(9), "A", nil, addr, 50, nil, now)
	r.UpsertTransformPoint(testCID(10), "B", nil, addr, 100, nil, now)
	drain(t, events)

	contribs := r.Contributors(1)
	require.Len(t, contribs[addr], 2)

	r.PublishWinners(map[protocol.Address]protocol.CID{addr: testCID(10)})
	cid, ok := r.GetWinningComponent(addr)
	require.True(t, ok)
	require.Equal(t, testCID(10), cid)
}

func TestCounts(t *testing.T) {
	events := make(chan Event, 64)
	r := New(events)
	now := time.Now()
	r.UpsertTransformPoint(testCID(11), "A", nil, protocol.Address{System: 1, Group: 1, Point: 1}, 1, nil, now)
	r.UpsertTransformPoint(testCID(11), "A", nil, protocol.Address{System: 1, Group: 1, Point: 2}, 1, nil, now)
	r.UpsertTransformPoint(testCID(12), "B", nil, protocol.Address{System: 2, Group: 1, Point: 1}, 1, nil, now)

	components, systems, points := r.Counts()
	require.Equal(t, int64(2), components)
	require.Equal(t, int64(2), systems)
	require.Equal(t, int64(3), points)
}
