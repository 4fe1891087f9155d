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

package merger

import (
	"testing"
	"time"

	"github.com/esta-otp/otp/protocol"
	"github.com/esta-otp/otp/registry"
	"github.com/stretchr/testify/require"
)

func testCID(b byte) protocol.CID {
	var c protocol.CID
	for i := range c {
		c[i] = b
	}
	return c
}

func TestCompareByPriority(t *testing.T) {
	a := registry.Contribution{Priority: 100}
	b := registry.Contribution{Priority: 50}
	require.Equal(t, ABetter, compare(a, b))
	require.Equal(t, BBetter, compare(b, a))
}

func TestCompareExpiredAlwaysLoses(t *testing.T) {
	a := registry.Contribution{Priority: 1, Expired: true}
	b := registry.Contribution{Priority: 200, Expired: false}
	require.Equal(t, BBetter, compare(a, b))
	require.Equal(t, ABetter, compare(b, a))
}

func TestCompareTieBreaksByInsertionOrder(t *testing.T) {
	a := registry.Contribution{Priority: 100, Order: 1}
	b := registry.Contribution{Priority: 100, Order: 2}
	require.Equal(t, ABetter, compare(a, b))
	require.Equal(t, BBetter, compare(b, a))
}

func TestCompareIdenticalIsUnknown(t *testing.T) {
	a := registry.Contribution{Priority: 1, Order: 1}
	require.Equal(t, Unknown, compare(a, a))
}

func TestPassPublishesHighestPriorityWinner(t *testing.T) {
	events := make(chan registry.Event, 64)
	reg := registry.New(events)
	now := time.Now()
	addr := protocol.Address{System: 1, Group: 1, Point: 1}

	reg.UpsertTransformPoint(testCID(1), "Low", nil, addr, 10, nil, now)
	reg.UpsertTransformPoint(testCID(2), "High", nil, addr, 200, nil, now)

	m := New(reg)
	m.dirty[1] = true
	m.pass()

	cid, ok := reg.GetWinningComponent(addr)
	require.True(t, ok)
	require.Equal(t, testCID(2), cid)
	require.Empty(t, m.dirty)
}

func TestPassBreaksTieByFirstObserved(t *testing.T) {
	events := make(chan registry.Event, 64)
	reg := registry.New(events)
	now := time.Now()
	addr := protocol.Address{System: 2, Group: 1, Point: 1}

	reg.UpsertTransformPoint(testCID(3), "First", nil, addr, 100, nil, now)
	reg.UpsertTransformPoint(testCID(4), "Second", nil, addr, 100, nil, now)

	m := New(reg)
	m.dirty[2] = true
	m.pass()

	cid, ok := reg.GetWinningComponent(addr)
	require.True(t, ok)
	require.Equal(t, testCID(3), cid)
}

func TestRunRespondsToDirtySignal(t *testing.T) {
	events := make(chan registry.Event, 64)
	reg := registry.New(events)
	now := time.Now()
	addr := protocol.Address{System: 3, Group: 1, Point: 1}
	reg.UpsertTransformPoint(testCID(5), "Only", nil, addr, 1, nil, now)

	m := New(reg)
	done := make(chan struct{})
	go m.Run(done)
	defer close(done)

	require.Eventually(t, func() bool {
		cid, ok := reg.GetWinningComponent(addr)
		return ok && cid == testCID(5)
	}, 2*time.Second, 10*time.Millisecond)
}
