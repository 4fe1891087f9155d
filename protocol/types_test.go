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

package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSystemValid(t *testing.T) {
	require.False(t, System(0).Valid())
	require.True(t, System(1).Valid())
	require.True(t, System(200).Valid())
	require.False(t, System(201).Valid())
}

func TestGroupValid(t *testing.T) {
	require.False(t, Group(0).Valid())
	require.True(t, Group(1).Valid())
	require.True(t, Group(60000).Valid())
	require.False(t, Group(60001).Valid())
}

func TestPointValid(t *testing.T) {
	require.False(t, Point(0).Valid())
	require.True(t, Point(1).Valid())
	require.True(t, Point(4_000_000_000).Valid())
	require.False(t, Point(4_000_000_001).Valid())
}

func TestPriorityValid(t *testing.T) {
	require.True(t, Priority(0).Valid())
	require.True(t, Priority(200).Valid())
	require.False(t, Priority(201).Valid())
}

func TestCIDStringAndZero(t *testing.T) {
	var zero CID
	require.True(t, zero.IsZero())

	var c CID
	for i := range c {
		c[i] = byte(i)
	}
	require.False(t, c.IsZero())
	require.Equal(t, "00010203-0405-0607-0809-0a0b0c0d0e0f", c.String())
}

func TestAddressString(t *testing.T) {
	a := Address{System: 1, Group: 2, Point: 3}
	require.Equal(t, "1/2/3", a.String())
}

func TestFolioInSequence(t *testing.T) {
	// the check rejects exactly a *backward* delta in (0, 63335] and
	// accepts all others (§8)

	// repeat of the same folio (backward delta 0) is in sequence (retransmission)
	require.True(t, Folio(5).InSequence(5))

	// an ordinary one-step forward advance is in sequence
	require.True(t, Folio(0).InSequence(1))

	// the wraparound chain from §8 is accepted in sequence at each step
	require.True(t, Folio(0xFFFFFFFE).InSequence(0xFFFFFFFF))
	require.True(t, Folio(0xFFFFFFFF).InSequence(0x00000000))

	// a small backward step is stale
	require.False(t, Folio(100).InSequence(99))
	require.False(t, Folio(0).InSequence(0xFFFFFFFF))

	// backward delta at the edge of the window (63335) is still stale
	require.False(t, Folio(63335).InSequence(0))

	// backward delta just past the window is accepted (indistinguishable
	// from a large forward advance mod 2^32)
	require.True(t, Folio(63336).InSequence(0))
}
