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

func testCID(b byte) CID {
	var c CID
	for i := range c {
		c[i] = b
	}
	return c
}

func samplePoint(group Group, point Point) PointLayer {
	return PointLayer{
		Vector:    VectorOTPModule,
		Priority:  100,
		Group:     group,
		Point:     point,
		Timestamp: 123456789,
		Modules: []Module{
			{
				ManufacturerID: ESTAManufacturerID,
				ModuleNumber:   ModulePosition,
				Additional:     &PositionModule{Millimetres: true, X: 1000, Y: -2000, Z: 3000},
			},
		},
	}
}

func TestTransformMessageRoundTrip(t *testing.T) {
	m := NewTransformMessage(testCID(0x11), NewName("Producer-One"), 42, 7, 1000, true)
	require.NoError(t, m.AddPoint(samplePoint(1, 1)))
	require.NoError(t, m.AddPoint(samplePoint(1, 2)))

	pages, err := m.Paginate()
	require.NoError(t, err)
	require.Len(t, pages, 1)

	decoded, err := DecodeTransformMessage(pages[0])
	require.NoError(t, err)

	require.Equal(t, m.Root.CID, decoded.Root.CID)
	require.Equal(t, m.Root.Folio, decoded.Root.Folio)
	require.Equal(t, m.Root.ComponentName, decoded.Root.ComponentName)
	require.Equal(t, m.Transform.System, decoded.Transform.System)
	require.Equal(t, m.Transform.FullPointSet, decoded.Transform.FullPointSet)
	require.Len(t, decoded.Transform.Points, 2)
	require.Equal(t, m.Transform.Points[0].Group, decoded.Transform.Points[0].Group)
	require.Equal(t, m.Transform.Points[0].Point, decoded.Transform.Points[0].Point)

	pos, ok := decoded.Transform.Points[0].Modules[0].Additional.(*PositionModule)
	require.True(t, ok)
	require.True(t, pos.Millimetres)
	require.Equal(t, int32(1000), pos.X)
	require.Equal(t, int32(-2000), pos.Y)
	require.Equal(t, int32(3000), pos.Z)
}

func TestTransformMessageAddPointTooBig(t *testing.T) {
	m := NewTransformMessage(testCID(0x22), NewName("Producer-Two"), 1, 1, 0, false)
	p := samplePoint(1, 1)
	pointSize := p.EncodedSize()
	budget := TransformMaxSize - (RootHeaderSize + TransformHeaderSize)
	n := budget / pointSize

	for i := 0; i < n; i++ {
		require.NoError(t, m.AddPoint(samplePoint(1, Point(i+1))))
	}
	err := m.AddPoint(samplePoint(1, Point(n+1)))
	require.ErrorIs(t, err, ErrMessageTooBig)
}

func TestTransformMessagePaginateSplitsAcrossPointBoundaries(t *testing.T) {
	m := NewTransformMessage(testCID(0x33), NewName("Producer-Three"), 99, 3, 555, false)
	p := samplePoint(1, 1)
	pointSize := p.EncodedSize()
	budget := TransformMaxSize - (RootHeaderSize + TransformHeaderSize)
	perPage := budget / pointSize

	total := perPage*2 + 3
	for i := 0; i < total; i++ {
		m.Transform.Points = append(m.Transform.Points, samplePoint(1, Point(i+1)))
	}

	pages, err := m.Paginate()
	require.NoError(t, err)
	require.Greater(t, len(pages), 1)

	seen := map[Point]bool{}
	for i, raw := range pages {
		decoded, err := DecodeTransformMessage(raw)
		require.NoError(t, err)
		require.Equal(t, m.Root.Folio, decoded.Root.Folio)
		require.Equal(t, Page(i), decoded.Root.Page)
		require.Equal(t, Page(len(pages)-1), decoded.Root.LastPage)
		for _, pt := range decoded.Transform.Points {
			require.False(t, seen[pt.Point], "point %d must not be split across pages", pt.Point)
			seen[pt.Point] = true
		}
	}
	require.Len(t, seen, total)
}

func TestTransformMessageReassembleViaFolio(t *testing.T) {
	m := NewTransformMessage(testCID(0x44), NewName("Producer-Four"), 7, 5, 0, false)
	p := samplePoint(1, 1)
	pointSize := p.EncodedSize()
	budget := TransformMaxSize - (RootHeaderSize + TransformHeaderSize)
	perPage := budget / pointSize
	total := perPage + 5
	for i := 0; i < total; i++ {
		m.Transform.Points = append(m.Transform.Points, samplePoint(1, Point(i+1)))
	}

	pages, err := m.Paginate()
	require.NoError(t, err)
	require.Greater(t, len(pages), 1)

	reasm := NewReassembler()
	key := FolioKey{Sender: testCID(0x44), System: 5, Vector: VectorOTPTransform}

	var complete [][]byte
	for i, raw := range pages {
		decoded, derr := DecodeTransformMessage(raw)
		require.NoError(t, derr)
		complete = reasm.Accept(key, decoded.Root.Folio, decoded.Root.Page, decoded.Root.LastPage, raw)
		if i < len(pages)-1 {
			require.Nil(t, complete)
		}
	}
	require.NotNil(t, complete)
	require.Len(t, complete, len(pages))

	seen := map[Point]bool{}
	for _, raw := range complete {
		decoded, derr := DecodeTransformMessage(raw)
		require.NoError(t, derr)
		for _, pt := range decoded.Transform.Points {
			seen[pt.Point] = true
		}
	}
	require.Len(t, seen, total)
}
