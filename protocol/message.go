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

import "fmt"

// Datagram size bounds (§6), entire message including the Root layer.
const (
	TransformMinSize  = 134
	TransformMaxSize  = 1472
	ModuleAdvMinSize  = 96
	ModuleAdvMaxSize  = 1471
	NameAdvMinSize    = 96
	NameAdvMaxSize    = 1461
	SystemAdvMinSize  = 96
	SystemAdvMaxSize  = 296
)

// ErrMessageTooBig is returned when adding a Module/item would push the
// encoded message past its declared maximum size (§7, OversizedOutbound).
var ErrMessageTooBig = fmt.Errorf("message would exceed its maximum encoded size")

// ErrListFull is returned when adding an item to an advertisement list
// would push it past its maximum payload size (§7, OversizedOutbound).
var ErrListFull = fmt.Errorf("list is full")

// TransformMessage is a complete Transform datagram: Root + Transform + Points (§4.C).
type TransformMessage struct {
	Root      Root
	Transform Transform
}

// NewTransformMessage builds an empty, single-page Transform message.
func NewTransformMessage(cid CID, name Name, folio Folio, system System, ts Timestamp, fullPointSet bool) *TransformMessage {
	return &TransformMessage{
		Root: Root{
			Vector:        VectorOTPTransform,
			CID:           cid,
			Folio:         folio,
			ComponentName: name,
		},
		Transform: Transform{
			Vector:       VectorOTPPoint,
			System:       system,
			Timestamp:    ts,
			FullPointSet: fullPointSet,
		},
	}
}

// EncodedSize returns the full encoded size of the message as it stands,
// assuming it is emitted as a single page.
func (m *TransformMessage) EncodedSize() int {
	n := RootHeaderSize + TransformHeaderSize
	for i := range m.Transform.Points {
		n += m.Transform.Points[i].EncodedSize()
	}
	return n
}

// AddPoint appends a point to the message, refusing if doing so would push
// the single-page encoded size past TransformMaxSize.
func (m *TransformMessage) AddPoint(p PointLayer) error {
	if m.EncodedSize()+p.EncodedSize() > TransformMaxSize {
		return ErrMessageTooBig
	}
	m.Transform.Points = append(m.Transform.Points, p)
	return nil
}

// encodeSingle encodes the message as a single page with the given Page/LastPage.
func (m *TransformMessage) encodeSingle(page, lastPage Page) []byte {
	m.Root.Page = page
	m.Root.LastPage = lastPage

	pointsSize := 0
	for i := range m.Transform.Points {
		pointsSize += m.Transform.Points[i].EncodedSize()
	}
	m.Transform.PDULength = uint16(TransformHeaderSize - TransformLengthOffset + pointsSize)
	total := RootHeaderSize + TransformHeaderSize + pointsSize
	m.Root.SetPDULength(total)

	s := NewStreamSize(total)
	m.Root.EncodeTo(s)
	m.Transform.EncodeHeaderTo(s)
	for i := range m.Transform.Points {
		p := &m.Transform.Points[i]
		p.PDULength = uint16(p.EncodedSize() - PointLengthOffset)
		p.EncodeHeaderTo(s)
		for j := range p.Modules {
			p.Modules[j].EncodeTo(s)
		}
	}
	return s.Bytes()
}

// Paginate splits the message into one or more datagrams that each fit
// within TransformMaxSize, never splitting a Point (with its Modules)
// across a page boundary. All pages share the message's Folio.
func (m *TransformMessage) Paginate() ([][]byte, error) {
	pages := [][]PointLayer{{}}
	cur := 0
	curSize := RootHeaderSize + TransformHeaderSize

	for _, p := range m.Transform.Points {
		ps := p.EncodedSize()
		if RootHeaderSize+TransformHeaderSize+ps > TransformMaxSize {
			return nil, ErrMessageTooBig
		}
		if curSize+ps > TransformMaxSize {
			pages = append(pages, []PointLayer{})
			cur++
			curSize = RootHeaderSize + TransformHeaderSize
		}
		pages[cur] = append(pages[cur], p)
		curSize += ps
	}

	lastPage := Page(len(pages) - 1)
	out := make([][]byte, 0, len(pages))
	for i, pts := range pages {
		sub := &TransformMessage{Root: m.Root, Transform: m.Transform}
		sub.Transform.Points = pts
		out = append(out, sub.encodeSingle(Page(i), lastPage))
	}
	return out, nil
}

// DecodeTransformMessage decodes a single-page Transform datagram.
func DecodeTransformMessage(b []byte) (*TransformMessage, error) {
	s := NewStream(b)
	m := &TransformMessage{}
	if err := m.Root.DecodeFrom(s); err != nil {
		return nil, err
	}
	if m.Root.Vector != VectorOTPTransform {
		return nil, fmt.Errorf("transform message: root vector is not Transform")
	}
	if err := m.Transform.DecodeHeaderFrom(s); err != nil {
		return nil, err
	}
	for s.Remaining() > 0 {
		var p PointLayer
		if err := p.DecodeHeaderFrom(s); err != nil {
			return nil, err
		}
		remaining := int(p.PDULength) - (PointHeaderSize - PointLengthOffset)
		end := s.Pos() + remaining
		for s.Pos() < end {
			var mod Module
			if err := mod.DecodeFrom(s); err != nil {
				return nil, err
			}
			p.Modules = append(p.Modules, mod)
		}
		m.Transform.Points = append(m.Transform.Points, p)
	}
	return m, nil
}
