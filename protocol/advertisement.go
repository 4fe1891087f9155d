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

// AdvertisementHeaderSize is the encoded size of the Advertisement wrapper layer.
const AdvertisementHeaderSize = 8

// AdvertisementLengthOffset excludes Vector+PDULength (4 octets) from PDULength.
const AdvertisementLengthOffset = 4

// Advertisement is the two-field wrapper layer that selects among the
// Module/Name/System advertisement inner payloads (§4.B.5).
type Advertisement struct {
	Vector    AdvertisementVector
	PDULength uint16
}

func (a *Advertisement) encodeTo(s *Stream) {
	s.PushUint16(uint16(a.Vector))
	s.PushUint16(a.PDULength)
	s.PushBytes(make([]byte, 4)) // Reserved
}

func (a *Advertisement) decodeFrom(s *Stream) error {
	if s.Remaining() < AdvertisementHeaderSize {
		return fmt.Errorf("advertisement layer: need %d bytes, have %d", AdvertisementHeaderSize, s.Remaining())
	}
	a.Vector = AdvertisementVector(s.PopUint16())
	a.PDULength = s.PopUint16()
	_ = s.PopBytes(4) // Reserved
	if s.Failed() {
		return fmt.Errorf("advertisement layer: truncated")
	}
	switch a.Vector {
	case VectorOTPModuleAdvertisement, VectorOTPNameAdvertisement, VectorOTPSystemAdvertisement:
	default:
		return fmt.Errorf("advertisement layer: invalid vector 0x%04x", uint16(a.Vector))
	}
	return nil
}

// innerHeaderSize is the encoded size of any of the three inner
// advertisement headers (Vector + PDULength + Options + Reserved).
const innerHeaderSize = 8

// moduleIdentSize is the encoded size of a single (ManufacturerID, ModuleNumber) pair.
const moduleIdentSize = 4

// ModuleAdvertisementMessage is Root + Advertisement + Module-Adv inner layer (§4.B.5).
type ModuleAdvertisementMessage struct {
	Root    Root
	Modules []ModuleIdent
}

// NewModuleAdvertisementMessage builds an empty Module-Advertisement message.
func NewModuleAdvertisementMessage(cid CID, name Name, folio Folio) *ModuleAdvertisementMessage {
	return &ModuleAdvertisementMessage{Root: Root{Vector: VectorOTPAdvertisement, CID: cid, Folio: folio, ComponentName: name}}
}

// AddModule appends a module identifier, refusing if the list payload would
// exceed its 1376-octet bound.
func (m *ModuleAdvertisementMessage) AddModule(id ModuleIdent) error {
	if (len(m.Modules)+1)*moduleIdentSize > 1376 {
		return ErrListFull
	}
	m.Modules = append(m.Modules, id)
	return nil
}

// Encode serializes the message to bytes.
func (m *ModuleAdvertisementMessage) Encode() []byte {
	listSize := len(m.Modules) * moduleIdentSize
	innerSize := innerHeaderSize + listSize
	total := RootHeaderSize + AdvertisementHeaderSize + innerSize

	m.Root.Page = 0
	m.Root.LastPage = 0
	m.Root.SetPDULength(total)

	s := NewStreamSize(total)
	m.Root.EncodeTo(s)
	adv := Advertisement{Vector: VectorOTPModuleAdvertisement, PDULength: uint16(AdvertisementLengthOffset + innerSize)}
	adv.encodeTo(s)
	s.PushUint16(uint16(VectorOTPModuleAdvertisementList))
	s.PushUint16(uint16(4 + listSize))
	s.PushUint8(0) // Options, unused for Module-Adv
	s.PushBytes(make([]byte, 3))
	for _, id := range m.Modules {
		s.PushUint16(uint16(id.ManufacturerID))
		s.PushUint16(uint16(id.ModuleNumber))
	}
	return s.Bytes()
}

// DecodeModuleAdvertisementMessage decodes a Module-Advertisement datagram.
func DecodeModuleAdvertisementMessage(b []byte) (*ModuleAdvertisementMessage, error) {
	s := NewStream(b)
	m := &ModuleAdvertisementMessage{}
	if err := m.Root.DecodeFrom(s); err != nil {
		return nil, err
	}
	var adv Advertisement
	if err := adv.decodeFrom(s); err != nil {
		return nil, err
	}
	if adv.Vector != VectorOTPModuleAdvertisement {
		return nil, fmt.Errorf("module advertisement message: wrong inner vector")
	}
	if s.Remaining() < 8 {
		return nil, fmt.Errorf("module advertisement message: truncated inner header")
	}
	_ = s.PopUint16() // inner vector
	innerLen := s.PopUint16()
	_ = s.PopUint8() // options
	_ = s.PopBytes(3)
	listLen := int(innerLen) - 4
	for i := 0; i < listLen/moduleIdentSize; i++ {
		mfg := ManufacturerID(s.PopUint16())
		num := ModuleNumber(s.PopUint16())
		m.Modules = append(m.Modules, ModuleIdent{ManufacturerID: mfg, ModuleNumber: num})
	}
	if s.Failed() {
		return nil, fmt.Errorf("module advertisement message: truncated list")
	}
	return m, nil
}

// NameDescriptor is one (System, Group, Point, PointName) entry in a Name-Adv Response.
type NameDescriptor struct {
	Address Address
	Name    Name
}

const nameDescriptorSize = 7 + NameSize

// NameAdvertisementMessage is Root + Advertisement + Name-Adv inner layer (§4.B.5).
type NameAdvertisementMessage struct {
	Root        Root
	Response    bool
	Descriptors []NameDescriptor
}

// NewNameAdvertisementRequest builds a Name-Adv Request message.
func NewNameAdvertisementRequest(cid CID, name Name, folio Folio) *NameAdvertisementMessage {
	return &NameAdvertisementMessage{Root: Root{Vector: VectorOTPAdvertisement, CID: cid, Folio: folio, ComponentName: name}}
}

// NewNameAdvertisementResponse builds an empty Name-Adv Response message.
func NewNameAdvertisementResponse(cid CID, name Name, folio Folio) *NameAdvertisementMessage {
	return &NameAdvertisementMessage{Root: Root{Vector: VectorOTPAdvertisement, CID: cid, Folio: folio, ComponentName: name}, Response: true}
}

// AddDescriptor appends a (Address, PointName) descriptor, sorted by
// Address, refusing if the list payload would exceed its 1365-octet bound.
func (n *NameAdvertisementMessage) AddDescriptor(d NameDescriptor) error {
	if (len(n.Descriptors)+1)*nameDescriptorSize > 1365 {
		return ErrListFull
	}
	i := 0
	for i < len(n.Descriptors) && addressLess(n.Descriptors[i].Address, d.Address) {
		i++
	}
	n.Descriptors = append(n.Descriptors, NameDescriptor{})
	copy(n.Descriptors[i+1:], n.Descriptors[i:])
	n.Descriptors[i] = d
	return nil
}

func addressLess(a, b Address) bool {
	if a.System != b.System {
		return a.System < b.System
	}
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return a.Point < b.Point
}

func optionsByteForResponse(response bool) uint8 {
	if response {
		return 1 << 7
	}
	return 0
}

// Encode serializes the message to bytes.
func (n *NameAdvertisementMessage) Encode() []byte {
	listSize := 0
	if n.Response {
		listSize = len(n.Descriptors) * nameDescriptorSize
	}
	innerSize := innerHeaderSize + listSize
	total := RootHeaderSize + AdvertisementHeaderSize + innerSize

	n.Root.Page = 0
	n.Root.LastPage = 0
	n.Root.SetPDULength(total)

	s := NewStreamSize(total)
	n.Root.EncodeTo(s)
	adv := Advertisement{Vector: VectorOTPNameAdvertisement, PDULength: uint16(AdvertisementLengthOffset + innerSize)}
	adv.encodeTo(s)
	s.PushUint16(uint16(VectorOTPModuleAdvertisementList))
	s.PushUint16(uint16(4 + listSize))
	s.PushUint8(optionsByteForResponse(n.Response))
	s.PushBytes(make([]byte, 3))
	if n.Response {
		for _, d := range n.Descriptors {
			s.PushUint8(uint8(d.Address.System))
			s.PushUint16(uint16(d.Address.Group))
			s.PushUint32(uint32(d.Address.Point))
			s.PushName(d.Name)
		}
	}
	return s.Bytes()
}

// DecodeNameAdvertisementMessage decodes a Name-Advertisement datagram.
func DecodeNameAdvertisementMessage(b []byte) (*NameAdvertisementMessage, error) {
	s := NewStream(b)
	n := &NameAdvertisementMessage{}
	if err := n.Root.DecodeFrom(s); err != nil {
		return nil, err
	}
	var adv Advertisement
	if err := adv.decodeFrom(s); err != nil {
		return nil, err
	}
	if adv.Vector != VectorOTPNameAdvertisement {
		return nil, fmt.Errorf("name advertisement message: wrong inner vector")
	}
	if s.Remaining() < 8 {
		return nil, fmt.Errorf("name advertisement message: truncated inner header")
	}
	_ = s.PopUint16() // inner vector
	innerLen := s.PopUint16()
	options := s.PopUint8()
	_ = s.PopBytes(3)
	n.Response = options&(1<<7) != 0
	if n.Response {
		listLen := int(innerLen) - 4
		for i := 0; i < listLen/nameDescriptorSize; i++ {
			var d NameDescriptor
			d.Address.System = System(s.PopUint8())
			d.Address.Group = Group(s.PopUint16())
			d.Address.Point = Point(s.PopUint32())
			d.Name = s.PopName()
			n.Descriptors = append(n.Descriptors, d)
		}
	}
	if s.Failed() {
		return nil, fmt.Errorf("name advertisement message: truncated list")
	}
	return n, nil
}

// SystemAdvertisementMessage is Root + Advertisement + System-Adv inner layer (§4.B.5).
type SystemAdvertisementMessage struct {
	Root     Root
	Response bool
	Systems  []System
}

// NewSystemAdvertisementRequest builds a System-Adv Request message.
func NewSystemAdvertisementRequest(cid CID, name Name, folio Folio) *SystemAdvertisementMessage {
	return &SystemAdvertisementMessage{Root: Root{Vector: VectorOTPAdvertisement, CID: cid, Folio: folio, ComponentName: name}}
}

// NewSystemAdvertisementResponse builds an empty System-Adv Response message.
func NewSystemAdvertisementResponse(cid CID, name Name, folio Folio) *SystemAdvertisementMessage {
	return &SystemAdvertisementMessage{Root: Root{Vector: VectorOTPAdvertisement, CID: cid, Folio: folio, ComponentName: name}, Response: true}
}

// AddSystem appends a system number, refusing if the list payload would
// exceed its 200-octet bound.
func (sa *SystemAdvertisementMessage) AddSystem(sys System) error {
	if len(sa.Systems)+1 > 200 {
		return ErrListFull
	}
	sa.Systems = append(sa.Systems, sys)
	return nil
}

// Encode serializes the message to bytes.
func (sa *SystemAdvertisementMessage) Encode() []byte {
	listSize := 0
	if sa.Response {
		listSize = len(sa.Systems)
	}
	innerSize := innerHeaderSize + listSize
	total := RootHeaderSize + AdvertisementHeaderSize + innerSize

	sa.Root.Page = 0
	sa.Root.LastPage = 0
	sa.Root.SetPDULength(total)

	s := NewStreamSize(total)
	sa.Root.EncodeTo(s)
	adv := Advertisement{Vector: VectorOTPSystemAdvertisement, PDULength: uint16(AdvertisementLengthOffset + innerSize)}
	adv.encodeTo(s)
	s.PushUint16(uint16(VectorOTPModuleAdvertisementList))
	s.PushUint16(uint16(4 + listSize))
	s.PushUint8(optionsByteForResponse(sa.Response))
	s.PushBytes(make([]byte, 3))
	if sa.Response {
		for _, sys := range sa.Systems {
			s.PushUint8(uint8(sys))
		}
	}
	return s.Bytes()
}

// DecodeSystemAdvertisementMessage decodes a System-Advertisement datagram.
func DecodeSystemAdvertisementMessage(b []byte) (*SystemAdvertisementMessage, error) {
	s := NewStream(b)
	sa := &SystemAdvertisementMessage{}
	if err := sa.Root.DecodeFrom(s); err != nil {
		return nil, err
	}
	var adv Advertisement
	if err := adv.decodeFrom(s); err != nil {
		return nil, err
	}
	if adv.Vector != VectorOTPSystemAdvertisement {
		return nil, fmt.Errorf("system advertisement message: wrong inner vector")
	}
	if s.Remaining() < 8 {
		return nil, fmt.Errorf("system advertisement message: truncated inner header")
	}
	_ = s.PopUint16() // inner vector
	innerLen := s.PopUint16()
	options := s.PopUint8()
	_ = s.PopBytes(3)
	sa.Response = options&(1<<7) != 0
	if sa.Response {
		listLen := int(innerLen) - 4
		for i := 0; i < listLen; i++ {
			sa.Systems = append(sa.Systems, System(s.PopUint8()))
		}
	}
	if s.Failed() {
		return nil, fmt.Errorf("system advertisement message: truncated list")
	}
	return sa, nil
}
