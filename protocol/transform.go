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

// TransformHeaderSize is the encoded size of the Transform layer header
// (Vector + PDULength + System + Timestamp + Options + Reserved).
const TransformHeaderSize = 18

// TransformLengthOffset excludes Vector+PDULength (4 octets) from PDULength.
const TransformLengthOffset = 4

// optionFullPointSet is bit 7 of the Transform layer Options octet.
const optionFullPointSet = 1 << 7

// Transform is the per-System layer inside a Transform message (§4.B.2).
type Transform struct {
	Vector        TransformVector
	PDULength     uint16
	System        System
	Timestamp     Timestamp
	FullPointSet  bool
	Points        []PointLayer
}

// Validate checks structural invariants of the Transform layer.
func (t *Transform) Validate() error {
	if t.Vector != VectorOTPPoint {
		return fmt.Errorf("transform layer: invalid vector 0x%04x", uint16(t.Vector))
	}
	if !t.System.Valid() {
		return fmt.Errorf("transform layer: system %d out of range", t.System)
	}
	return nil
}

func (t *Transform) optionsByte() uint8 {
	var o uint8
	if t.FullPointSet {
		o |= optionFullPointSet
	}
	return o
}

// EncodeHeaderTo writes the Transform layer header (not its Point children) to s.
func (t *Transform) EncodeHeaderTo(s *Stream) {
	s.PushUint16(uint16(t.Vector))
	s.PushUint16(t.PDULength)
	s.PushUint8(uint8(t.System))
	s.PushUint64(uint64(t.Timestamp))
	s.PushUint8(t.optionsByte())
	s.PushBytes(make([]byte, 4)) // Reserved
}

// DecodeHeaderFrom reads the Transform layer header from s.
func (t *Transform) DecodeHeaderFrom(s *Stream) error {
	if s.Remaining() < TransformHeaderSize {
		return fmt.Errorf("transform layer: need %d bytes, have %d", TransformHeaderSize, s.Remaining())
	}
	t.Vector = TransformVector(s.PopUint16())
	t.PDULength = s.PopUint16()
	t.System = System(s.PopUint8())
	t.Timestamp = Timestamp(s.PopUint64())
	options := s.PopUint8()
	t.FullPointSet = options&optionFullPointSet != 0
	_ = s.PopBytes(4) // Reserved
	if s.Failed() {
		return fmt.Errorf("transform layer: truncated")
	}
	return t.Validate()
}

// PointHeaderSize is the encoded size of the Point layer header, excluding
// its Module children.
const PointHeaderSize = 24

// PointLengthOffset excludes Vector+PDULength (4 octets) from PDULength.
const PointLengthOffset = 4

// PointLayer is the per-Point layer inside a Transform layer (§4.B.3).
type PointLayer struct {
	Vector    PointVector
	PDULength uint16
	Priority  Priority
	Group     Group
	Point     Point
	Timestamp Timestamp
	Modules   []Module
}

// Validate checks structural invariants of the Point layer.
func (p *PointLayer) Validate() error {
	if p.Vector != VectorOTPModule {
		return fmt.Errorf("point layer: invalid vector 0x%04x", uint16(p.Vector))
	}
	if !p.Priority.Valid() {
		return fmt.Errorf("point layer: priority %d out of range", p.Priority)
	}
	if !p.Group.Valid() {
		return fmt.Errorf("point layer: group %d out of range", p.Group)
	}
	if !p.Point.Valid() {
		return fmt.Errorf("point layer: point %d out of range", p.Point)
	}
	return nil
}

// Address returns the (System, Group, Point) triple for this point, given
// the enclosing Transform layer's System.
func (p *PointLayer) Address(system System) Address {
	return Address{System: system, Group: p.Group, Point: p.Point}
}

// EncodeHeaderTo writes the Point layer header (not its Module children) to s.
func (p *PointLayer) EncodeHeaderTo(s *Stream) {
	s.PushUint16(uint16(p.Vector))
	s.PushUint16(p.PDULength)
	s.PushUint8(uint8(p.Priority))
	s.PushUint16(uint16(p.Group))
	s.PushUint32(uint32(p.Point))
	s.PushUint64(uint64(p.Timestamp))
	s.PushUint8(0) // Options, reserved
	s.PushBytes(make([]byte, 4)) // Reserved
}

// DecodeHeaderFrom reads the Point layer header from s.
func (p *PointLayer) DecodeHeaderFrom(s *Stream) error {
	if s.Remaining() < PointHeaderSize {
		return fmt.Errorf("point layer: need %d bytes, have %d", PointHeaderSize, s.Remaining())
	}
	p.Vector = PointVector(s.PopUint16())
	p.PDULength = s.PopUint16()
	p.Priority = Priority(s.PopUint8())
	p.Group = Group(s.PopUint16())
	p.Point = Point(s.PopUint32())
	p.Timestamp = Timestamp(s.PopUint64())
	_ = s.PopUint8()    // Options, reserved
	_ = s.PopBytes(4) // Reserved
	if s.Failed() {
		return fmt.Errorf("point layer: truncated")
	}
	return p.Validate()
}

// EncodedSize returns the full encoded size of the Point layer including
// its Module children.
func (p *PointLayer) EncodedSize() int {
	n := PointHeaderSize
	for _, m := range p.Modules {
		n += m.EncodedSize()
	}
	return n
}
