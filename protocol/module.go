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

// ModuleHeaderSize is the encoded size of a Module layer header, excluding
// its Additional payload.
const ModuleHeaderSize = 6

// ModuleLengthOffset excludes ManufacturerID+PDULength (4 octets) from PDULength.
const ModuleLengthOffset = 4

// ModulePayload is implemented by each standard (and unknown) module's
// Additional-field payload. It knows only how to marshal/unmarshal itself;
// the enclosing Module carries the (ManufacturerID, ModuleNumber) identity.
type ModulePayload interface {
	EncodeTo(s *Stream)
	DecodeFrom(s *Stream, length int) error
	EncodedSize() int
}

// Module is a single typed payload (position, rotation, ...) attached to a Point (§4.B.4).
type Module struct {
	ManufacturerID ManufacturerID
	PDULength      uint16
	ModuleNumber   ModuleNumber
	Additional     ModulePayload
}

// Ident returns the (ManufacturerID, ModuleNumber) identity of this module.
func (m *Module) Ident() ModuleIdent {
	return ModuleIdent{ManufacturerID: m.ManufacturerID, ModuleNumber: m.ModuleNumber}
}

// EncodedSize returns the total encoded size of the module, header included.
func (m *Module) EncodedSize() int {
	n := ModuleHeaderSize
	if m.Additional != nil {
		n += m.Additional.EncodedSize()
	}
	return n
}

// EncodeTo writes the full Module (header + Additional) to s.
func (m *Module) EncodeTo(s *Stream) {
	additionalLen := 0
	if m.Additional != nil {
		additionalLen = m.Additional.EncodedSize()
	}
	s.PushUint16(uint16(m.ManufacturerID))
	s.PushUint16(uint16(ModuleHeaderSize - ModuleLengthOffset + additionalLen))
	s.PushUint16(uint16(m.ModuleNumber))
	if m.Additional != nil {
		m.Additional.EncodeTo(s)
	}
}

// newPayloadFor returns a zero-value ModulePayload for known ESTA modules,
// or an UnknownModulePayload that preserves raw bytes without loss.
func newPayloadFor(ident ModuleIdent) ModulePayload {
	if ident.ManufacturerID != ESTAManufacturerID {
		return &UnknownModulePayload{}
	}
	switch ident.ModuleNumber {
	case ModulePosition:
		return &PositionModule{}
	case ModulePositionVelAcc:
		return &PositionVelAccModule{}
	case ModuleRotation:
		return &RotationModule{}
	case ModuleRotationVelAcc:
		return &RotationVelAccModule{}
	case ModuleScale:
		return &ScaleModule{}
	case ModuleReferenceFrame:
		return &ReferenceFrameModule{}
	default:
		return &UnknownModulePayload{}
	}
}

// DecodeFrom peeks PDULength so that consecutive modules inside a single
// Point can be delimited, then reads exactly that much.
func (m *Module) DecodeFrom(s *Stream) error {
	if s.Remaining() < ModuleHeaderSize {
		return fmt.Errorf("module layer: need %d bytes, have %d", ModuleHeaderSize, s.Remaining())
	}
	m.ManufacturerID = ManufacturerID(s.PopUint16())
	m.PDULength = s.PopUint16()
	m.ModuleNumber = s.PopUint16()
	additionalLen := int(m.PDULength) - (ModuleHeaderSize - ModuleLengthOffset)
	if additionalLen < 0 || s.Remaining() < additionalLen {
		return fmt.Errorf("module layer: declared length %d exceeds available data", m.PDULength)
	}
	m.Additional = newPayloadFor(m.Ident())
	if err := m.Additional.DecodeFrom(s, additionalLen); err != nil {
		return fmt.Errorf("module layer %s: %w", m.Ident(), err)
	}
	return nil
}

// UnknownModulePayload preserves the raw bytes of an unrecognized
// (ManufacturerID, ModuleNumber) payload without interpreting them (§7,
// UnknownModule error kind: decoded structurally, preserved by identifier).
type UnknownModulePayload struct {
	Raw []byte
}

// EncodedSize implements ModulePayload.
func (u *UnknownModulePayload) EncodedSize() int { return len(u.Raw) }

// EncodeTo implements ModulePayload.
func (u *UnknownModulePayload) EncodeTo(s *Stream) { s.PushBytes(u.Raw) }

// DecodeFrom implements ModulePayload.
func (u *UnknownModulePayload) DecodeFrom(s *Stream, length int) error {
	u.Raw = s.PopBytes(length)
	return nil
}

// positionOptionMillimetres is bit 7 of the Position module's options octet.
const positionOptionMillimetres = 1 << 7

// PositionModule is the ESTA Position module (0x0001): three signed 32-bit
// axes, in micrometres unless the millimetre scale bit is set.
type PositionModule struct {
	Millimetres bool
	X, Y, Z     int32
}

// EncodedSize implements ModulePayload.
func (p *PositionModule) EncodedSize() int { return 13 }

// EncodeTo implements ModulePayload.
func (p *PositionModule) EncodeTo(s *Stream) {
	var opt uint8
	if p.Millimetres {
		opt |= positionOptionMillimetres
	}
	s.PushUint8(opt)
	s.PushInt32(p.X)
	s.PushInt32(p.Y)
	s.PushInt32(p.Z)
}

// DecodeFrom implements ModulePayload.
func (p *PositionModule) DecodeFrom(s *Stream, length int) error {
	if length != 13 {
		return fmt.Errorf("position module: expected length 13, got %d", length)
	}
	opt := s.PopUint8()
	p.Millimetres = opt&positionOptionMillimetres != 0
	p.X = s.PopInt32()
	p.Y = s.PopInt32()
	p.Z = s.PopInt32()
	return nil
}

// PositionVelAccModule is the ESTA PositionVelAcc module (0x0002): velocity
// in µm/s and acceleration in µm/s², six signed 32-bit values.
type PositionVelAccModule struct {
	VX, VY, VZ int32
	AX, AY, AZ int32
}

// EncodedSize implements ModulePayload.
func (p *PositionVelAccModule) EncodedSize() int { return 24 }

// EncodeTo implements ModulePayload.
func (p *PositionVelAccModule) EncodeTo(s *Stream) {
	s.PushInt32(p.VX)
	s.PushInt32(p.VY)
	s.PushInt32(p.VZ)
	s.PushInt32(p.AX)
	s.PushInt32(p.AY)
	s.PushInt32(p.AZ)
}

// DecodeFrom implements ModulePayload.
func (p *PositionVelAccModule) DecodeFrom(s *Stream, length int) error {
	if length != 24 {
		return fmt.Errorf("positionvelacc module: expected length 24, got %d", length)
	}
	p.VX = s.PopInt32()
	p.VY = s.PopInt32()
	p.VZ = s.PopInt32()
	p.AX = s.PopInt32()
	p.AY = s.PopInt32()
	p.AZ = s.PopInt32()
	return nil
}

// MaxRotationMicrodegrees is the largest valid Rotation axis value (360
// degrees, exclusive, expressed in millionths of a degree).
const MaxRotationMicrodegrees = 359_999_999

// RotationModule is the ESTA Rotation module (0x0003): three unsigned
// 32-bit axes in millionths of a degree, each valid in 0..359,999,999.
type RotationModule struct {
	X, Y, Z uint32
}

// EncodedSize implements ModulePayload.
func (r *RotationModule) EncodedSize() int { return 12 }

// Validate checks each axis is within the valid rotation range.
func (r *RotationModule) Validate() error {
	for _, v := range []uint32{r.X, r.Y, r.Z} {
		if v > MaxRotationMicrodegrees {
			return fmt.Errorf("rotation module: axis value %d out of range", v)
		}
	}
	return nil
}

// EncodeTo implements ModulePayload.
func (r *RotationModule) EncodeTo(s *Stream) {
	s.PushUint32(r.X)
	s.PushUint32(r.Y)
	s.PushUint32(r.Z)
}

// DecodeFrom implements ModulePayload.
func (r *RotationModule) DecodeFrom(s *Stream, length int) error {
	if length != 12 {
		return fmt.Errorf("rotation module: expected length 12, got %d", length)
	}
	r.X = s.PopUint32()
	r.Y = s.PopUint32()
	r.Z = s.PopUint32()
	return r.Validate()
}

// RotationVelAccModule is the ESTA RotationVelAcc module (0x0004): velocity
// in µ°/s and acceleration in µ°/s², six signed 32-bit values.
type RotationVelAccModule struct {
	VX, VY, VZ int32
	AX, AY, AZ int32
}

// EncodedSize implements ModulePayload.
func (r *RotationVelAccModule) EncodedSize() int { return 24 }

// EncodeTo implements ModulePayload.
func (r *RotationVelAccModule) EncodeTo(s *Stream) {
	s.PushInt32(r.VX)
	s.PushInt32(r.VY)
	s.PushInt32(r.VZ)
	s.PushInt32(r.AX)
	s.PushInt32(r.AY)
	s.PushInt32(r.AZ)
}

// DecodeFrom implements ModulePayload.
func (r *RotationVelAccModule) DecodeFrom(s *Stream, length int) error {
	if length != 24 {
		return fmt.Errorf("rotationvelacc module: expected length 24, got %d", length)
	}
	r.VX = s.PopInt32()
	r.VY = s.PopInt32()
	r.VZ = s.PopInt32()
	r.AX = s.PopInt32()
	r.AY = s.PopInt32()
	r.AZ = s.PopInt32()
	return nil
}

// ScalePercent is the fixed-point integer value that represents 100% scale.
const ScalePercent = 1_000_000

// ScaleModule is the ESTA Scale module (0x0005): three signed 32-bit,
// unitless, fixed-point scale factors where ScalePercent maps to 100%.
type ScaleModule struct {
	X, Y, Z int32
}

// EncodedSize implements ModulePayload.
func (sc *ScaleModule) EncodedSize() int { return 12 }

// EncodeTo implements ModulePayload.
func (sc *ScaleModule) EncodeTo(s *Stream) {
	s.PushInt32(sc.X)
	s.PushInt32(sc.Y)
	s.PushInt32(sc.Z)
}

// DecodeFrom implements ModulePayload.
func (sc *ScaleModule) DecodeFrom(s *Stream, length int) error {
	if length != 12 {
		return fmt.Errorf("scale module: expected length 12, got %d", length)
	}
	sc.X = s.PopInt32()
	sc.Y = s.PopInt32()
	sc.Z = s.PopInt32()
	return nil
}

// ReferenceFrameModule is the ESTA ReferenceFrame module (0x0006): names the
// Address this point's transform is expressed relative to.
type ReferenceFrameModule struct {
	System System
	Group  Group
	Point  Point
}

// EncodedSize implements ModulePayload.
func (r *ReferenceFrameModule) EncodedSize() int { return 7 }

// EncodeTo implements ModulePayload.
func (r *ReferenceFrameModule) EncodeTo(s *Stream) {
	s.PushUint8(uint8(r.System))
	s.PushUint16(uint16(r.Group))
	s.PushUint32(uint32(r.Point))
}

// DecodeFrom implements ModulePayload.
func (r *ReferenceFrameModule) DecodeFrom(s *Stream, length int) error {
	if length != 7 {
		return fmt.Errorf("referenceframe module: expected length 7, got %d", length)
	}
	r.System = System(s.PopUint8())
	r.Group = Group(s.PopUint16())
	r.Point = Point(s.PopUint32())
	return nil
}

// Address returns the reference frame as an Address triple.
func (r *ReferenceFrameModule) Address() Address {
	return Address{System: r.System, Group: r.Group, Point: r.Point}
}
