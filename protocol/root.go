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
	"bytes"
	"fmt"
)

// Preamble is the fixed 12-octet literal "OTP-E1.59" + NUL padding that
// opens every Root layer.
var Preamble = [12]byte{0x4F, 0x54, 0x50, 0x2D, 0x45, 0x31, 0x2E, 0x35, 0x39, 0x00, 0x00, 0x00}

// RootHeaderSize is the total size, in octets, of the Root (OTP) layer header.
const RootHeaderSize = 79

// RootLengthOffset excludes the first 16 octets (preamble + vector + length itself) from PDULength.
const RootLengthOffset = 16

// Root is the outer PDU layer (§4.B.1, "OTP layer").
type Root struct {
	Vector         RootVector
	PDULength      uint16
	FooterOptions  uint8
	FooterLength   uint8
	CID            CID
	Folio          Folio
	Page           Page
	LastPage       Page
	Options        uint8
	ComponentName  Name
}

// Validate checks structural invariants of a decoded/constructed Root layer.
func (r *Root) Validate() error {
	if r.Vector != VectorOTPTransform && r.Vector != VectorOTPAdvertisement {
		return fmt.Errorf("root layer: invalid vector 0x%04x", uint16(r.Vector))
	}
	if r.CID.IsZero() {
		return fmt.Errorf("root layer: zero CID")
	}
	if r.Page > r.LastPage {
		return fmt.Errorf("root layer: page %d exceeds last page %d", r.Page, r.LastPage)
	}
	return nil
}

// EncodeTo writes the Root layer header (without its payload) to s.
func (r *Root) EncodeTo(s *Stream) {
	s.PushBytes(Preamble[:])
	s.PushUint16(uint16(r.Vector))
	s.PushUint16(r.PDULength)
	s.PushUint8(r.FooterOptions)
	s.PushUint8(r.FooterLength)
	s.PushCID(r.CID)
	s.PushUint32(uint32(r.Folio))
	s.PushUint16(uint16(r.Page))
	s.PushUint16(uint16(r.LastPage))
	s.PushUint8(r.Options)
	s.PushBytes(make([]byte, 4)) // Reserved
	s.PushName(r.ComponentName)
}

// DecodeFrom reads the Root layer header from s.
func (r *Root) DecodeFrom(s *Stream) error {
	if s.Remaining() < RootHeaderSize {
		return fmt.Errorf("root layer: need %d bytes, have %d", RootHeaderSize, s.Remaining())
	}
	preamble := s.PopBytes(12)
	if !bytes.Equal(preamble, Preamble[:]) {
		return fmt.Errorf("root layer: preamble mismatch")
	}
	r.Vector = RootVector(s.PopUint16())
	r.PDULength = s.PopUint16()
	r.FooterOptions = s.PopUint8()
	r.FooterLength = s.PopUint8()
	r.CID = s.PopCID()
	r.Folio = Folio(s.PopUint32())
	r.Page = Page(s.PopUint16())
	r.LastPage = Page(s.PopUint16())
	r.Options = s.PopUint8()
	_ = s.PopBytes(4) // Reserved
	r.ComponentName = s.PopName()
	if s.Failed() {
		return fmt.Errorf("root layer: truncated")
	}
	return r.Validate()
}

// SetPDULength computes PDULength from the total encoded message size.
func (r *Root) SetPDULength(totalSize int) {
	r.PDULength = uint16(totalSize - RootLengthOffset)
}
