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
	"fmt"
	"unicode/utf8"
)

// CID is a component's persistent identity: a 128-bit RFC-4122 UUID.
type CID [CIDSize]byte

// String renders the canonical 8-4-4-4-12 hex form.
func (c CID) String() string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", c[0:4], c[4:6], c[6:8], c[8:10], c[10:16])
}

// MarshalText implements encoding.TextMarshaler.
func (c CID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// IsZero reports whether the CID is the all-zero sentinel (invalid as a sender identity).
func (c CID) IsZero() bool {
	return c == CID{}
}

// Name is a fixed-width, 32-octet, null-padded UTF-8 string field.
// Runes are never split: a source string that would be truncated mid-rune
// is truncated at the preceding rune boundary instead.
type Name string

func newNameFromString(s string) Name {
	b := []byte(s)
	if len(b) <= NameSize {
		return Name(s)
	}
	// truncate at a rune boundary, never splitting a multi-byte rune
	cut := NameSize
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return Name(b[:cut])
}

// NewName builds a Name from a Go string, truncating as necessary.
func NewName(s string) Name {
	return newNameFromString(s)
}

func (n Name) wire() []byte {
	b := make([]byte, NameSize)
	copy(b, []byte(n))
	return b
}

func nameFromWire(b []byte) Name {
	// strip trailing NUL padding
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return Name(b[:end])
}

// System identifies an OTP system number. Valid range is 1..200.
type System uint8

// MinSystem and MaxSystem bound the valid System range.
const (
	MinSystem System = 1
	MaxSystem System = 200
)

// Valid reports whether s is within the valid System range.
func (s System) Valid() bool {
	return s >= MinSystem && s <= MaxSystem
}

// Group identifies an OTP group number. Valid range is 1..60000.
type Group uint16

// MinGroup and MaxGroup bound the valid Group range.
const (
	MinGroup Group = 1
	MaxGroup Group = 60000
)

// Valid reports whether g is within the valid Group range.
func (g Group) Valid() bool {
	return g >= MinGroup && g <= MaxGroup
}

// Point identifies an OTP point number. Valid range is 1..4,000,000,000.
type Point uint32

// MinPoint and MaxPoint bound the valid Point range.
const (
	MinPoint Point = 1
	MaxPoint Point = 4_000_000_000
)

// Valid reports whether p is within the valid Point range.
func (p Point) Valid() bool {
	return p >= MinPoint && p <= MaxPoint
}

// Priority is a Producer's priority for a Point. Valid range is 0..200;
// 201..255 are reserved and messages carrying them MUST be discarded.
type Priority uint8

// MaxPriority bounds the valid Priority range (0 is always valid).
const MaxPriority Priority = 200

// Valid reports whether p is within the valid Priority range.
func (p Priority) Valid() bool {
	return p <= MaxPriority
}

// Address is the triple identifying a Point: (System, Group, Point).
type Address struct {
	System System
	Group  Group
	Point  Point
}

// String renders an Address as "system/group/point".
func (a Address) String() string {
	return fmt.Sprintf("%d/%d/%d", a.System, a.Group, a.Point)
}

// Folio is a 32-bit counter, incremented per emitted folio and wrapping.
type Folio uint32

// staleWindow is the width of the backward-jump window that marks an
// incoming folio as stale relative to the previously accepted one.
const staleWindow = 63335

// InSequence reports whether next is in sequence relative to prev. A
// folio counter advances by 1 per emission and wraps at 2^32, so the
// test looks at how far *backward* next would be from prev: next is
// stale iff (prev - next) mod 2^32 falls in (0, staleWindow], i.e. it
// is a small step behind the last accepted folio. Everything else —
// an ordinary forward advance, a wraparound, equal folios (a
// retransmission, e.g. a repeated page) — is in sequence.
func (prev Folio) InSequence(next Folio) bool {
	backward := uint32(prev - next)
	return backward == 0 || backward > staleWindow
}

// Page is a 16-bit page index within a folio.
type Page uint16

// Timestamp is microseconds since an unspecified, per-sender-monotone origin.
type Timestamp uint64
