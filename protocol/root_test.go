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

func TestRootRoundTrip(t *testing.T) {
	r := Root{
		Vector:        VectorOTPTransform,
		CID:           testCID(0x01),
		Folio:         99,
		Page:          0,
		LastPage:      2,
		ComponentName: NewName("Moving-Light-01"),
	}
	r.SetPDULength(RootHeaderSize)

	s := NewStreamSize(RootHeaderSize)
	r.EncodeTo(s)
	require.Len(t, s.Bytes(), RootHeaderSize)

	var decoded Root
	require.NoError(t, decoded.DecodeFrom(NewStream(s.Bytes())))
	require.Equal(t, r.Vector, decoded.Vector)
	require.Equal(t, r.CID, decoded.CID)
	require.Equal(t, r.Folio, decoded.Folio)
	require.Equal(t, r.LastPage, decoded.LastPage)
	require.Equal(t, r.ComponentName, decoded.ComponentName)
}

func TestRootValidateRejectsZeroCID(t *testing.T) {
	r := Root{Vector: VectorOTPTransform}
	require.Error(t, r.Validate())
}

func TestRootValidateRejectsBadVector(t *testing.T) {
	r := Root{Vector: 0x9999, CID: testCID(0x01)}
	require.Error(t, r.Validate())
}

func TestRootValidateRejectsPageBeyondLastPage(t *testing.T) {
	r := Root{Vector: VectorOTPTransform, CID: testCID(0x01), Page: 3, LastPage: 2}
	require.Error(t, r.Validate())
}

func TestRootDecodeRejectsBadPreamble(t *testing.T) {
	r := Root{Vector: VectorOTPTransform, CID: testCID(0x01)}
	r.SetPDULength(RootHeaderSize)
	s := NewStreamSize(RootHeaderSize)
	r.EncodeTo(s)
	b := s.Bytes()
	b[0] ^= 0xFF

	var decoded Root
	require.Error(t, decoded.DecodeFrom(NewStream(b)))
}
