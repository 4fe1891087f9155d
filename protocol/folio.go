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

import "sync"

// FolioKey identifies a reassembly stream: one per (sender, system-or-none,
// vector). System is 0 for advertisement vectors, which are not per-system.
type FolioKey struct {
	Sender CID
	System System
	Vector RootVector
}

// folioState is the per-key bookkeeping the Reassembler keeps (§4.D).
type folioState struct {
	folio Folio
	pages map[Page][]byte
	last  Page
	have  bool
}

// Reassembler implements the per-(sender, system, vector) folio
// reassembly described in §4.D: it validates folio sequence, collects
// pages of a folio, and reports completion once every page 0..LastPage
// has arrived. Out-of-sequence folios are silently discarded; there is
// no NACK and no retransmission request.
type Reassembler struct {
	mu    sync.Mutex
	state map[FolioKey]*folioState
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{state: make(map[FolioKey]*folioState)}
}

// Accept feeds one received page of a folio into the reassembler. It
// returns the complete, ordered set of page payloads (page 0 first) once
// every page 0..lastPage has been seen for this folio, or nil if the
// folio is still incomplete or was discarded as stale.
func (r *Reassembler) Accept(key FolioKey, folio Folio, page, lastPage Page, payload []byte) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.state[key]
	if !ok {
		st = &folioState{pages: make(map[Page][]byte)}
		r.state[key] = st
	}

	if st.have && !st.folio.InSequence(folio) {
		// stale folio: silently discard (§4.D step 1, §7 StaleFolio)
		return nil
	}

	if !st.have || st.folio != folio {
		st.folio = folio
		st.pages = make(map[Page][]byte)
		st.last = lastPage
		st.have = true
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	st.pages[page] = buf

	if len(st.pages) != int(st.last)+1 {
		return nil
	}
	out := make([][]byte, st.last+1)
	for p, b := range st.pages {
		out[p] = b
	}
	return out
}

// Forget drops all reassembly state for a key, e.g. when its component expires.
func (r *Reassembler) Forget(key FolioKey) {
	r.mu.Lock()
	delete(r.state, key)
	r.mu.Unlock()
}

// ForgetSender drops all reassembly state for every key belonging to sender.
func (r *Reassembler) ForgetSender(sender CID) {
	r.mu.Lock()
	for k := range r.state {
		if k.Sender == sender {
			delete(r.state, k)
		}
	}
	r.mu.Unlock()
}
