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

/*
Package stats implements statistics collection and reporting for an OTP
Producer or Consumer: counters of datagrams sent/received/discarded and
gauges of registry size, exposed as JSON and as Prometheus metrics.
*/
package stats

import "sync"

// Stats is a metric collection interface implemented by every reporting backend.
type Stats interface {
	// Start runs the reporting backend, blocking the calling goroutine.
	Start(monitoringport int)

	// Snapshot copies the live counters into the reported view, key by key.
	Snapshot()

	// Reset zeroes all the live counters.
	Reset()

	// IncRX increments the received-datagram counter for a message kind
	// ("transform", "moduleadv", "nameadv", "systemadv").
	IncRX(kind string)

	// IncTX increments the sent-datagram counter for a message kind.
	IncTX(kind string)

	// IncDiscarded increments the discarded-datagram counter for a reason
	// ("malformed", "stale", "oversized", "unknownmodule").
	IncDiscarded(reason string)

	// SetComponents sets the current component-registry gauge.
	SetComponents(n int64)

	// SetSystems sets the current distinct-system gauge.
	SetSystems(n int64)

	// SetPoints sets the current point gauge.
	SetPoints(n int64)
}

// syncMapInt64 is a mutex-guarded counter map keyed by string, mirroring the
// teacher's per-message-type counter map but keyed by name instead of enum.
type syncMapInt64 struct {
	sync.Mutex
	m map[string]int64
}

func (s *syncMapInt64) init() {
	s.m = make(map[string]int64)
}

func (s *syncMapInt64) keys() []string {
	s.Lock()
	defer s.Unlock()
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	return keys
}

func (s *syncMapInt64) load(key string) int64 {
	s.Lock()
	defer s.Unlock()
	return s.m[key]
}

func (s *syncMapInt64) inc(key string) {
	s.Lock()
	s.m[key]++
	s.Unlock()
}

func (s *syncMapInt64) store(key string, value int64) {
	s.Lock()
	s.m[key] = value
	s.Unlock()
}

func (s *syncMapInt64) copy(dst *syncMapInt64) {
	for _, k := range s.keys() {
		dst.store(k, s.load(k))
	}
}

func (s *syncMapInt64) reset() {
	s.Lock()
	for k := range s.m {
		s.m[k] = 0
	}
	s.Unlock()
}

// counters holds every stat kept by an OTP role.
type counters struct {
	rx         syncMapInt64
	tx         syncMapInt64
	discarded  syncMapInt64
	components int64
	systems    int64
	points     int64
}

func (c *counters) init() {
	c.rx.init()
	c.tx.init()
	c.discarded.init()
}

func (c *counters) reset() {
	c.rx.reset()
	c.tx.reset()
	c.discarded.reset()
	c.components = 0
	c.systems = 0
	c.points = 0
}

// toMap flattens the counters into a single namespaced map, the shape both
// the JSON and Prometheus surfaces report.
func (c *counters) toMap() map[string]int64 {
	res := make(map[string]int64)
	for _, k := range c.rx.keys() {
		res["rx."+k] = c.rx.load(k)
	}
	for _, k := range c.tx.keys() {
		res["tx."+k] = c.tx.load(k)
	}
	for _, k := range c.discarded.keys() {
		res["discarded."+k] = c.discarded.load(k)
	}
	res["registry.components"] = c.components
	res["registry.systems"] = c.systems
	res["registry.points"] = c.points
	return res
}
