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

package stats

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// sysStatsInterval is the nominal spacing between Snapshot calls, used
// only to label/rate the cumulative runtime counters SysStats reports.
const sysStatsInterval = 5 * time.Second

// JSONStats is the http-reported view of a role's counters.
type JSONStats struct {
	report    counters
	sys       SysStats
	sysReport map[string]int64

	counters
}

// NewJSONStats returns a new, empty JSONStats.
func NewJSONStats() *JSONStats {
	s := &JSONStats{}
	s.init()
	s.report.init()
	return s
}

// Start runs the http json server; it blocks the calling goroutine.
func (s *JSONStats) Start(monitoringport int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)
	addr := fmt.Sprintf(":%d", monitoringport)
	log.Infof("Starting http json stats server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Failed to start stats listener: %v", err)
	}
}

// Snapshot copies the live counters into the reported view and refreshes
// the process/runtime metrics SysStats collects.
func (s *JSONStats) Snapshot() {
	s.rx.copy(&s.report.rx)
	s.tx.copy(&s.report.tx)
	s.discarded.copy(&s.report.discarded)
	s.report.components = s.components
	s.report.systems = s.systems
	s.report.points = s.points

	if sysReport, err := s.sys.Collect(sysStatsInterval); err == nil {
		s.sysReport = sysReport
	} else {
		log.Debugf("collecting process stats: %v", err)
	}
}

// toMap merges the protocol counters with the last-collected process
// and runtime metrics into one flat, namespaced view.
func (s *JSONStats) toMap() map[string]int64 {
	out := s.report.toMap()
	for k, v := range s.sysReport {
		out[k] = v
	}
	return out
}

func (s *JSONStats) handleRequest(w http.ResponseWriter, _ *http.Request) {
	js, err := json.Marshal(s.toMap())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(js); err != nil {
		log.Errorf("Failed to reply with stats: %v", err)
	}
}

// Reset implements Stats.
func (s *JSONStats) Reset() { s.reset() }

// IncRX implements Stats.
func (s *JSONStats) IncRX(kind string) { s.rx.inc(kind) }

// IncTX implements Stats.
func (s *JSONStats) IncTX(kind string) { s.tx.inc(kind) }

// IncDiscarded implements Stats.
func (s *JSONStats) IncDiscarded(reason string) { s.discarded.inc(reason) }

// SetComponents implements Stats.
func (s *JSONStats) SetComponents(n int64) { s.components = n }

// SetSystems implements Stats.
func (s *JSONStats) SetSystems(n int64) { s.systems = n }

// SetPoints implements Stats.
func (s *JSONStats) SetPoints(n int64) { s.points = n }
