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
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

var procStartTime = time.Now()

// SysStats collects process- and Go-runtime-level metrics (CPU, RSS, FD
// count, GC activity) the same way the teacher's sptp client reports its
// own process health alongside protocol counters.
type SysStats struct {
	memstats *runtime.MemStats
}

// setRate stores both a raw delta and a per-second rate for a counter
// that only ever increases between two collections.
func setRate(name string, counts map[string]int64, cur, prev uint64, interval time.Duration) {
	if prev > cur {
		return
	}
	secs := int64(interval.Seconds())
	if secs == 0 {
		return
	}
	counts[fmt.Sprintf("%s.sum.%d", name, secs)] = int64(cur - prev)
	counts[fmt.Sprintf("%s.rate.%d", name, secs)] = int64(cur-prev) / secs
}

// Collect gathers process (CPU%, RSS, VMS, FDs, threads) and Go runtime
// (goroutines, heap, GC) statistics. interval is only used to label and
// rate-compute counters that accumulate between calls.
func (s *SysStats) Collect(interval time.Duration) (map[string]int64, error) {
	out := make(map[string]int64)
	m := &runtime.MemStats{}
	runtime.ReadMemStats(m)
	last := s.memstats

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	out["process.alive"] = 1
	out["process.alive_since"] = procStartTime.Unix()
	out["process.uptime"] = int64(time.Since(procStartTime).Seconds())

	if val, err := proc.Percent(0); err == nil {
		out["process.cpu_permil"] = int64(val * 10)
	}
	if val, err := proc.MemoryInfo(); err == nil {
		out["process.rss"] = int64(val.RSS)
		out["process.vms"] = int64(val.VMS)
		out["process.swap"] = int64(val.Swap)
	}
	if val, err := proc.NumFDs(); err == nil {
		out["process.num_fds"] = int64(val)
	}
	if val, err := proc.NumThreads(); err == nil {
		out["process.num_threads"] = int64(val)
	}

	out["runtime.goroutines"] = int64(runtime.NumGoroutine())
	out["runtime.mem.heap_alloc"] = int64(m.HeapAlloc)
	out["runtime.mem.heap_inuse"] = int64(m.HeapInuse)
	out["runtime.mem.heap_objects"] = int64(m.HeapObjects)
	out["runtime.gc.count"] = int64(m.NumGC)
	out["runtime.gc.pause_total_ns"] = int64(m.PauseTotalNs)

	if last != nil {
		setRate("runtime.mem.mallocs", out, m.Mallocs, last.Mallocs, interval)
		setRate("runtime.mem.frees", out, m.Frees, last.Frees, interval)
		setRate("runtime.gc.count", out, uint64(m.NumGC), uint64(last.NumGC), interval)
	}
	s.memstats = m
	return out, nil
}
