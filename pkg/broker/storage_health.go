// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package broker

import (
	"sync"
	"time"
)

// StorageHealthState is the broker's view of its segment source.
type StorageHealthState string

const (
	StorageHealthy     StorageHealthState = "healthy"
	StorageDegraded    StorageHealthState = "degraded"
	StorageUnavailable StorageHealthState = "unavailable"
)

var storageStates = []StorageHealthState{StorageHealthy, StorageDegraded, StorageUnavailable}

// StorageHealthConfig sets the thresholds between states.
type StorageHealthConfig struct {
	Window      time.Duration
	LatencyWarn time.Duration
	LatencyCrit time.Duration
	ErrorWarn   float64
	ErrorCrit   float64
	MaxSamples  int
}

// StorageHealthMonitor aggregates recent snapshot and partition reads over a
// sliding window.
type StorageHealthMonitor struct {
	cfg StorageHealthConfig
	now func() time.Time

	mu         sync.Mutex
	samples    []storageSample
	state      StorageHealthState
	stateSince time.Time
	avgLatency time.Duration
	errorRate  float64
}

type storageSample struct {
	ts      time.Time
	op      string
	latency time.Duration
	err     bool
}

// StorageHealthSnapshot is the monitor state reported on /readyz.
type StorageHealthSnapshot struct {
	State      StorageHealthState `json:"state"`
	Since      time.Time          `json:"since"`
	AvgLatency time.Duration      `json:"avg_latency_ns"`
	ErrorRate  float64            `json:"error_rate"`
	Samples    int                `json:"samples"`
}

func NewStorageHealthMonitor(cfg StorageHealthConfig) *StorageHealthMonitor {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.LatencyWarn <= 0 {
		cfg.LatencyWarn = 500 * time.Millisecond
	}
	if cfg.LatencyCrit <= 0 {
		cfg.LatencyCrit = 3 * time.Second
	}
	if cfg.ErrorWarn <= 0 {
		cfg.ErrorWarn = 0.2
	}
	if cfg.ErrorCrit <= 0 {
		cfg.ErrorCrit = 0.6
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = 512
	}
	m := &StorageHealthMonitor{
		cfg:        cfg,
		now:        time.Now,
		state:      StorageHealthy,
		stateSince: time.Now(),
	}
	m.publishLocked()
	return m
}

// Record adds the outcome of one storage read, for example "snapshot" or
// "partition".
func (m *StorageHealthMonitor) Record(op string, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.samples = append(m.samples, storageSample{ts: now, op: op, latency: latency, err: err != nil})
	if len(m.samples) > m.cfg.MaxSamples {
		m.samples = m.samples[len(m.samples)-m.cfg.MaxSamples:]
	}
	m.truncateLocked(now)
	m.recomputeLocked(now)
}

// Observe times fn and records its result under op.
func (m *StorageHealthMonitor) Observe(op string, fn func() error) error {
	start := m.now()
	err := fn()
	m.Record(op, m.now().Sub(start), err)
	return err
}

func (m *StorageHealthMonitor) Snapshot() StorageHealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return StorageHealthSnapshot{
		State:      m.state,
		Since:      m.stateSince,
		AvgLatency: m.avgLatency,
		ErrorRate:  m.errorRate,
		Samples:    len(m.samples),
	}
}

func (m *StorageHealthMonitor) State() StorageHealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *StorageHealthMonitor) truncateLocked(now time.Time) {
	cutoff := now.Add(-m.cfg.Window)
	idx := 0
	for idx < len(m.samples) && !m.samples[idx].ts.After(cutoff) {
		idx++
	}
	if idx > 0 {
		m.samples = append([]storageSample(nil), m.samples[idx:]...)
	}
}

func (m *StorageHealthMonitor) recomputeLocked(now time.Time) {
	if len(m.samples) == 0 {
		m.avgLatency = 0
		m.errorRate = 0
		m.setStateLocked(now, StorageHealthy)
		return
	}
	var (
		totalLatency time.Duration
		errorCount   int
	)
	for _, sample := range m.samples {
		totalLatency += sample.latency
		if sample.err {
			errorCount++
		}
	}
	m.avgLatency = totalLatency / time.Duration(len(m.samples))
	m.errorRate = float64(errorCount) / float64(len(m.samples))

	next := StorageHealthy
	if m.avgLatency >= m.cfg.LatencyCrit || m.errorRate >= m.cfg.ErrorCrit {
		next = StorageUnavailable
	} else if m.avgLatency >= m.cfg.LatencyWarn || m.errorRate >= m.cfg.ErrorWarn {
		next = StorageDegraded
	}
	m.setStateLocked(now, next)
}

func (m *StorageHealthMonitor) setStateLocked(now time.Time, next StorageHealthState) {
	if next == m.state {
		return
	}
	m.state = next
	m.stateSince = now
	m.publishLocked()
}

func (m *StorageHealthMonitor) publishLocked() {
	for _, s := range storageStates {
		v := 0.0
		if s == m.state {
			v = 1
		}
		storageHealthState.WithLabelValues(string(s)).Set(v)
	}
}
