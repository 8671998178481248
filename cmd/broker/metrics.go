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

package main

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/novatechflow/kraftlog/pkg/protocol"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kraftlog",
		Subsystem: "broker",
		Name:      "requests_total",
		Help:      "Kafka requests handled, by API and outcome.",
	}, []string{"api", "outcome"})

	requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kraftlog",
		Subsystem: "broker",
		Name:      "request_duration_seconds",
		Help:      "Time from parsed request to encoded response.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"api"})

	partitionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kraftlog",
		Subsystem: "broker",
		Name:      "partition_errors_total",
		Help:      "Partition-level error codes returned, by API and error.",
	}, []string{"api", "error"})

	fetchedRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kraftlog",
		Subsystem: "broker",
		Name:      "fetch_records_total",
		Help:      "Records returned in Fetch responses.",
	})

	fetchedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kraftlog",
		Subsystem: "broker",
		Name:      "fetch_bytes_total",
		Help:      "Record set bytes returned in Fetch responses.",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestLatency, partitionErrors, fetchedRecords, fetchedBytes)
}

func apiName(key int16) string {
	switch key {
	case protocol.APIKeyApiVersion:
		return "api_versions"
	case protocol.APIKeyDescribeTopicPartitions:
		return "describe_topic_partitions"
	case protocol.APIKeyFetch:
		return "fetch"
	default:
		return "api_" + strconv.Itoa(int(key))
	}
}

func recordRequest(key int16, latency time.Duration, err error) {
	api := apiName(key)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	requestsTotal.WithLabelValues(api, outcome).Inc()
	requestLatency.WithLabelValues(api).Observe(latency.Seconds())
}

// newFetchRateGauge exposes the tracker as a gauge. It is registered once by
// main so tests can build handlers freely.
func newFetchRateGauge(t *throughputTracker) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "kraftlog",
		Subsystem: "broker",
		Name:      "fetch_records_per_second",
		Help:      "Records fetched per second over the tracker window.",
	}, t.rate)
}

// throughputTracker keeps per-second counts in a ring sized to the window.
type throughputTracker struct {
	mu     sync.Mutex
	now    func() time.Time
	counts []int64
	// stamps[i] is the unix second that counts[i] belongs to.
	stamps []int64
	first  int64
}

func newThroughputTracker(window time.Duration) *throughputTracker {
	seconds := int(window / time.Second)
	if seconds < 1 {
		seconds = 60
	}
	return &throughputTracker{
		now:    time.Now,
		counts: make([]int64, seconds),
		stamps: make([]int64, seconds),
		first:  -1,
	}
}

func (t *throughputTracker) add(count int64) {
	if t == nil || count <= 0 {
		return
	}
	sec := t.now().Unix()
	t.mu.Lock()
	defer t.mu.Unlock()
	i := int(sec % int64(len(t.counts)))
	if t.stamps[i] != sec {
		t.stamps[i] = sec
		t.counts[i] = 0
	}
	t.counts[i] += count
	if t.first < 0 {
		t.first = sec
	}
}

// rate is the mean per-second count since the first sample or over the full
// window, whichever is shorter.
func (t *throughputTracker) rate() float64 {
	if t == nil {
		return 0
	}
	sec := t.now().Unix()
	size := int64(len(t.counts))
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.first < 0 {
		return 0
	}
	var total int64
	for i, stamp := range t.stamps {
		if stamp > sec-size && stamp <= sec {
			total += t.counts[i]
		}
	}
	span := sec - t.first + 1
	if span > size {
		span = size
	}
	if span < 1 {
		span = 1
	}
	return float64(total) / float64(span)
}
