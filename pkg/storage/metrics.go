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

package storage

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "kraftlog"

var (
	segmentBatchesScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "storage",
			Name:      "batches_scanned_total",
			Help:      "Record batches read from segments by log.",
		},
		[]string{"log"},
	)
	segmentBytesScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "storage",
			Name:      "bytes_scanned_total",
			Help:      "Segment bytes read by log.",
		},
		[]string{"log"},
	)
	segmentTruncations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "storage",
			Name:      "truncated_segments_total",
			Help:      "Segment scans that ended inside a record batch.",
		},
		[]string{"log"},
	)
	crcFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "storage",
			Name:      "crc_failures_total",
			Help:      "Metadata record batches rejected for a CRC mismatch.",
		},
	)
	decodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "storage",
			Name:      "decode_errors_total",
			Help:      "Metadata scans aborted by a decode error.",
		},
	)
	segmentCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "storage",
			Name:      "s3_cache_lookups_total",
			Help:      "S3 segment reads served from a revalidated cache entry or fetched in full.",
		},
		[]string{"result"},
	)
	snapshotTopics = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "storage",
			Name:      "snapshot_topics",
			Help:      "Topics in the most recently loaded cluster snapshot.",
		},
	)
)

const (
	logMetadata  = "metadata"
	logPartition = "partition"
)

func init() {
	prometheus.MustRegister(
		segmentBatchesScanned,
		segmentBytesScanned,
		segmentTruncations,
		segmentCacheLookups,
		crcFailures,
		decodeErrors,
		snapshotTopics,
	)
}
