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

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReadPartitionMissingSegment(t *testing.T) {
	data, err := NewLogStore(NewFileSource(t.TempDir())).ReadPartition(context.Background(), "orders", 0)
	if err != nil {
		t.Fatalf("ReadPartition: %v", err)
	}
	if len(data) != 0 || data.HighWatermark() != 0 || data.LogStartOffset() != 0 {
		t.Fatalf("expected empty data, got %d batches", len(data))
	}
}

func TestReadPartitionInvalidTopic(t *testing.T) {
	_, err := NewLogStore(NewMemorySource()).ReadPartition(context.Background(), "../secrets", 0)
	if !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}

func TestReadPartitionCopiesBatches(t *testing.T) {
	src := NewFileSource(t.TempDir())
	first := encodeTestBatch(t, 0, []byte("a"), []byte("b"))
	second := encodeTestBatch(t, 2, []byte("c"))
	key, err := PartitionSegment("orders", 1)
	if err != nil {
		t.Fatalf("PartitionSegment: %v", err)
	}
	segment := append(append(append([]byte{}, first...), second...), 0x00, 0x00, 0x00)
	if err := src.WriteSegment(context.Background(), key, segment); err != nil {
		t.Fatalf("WriteSegment: %v", err)
	}
	data, err := NewLogStore(src).ReadPartition(context.Background(), "orders", 1)
	if err != nil {
		t.Fatalf("ReadPartition: %v", err)
	}
	if len(data) != 2 || !bytes.Equal(data[0], first) || !bytes.Equal(data[1], second) {
		t.Fatalf("unexpected batches: %d", len(data))
	}
	if !bytes.Equal(data.Concat(), append(append([]byte{}, first...), second...)) {
		t.Fatalf("concat mismatch")
	}
	if data.LogStartOffset() != 0 || data.HighWatermark() != 3 {
		t.Fatalf("unexpected offsets: start %d hw %d", data.LogStartOffset(), data.HighWatermark())
	}
	if CountRecordBatchMessages(data.Concat()) != 3 {
		t.Fatalf("unexpected record count")
	}
}

func TestPartitionDataFrom(t *testing.T) {
	data := PartitionData{
		encodeTestBatch(t, 0, []byte("a"), []byte("b")),
		encodeTestBatch(t, 2, []byte("c")),
		encodeTestBatch(t, 3, []byte("d"), []byte("e")),
	}
	tests := []struct {
		name     string
		offset   int64
		maxBytes int
		want     int
		first    int64
	}{
		{"all", 0, 0, 3, 0},
		{"inside first batch", 1, 0, 3, 0},
		{"skip first", 2, 0, 2, 2},
		{"past end", 5, 0, 0, 0},
		{"one batch budget", 0, 1, 1, 0},
		{"two batch budget", 0, len(data[0]) + len(data[1]), 2, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := data.From(tc.offset, tc.maxBytes)
			if len(got) != tc.want {
				t.Fatalf("got %d batches, want %d", len(got), tc.want)
			}
			if tc.want > 0 && got.LogStartOffset() != tc.first {
				t.Fatalf("first batch offset %d, want %d", got.LogStartOffset(), tc.first)
			}
		})
	}
}

func TestReadOffsetsMatchesReadPartition(t *testing.T) {
	src := NewFileSource(t.TempDir())
	key, err := PartitionSegment("orders", 2)
	if err != nil {
		t.Fatalf("PartitionSegment: %v", err)
	}
	segment := append(append([]byte{}, encodeTestBatch(t, 4, []byte("a"), []byte("b"))...), encodeTestBatch(t, 6, []byte("c"))...)
	segment = append(segment, 0x00, 0x00, 0x00)
	if err := src.WriteSegment(context.Background(), key, segment); err != nil {
		t.Fatalf("WriteSegment: %v", err)
	}
	store := NewLogStore(src)

	scanned := testutil.ToFloat64(segmentBatchesScanned.WithLabelValues(logPartition))
	truncations := testutil.ToFloat64(segmentTruncations.WithLabelValues(logPartition))
	offsets, err := store.ReadOffsets(context.Background(), "orders", 2)
	if err != nil {
		t.Fatalf("ReadOffsets: %v", err)
	}
	if offsets.LogStartOffset != 4 || offsets.HighWatermark != 7 {
		t.Fatalf("unexpected offsets: start %d hw %d", offsets.LogStartOffset, offsets.HighWatermark)
	}
	if got := testutil.ToFloat64(segmentBatchesScanned.WithLabelValues(logPartition)); got != scanned {
		t.Fatalf("offsets read retained batches: scanned %v -> %v", scanned, got)
	}
	if got := testutil.ToFloat64(segmentTruncations.WithLabelValues(logPartition)); got != truncations+1 {
		t.Fatalf("expected truncated tail to be counted, got %v -> %v", truncations, got)
	}

	data, err := store.ReadPartition(context.Background(), "orders", 2)
	if err != nil {
		t.Fatalf("ReadPartition: %v", err)
	}
	if data.LogStartOffset() != offsets.LogStartOffset || data.HighWatermark() != offsets.HighWatermark {
		t.Fatalf("offsets disagree with ReadPartition: start %d hw %d", data.LogStartOffset(), data.HighWatermark())
	}
}

func TestReadOffsetsMissingSegment(t *testing.T) {
	offsets, err := NewLogStore(NewFileSource(t.TempDir())).ReadOffsets(context.Background(), "orders", 0)
	if err != nil {
		t.Fatalf("ReadOffsets: %v", err)
	}
	if offsets != (PartitionOffsets{}) {
		t.Fatalf("expected zero offsets, got %+v", offsets)
	}
	if _, err := NewLogStore(NewMemorySource()).ReadOffsets(context.Background(), "../secrets", 0); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}
