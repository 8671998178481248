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
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// LogStore reads raw partition batches for Fetch. Batches are copied through
// without decoding or CRC checks.
type LogStore struct {
	source SegmentSource
}

func NewLogStore(source SegmentSource) *LogStore {
	return &LogStore{source: source}
}

// ReadPartition returns every complete batch of the partition segment. A
// missing segment is empty data. The scan stops at the first truncated or
// unframeable batch and keeps the batches before it.
func (s *LogStore) ReadPartition(ctx context.Context, topic string, partition int32) (PartitionData, error) {
	key, err := PartitionSegment(topic, partition)
	if err != nil {
		return nil, err
	}
	rc, err := s.source.OpenSegment(ctx, key)
	if errors.Is(err, ErrSegmentNotFound) {
		return PartitionData{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data := PartitionData{}
	scanner := NewBatchScanner(rc)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			return data, nil
		}
		if errors.Is(err, ErrTruncatedBatch) || errors.Is(err, ErrDecode) {
			segmentTruncations.WithLabelValues(logPartition).Inc()
			return data, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read partition %s-%d: %w", topic, partition, err)
		}
		segmentBatchesScanned.WithLabelValues(logPartition).Inc()
		segmentBytesScanned.WithLabelValues(logPartition).Add(float64(len(batch)))
		data = append(data, batch)
	}
}

// PartitionOffsets bounds the offsets held by a partition segment.
type PartitionOffsets struct {
	LogStartOffset int64
	HighWatermark  int64
}

// ReadOffsets walks the batch headers of a partition segment and skips the
// records. It follows the same missing and truncated segment rules as
// ReadPartition, so the result always matches ReadPartition's LogStartOffset
// and HighWatermark.
func (s *LogStore) ReadOffsets(ctx context.Context, topic string, partition int32) (PartitionOffsets, error) {
	key, err := PartitionSegment(topic, partition)
	if err != nil {
		return PartitionOffsets{}, err
	}
	rc, err := s.source.OpenSegment(ctx, key)
	if errors.Is(err, ErrSegmentNotFound) {
		return PartitionOffsets{}, nil
	}
	if err != nil {
		return PartitionOffsets{}, err
	}
	defer rc.Close()

	var out PartitionOffsets
	first := true
	scanner := NewBatchScanner(rc)
	for {
		if err := ctx.Err(); err != nil {
			return PartitionOffsets{}, err
		}
		base, last, err := scanner.Skip()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if errors.Is(err, ErrTruncatedBatch) || errors.Is(err, ErrDecode) {
			segmentTruncations.WithLabelValues(logPartition).Inc()
			return out, nil
		}
		if err != nil {
			return PartitionOffsets{}, fmt.Errorf("read offsets %s-%d: %w", topic, partition, err)
		}
		if first {
			out.LogStartOffset = base
			first = false
		}
		out.HighWatermark = last + 1
	}
}

func (b RecordBatchBytes) baseOffset() int64 {
	return int64(binary.BigEndian.Uint64(b[0:8]))
}

func (b RecordBatchBytes) lastOffset() int64 {
	return b.baseOffset() + int64(int32(binary.BigEndian.Uint32(b[23:27])))
}

// LogStartOffset is the base offset of the first batch, or 0 for no data.
func (d PartitionData) LogStartOffset() int64 {
	if len(d) == 0 {
		return 0
	}
	return d[0].baseOffset()
}

// HighWatermark is one past the last offset in the data, or 0 for no data.
func (d PartitionData) HighWatermark() int64 {
	if len(d) == 0 {
		return 0
	}
	return d[len(d)-1].lastOffset() + 1
}

// From returns the batches that hold offsets at or after offset. The result
// stops before the batch that would take it past maxBytes but always holds at
// least one batch when any qualify. maxBytes <= 0 means no limit.
func (d PartitionData) From(offset int64, maxBytes int) PartitionData {
	out := PartitionData{}
	size := 0
	for _, b := range d {
		if b.lastOffset() < offset {
			continue
		}
		if maxBytes > 0 && len(out) > 0 && size+len(b) > maxBytes {
			break
		}
		out = append(out, b)
		size += len(b)
	}
	return out
}
