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
	"fmt"
	"time"
)

// EncodeMetadataBatch writes one metadata batch holding a topic record for
// every topic followed by its partition records.
func EncodeMetadataBatch(baseOffset int64, topics ...TopicInfo) (RecordBatchBytes, error) {
	var records []Record
	for _, t := range topics {
		if err := ValidateTopicName(t.Name); err != nil {
			return nil, err
		}
		records = append(records, Record{OffsetDelta: int32(len(records)), Value: EncodeTopicRecord(t.Name, t.TopicID)})
		for _, p := range t.Partitions {
			p.TopicID = t.TopicID
			records = append(records, Record{OffsetDelta: int32(len(records)), Value: EncodePartitionRecord(p)})
		}
	}
	now := time.Now().UnixMilli()
	return EncodeRecordBatch(RecordBatch{
		BatchHeader: BatchHeader{
			BaseOffset:    baseOffset,
			BaseTimestamp: now,
			MaxTimestamp:  now,
			ProducerID:    -1,
			ProducerEpoch: -1,
			BaseSequence:  -1,
		},
		Records: records,
	})
}

// EncodeValueBatch writes one data batch with a record per value.
func EncodeValueBatch(baseOffset int64, codec int16, values ...[]byte) (RecordBatchBytes, error) {
	records := make([]Record, len(values))
	for i, v := range values {
		records[i] = Record{OffsetDelta: int32(i), Value: v}
	}
	now := time.Now().UnixMilli()
	return EncodeRecordBatch(RecordBatch{
		BatchHeader: BatchHeader{
			BaseOffset:    baseOffset,
			Attributes:    codec & attrCompressionMask,
			BaseTimestamp: now,
			MaxTimestamp:  now,
			ProducerID:    -1,
			ProducerEpoch: -1,
			BaseSequence:  -1,
		},
		Records: records,
	})
}

// SeedTopic writes a metadata log describing topic and gives every partition
// a segment holding batches of values. Existing segments are replaced.
func SeedTopic(ctx context.Context, w SegmentWriter, topic TopicInfo, batches [][][]byte, codec int16) error {
	meta, err := EncodeMetadataBatch(0, topic)
	if err != nil {
		return err
	}
	if err := w.WriteSegment(ctx, ClusterMetadataSegment(), meta); err != nil {
		return fmt.Errorf("write metadata log: %w", err)
	}
	for _, p := range topic.Partitions {
		key, err := PartitionSegment(topic.Name, p.PartitionID)
		if err != nil {
			return err
		}
		var segment []byte
		var next int64
		for _, values := range batches {
			if len(values) == 0 {
				continue
			}
			b, err := EncodeValueBatch(next, codec, values...)
			if err != nil {
				return err
			}
			segment = append(segment, b...)
			next += int64(len(values))
		}
		if err := w.WriteSegment(ctx, key, segment); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	return nil
}
