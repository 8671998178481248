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
	"errors"
	"fmt"
	"io"
	"sort"
)

// MetadataStore rebuilds the cluster snapshot from the metadata log on every call.
type MetadataStore struct {
	source    SegmentSource
	verifyCRC bool
}

func NewMetadataStore(source SegmentSource, verifyCRC bool) *MetadataStore {
	return &MetadataStore{source: source, verifyCRC: verifyCRC}
}

type metadataLog struct {
	topics     map[TopicID]TopicInfo
	partitions []PartitionInfo
}

// LoadClusterSnapshot scans the metadata segment. A missing segment yields an
// empty snapshot. Topic records are collected before partitions are attached,
// so partition records that precede their topic are kept; partitions whose
// topic never appears are dropped.
func (s *MetadataStore) LoadClusterSnapshot(ctx context.Context) (*ClusterSnapshot, error) {
	mlog, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	snap := newClusterSnapshot()
	byTopic := make(map[TopicID]map[int32]PartitionInfo)
	for _, p := range mlog.partitions {
		if _, ok := mlog.topics[p.TopicID]; !ok {
			continue
		}
		parts := byTopic[p.TopicID]
		if parts == nil {
			parts = make(map[int32]PartitionInfo)
			byTopic[p.TopicID] = parts
		}
		parts[p.PartitionID] = p
	}
	for id, topic := range mlog.topics {
		parts := byTopic[id]
		topic.Partitions = make([]PartitionInfo, 0, len(parts))
		for _, p := range parts {
			topic.Partitions = append(topic.Partitions, p)
		}
		sort.Slice(topic.Partitions, func(i, j int) bool {
			return topic.Partitions[i].PartitionID < topic.Partitions[j].PartitionID
		})
		snap.TopicsByID[id] = topic
	}
	snapshotTopics.Set(float64(len(snap.TopicsByID)))
	return snap, nil
}

func (s *MetadataStore) scan(ctx context.Context) (*metadataLog, error) {
	mlog := &metadataLog{topics: make(map[TopicID]TopicInfo)}
	rc, err := s.source.OpenSegment(ctx, ClusterMetadataSegment())
	if errors.Is(err, ErrSegmentNotFound) {
		return mlog, nil
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	scanner := NewBatchScanner(rc)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			return mlog, nil
		}
		if errors.Is(err, ErrTruncatedBatch) {
			// The tail of an active segment may be mid-append.
			segmentTruncations.WithLabelValues(logMetadata).Inc()
			return mlog, nil
		}
		if err != nil {
			return nil, s.scanError(err)
		}
		segmentBatchesScanned.WithLabelValues(logMetadata).Inc()
		segmentBytesScanned.WithLabelValues(logMetadata).Add(float64(len(raw)))
		if err := s.applyBatch(mlog, raw, scanner.Offset()-int64(len(raw))); err != nil {
			return nil, s.scanError(err)
		}
	}
}

func (s *MetadataStore) scanError(err error) error {
	switch {
	case errors.Is(err, ErrCorruptBatch):
		crcFailures.Inc()
	case errors.Is(err, ErrDecode):
		decodeErrors.Inc()
	}
	return fmt.Errorf("load cluster snapshot: %w", err)
}

func (s *MetadataStore) applyBatch(mlog *metadataLog, raw RecordBatchBytes, position int64) error {
	if s.verifyCRC {
		if err := VerifyBatchCRC(raw); err != nil {
			return fmt.Errorf("batch at position %d: %w", position, err)
		}
	}
	batch, err := DecodeRecordBatch(raw)
	if err != nil {
		return fmt.Errorf("batch at position %d: %w", position, err)
	}
	if batch.IsControl() {
		return nil
	}
	for _, rec := range batch.Records {
		kind, ok := MetadataRecordType(rec.Value)
		if !ok {
			continue
		}
		switch kind {
		case MetadataRecordTopic:
			topic, err := DecodeTopicRecord(rec.Value)
			if err != nil {
				return fmt.Errorf("offset %d: %w", batch.BaseOffset+int64(rec.OffsetDelta), err)
			}
			mlog.topics[topic.TopicID] = topic
		case MetadataRecordPartition:
			p, err := DecodePartitionRecord(rec.Value)
			if err != nil {
				return fmt.Errorf("offset %d: %w", batch.BaseOffset+int64(rec.OffsetDelta), err)
			}
			mlog.partitions = append(mlog.partitions, p)
		}
	}
	return nil
}
