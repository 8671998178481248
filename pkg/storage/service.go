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

import "context"

// Service is the read-only storage facade used by the broker. It holds no
// state between calls, so one value can serve every connection.
type Service struct {
	source   SegmentSource
	metadata *MetadataStore
	logs     *LogStore
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// VerifyCRC checks metadata batch checksums while building snapshots.
	VerifyCRC bool
}

func NewService(source SegmentSource, opts ServiceOptions) *Service {
	return &Service{
		source:   source,
		metadata: NewMetadataStore(source, opts.VerifyCRC),
		logs:     NewLogStore(source),
	}
}

// NewLocalService reads segments from a local log directory.
func NewLocalService(base string, opts ServiceOptions) *Service {
	return NewService(NewFileSource(base), opts)
}

// Source returns the segment source backing the service.
func (s *Service) Source() SegmentSource {
	return s.source
}

// LoadClusterSnapshot rescans the metadata log.
func (s *Service) LoadClusterSnapshot(ctx context.Context) (*ClusterSnapshot, error) {
	return s.metadata.LoadClusterSnapshot(ctx)
}

// ReadPartitionData returns the raw batches of one partition.
func (s *Service) ReadPartitionData(ctx context.Context, topic string, partition int32) (PartitionData, error) {
	return s.logs.ReadPartition(ctx, topic, partition)
}

// ReadPartitionOffsets returns the log start offset and high watermark of one
// partition without keeping its batches.
func (s *Service) ReadPartitionOffsets(ctx context.Context, topic string, partition int32) (PartitionOffsets, error) {
	return s.logs.ReadOffsets(ctx, topic, partition)
}

// FindTopicByName returns the first topic with the given name in topic id order.
func FindTopicByName(snap *ClusterSnapshot, name string) (TopicInfo, bool) {
	for _, t := range snap.Topics() {
		if t.Name == name {
			return t, true
		}
	}
	return TopicInfo{}, false
}

// FindTopicByID looks up a topic by id.
func FindTopicByID(snap *ClusterSnapshot, id TopicID) (TopicInfo, bool) {
	if snap == nil {
		return TopicInfo{}, false
	}
	t, ok := snap.TopicsByID[id]
	return t, ok
}
