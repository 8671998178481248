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
	"sort"

	"github.com/google/uuid"
)

// TopicID is a Kafka topic UUID held as 16 big-endian bytes. Ordering by
// byte comparison matches ordering by the 128-bit numeric value.
type TopicID [16]byte

// ParseTopicID parses the canonical textual UUID form.
func ParseTopicID(s string) (TopicID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TopicID{}, err
	}
	return TopicID(u), nil
}

func (id TopicID) String() string {
	return uuid.UUID(id).String()
}

func (id TopicID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id TopicID) IsZero() bool {
	return id == TopicID{}
}

func (id TopicID) Compare(other TopicID) int {
	return bytes.Compare(id[:], other[:])
}

// PartitionInfo is one decoded partition record.
type PartitionInfo struct {
	PartitionID    int32   `yaml:"partition_id"`
	TopicID        TopicID `yaml:"topic_id"`
	LeaderID       int32   `yaml:"leader_id"`
	LeaderEpoch    int32   `yaml:"leader_epoch"`
	PartitionEpoch int32   `yaml:"partition_epoch"`
	Replicas       []int32 `yaml:"replicas,flow"`
	ISR            []int32 `yaml:"isr,flow"`
}

// TopicInfo is one decoded topic record plus the partitions attached to it.
type TopicInfo struct {
	TopicID    TopicID         `yaml:"topic_id"`
	Name       string          `yaml:"name"`
	Partitions []PartitionInfo `yaml:"partitions"`
}

// Partition returns the partition with the given id.
func (t *TopicInfo) Partition(id int32) (PartitionInfo, bool) {
	for _, p := range t.Partitions {
		if p.PartitionID == id {
			return p, true
		}
	}
	return PartitionInfo{}, false
}

// ClusterSnapshot is the topic/partition state rebuilt from one scan of the
// cluster metadata log. It is not mutated after it is returned.
type ClusterSnapshot struct {
	TopicsByID map[TopicID]TopicInfo
}

func newClusterSnapshot() *ClusterSnapshot {
	return &ClusterSnapshot{TopicsByID: make(map[TopicID]TopicInfo)}
}

// Topics returns the snapshot topics ordered by topic id.
func (s *ClusterSnapshot) Topics() []TopicInfo {
	if s == nil {
		return nil
	}
	out := make([]TopicInfo, 0, len(s.TopicsByID))
	for _, t := range s.TopicsByID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID.Compare(out[j].TopicID) < 0 })
	return out
}

// RecordBatchBytes is the exact on-disk span of one record batch, including
// the 12-byte base offset and batch length prefix.
type RecordBatchBytes []byte

// PartitionData is every record batch of one partition segment in log order.
type PartitionData []RecordBatchBytes

// Size returns the total number of bytes across all batches.
func (d PartitionData) Size() int {
	n := 0
	for _, b := range d {
		n += len(b)
	}
	return n
}

// Concat joins the batches into a single record set.
func (d PartitionData) Concat() []byte {
	out := make([]byte, 0, d.Size())
	for _, b := range d {
		out = append(out, b...)
	}
	return out
}
