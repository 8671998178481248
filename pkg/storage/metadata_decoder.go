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

// Metadata record type tags stored at offset 1 of a record value.
const (
	MetadataRecordTopic     int8 = 2
	MetadataRecordPartition int8 = 3
)

const metadataRecordHeaderSize = 3

// MetadataRecordType returns the type tag of a metadata record value. Values
// shorter than two bytes carry no type.
func MetadataRecordType(value []byte) (int8, bool) {
	if len(value) < 2 {
		return 0, false
	}
	return int8(value[1]), true
}

func skipMetadataHeader(value []byte, kind string) (*cursor, error) {
	c := newCursor(value)
	if _, err := c.take(metadataRecordHeaderSize, kind+".header"); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeTopicRecord decodes a TopicRecord value into a TopicInfo without partitions.
func DecodeTopicRecord(value []byte) (TopicInfo, error) {
	var info TopicInfo
	c, err := skipMetadataHeader(value, "topic")
	if err != nil {
		return info, err
	}
	n, err := c.compactCount("topic.name")
	if err != nil {
		return info, err
	}
	name, err := c.take(n, "topic.name")
	if err != nil {
		return info, err
	}
	info.Name = string(name)
	if info.TopicID, err = c.uuid("topic.topic_id"); err != nil {
		return info, err
	}
	return info, nil
}

// DecodePartitionRecord decodes a PartitionRecord value. The removing and
// adding replica lists are read for framing and dropped.
func DecodePartitionRecord(value []byte) (PartitionInfo, error) {
	var p PartitionInfo
	c, err := skipMetadataHeader(value, "partition")
	if err != nil {
		return p, err
	}
	if p.PartitionID, err = c.int32("partition.partition_id"); err != nil {
		return p, err
	}
	if p.TopicID, err = c.uuid("partition.topic_id"); err != nil {
		return p, err
	}
	if p.Replicas, err = c.int32Array("partition.replicas"); err != nil {
		return p, err
	}
	if p.ISR, err = c.int32Array("partition.isr"); err != nil {
		return p, err
	}
	if _, err = c.int32Array("partition.removing_replicas"); err != nil {
		return p, err
	}
	if _, err = c.int32Array("partition.adding_replicas"); err != nil {
		return p, err
	}
	if p.LeaderID, err = c.int32("partition.leader"); err != nil {
		return p, err
	}
	if p.LeaderEpoch, err = c.int32("partition.leader_epoch"); err != nil {
		return p, err
	}
	if p.PartitionEpoch, err = c.int32("partition.partition_epoch"); err != nil {
		return p, err
	}
	return p, nil
}

// EncodeTopicRecord builds a version 0 TopicRecord value.
func EncodeTopicRecord(name string, id TopicID) []byte {
	out := []byte{0x01, byte(MetadataRecordTopic), 0x00}
	out = appendUvarint(out, uint64(len(name)+1))
	out = append(out, name...)
	out = append(out, id[:]...)
	return append(out, 0x00)
}

// EncodePartitionRecord builds a version 0 PartitionRecord value.
func EncodePartitionRecord(p PartitionInfo) []byte {
	out := []byte{0x01, byte(MetadataRecordPartition), 0x00}
	out = appendInt32(out, p.PartitionID)
	out = append(out, p.TopicID[:]...)
	out = appendInt32Array(out, p.Replicas)
	out = appendInt32Array(out, p.ISR)
	out = appendInt32Array(out, nil)
	out = appendInt32Array(out, nil)
	out = appendInt32(out, p.LeaderID)
	out = appendInt32(out, p.LeaderEpoch)
	out = appendInt32(out, p.PartitionEpoch)
	return append(out, 0x00)
}
