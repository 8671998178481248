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
	"errors"
	"testing"
)

var testTopicID = TopicID{0x71, 0xa5, 0x9a, 0x51, 0x14, 0x9f, 0x4a, 0x5f, 0x9b, 0x2b, 0x1a, 0x0c, 0x6b, 0x3d, 0x45, 0x01}

func TestDecodeTopicRecord(t *testing.T) {
	info, err := DecodeTopicRecord(EncodeTopicRecord("orders", testTopicID))
	if err != nil {
		t.Fatalf("DecodeTopicRecord: %v", err)
	}
	if info.Name != "orders" || info.TopicID != testTopicID {
		t.Fatalf("unexpected topic: %+v", info)
	}
}

func TestDecodeTopicRecordRejectsNullName(t *testing.T) {
	value := []byte{0x01, 0x02, 0x00, 0x00}
	value = append(value, testTopicID[:]...)
	_, err := DecodeTopicRecord(value)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decodeErr.Field != "topic.name" {
		t.Fatalf("unexpected field %q", decodeErr.Field)
	}
}

func TestDecodeTopicRecordTruncated(t *testing.T) {
	value := EncodeTopicRecord("orders", testTopicID)
	for _, n := range []int{2, 4, 9, 12} {
		if _, err := DecodeTopicRecord(value[:n]); !errors.Is(err, ErrDecode) {
			t.Fatalf("len %d: expected decode error, got %v", n, err)
		}
	}
}

func TestDecodePartitionRecord(t *testing.T) {
	want := PartitionInfo{
		PartitionID:    7,
		TopicID:        testTopicID,
		LeaderID:       1,
		LeaderEpoch:    4,
		PartitionEpoch: 9,
		Replicas:       []int32{1, 2, 3},
		ISR:            []int32{1, 2},
	}
	got, err := DecodePartitionRecord(EncodePartitionRecord(want))
	if err != nil {
		t.Fatalf("DecodePartitionRecord: %v", err)
	}
	if got.PartitionID != 7 || got.TopicID != testTopicID || got.LeaderID != 1 || got.LeaderEpoch != 4 || got.PartitionEpoch != 9 {
		t.Fatalf("unexpected partition: %+v", got)
	}
	if len(got.Replicas) != 3 || got.Replicas[2] != 3 || len(got.ISR) != 2 {
		t.Fatalf("unexpected replicas/isr: %v %v", got.Replicas, got.ISR)
	}
}

func TestDecodePartitionRecordSkipsReassignmentLists(t *testing.T) {
	value := []byte{0x01, 0x03, 0x00}
	value = appendInt32(value, 0)
	value = append(value, testTopicID[:]...)
	value = appendInt32Array(value, []int32{1})
	value = appendInt32Array(value, []int32{1})
	value = appendInt32Array(value, []int32{2})
	value = appendInt32Array(value, []int32{3, 4})
	value = appendInt32(value, 1)
	value = appendInt32(value, 2)
	value = appendInt32(value, 3)
	got, err := DecodePartitionRecord(value)
	if err != nil {
		t.Fatalf("DecodePartitionRecord: %v", err)
	}
	if got.LeaderID != 1 || got.LeaderEpoch != 2 || got.PartitionEpoch != 3 {
		t.Fatalf("unexpected partition: %+v", got)
	}
}

func TestDecodePartitionRecordNamesFailingField(t *testing.T) {
	value := EncodePartitionRecord(PartitionInfo{TopicID: testTopicID, Replicas: []int32{1}, ISR: []int32{1}})
	tests := []struct {
		cut   int
		field string
	}{
		{3, "partition.partition_id"},
		{10, "partition.topic_id"},
		{23, "partition.replicas"},
		{len(value) - 5, "partition.partition_epoch"},
	}
	for _, tc := range tests {
		_, err := DecodePartitionRecord(value[:tc.cut])
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) || decodeErr.Field != tc.field {
			t.Fatalf("cut %d: expected %s error, got %v", tc.cut, tc.field, err)
		}
	}
}

func TestMetadataRecordType(t *testing.T) {
	if _, ok := MetadataRecordType([]byte{0x01}); ok {
		t.Fatalf("expected no type for short value")
	}
	if kind, ok := MetadataRecordType(EncodeTopicRecord("a", testTopicID)); !ok || kind != MetadataRecordTopic {
		t.Fatalf("unexpected type %d", kind)
	}
}
