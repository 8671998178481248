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

package protocol

import (
	"errors"
	"testing"

	"github.com/twmb/franz-go/pkg/kmsg"
)

func formatRequest(t *testing.T, req kmsg.Request, correlationID int32) []byte {
	t.Helper()
	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("kgo"))
	payload := formatter.AppendRequest(nil, req, correlationID)
	return payload[4:] // drop the length prefix to match ParseRequest input
}

func TestParseApiVersionsRequestV4(t *testing.T) {
	req := kmsg.NewPtrApiVersionsRequest()
	req.Version = 4
	req.ClientSoftwareName = "kgo"
	req.ClientSoftwareVersion = "1.20.1"

	header, parsed, err := ParseRequest(formatRequest(t, req, 7))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if header.APIKey != APIKeyApiVersion || header.APIVersion != 4 || header.CorrelationID != 7 {
		t.Fatalf("unexpected header: %#v", header)
	}
	if header.ClientID == nil || *header.ClientID != "kgo" {
		t.Fatalf("unexpected client id: %v", header.ClientID)
	}
	apiReq, ok := parsed.(*ApiVersionsRequest)
	if !ok {
		t.Fatalf("expected ApiVersionsRequest got %T", parsed)
	}
	if apiReq.ClientSoftwareName != "kgo" || apiReq.ClientSoftwareVersion != "1.20.1" {
		t.Fatalf("unexpected software fields: %#v", apiReq)
	}
}

func TestParseApiVersionsRequestUnknownVersion(t *testing.T) {
	w := newByteWriter(32)
	w.Int16(APIKeyApiVersion)
	w.Int16(99)
	w.Int32(3)
	w.NullableString(nil)
	w.write([]byte{0xde, 0xad}) // body of a version we cannot read

	header, parsed, err := ParseRequest(w.Bytes())
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if header.APIVersion != 99 {
		t.Fatalf("unexpected version %d", header.APIVersion)
	}
	if _, ok := parsed.(*ApiVersionsRequest); !ok {
		t.Fatalf("expected ApiVersionsRequest got %T", parsed)
	}
}

func TestParseDescribeTopicPartitionsFranzEncoding(t *testing.T) {
	req := kmsg.NewPtrDescribeTopicPartitionsRequest()
	req.ResponsePartitionLimit = 10
	for _, name := range []string{"orders", "payments"} {
		topic := kmsg.NewDescribeTopicPartitionsRequestTopic()
		topic.Topic = name
		req.Topics = append(req.Topics, topic)
	}

	header, parsed, err := ParseRequest(formatRequest(t, req, 11))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if header.APIKey != APIKeyDescribeTopicPartitions || header.CorrelationID != 11 {
		t.Fatalf("unexpected header: %#v", header)
	}
	describe, ok := parsed.(*DescribeTopicPartitionsRequest)
	if !ok {
		t.Fatalf("expected DescribeTopicPartitionsRequest got %T", parsed)
	}
	if len(describe.Topics) != 2 || describe.Topics[0] != "orders" || describe.Topics[1] != "payments" {
		t.Fatalf("unexpected topics: %#v", describe.Topics)
	}
	if describe.ResponsePartitionLimit != 10 {
		t.Fatalf("unexpected partition limit %d", describe.ResponsePartitionLimit)
	}
	if describe.Cursor != nil {
		t.Fatalf("expected null cursor got %#v", describe.Cursor)
	}
}

func TestParseDescribeTopicPartitionsWithCursor(t *testing.T) {
	req := kmsg.NewPtrDescribeTopicPartitionsRequest()
	topic := kmsg.NewDescribeTopicPartitionsRequestTopic()
	topic.Topic = "orders"
	req.Topics = append(req.Topics, topic)
	cursor := kmsg.NewDescribeTopicPartitionsRequestCursor()
	cursor.Topic = "orders"
	cursor.Partition = 3
	req.Cursor = &cursor

	_, parsed, err := ParseRequest(formatRequest(t, req, 1))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	describe := parsed.(*DescribeTopicPartitionsRequest)
	if describe.Cursor == nil || describe.Cursor.TopicName != "orders" || describe.Cursor.PartitionIndex != 3 {
		t.Fatalf("unexpected cursor: %#v", describe.Cursor)
	}
}

// buildFetchV16 hand-encodes a FetchRequest v16 body with one topic, one
// partition, no forgotten topics and an empty rack id.
func buildFetchV16(topicID [16]byte, maxBytes int32) []byte {
	w := newByteWriter(128)
	w.Int16(APIKeyFetch)
	w.Int16(16)
	w.Int32(99)
	client := "cli"
	w.NullableString(&client)
	w.WriteTaggedFields(0)
	w.Int32(500)     // max wait
	w.Int32(1)       // min bytes
	w.Int32(1 << 20) // max bytes
	w.Int8(0)        // isolation level
	w.Int32(0)       // session id
	w.Int32(-1)      // session epoch
	w.CompactArrayLen(1)
	w.UUID(topicID)
	w.CompactArrayLen(1)
	w.Int32(0)  // partition
	w.Int32(-1) // current leader epoch
	w.Int64(5)  // fetch offset
	w.Int32(-1) // last fetched epoch
	w.Int64(-1) // log start offset
	w.Int32(maxBytes)
	w.WriteTaggedFields(0)
	w.WriteTaggedFields(0)
	w.CompactArrayLen(0) // forgotten topics
	w.CompactString("")  // rack id
	w.WriteTaggedFields(0)
	return w.Bytes()
}

func TestParseFetchRequestV16Literal(t *testing.T) {
	var topicID [16]byte
	topicID[15] = 0x42
	header, parsed, err := ParseRequest(buildFetchV16(topicID, 4096))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if header.APIKey != APIKeyFetch || header.APIVersion != 16 || header.CorrelationID != 99 {
		t.Fatalf("unexpected header: %#v", header)
	}
	fetch := parsed.(*FetchRequest)
	if fetch.MaxWaitMs != 500 || fetch.MinBytes != 1 || fetch.MaxBytes != 1<<20 || fetch.SessionEpoch != -1 {
		t.Fatalf("unexpected fetch fields: %#v", fetch)
	}
	if len(fetch.Topics) != 1 || fetch.Topics[0].TopicID != topicID {
		t.Fatalf("unexpected topics: %#v", fetch.Topics)
	}
	part := fetch.Topics[0].Partitions[0]
	if part.MaxBytes != 4096 || part.FetchOffset != 5 || part.LogStartOffset != -1 {
		t.Fatalf("unexpected partition: %#v", part)
	}
	if len(fetch.ForgottenTopics) != 0 || fetch.RackID != "" {
		t.Fatalf("unexpected trailer: %#v %q", fetch.ForgottenTopics, fetch.RackID)
	}
}

func TestParseFetchRequestFranzEncoding(t *testing.T) {
	var topicID [16]byte
	for i := range topicID {
		topicID[i] = byte(i + 1)
	}
	req := kmsg.NewPtrFetchRequest()
	req.Version = 16
	req.MaxWaitMillis = 250
	req.MinBytes = 1
	req.MaxBytes = 52428800
	req.SessionEpoch = -1
	req.Rack = "rack-a"
	topic := kmsg.NewFetchRequestTopic()
	topic.TopicID = topicID
	part := kmsg.NewFetchRequestTopicPartition()
	part.Partition = 2
	part.FetchOffset = 17
	part.PartitionMaxBytes = 1048576
	topic.Partitions = append(topic.Partitions, part)
	req.Topics = append(req.Topics, topic)
	forgotten := kmsg.NewFetchRequestForgottenTopic()
	forgotten.TopicID = topicID
	forgotten.Partitions = []int32{4, 5}
	req.ForgottenTopics = append(req.ForgottenTopics, forgotten)

	_, parsed, err := ParseRequest(formatRequest(t, req, 3))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	fetch := parsed.(*FetchRequest)
	if fetch.ReplicaID != -1 {
		t.Fatalf("expected no replica id for v16, got %d", fetch.ReplicaID)
	}
	got := fetch.Topics[0].Partitions[0]
	if got.Partition != 2 || got.FetchOffset != 17 || got.MaxBytes != 1048576 {
		t.Fatalf("unexpected partition: %#v", got)
	}
	if len(fetch.ForgottenTopics) != 1 || len(fetch.ForgottenTopics[0].Partitions) != 2 {
		t.Fatalf("unexpected forgotten topics: %#v", fetch.ForgottenTopics)
	}
	if fetch.RackID != "rack-a" {
		t.Fatalf("unexpected rack %q", fetch.RackID)
	}
}

func TestParseFetchRequestV11UsesTopicNames(t *testing.T) {
	req := kmsg.NewPtrFetchRequest()
	req.Version = 11
	req.ReplicaID = -1
	topic := kmsg.NewFetchRequestTopic()
	topic.Topic = "orders"
	part := kmsg.NewFetchRequestTopicPartition()
	part.PartitionMaxBytes = 2048
	topic.Partitions = append(topic.Partitions, part)
	req.Topics = append(req.Topics, topic)

	_, parsed, err := ParseRequest(formatRequest(t, req, 8))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	fetch := parsed.(*FetchRequest)
	if fetch.Topics[0].Name != "orders" || fetch.Topics[0].Partitions[0].MaxBytes != 2048 {
		t.Fatalf("unexpected topics: %#v", fetch.Topics)
	}
}

func TestParseRequestErrors(t *testing.T) {
	unknown := newByteWriter(16)
	unknown.Int16(3) // Metadata
	unknown.Int16(12)
	unknown.Int32(1)
	unknown.NullableString(nil)

	badArray := newByteWriter(32)
	badArray.Int16(APIKeyDescribeTopicPartitions)
	badArray.Int16(0)
	badArray.Int32(1)
	badArray.NullableString(nil)
	badArray.WriteTaggedFields(0)
	badArray.UVarint(0) // null topics array

	truncated := buildFetchV16([16]byte{}, 10)
	truncated = truncated[:len(truncated)-20]

	tests := []struct {
		name    string
		payload []byte
		want    error
	}{
		{name: "too short", payload: []byte{0, 18, 0, 0, 0}, want: ErrMessageTooShort},
		{name: "unknown api", payload: unknown.Bytes(), want: ErrUnknownAPIKey},
		{name: "null array", payload: badArray.Bytes(), want: ErrInvalidArrayLength},
		{name: "truncated fetch", payload: truncated, want: ErrBufferUnderflow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseRequest(tc.payload)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v got %v", tc.want, err)
			}
		})
	}
}
