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

import "fmt"

// ApiVersionsResponse describes server capabilities.
type ApiVersionsResponse struct {
	CorrelationID int32
	ErrorCode     int16
	ThrottleMs    int32
	Versions      []ApiVersion
}

// DescribeTopicPartitionsResponse is Kafka DescribeTopicPartitionsResponse v0.
type DescribeTopicPartitionsResponse struct {
	CorrelationID int32
	ThrottleMs    int32
	Topics        []DescribeTopicPartitionsTopic
	NextCursor    *DescribeTopicPartitionsCursor
}

type DescribeTopicPartitionsTopic struct {
	ErrorCode                 int16
	Name                      string
	TopicID                   [16]byte
	IsInternal                bool
	Partitions                []DescribeTopicPartitionsPartition
	TopicAuthorizedOperations int32
}

type DescribeTopicPartitionsPartition struct {
	ErrorCode              int16
	PartitionIndex         int32
	LeaderID               int32
	LeaderEpoch            int32
	ReplicaNodes           []int32
	ISRNodes               []int32
	EligibleLeaderReplicas []int32
	LastKnownELR           []int32
	OfflineReplicas        []int32
}

// FetchResponse represents data returned to consumers.
type FetchResponse struct {
	CorrelationID int32
	ThrottleMs    int32
	ErrorCode     int16
	SessionID     int32
	Topics        []FetchTopicResponse
}

type FetchTopicResponse struct {
	Name       string
	TopicID    [16]byte
	Partitions []FetchPartitionResponse
}

type FetchAbortedTransaction struct {
	ProducerID  int64
	FirstOffset int64
}

type FetchPartitionResponse struct {
	Partition            int32
	ErrorCode            int16
	HighWatermark        int64
	LastStableOffset     int64
	LogStartOffset       int64
	AbortedTransactions  []FetchAbortedTransaction
	PreferredReadReplica int32
	RecordSet            []byte
}

// EncodeApiVersionsResponse renders a complete size-prefixed message. The
// response header is always v0. Versions outside the supported range are
// answered with the v0 body so that any client can read the error code.
func EncodeApiVersionsResponse(resp *ApiVersionsResponse, version int16) ([]byte, error) {
	if version < ApiVersionsMinVersion || version > ApiVersionsMaxVersion {
		version = 0
	}
	flexible := version >= 3
	w := newFrameWriter(16 + 8*len(resp.Versions))
	w.Int32(resp.CorrelationID)
	w.Int16(resp.ErrorCode)
	if flexible {
		w.CompactArrayLen(len(resp.Versions))
	} else {
		w.Int32(int32(len(resp.Versions)))
	}
	for _, v := range resp.Versions {
		w.Int16(v.APIKey)
		w.Int16(v.MinVersion)
		w.Int16(v.MaxVersion)
		if flexible {
			w.WriteTaggedFields(0)
		}
	}
	if version >= 1 {
		w.Int32(resp.ThrottleMs)
	}
	if flexible {
		w.WriteTaggedFields(0)
	}
	return w.Frame(), nil
}

// EncodeDescribeTopicPartitionsResponse renders a complete size-prefixed message.
func EncodeDescribeTopicPartitionsResponse(resp *DescribeTopicPartitionsResponse) ([]byte, error) {
	w := newFrameWriter(64 + 64*len(resp.Topics))
	w.Int32(resp.CorrelationID)
	w.WriteTaggedFields(0)
	w.Int32(resp.ThrottleMs)
	w.CompactArrayLen(len(resp.Topics))
	for _, topic := range resp.Topics {
		w.Int16(topic.ErrorCode)
		w.CompactString(topic.Name)
		w.UUID(topic.TopicID)
		w.Bool(topic.IsInternal)
		w.CompactArrayLen(len(topic.Partitions))
		for _, part := range topic.Partitions {
			w.Int16(part.ErrorCode)
			w.Int32(part.PartitionIndex)
			w.Int32(part.LeaderID)
			w.Int32(part.LeaderEpoch)
			writeCompactInt32s(w, part.ReplicaNodes)
			writeCompactInt32s(w, part.ISRNodes)
			writeCompactInt32s(w, part.EligibleLeaderReplicas)
			writeCompactInt32s(w, part.LastKnownELR)
			writeCompactInt32s(w, part.OfflineReplicas)
			w.WriteTaggedFields(0)
		}
		w.Int32(topic.TopicAuthorizedOperations)
		w.WriteTaggedFields(0)
	}
	if resp.NextCursor == nil {
		w.Int8(-1)
	} else {
		w.Int8(1)
		w.CompactString(resp.NextCursor.TopicName)
		w.Int32(resp.NextCursor.PartitionIndex)
		w.WriteTaggedFields(0)
	}
	w.WriteTaggedFields(0)
	return w.Frame(), nil
}

// writeCompactInt32s writes a compact array; nil is written as an empty
// array, never as null.
func writeCompactInt32s(w *byteWriter, values []int32) {
	w.CompactArrayLen(len(values))
	for _, v := range values {
		w.Int32(v)
	}
}

// EncodeFetchResponse renders a complete size-prefixed message for fetch
// versions 4 through 16. Record sets are copied through untouched.
func EncodeFetchResponse(resp *FetchResponse, version int16) ([]byte, error) {
	if version < FetchMinVersion || version > FetchMaxVersion {
		return nil, fmt.Errorf("fetch response version %d not supported", version)
	}
	flexible := version >= 12
	size := 64
	for _, topic := range resp.Topics {
		for _, part := range topic.Partitions {
			size += 64 + len(part.RecordSet)
		}
	}
	w := newFrameWriter(size)
	w.Int32(resp.CorrelationID)
	if flexible {
		w.WriteTaggedFields(0)
	}
	w.Int32(resp.ThrottleMs)
	if version >= 7 {
		w.Int16(resp.ErrorCode)
		w.Int32(resp.SessionID)
	}
	writeArrayLen(w, flexible, len(resp.Topics))
	for _, topic := range resp.Topics {
		switch {
		case version >= 13:
			w.UUID(topic.TopicID)
		case flexible:
			w.CompactString(topic.Name)
		default:
			w.String(topic.Name)
		}
		writeArrayLen(w, flexible, len(topic.Partitions))
		for _, part := range topic.Partitions {
			w.Int32(part.Partition)
			w.Int16(part.ErrorCode)
			w.Int64(part.HighWatermark)
			w.Int64(part.LastStableOffset)
			if version >= 5 {
				w.Int64(part.LogStartOffset)
			}
			writeArrayLen(w, flexible, len(part.AbortedTransactions))
			for _, aborted := range part.AbortedTransactions {
				w.Int64(aborted.ProducerID)
				w.Int64(aborted.FirstOffset)
			}
			if version >= 11 {
				w.Int32(part.PreferredReadReplica)
			}
			records := part.RecordSet
			if records == nil {
				records = []byte{}
			}
			if flexible {
				w.CompactBytes(records)
				w.WriteTaggedFields(0)
			} else {
				w.BytesWithLength(records)
			}
		}
		if flexible {
			w.WriteTaggedFields(0)
		}
	}
	if flexible {
		w.WriteTaggedFields(0)
	}
	return w.Frame(), nil
}

func writeArrayLen(w *byteWriter, flexible bool, n int) {
	if flexible {
		w.CompactArrayLen(n)
	} else {
		w.Int32(int32(n))
	}
}
