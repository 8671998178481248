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
	"fmt"
)

// minFrameSize is the smallest size-prefixed frame that can hold a request
// header: size, api key, api version and correlation id.
const minFrameSize = 12

// RequestHeader matches Kafka RequestHeader v1/v2.
type RequestHeader struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	ClientID      *string
}

// Request is implemented by concrete protocol requests.
type Request interface {
	APIKey() int16
}

// ApiVersionsRequest describes the ApiVersions call. The client software
// fields are only sent from v3.
type ApiVersionsRequest struct {
	ClientSoftwareName    string
	ClientSoftwareVersion string
}

func (ApiVersionsRequest) APIKey() int16 { return APIKeyApiVersion }

// DescribeTopicPartitionsRequest is Kafka DescribeTopicPartitionsRequest v0.
type DescribeTopicPartitionsRequest struct {
	Topics                 []string
	ResponsePartitionLimit int32
	Cursor                 *DescribeTopicPartitionsCursor
}

// DescribeTopicPartitionsCursor marks where a paginated describe resumes.
type DescribeTopicPartitionsCursor struct {
	TopicName      string
	PartitionIndex int32
}

func (DescribeTopicPartitionsRequest) APIKey() int16 { return APIKeyDescribeTopicPartitions }

// FetchRequest represents Kafka FetchRequest v4 through v16.
type FetchRequest struct {
	ReplicaID       int32
	MaxWaitMs       int32
	MinBytes        int32
	MaxBytes        int32
	IsolationLevel  int8
	SessionID       int32
	SessionEpoch    int32
	Topics          []FetchTopicRequest
	ForgottenTopics []FetchForgottenTopic
	RackID          string
}

type FetchTopicRequest struct {
	Name       string
	TopicID    [16]byte
	Partitions []FetchPartitionRequest
}

type FetchPartitionRequest struct {
	Partition          int32
	CurrentLeaderEpoch int32
	FetchOffset        int64
	LastFetchedEpoch   int32
	LogStartOffset     int64
	MaxBytes           int32
}

type FetchForgottenTopic struct {
	Name       string
	TopicID    [16]byte
	Partitions []int32
}

func (FetchRequest) APIKey() int16 { return APIKeyFetch }

func isFlexibleRequest(apiKey, version int16) bool {
	switch apiKey {
	case APIKeyApiVersion:
		return version >= 3 && version <= ApiVersionsMaxVersion
	case APIKeyDescribeTopicPartitions:
		return true
	case APIKeyFetch:
		return version >= 12
	default:
		return false
	}
}

func compactArrayLenNonNull(r *byteReader) (int32, error) {
	n, err := r.CompactArrayLen()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: null compact array", ErrInvalidArrayLength)
	}
	return n, nil
}

// arrayLen reads a compact or classic array length; null arrays are rejected.
func arrayLen(r *byteReader, flexible bool) (int32, error) {
	if flexible {
		return compactArrayLenNonNull(r)
	}
	n, err := r.Int32()
	if err != nil {
		return 0, err
	}
	if n < 0 || int(n) > r.remaining() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidArrayLength, n)
	}
	return n, nil
}

// ParseRequestHeader decodes the header portion from a frame payload (the
// bytes following the 4-byte size).
func ParseRequestHeader(b []byte) (*RequestHeader, *byteReader, error) {
	if len(b)+4 < minFrameSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrMessageTooShort, len(b)+4)
	}
	reader := newByteReader(b)
	apiKey, err := reader.Int16()
	if err != nil {
		return nil, nil, fmt.Errorf("read api key: %w", err)
	}
	version, err := reader.Int16()
	if err != nil {
		return nil, nil, fmt.Errorf("read api version: %w", err)
	}
	correlationID, err := reader.Int32()
	if err != nil {
		return nil, nil, fmt.Errorf("read correlation id: %w", err)
	}
	clientID, err := reader.NullableString()
	if err != nil {
		return nil, nil, fmt.Errorf("read client id: %w", err)
	}
	if isFlexibleRequest(apiKey, version) {
		if err := reader.SkipTaggedFields(); err != nil {
			return nil, nil, fmt.Errorf("skip header tags: %w", err)
		}
	}
	return &RequestHeader{
		APIKey:        apiKey,
		APIVersion:    version,
		CorrelationID: correlationID,
		ClientID:      clientID,
	}, reader, nil
}

// ParseRequest decodes a request header and body from a frame payload.
func ParseRequest(b []byte) (*RequestHeader, Request, error) {
	header, reader, err := ParseRequestHeader(b)
	if err != nil {
		return nil, nil, err
	}

	var req Request
	switch header.APIKey {
	case APIKeyApiVersion:
		req, err = parseApiVersionsRequest(reader, header.APIVersion)
	case APIKeyDescribeTopicPartitions:
		req, err = parseDescribeTopicPartitionsRequest(reader)
	case APIKeyFetch:
		req, err = parseFetchRequest(reader, header.APIVersion)
	default:
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownAPIKey, header.APIKey)
	}
	if err != nil {
		return nil, nil, err
	}
	return header, req, nil
}

func parseApiVersionsRequest(reader *byteReader, version int16) (*ApiVersionsRequest, error) {
	req := &ApiVersionsRequest{}
	// Bodies of versions we do not know are left unread; the response
	// reports UNSUPPORTED_VERSION.
	if version < 3 || version > ApiVersionsMaxVersion {
		return req, nil
	}
	var err error
	if req.ClientSoftwareName, err = reader.CompactString(); err != nil {
		return nil, fmt.Errorf("read client software name: %w", err)
	}
	if req.ClientSoftwareVersion, err = reader.CompactString(); err != nil {
		return nil, fmt.Errorf("read client software version: %w", err)
	}
	if err := reader.SkipTaggedFields(); err != nil {
		return nil, fmt.Errorf("skip api versions tags: %w", err)
	}
	return req, nil
}

func parseDescribeTopicPartitionsRequest(reader *byteReader) (*DescribeTopicPartitionsRequest, error) {
	topicCount, err := compactArrayLenNonNull(reader)
	if err != nil {
		return nil, fmt.Errorf("read describe topic count: %w", err)
	}
	topics := make([]string, 0, topicCount)
	for i := int32(0); i < topicCount; i++ {
		name, err := reader.CompactString()
		if err != nil {
			return nil, fmt.Errorf("read describe topic name: %w", err)
		}
		if err := reader.SkipTaggedFields(); err != nil {
			return nil, fmt.Errorf("skip describe topic tags: %w", err)
		}
		topics = append(topics, name)
	}
	limit, err := reader.Int32()
	if err != nil {
		return nil, fmt.Errorf("read response partition limit: %w", err)
	}
	marker, err := reader.Int8()
	if err != nil {
		return nil, fmt.Errorf("read cursor marker: %w", err)
	}
	var cursor *DescribeTopicPartitionsCursor
	if marker != -1 {
		name, err := reader.CompactString()
		if err != nil {
			return nil, fmt.Errorf("read cursor topic name: %w", err)
		}
		partition, err := reader.Int32()
		if err != nil {
			return nil, fmt.Errorf("read cursor partition index: %w", err)
		}
		if err := reader.SkipTaggedFields(); err != nil {
			return nil, fmt.Errorf("skip cursor tags: %w", err)
		}
		cursor = &DescribeTopicPartitionsCursor{TopicName: name, PartitionIndex: partition}
	}
	if err := reader.SkipTaggedFields(); err != nil {
		return nil, fmt.Errorf("skip describe request tags: %w", err)
	}
	return &DescribeTopicPartitionsRequest{
		Topics:                 topics,
		ResponsePartitionLimit: limit,
		Cursor:                 cursor,
	}, nil
}

func parseFetchRequest(reader *byteReader, version int16) (*FetchRequest, error) {
	if version < FetchMinVersion || version > FetchMaxVersion {
		return nil, fmt.Errorf("fetch version %d not supported", version)
	}
	flexible := isFlexibleRequest(APIKeyFetch, version)
	req := &FetchRequest{ReplicaID: -1}
	var err error
	if version < 15 {
		if req.ReplicaID, err = reader.Int32(); err != nil {
			return nil, fmt.Errorf("read fetch replica id: %w", err)
		}
	}
	if req.MaxWaitMs, err = reader.Int32(); err != nil {
		return nil, fmt.Errorf("read fetch max wait: %w", err)
	}
	if req.MinBytes, err = reader.Int32(); err != nil {
		return nil, fmt.Errorf("read fetch min bytes: %w", err)
	}
	if req.MaxBytes, err = reader.Int32(); err != nil {
		return nil, fmt.Errorf("read fetch max bytes: %w", err)
	}
	if req.IsolationLevel, err = reader.Int8(); err != nil {
		return nil, fmt.Errorf("read fetch isolation level: %w", err)
	}
	if version >= 7 {
		if req.SessionID, err = reader.Int32(); err != nil {
			return nil, fmt.Errorf("read fetch session id: %w", err)
		}
		if req.SessionEpoch, err = reader.Int32(); err != nil {
			return nil, fmt.Errorf("read fetch session epoch: %w", err)
		}
	}

	topicCount, err := arrayLen(reader, flexible)
	if err != nil {
		return nil, fmt.Errorf("read fetch topic count: %w", err)
	}
	req.Topics = make([]FetchTopicRequest, 0, topicCount)
	for i := int32(0); i < topicCount; i++ {
		var topic FetchTopicRequest
		if topic.Name, topic.TopicID, err = readTopicRef(reader, version, flexible); err != nil {
			return nil, fmt.Errorf("read fetch topic: %w", err)
		}
		partCount, err := arrayLen(reader, flexible)
		if err != nil {
			return nil, fmt.Errorf("read fetch partition count: %w", err)
		}
		topic.Partitions = make([]FetchPartitionRequest, 0, partCount)
		for j := int32(0); j < partCount; j++ {
			part, err := readFetchPartition(reader, version, flexible)
			if err != nil {
				return nil, err
			}
			topic.Partitions = append(topic.Partitions, part)
		}
		if flexible {
			if err := reader.SkipTaggedFields(); err != nil {
				return nil, fmt.Errorf("skip fetch topic tags: %w", err)
			}
		}
		req.Topics = append(req.Topics, topic)
	}

	if version >= 7 {
		forgottenCount, err := arrayLen(reader, flexible)
		if err != nil {
			return nil, fmt.Errorf("read forgotten topics count: %w", err)
		}
		for i := int32(0); i < forgottenCount; i++ {
			var forgotten FetchForgottenTopic
			if forgotten.Name, forgotten.TopicID, err = readTopicRef(reader, version, flexible); err != nil {
				return nil, fmt.Errorf("read forgotten topic: %w", err)
			}
			partCount, err := arrayLen(reader, flexible)
			if err != nil {
				return nil, fmt.Errorf("read forgotten partitions: %w", err)
			}
			for j := int32(0); j < partCount; j++ {
				p, err := reader.Int32()
				if err != nil {
					return nil, fmt.Errorf("read forgotten partition: %w", err)
				}
				forgotten.Partitions = append(forgotten.Partitions, p)
			}
			if flexible {
				if err := reader.SkipTaggedFields(); err != nil {
					return nil, fmt.Errorf("skip forgotten topic tags: %w", err)
				}
			}
			req.ForgottenTopics = append(req.ForgottenTopics, forgotten)
		}
	}
	if version >= 11 {
		var rack *string
		if flexible {
			rack, err = reader.CompactNullableString()
		} else {
			rack, err = reader.NullableString()
		}
		if err != nil {
			return nil, fmt.Errorf("read rack id: %w", err)
		}
		if rack != nil {
			req.RackID = *rack
		}
	}
	if flexible {
		if err := reader.SkipTaggedFields(); err != nil {
			return nil, fmt.Errorf("skip fetch request tags: %w", err)
		}
	}
	return req, nil
}

// readTopicRef reads a topic name (before v13) or topic id (v13 and later).
func readTopicRef(reader *byteReader, version int16, flexible bool) (string, [16]byte, error) {
	if version >= 13 {
		id, err := reader.UUID()
		return "", id, err
	}
	var (
		name string
		err  error
	)
	if flexible {
		name, err = reader.CompactString()
	} else {
		name, err = reader.String()
	}
	return name, [16]byte{}, err
}

func readFetchPartition(reader *byteReader, version int16, flexible bool) (FetchPartitionRequest, error) {
	part := FetchPartitionRequest{CurrentLeaderEpoch: -1, LastFetchedEpoch: -1, LogStartOffset: -1}
	var err error
	if part.Partition, err = reader.Int32(); err != nil {
		return part, fmt.Errorf("read fetch partition index: %w", err)
	}
	if version >= 9 {
		if part.CurrentLeaderEpoch, err = reader.Int32(); err != nil {
			return part, fmt.Errorf("read current leader epoch: %w", err)
		}
	}
	if part.FetchOffset, err = reader.Int64(); err != nil {
		return part, fmt.Errorf("read fetch offset: %w", err)
	}
	if version >= 12 {
		if part.LastFetchedEpoch, err = reader.Int32(); err != nil {
			return part, fmt.Errorf("read last fetched epoch: %w", err)
		}
	}
	if version >= 5 {
		if part.LogStartOffset, err = reader.Int64(); err != nil {
			return part, fmt.Errorf("read log start offset: %w", err)
		}
	}
	if part.MaxBytes, err = reader.Int32(); err != nil {
		return part, fmt.Errorf("read partition max bytes: %w", err)
	}
	if flexible {
		if err := reader.SkipTaggedFields(); err != nil {
			return part, fmt.Errorf("skip fetch partition tags: %w", err)
		}
	}
	return part, nil
}
