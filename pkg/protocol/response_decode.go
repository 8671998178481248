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

// ParseDescribeTopicPartitionsResponse decodes a DescribeTopicPartitions v0
// response payload, starting at the correlation id. Error codes are int16 as
// the broker writes them.
func ParseDescribeTopicPartitionsResponse(payload []byte) (*DescribeTopicPartitionsResponse, error) {
	r := newByteReader(payload)
	resp := &DescribeTopicPartitionsResponse{}
	var err error
	if resp.CorrelationID, err = r.Int32(); err != nil {
		return nil, fmt.Errorf("read correlation id: %w", err)
	}
	if err := r.SkipTaggedFields(); err != nil {
		return nil, fmt.Errorf("read header tags: %w", err)
	}
	if resp.ThrottleMs, err = r.Int32(); err != nil {
		return nil, fmt.Errorf("read throttle: %w", err)
	}
	topics, err := compactArrayLenNonNull(r)
	if err != nil {
		return nil, fmt.Errorf("read topic count: %w", err)
	}
	resp.Topics = make([]DescribeTopicPartitionsTopic, 0, topics)
	for i := int32(0); i < topics; i++ {
		topic, err := readDescribeTopic(r)
		if err != nil {
			return nil, fmt.Errorf("topic %d: %w", i, err)
		}
		resp.Topics = append(resp.Topics, topic)
	}
	marker, err := r.Int8()
	if err != nil {
		return nil, fmt.Errorf("read cursor marker: %w", err)
	}
	if marker != -1 {
		cursor := &DescribeTopicPartitionsCursor{}
		if cursor.TopicName, err = r.CompactString(); err != nil {
			return nil, fmt.Errorf("read cursor topic: %w", err)
		}
		if cursor.PartitionIndex, err = r.Int32(); err != nil {
			return nil, fmt.Errorf("read cursor partition: %w", err)
		}
		if err := r.SkipTaggedFields(); err != nil {
			return nil, err
		}
		resp.NextCursor = cursor
	}
	if err := r.SkipTaggedFields(); err != nil {
		return nil, fmt.Errorf("read response tags: %w", err)
	}
	return resp, nil
}

func readDescribeTopic(r *byteReader) (DescribeTopicPartitionsTopic, error) {
	var (
		topic DescribeTopicPartitionsTopic
		err   error
	)
	if topic.ErrorCode, err = r.Int16(); err != nil {
		return topic, err
	}
	if topic.Name, err = r.CompactString(); err != nil {
		return topic, err
	}
	if topic.TopicID, err = r.UUID(); err != nil {
		return topic, err
	}
	internal, err := r.Uint8()
	if err != nil {
		return topic, err
	}
	topic.IsInternal = internal != 0
	partitions, err := compactArrayLenNonNull(r)
	if err != nil {
		return topic, err
	}
	topic.Partitions = make([]DescribeTopicPartitionsPartition, 0, partitions)
	for i := int32(0); i < partitions; i++ {
		p, err := readDescribePartition(r)
		if err != nil {
			return topic, fmt.Errorf("partition %d: %w", i, err)
		}
		topic.Partitions = append(topic.Partitions, p)
	}
	if topic.TopicAuthorizedOperations, err = r.Int32(); err != nil {
		return topic, err
	}
	return topic, r.SkipTaggedFields()
}

func readDescribePartition(r *byteReader) (DescribeTopicPartitionsPartition, error) {
	var (
		p   DescribeTopicPartitionsPartition
		err error
	)
	if p.ErrorCode, err = r.Int16(); err != nil {
		return p, err
	}
	if p.PartitionIndex, err = r.Int32(); err != nil {
		return p, err
	}
	if p.LeaderID, err = r.Int32(); err != nil {
		return p, err
	}
	if p.LeaderEpoch, err = r.Int32(); err != nil {
		return p, err
	}
	for _, dst := range []*[]int32{&p.ReplicaNodes, &p.ISRNodes, &p.EligibleLeaderReplicas, &p.LastKnownELR, &p.OfflineReplicas} {
		if *dst, err = readCompactInt32s(r); err != nil {
			return p, err
		}
	}
	return p, r.SkipTaggedFields()
}

func readCompactInt32s(r *byteReader) ([]int32, error) {
	n, err := r.CompactArrayLen()
	if err != nil || n <= 0 {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		if out[i], err = r.Int32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
