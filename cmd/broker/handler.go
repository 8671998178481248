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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/novatechflow/kraftlog/pkg/broker"
	"github.com/novatechflow/kraftlog/pkg/protocol"
	"github.com/novatechflow/kraftlog/pkg/storage"
)

// topicAuthorizedOperations is the ACL bitfield reported for every known
// topic: READ, WRITE, CREATE, DELETE, ALTER, DESCRIBE, DESCRIBE_CONFIGS and
// ALTER_CONFIGS.
const topicAuthorizedOperations int32 = 0x0df8

type handler struct {
	apiVersions []protocol.ApiVersion
	svc         *storage.Service
	health      *broker.StorageHealthMonitor
	logger      *slog.Logger
	traceKafka  bool
	fetchRate   *throughputTracker
	// snapshotLoaded flips once any snapshot load succeeds; /readyz waits on it.
	snapshotLoaded atomic.Bool
}

func newHandler(svc *storage.Service, health *broker.StorageHealthMonitor, logger *slog.Logger, traceKafka bool) *handler {
	if logger == nil {
		logger = slog.Default()
	}
	if health == nil {
		health = broker.NewStorageHealthMonitor(broker.StorageHealthConfig{})
	}
	return &handler{
		apiVersions: protocol.SupportedAPIs(),
		svc:         svc,
		health:      health,
		logger:      logger,
		traceKafka:  traceKafka,
		fetchRate:   newThroughputTracker(time.Minute),
	}
}

func (h *handler) Handle(ctx context.Context, header *protocol.RequestHeader, req protocol.Request) ([]byte, error) {
	if h.traceKafka {
		h.logger.Debug("received request", "api_key", header.APIKey, "api_version", header.APIVersion, "correlation", header.CorrelationID, "client_id", header.ClientID)
	}
	start := time.Now()
	var (
		resp []byte
		err  error
	)
	switch r := req.(type) {
	case *protocol.ApiVersionsRequest:
		resp, err = h.handleApiVersions(header)
	case *protocol.DescribeTopicPartitionsRequest:
		resp, err = h.handleDescribeTopicPartitions(ctx, header, r)
	case *protocol.FetchRequest:
		resp, err = h.handleFetch(ctx, header, r)
	default:
		err = fmt.Errorf("unsupported request type %T", req)
	}
	recordRequest(header.APIKey, time.Since(start), err)
	return resp, err
}

func (h *handler) handleApiVersions(header *protocol.RequestHeader) ([]byte, error) {
	errorCode := protocol.NONE
	if !protocol.IsVersionSupported(protocol.APIKeyApiVersion, header.APIVersion) {
		errorCode = protocol.UNSUPPORTED_VERSION
	}
	resp := &protocol.ApiVersionsResponse{
		CorrelationID: header.CorrelationID,
		ErrorCode:     errorCode,
		Versions:      h.apiVersions,
	}
	if h.traceKafka {
		h.logger.Debug("api versions response", "versions", resp.Versions, "error_code", errorCode)
	}
	return protocol.EncodeApiVersionsResponse(resp, header.APIVersion)
}

// loadSnapshot re-reads the metadata log. A log that cannot be decoded is
// reported and treated as empty so callers can still answer.
func (h *handler) loadSnapshot(ctx context.Context) *storage.ClusterSnapshot {
	var snap *storage.ClusterSnapshot
	err := h.health.Observe("snapshot", func() error {
		var err error
		snap, err = h.svc.LoadClusterSnapshot(ctx)
		return err
	})
	if err != nil {
		h.logger.Warn("cluster metadata unreadable, answering with empty snapshot", "error", err)
		return &storage.ClusterSnapshot{TopicsByID: map[storage.TopicID]storage.TopicInfo{}}
	}
	h.snapshotLoaded.Store(true)
	return snap
}

func (h *handler) handleDescribeTopicPartitions(ctx context.Context, header *protocol.RequestHeader, req *protocol.DescribeTopicPartitionsRequest) ([]byte, error) {
	snap := h.loadSnapshot(ctx)
	resp := &protocol.DescribeTopicPartitionsResponse{
		CorrelationID: header.CorrelationID,
		Topics:        make([]protocol.DescribeTopicPartitionsTopic, 0, len(req.Topics)),
	}
	limit := int(req.ResponsePartitionLimit)
	remaining := limit

	for _, name := range req.Topics {
		startPartition := int32(0)
		if req.Cursor != nil {
			if name < req.Cursor.TopicName {
				continue
			}
			if name == req.Cursor.TopicName {
				startPartition = req.Cursor.PartitionIndex
			}
		}
		info, ok := storage.FindTopicByName(snap, name)
		if !ok {
			resp.Topics = append(resp.Topics, protocol.DescribeTopicPartitionsTopic{
				ErrorCode: protocol.UNKNOWN_TOPIC_OR_PARTITION,
				Name:      name,
			})
			continue
		}
		topic := protocol.DescribeTopicPartitionsTopic{
			ErrorCode:                 protocol.NONE,
			Name:                      info.Name,
			TopicID:                   info.TopicID,
			Partitions:                make([]protocol.DescribeTopicPartitionsPartition, 0, len(info.Partitions)),
			TopicAuthorizedOperations: topicAuthorizedOperations,
		}
		truncated := false
		for _, p := range info.Partitions {
			if p.PartitionID < startPartition {
				continue
			}
			if limit > 0 && remaining == 0 {
				resp.NextCursor = &protocol.DescribeTopicPartitionsCursor{TopicName: info.Name, PartitionIndex: p.PartitionID}
				truncated = true
				break
			}
			topic.Partitions = append(topic.Partitions, protocol.DescribeTopicPartitionsPartition{
				ErrorCode:      protocol.NONE,
				PartitionIndex: p.PartitionID,
				LeaderID:       p.LeaderID,
				LeaderEpoch:    p.LeaderEpoch,
				ReplicaNodes:   p.Replicas,
				ISRNodes:       p.ISR,
			})
			remaining--
		}
		if truncated {
			// The cursor names this topic, so a topic with nothing on this
			// page is left for the next one.
			if len(topic.Partitions) > 0 {
				resp.Topics = append(resp.Topics, topic)
			}
			break
		}
		resp.Topics = append(resp.Topics, topic)
	}
	if h.traceKafka {
		h.logger.Debug("describe topic partitions response", "topics", len(resp.Topics), "next_cursor", resp.NextCursor != nil)
	}
	return protocol.EncodeDescribeTopicPartitionsResponse(resp)
}

func (h *handler) handleFetch(ctx context.Context, header *protocol.RequestHeader, req *protocol.FetchRequest) ([]byte, error) {
	snap := h.loadSnapshot(ctx)
	byID := header.APIVersion >= 13
	topicResponses := make([]protocol.FetchTopicResponse, 0, len(req.Topics))
	responseBytes := 0
	var fetchedMessages int64

	for _, topic := range req.Topics {
		var (
			info storage.TopicInfo
			ok   bool
		)
		if byID {
			info, ok = storage.FindTopicByID(snap, storage.TopicID(topic.TopicID))
		} else {
			info, ok = storage.FindTopicByName(snap, topic.Name)
		}
		partitionResponses := make([]protocol.FetchPartitionResponse, 0, len(topic.Partitions))
		for _, part := range topic.Partitions {
			if !ok {
				partitionResponses = append(partitionResponses, unknownPartition(part.Partition))
				continue
			}
			if _, found := info.Partition(part.Partition); !found {
				partitionResponses = append(partitionResponses, unknownPartition(part.Partition))
				continue
			}
			budget := int(part.MaxBytes)
			exhausted := false
			if req.MaxBytes > 0 {
				left := int(req.MaxBytes) - responseBytes
				switch {
				case left <= 0:
					exhausted = true
				case budget <= 0 || left < budget:
					budget = left
				}
			}
			var pr protocol.FetchPartitionResponse
			if exhausted {
				pr = h.fetchOffsetsOnly(ctx, info.Name, part)
			} else {
				pr = h.fetchPartition(ctx, info.Name, part, budget)
			}
			responseBytes += len(pr.RecordSet)
			if len(pr.RecordSet) > 0 {
				fetchedMessages += int64(storage.CountRecordBatchMessages(pr.RecordSet))
			}
			partitionResponses = append(partitionResponses, pr)
		}
		name := topic.Name
		if ok {
			name = info.Name
		}
		topicResponses = append(topicResponses, protocol.FetchTopicResponse{
			Name:       name,
			TopicID:    topic.TopicID,
			Partitions: partitionResponses,
		})
	}

	if fetchedMessages > 0 {
		h.fetchRate.add(fetchedMessages)
		fetchedRecords.Add(float64(fetchedMessages))
	}
	fetchedBytes.Add(float64(responseBytes))

	return protocol.EncodeFetchResponse(&protocol.FetchResponse{
		CorrelationID: header.CorrelationID,
		Topics:        topicResponses,
	}, header.APIVersion)
}

func (h *handler) fetchPartition(ctx context.Context, topic string, part protocol.FetchPartitionRequest, maxBytes int) protocol.FetchPartitionResponse {
	if h.traceKafka {
		h.logger.Debug("fetch partition request", "topic", topic, "partition", part.Partition, "fetch_offset", part.FetchOffset, "max_bytes", maxBytes)
	}
	var data storage.PartitionData
	err := h.health.Observe("partition", func() error {
		var err error
		data, err = h.svc.ReadPartitionData(ctx, topic, part.Partition)
		return err
	})
	if err != nil {
		return h.partitionReadFailed(topic, part.Partition, err)
	}
	resp, ok := h.partitionOffsets(topic, part, storage.PartitionOffsets{
		LogStartOffset: data.LogStartOffset(),
		HighWatermark:  data.HighWatermark(),
	})
	if !ok {
		return resp
	}
	resp.RecordSet = data.From(part.FetchOffset, maxBytes).Concat()
	if h.traceKafka {
		h.logger.Debug("fetch partition response", "topic", topic, "partition", part.Partition, "records_bytes", len(resp.RecordSet), "high_watermark", resp.HighWatermark)
	}
	return resp
}

// fetchOffsetsOnly answers a partition after the response size budget is
// spent: offsets and errors are reported, records are not read.
func (h *handler) fetchOffsetsOnly(ctx context.Context, topic string, part protocol.FetchPartitionRequest) protocol.FetchPartitionResponse {
	var offsets storage.PartitionOffsets
	err := h.health.Observe("partition", func() error {
		var err error
		offsets, err = h.svc.ReadPartitionOffsets(ctx, topic, part.Partition)
		return err
	})
	if err != nil {
		return h.partitionReadFailed(topic, part.Partition, err)
	}
	resp, _ := h.partitionOffsets(topic, part, offsets)
	return resp
}

// partitionOffsets fills the offset fields and reports false when the fetch
// offset lies outside the log.
func (h *handler) partitionOffsets(topic string, part protocol.FetchPartitionRequest, offsets storage.PartitionOffsets) (protocol.FetchPartitionResponse, bool) {
	resp := protocol.FetchPartitionResponse{
		Partition:            part.Partition,
		ErrorCode:            protocol.NONE,
		HighWatermark:        offsets.HighWatermark,
		LastStableOffset:     offsets.HighWatermark,
		LogStartOffset:       offsets.LogStartOffset,
		PreferredReadReplica: -1,
	}
	if part.FetchOffset > offsets.HighWatermark || part.FetchOffset < offsets.LogStartOffset {
		resp.ErrorCode = protocol.OFFSET_OUT_OF_RANGE
		partitionErrors.WithLabelValues(apiName(protocol.APIKeyFetch), "offset_out_of_range").Inc()
		if h.traceKafka {
			h.logger.Debug("fetch offset out of range", "topic", topic, "partition", part.Partition, "fetch_offset", part.FetchOffset, "log_start", offsets.LogStartOffset, "high_watermark", offsets.HighWatermark)
		}
		return resp, false
	}
	return resp, true
}

func (h *handler) partitionReadFailed(topic string, partition int32, err error) protocol.FetchPartitionResponse {
	h.logger.Warn("partition read failed", "topic", topic, "partition", partition, "error", err)
	partitionErrors.WithLabelValues(apiName(protocol.APIKeyFetch), "unknown_server_error").Inc()
	return protocol.FetchPartitionResponse{
		Partition:            partition,
		ErrorCode:            protocol.UNKNOWN_SERVER_ERROR,
		HighWatermark:        -1,
		LastStableOffset:     -1,
		LogStartOffset:       -1,
		PreferredReadReplica: -1,
	}
}

func unknownPartition(partition int32) protocol.FetchPartitionResponse {
	partitionErrors.WithLabelValues(apiName(protocol.APIKeyFetch), "unknown_topic_or_partition").Inc()
	return protocol.FetchPartitionResponse{
		Partition:            partition,
		ErrorCode:            protocol.UNKNOWN_TOPIC_OR_PARTITION,
		HighWatermark:        -1,
		LastStableOffset:     -1,
		LogStartOffset:       -1,
		PreferredReadReplica: -1,
	}
}

// readiness reports whether the metadata log has loaded at least once and
// storage reads are not failing outright.
func (h *handler) readiness(ctx context.Context) (bool, string) {
	if !h.snapshotLoaded.Load() {
		h.loadSnapshot(ctx)
		if !h.snapshotLoaded.Load() {
			return false, "snapshot_unreadable"
		}
	}
	state := h.health.State()
	return state != broker.StorageUnavailable, string(state)
}
