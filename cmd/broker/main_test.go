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
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kraftlog/pkg/broker"
	"github.com/novatechflow/kraftlog/pkg/protocol"
	"github.com/novatechflow/kraftlog/pkg/storage"
)

var ordersID = storage.TopicID{0x71, 0xa5, 0x9a, 0x51, 0x14, 0x9f, 0x4a, 0x5f, 0x9b, 0x2b, 0x1a, 0x0c, 0x6b, 0x3d, 0x45, 0x01}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var paymentsID = storage.TopicID{0x0c, 0x2d, 0x51, 0x7e, 0x33, 0x10, 0x4b, 0x8a, 0x91, 0x06, 0x5f, 0xe2, 0x7a, 0x44, 0x18, 0x02}

func ordersTopic() storage.TopicInfo {
	return storage.TopicInfo{
		TopicID: ordersID,
		Name:    "orders",
		Partitions: []storage.PartitionInfo{
			{PartitionID: 0, LeaderID: 1, LeaderEpoch: 3, Replicas: []int32{1, 2}, ISR: []int32{1, 2}},
			{PartitionID: 1, LeaderID: 2, Replicas: []int32{2}, ISR: []int32{2}},
		},
	}
}

// seedOrders writes topic "orders" with two partitions. Each partition holds
// batches at offsets 0-1, 2 and 3-5.
func seedOrders(t *testing.T, dir string) {
	t.Helper()
	topic := ordersTopic()
	batches := [][][]byte{
		{[]byte("a"), []byte("b")},
		{[]byte("c")},
		{[]byte("d"), []byte("e"), []byte("f")},
	}
	if err := storage.SeedTopic(context.Background(), storage.NewFileSource(dir), topic, batches, 0); err != nil {
		t.Fatalf("SeedTopic: %v", err)
	}
}

func newTestHandler(dir string) *handler {
	svc := storage.NewLocalService(dir, storage.ServiceOptions{VerifyCRC: true})
	return newHandler(svc, nil, testLogger(), false)
}

// roundTrip formats req the way a client would, parses it and hands it to h.
func roundTrip(t *testing.T, h *handler, req kmsg.Request, correlationID int32) []byte {
	t.Helper()
	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("test"))
	payload := formatter.AppendRequest(nil, req, correlationID)[4:]
	header, parsed, err := protocol.ParseRequest(payload)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	resp, err := h.Handle(context.Background(), header, parsed)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	return resp
}

// responseBody strips the size prefix and response header.
func responseBody(t *testing.T, msg []byte, correlationID int32, flexible bool) []byte {
	t.Helper()
	if len(msg) < 8 {
		t.Fatalf("response too small: %d", len(msg))
	}
	if size := binary.BigEndian.Uint32(msg[0:4]); int(size) != len(msg)-4 {
		t.Fatalf("size prefix %d does not match %d bytes", size, len(msg)-4)
	}
	if corr := int32(binary.BigEndian.Uint32(msg[4:8])); corr != correlationID {
		t.Fatalf("expected correlation id %d got %d", correlationID, corr)
	}
	if flexible {
		if msg[8] != 0 {
			t.Fatalf("unexpected response header tags %d", msg[8])
		}
		return msg[9:]
	}
	return msg[8:]
}

// seedPayments adds a one-partition topic "payments" next to "orders" in the
// metadata log.
func seedPayments(t *testing.T, dir string) {
	t.Helper()
	payments := storage.TopicInfo{
		TopicID:    paymentsID,
		Name:       "payments",
		Partitions: []storage.PartitionInfo{{PartitionID: 0, LeaderID: 1, Replicas: []int32{1}, ISR: []int32{1}}},
	}
	meta, err := storage.EncodeMetadataBatch(0, ordersTopic(), payments)
	if err != nil {
		t.Fatalf("EncodeMetadataBatch: %v", err)
	}
	if err := storage.NewFileSource(dir).WriteSegment(context.Background(), storage.ClusterMetadataSegment(), meta); err != nil {
		t.Fatalf("WriteSegment: %v", err)
	}
}

func describeRequest(limit int32, cursor *kmsg.DescribeTopicPartitionsRequestCursor, names ...string) *kmsg.DescribeTopicPartitionsRequest {
	req := kmsg.NewPtrDescribeTopicPartitionsRequest()
	for _, name := range names {
		topic := kmsg.NewDescribeTopicPartitionsRequestTopic()
		topic.Topic = name
		req.Topics = append(req.Topics, topic)
	}
	req.ResponsePartitionLimit = limit
	req.Cursor = cursor
	return req
}

func describe(t *testing.T, h *handler, req *kmsg.DescribeTopicPartitionsRequest) *protocol.DescribeTopicPartitionsResponse {
	t.Helper()
	msg := roundTrip(t, h, req, 9)
	responseBody(t, msg, 9, true)
	resp, err := protocol.ParseDescribeTopicPartitionsResponse(msg[4:])
	if err != nil {
		t.Fatalf("decode describe response: %v", err)
	}
	return resp
}

func topicNames(resp *protocol.DescribeTopicPartitionsResponse) []string {
	names := make([]string, 0, len(resp.Topics))
	for _, topic := range resp.Topics {
		names = append(names, topic.Name)
	}
	return names
}

func fetch(t *testing.T, h *handler, version int16, topic kmsg.FetchRequestTopic) *kmsg.FetchResponse {
	t.Helper()
	req := kmsg.NewPtrFetchRequest()
	req.Version = version
	req.MaxBytes = 1 << 20
	req.Topics = append(req.Topics, topic)
	msg := roundTrip(t, h, req, 21)
	resp := kmsg.NewPtrFetchResponse()
	resp.Version = version
	if err := resp.ReadFrom(responseBody(t, msg, 21, version >= 12)); err != nil {
		t.Fatalf("decode fetch response: %v", err)
	}
	return resp
}

func fetchTopic(id storage.TopicID, name string, partition int32, offset int64, maxBytes int32) kmsg.FetchRequestTopic {
	topic := kmsg.NewFetchRequestTopic()
	topic.TopicID = id
	topic.Topic = name
	part := kmsg.NewFetchRequestTopicPartition()
	part.Partition = partition
	part.FetchOffset = offset
	part.PartitionMaxBytes = maxBytes
	topic.Partitions = append(topic.Partitions, part)
	return topic
}

func singlePartition(t *testing.T, resp *kmsg.FetchResponse) kmsg.FetchResponseTopicPartition {
	t.Helper()
	if len(resp.Topics) != 1 || len(resp.Topics[0].Partitions) != 1 {
		t.Fatalf("expected one topic with one partition, got %+v", resp.Topics)
	}
	return resp.Topics[0].Partitions[0]
}

func TestHandlerApiVersions(t *testing.T) {
	h := newTestHandler(t.TempDir())
	req := kmsg.NewPtrApiVersionsRequest()
	req.Version = 4
	req.ClientSoftwareName = "test"
	req.ClientSoftwareVersion = "1.0"
	msg := roundTrip(t, h, req, 3)
	resp := kmsg.NewPtrApiVersionsResponse()
	resp.Version = 4
	if err := resp.ReadFrom(responseBody(t, msg, 3, false)); err != nil {
		t.Fatalf("decode api versions: %v", err)
	}
	if resp.ErrorCode != protocol.NONE {
		t.Fatalf("expected no error, got %d", resp.ErrorCode)
	}
	keys := map[int16]bool{}
	for _, k := range resp.ApiKeys {
		keys[k.ApiKey] = true
	}
	for _, want := range []int16{protocol.APIKeyFetch, protocol.APIKeyApiVersion, protocol.APIKeyDescribeTopicPartitions} {
		if !keys[want] {
			t.Fatalf("api key %d not advertised: %+v", want, resp.ApiKeys)
		}
	}
}

func TestHandlerApiVersionsUnsupported(t *testing.T) {
	h := newTestHandler(t.TempDir())
	header := &protocol.RequestHeader{
		APIKey:        protocol.APIKeyApiVersion,
		APIVersion:    99,
		CorrelationID: 42,
	}
	msg, err := h.Handle(context.Background(), header, &protocol.ApiVersionsRequest{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	body := responseBody(t, msg, 42, false)
	if code := int16(binary.BigEndian.Uint16(body[0:2])); code != protocol.UNSUPPORTED_VERSION {
		t.Fatalf("expected UNSUPPORTED_VERSION (%d) got %d", protocol.UNSUPPORTED_VERSION, code)
	}
}

func TestHandlerDescribeUnknownTopicEmptyLog(t *testing.T) {
	h := newTestHandler(t.TempDir())
	header := &protocol.RequestHeader{APIKey: protocol.APIKeyDescribeTopicPartitions, CorrelationID: 7}
	msg, err := h.Handle(context.Background(), header, &protocol.DescribeTopicPartitionsRequest{Topics: []string{"a"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := []byte{
		0, 0, 0, 7,
		0,
		0, 0, 0, 0,
		2,
		0, 3,
		2, 'a',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0,
		1,
		0, 0, 0, 0,
		0,
		0xff,
		0,
	}
	if string(msg[4:]) != string(want) {
		t.Fatalf("unexpected bytes\n got %v\nwant %v", msg[4:], want)
	}
}

func TestHandlerDescribeKnownTopic(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	h := newTestHandler(dir)

	resp := describe(t, h, describeRequest(0, nil, "orders", "missing"))
	if len(resp.Topics) != 2 {
		t.Fatalf("expected two topics, got %+v", resp.Topics)
	}
	orders := resp.Topics[0]
	if orders.ErrorCode != protocol.NONE || orders.Name != "orders" || orders.TopicID != ordersID {
		t.Fatalf("unexpected orders topic: %+v", orders)
	}
	if orders.TopicAuthorizedOperations != topicAuthorizedOperations || len(orders.Partitions) != 2 {
		t.Fatalf("unexpected orders details: %+v", orders)
	}
	p0 := orders.Partitions[0]
	if p0.PartitionIndex != 0 || p0.LeaderID != 1 || p0.LeaderEpoch != 3 || len(p0.ReplicaNodes) != 2 || len(p0.ISRNodes) != 2 {
		t.Fatalf("unexpected partition 0: %+v", p0)
	}
	if p1 := orders.Partitions[1]; p1.PartitionIndex != 1 || p1.LeaderID != 2 || p1.ErrorCode != protocol.NONE {
		t.Fatalf("unexpected partition 1: %+v", p1)
	}
	missing := resp.Topics[1]
	if missing.ErrorCode != protocol.UNKNOWN_TOPIC_OR_PARTITION || missing.Name != "missing" || missing.TopicID != ([16]byte{}) {
		t.Fatalf("unexpected missing topic: %+v", missing)
	}
	if missing.TopicAuthorizedOperations != 0 || len(missing.Partitions) != 0 {
		t.Fatalf("unexpected missing topic details: %+v", missing)
	}
	if resp.NextCursor != nil {
		t.Fatalf("expected null cursor, got %+v", resp.NextCursor)
	}
}

func TestHandlerDescribePartitionLimitAndCursor(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	h := newTestHandler(dir)

	resp := describe(t, h, describeRequest(1, nil, "orders"))
	if len(resp.Topics) != 1 || len(resp.Topics[0].Partitions) != 1 || resp.Topics[0].Partitions[0].PartitionIndex != 0 {
		t.Fatalf("expected only partition 0, got %+v", resp.Topics)
	}
	if resp.NextCursor == nil || resp.NextCursor.TopicName != "orders" || resp.NextCursor.PartitionIndex != 1 {
		t.Fatalf("unexpected next cursor: %+v", resp.NextCursor)
	}

	cursor := kmsg.NewDescribeTopicPartitionsRequestCursor()
	cursor.Topic = resp.NextCursor.TopicName
	cursor.Partition = resp.NextCursor.PartitionIndex
	resp = describe(t, h, describeRequest(1, &cursor, "orders"))
	if len(resp.Topics) != 1 || len(resp.Topics[0].Partitions) != 1 || resp.Topics[0].Partitions[0].PartitionIndex != 1 {
		t.Fatalf("expected only partition 1, got %+v", resp.Topics)
	}
	if resp.NextCursor != nil {
		t.Fatalf("expected pagination to finish, got %+v", resp.NextCursor)
	}
}

func TestHandlerDescribeLimitAtTopicBoundary(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	seedPayments(t, dir)
	h := newTestHandler(dir)

	resp := describe(t, h, describeRequest(2, nil, "orders", "payments"))
	if got := strings.Join(topicNames(resp), ","); got != "orders" {
		t.Fatalf("expected only orders on the first page, got %q", got)
	}
	if len(resp.Topics[0].Partitions) != 2 {
		t.Fatalf("expected both orders partitions, got %+v", resp.Topics[0].Partitions)
	}
	if resp.NextCursor == nil || resp.NextCursor.TopicName != "payments" || resp.NextCursor.PartitionIndex != 0 {
		t.Fatalf("unexpected next cursor: %+v", resp.NextCursor)
	}

	cursor := kmsg.NewDescribeTopicPartitionsRequestCursor()
	cursor.Topic = resp.NextCursor.TopicName
	cursor.Partition = resp.NextCursor.PartitionIndex
	resp = describe(t, h, describeRequest(2, &cursor, "orders", "payments"))
	if got := strings.Join(topicNames(resp), ","); got != "payments" {
		t.Fatalf("expected only payments on the second page, got %q", got)
	}
	if p := resp.Topics[0]; p.TopicID != paymentsID || len(p.Partitions) != 1 || resp.NextCursor != nil {
		t.Fatalf("unexpected second page: %+v cursor %+v", p, resp.NextCursor)
	}
}

func TestHandlerFetchUnknownTopicID(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	h := newTestHandler(dir)

	unknown := storage.TopicID{0xde, 0xad}
	part := singlePartition(t, fetch(t, h, 16, fetchTopic(unknown, "", 0, 0, 1<<20)))
	if part.ErrorCode != protocol.UNKNOWN_TOPIC_OR_PARTITION || len(part.RecordBatches) != 0 {
		t.Fatalf("unexpected partition: %+v", part)
	}
}

func TestHandlerFetchUnknownPartition(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	h := newTestHandler(dir)

	part := singlePartition(t, fetch(t, h, 16, fetchTopic(ordersID, "", 5, 0, 1<<20)))
	if part.ErrorCode != protocol.UNKNOWN_TOPIC_OR_PARTITION {
		t.Fatalf("expected UNKNOWN_TOPIC_OR_PARTITION, got %d", part.ErrorCode)
	}
}

func TestHandlerFetchKnownTopic(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	h := newTestHandler(dir)

	resp := fetch(t, h, 16, fetchTopic(ordersID, "", 0, 0, 1<<20))
	if resp.Topics[0].TopicID != ordersID {
		t.Fatalf("unexpected topic id %v", resp.Topics[0].TopicID)
	}
	part := singlePartition(t, resp)
	if part.ErrorCode != 0 || part.HighWatermark != 6 || part.LastStableOffset != 6 || part.LogStartOffset != 0 {
		t.Fatalf("unexpected partition: %+v", part)
	}
	if part.PreferredReadReplica != -1 {
		t.Fatalf("expected no preferred replica, got %d", part.PreferredReadReplica)
	}
	if got := storage.CountRecordBatchMessages(part.RecordBatches); got != 6 {
		t.Fatalf("expected 6 records, got %d", got)
	}
	batch := kmsg.NewRecordBatch()
	if err := batch.ReadFrom(part.RecordBatches); err != nil {
		t.Fatalf("decode first batch: %v", err)
	}
	if batch.FirstOffset != 0 || batch.NumRecords != 2 {
		t.Fatalf("unexpected first batch: offset %d records %d", batch.FirstOffset, batch.NumRecords)
	}
}

func TestHandlerFetchOffsetFiltering(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	h := newTestHandler(dir)

	cases := []struct {
		offset  int64
		records int
	}{
		{offset: 1, records: 6},
		{offset: 2, records: 4},
		{offset: 4, records: 3},
		{offset: 6, records: 0},
	}
	for _, tc := range cases {
		part := singlePartition(t, fetch(t, h, 16, fetchTopic(ordersID, "", 0, tc.offset, 1<<20)))
		if part.ErrorCode != 0 {
			t.Fatalf("offset %d: unexpected error %d", tc.offset, part.ErrorCode)
		}
		if got := storage.CountRecordBatchMessages(part.RecordBatches); got != tc.records {
			t.Fatalf("offset %d: expected %d records, got %d", tc.offset, tc.records, got)
		}
	}
}

func TestHandlerFetchPartitionMaxBytesReturnsOneBatch(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	h := newTestHandler(dir)

	part := singlePartition(t, fetch(t, h, 16, fetchTopic(ordersID, "", 0, 0, 1)))
	if got := storage.CountRecordBatchMessages(part.RecordBatches); got != 2 {
		t.Fatalf("expected only the first batch, got %d records", got)
	}
}

func TestHandlerFetchSpentBudgetReportsOffsetsOnly(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	h := newTestHandler(dir)

	topic := fetchTopic(ordersID, "", 0, 0, 1<<20)
	for _, offset := range []int64{2, 7} {
		part := kmsg.NewFetchRequestTopicPartition()
		part.Partition = 1
		part.FetchOffset = offset
		part.PartitionMaxBytes = 1 << 20
		topic.Partitions = append(topic.Partitions, part)
	}
	req := kmsg.NewPtrFetchRequest()
	req.Version = 16
	req.MaxBytes = 1
	req.Topics = append(req.Topics, topic)
	resp := kmsg.NewPtrFetchResponse()
	resp.Version = 16
	if err := resp.ReadFrom(responseBody(t, roundTrip(t, h, req, 22), 22, true)); err != nil {
		t.Fatalf("decode fetch response: %v", err)
	}
	parts := resp.Topics[0].Partitions
	if len(parts) != 3 {
		t.Fatalf("expected three partitions, got %+v", parts)
	}
	if got := storage.CountRecordBatchMessages(parts[0].RecordBatches); got != 2 {
		t.Fatalf("expected the first batch for partition 0, got %d records", got)
	}
	spent := parts[1]
	if spent.ErrorCode != protocol.NONE || len(spent.RecordBatches) != 0 {
		t.Fatalf("expected an empty record set once the budget is spent, got %+v", spent)
	}
	if spent.HighWatermark != 6 || spent.LastStableOffset != 6 || spent.LogStartOffset != 0 || spent.PreferredReadReplica != -1 {
		t.Fatalf("unexpected offsets for spent partition: %+v", spent)
	}
	if parts[2].ErrorCode != protocol.OFFSET_OUT_OF_RANGE || parts[2].HighWatermark != 6 {
		t.Fatalf("expected OFFSET_OUT_OF_RANGE past the budget, got %+v", parts[2])
	}
}

func TestHandlerFetchOutOfRange(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	h := newTestHandler(dir)

	part := singlePartition(t, fetch(t, h, 16, fetchTopic(ordersID, "", 0, 7, 1<<20)))
	if part.ErrorCode != protocol.OFFSET_OUT_OF_RANGE || len(part.RecordBatches) != 0 {
		t.Fatalf("expected OFFSET_OUT_OF_RANGE, got %+v", part)
	}
	if part.HighWatermark != 6 {
		t.Fatalf("expected high watermark 6, got %d", part.HighWatermark)
	}
}

func TestHandlerFetchByNameBeforeTopicIDs(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	h := newTestHandler(dir)

	resp := fetch(t, h, 11, fetchTopic(storage.TopicID{}, "orders", 1, 0, 1<<20))
	if resp.Topics[0].Topic != "orders" {
		t.Fatalf("unexpected topic name %q", resp.Topics[0].Topic)
	}
	part := singlePartition(t, resp)
	if part.ErrorCode != 0 || storage.CountRecordBatchMessages(part.RecordBatches) != 6 {
		t.Fatalf("unexpected partition: %+v", part)
	}
}

func TestHandlerCorruptMetadataAnswersAsEmpty(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	src := storage.NewFileSource(dir)
	rc, err := src.OpenSegment(context.Background(), storage.ClusterMetadataSegment())
	if err != nil {
		t.Fatalf("OpenSegment: %v", err)
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read metadata log: %v", err)
	}
	raw[len(raw)-1] ^= 0xff
	if err := src.WriteSegment(context.Background(), storage.ClusterMetadataSegment(), raw); err != nil {
		t.Fatalf("WriteSegment: %v", err)
	}
	h := newTestHandler(dir)

	resp := describe(t, h, describeRequest(0, nil, "orders"))
	if len(resp.Topics) != 1 || resp.Topics[0].ErrorCode != protocol.UNKNOWN_TOPIC_OR_PARTITION {
		t.Fatalf("expected unknown topic for unreadable log, got %+v", resp.Topics)
	}
	part := singlePartition(t, fetch(t, h, 16, fetchTopic(ordersID, "", 0, 0, 1<<20)))
	if part.ErrorCode != protocol.UNKNOWN_TOPIC_OR_PARTITION {
		t.Fatalf("expected unknown topic for unreadable log, got %d", part.ErrorCode)
	}
	if ready, _ := h.readiness(context.Background()); ready {
		t.Fatalf("expected not ready with an unreadable metadata log")
	}
}

func TestMetricsMux(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	h := newTestHandler(dir)
	roundTrip(t, h, kmsg.NewPtrApiVersionsRequest(), 1)
	mux := newMetricsMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `kraftlog_broker_requests_total{api="api_versions",outcome="ok"}`) {
		t.Fatalf("expected request counter, got:\n%s", body)
	}
	if !strings.Contains(body, "kraftlog_broker_storage_health_state") {
		t.Fatalf("expected storage health gauge, got:\n%s", body)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d: %s", rec.Code, rec.Body.String())
	}
	var ready struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ready); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if !ready.Ready || ready.State != string(broker.StorageHealthy) {
		t.Fatalf("unexpected readyz body: %+v", ready)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "ok") {
		t.Fatalf("unexpected healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestLogLevelFromEnv(t *testing.T) {
	t.Setenv("KRAFTLOG_LOG_LEVEL", "debug")
	if got := logLevelFromEnv(); got != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", got)
	}
	t.Setenv("KRAFTLOG_LOG_LEVEL", "warning")
	if got := logLevelFromEnv(); got != slog.LevelWarn {
		t.Fatalf("expected warn level, got %v", got)
	}
	t.Setenv("KRAFTLOG_LOG_LEVEL", "")
	if got := logLevelFromEnv(); got != slog.LevelInfo {
		t.Fatalf("expected info level, got %v", got)
	}
}

func TestThroughputTrackerRate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tracker := newThroughputTracker(10 * time.Second)
	tracker.now = func() time.Time { return now }
	if got := tracker.rate(); got != 0 {
		t.Fatalf("expected zero rate, got %v", got)
	}
	tracker.add(10)
	now = now.Add(time.Second)
	tracker.add(30)
	if got := tracker.rate(); got != 20 {
		t.Fatalf("expected 20/s over two seconds, got %v", got)
	}
	now = now.Add(30 * time.Second)
	if got := tracker.rate(); got != 0 {
		t.Fatalf("expected samples to age out, got %v", got)
	}
}

func TestBrokerServesFranzGoClient(t *testing.T) {
	dir := t.TempDir()
	seedOrders(t, dir)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &broker.Server{Handler: newTestHandler(dir), Workers: 8, Logger: testLogger()}
	serveCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(serveCtx, ln) }()
	defer func() {
		stop()
		if err := <-errCh; err != nil {
			t.Errorf("Serve: %v", err)
		}
		srv.Wait()
	}()
	<-srv.Ready()

	// DescribeTopicPartitions goes over a plain connection: the response is
	// decoded with ParseDescribeTopicPartitionsResponse.
	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 5*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		t.Fatalf("SetDeadline: %v", err)
	}
	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("e2e"))
	if _, err := conn.Write(formatter.AppendRequest(nil, describeRequest(0, nil, "orders"), 31)); err != nil {
		t.Fatalf("write describe: %v", err)
	}
	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read describe: %v", err)
	}
	dresp, err := protocol.ParseDescribeTopicPartitionsResponse(frame.Payload)
	if err != nil {
		t.Fatalf("decode describe: %v", err)
	}
	if dresp.CorrelationID != 31 || len(dresp.Topics) != 1 || dresp.Topics[0].TopicID != ordersID || len(dresp.Topics[0].Partitions) != 2 {
		t.Fatalf("unexpected describe response: %+v", dresp)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(ln.Addr().String()),
		kgo.WithLogger(kgo.BasicLogger(io.Discard, kgo.LogLevelWarn, nil)),
	)
	if err != nil {
		t.Fatalf("kgo.NewClient: %v", err)
	}
	defer client.Close()

	raw, err := client.Request(ctx, kmsg.NewPtrApiVersionsRequest())
	if err != nil {
		t.Fatalf("api versions request: %v", err)
	}
	versions := raw.(*kmsg.ApiVersionsResponse)
	if versions.ErrorCode != 0 || len(versions.ApiKeys) != 3 {
		t.Fatalf("unexpected api versions response: %+v", versions)
	}

	freq := kmsg.NewPtrFetchRequest()
	freq.MaxBytes = 1 << 20
	freq.Topics = append(freq.Topics, fetchTopic(ordersID, "orders", 0, 2, 1<<20))
	raw, err = client.Request(ctx, freq)
	if err != nil {
		t.Fatalf("fetch request: %v", err)
	}
	fresp := raw.(*kmsg.FetchResponse)
	part := singlePartition(t, fresp)
	if part.ErrorCode != 0 || part.HighWatermark != 6 {
		t.Fatalf("unexpected fetch partition: %+v", part)
	}
	if got := storage.CountRecordBatchMessages(part.RecordBatches); got != 4 {
		t.Fatalf("expected 4 records from offset 2, got %d", got)
	}
}
