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

// Command e2e-client checks a running broker from the outside with a real
// Kafka client. It is driven by KRAFTLOG_E2E_* variables so it can run as a
// job next to the broker.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kraftlog/pkg/protocol"
	"github.com/novatechflow/kraftlog/pkg/storage"
)

func main() {
	mode := strings.ToLower(envOrDefault("KRAFTLOG_E2E_MODE", "fetch"))
	brokerAddr := strings.TrimSpace(os.Getenv("KRAFTLOG_E2E_BROKER_ADDR"))
	topics := parseCSV(os.Getenv("KRAFTLOG_E2E_TOPIC"))
	count := parseEnvInt("KRAFTLOG_E2E_COUNT", 1)
	timeout := time.Duration(parseEnvInt("KRAFTLOG_E2E_TIMEOUT_SEC", 40)) * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch mode {
	case "wait":
		addrs := parseCSV(os.Getenv("KRAFTLOG_E2E_ADDRS"))
		if len(addrs) == 0 {
			log.Fatalf("KRAFTLOG_E2E_ADDRS is required for wait mode")
		}
		retries := parseEnvInt("KRAFTLOG_E2E_WAIT_RETRIES", 5)
		if retries < 1 {
			retries = 1
		}
		sleep := time.Duration(parseEnvInt("KRAFTLOG_E2E_WAIT_SLEEP_MS", 200)) * time.Millisecond
		if err := waitForAddrs(addrs, 2*time.Second, retries, sleep, dialAddr); err != nil {
			log.Fatalf("wait: %v", err)
		}
		log.Printf("reached %d addresses", len(addrs))
	case "describe", "fetch":
		if brokerAddr == "" || len(topics) == 0 {
			log.Fatalf("KRAFTLOG_E2E_BROKER_ADDR and KRAFTLOG_E2E_TOPIC are required")
		}
		wire, err := dialWire(ctx, brokerAddr)
		if err != nil {
			log.Fatalf("dial broker: %v", err)
		}
		defer wire.Close()
		described, err := describeTopics(ctx, wire, topics)
		if err != nil {
			log.Fatalf("describe: %v", err)
		}
		for _, t := range described {
			log.Printf("topic %s id=%s partitions=%d", t.Name, t.TopicID, len(t.Partitions))
		}
		if mode == "describe" {
			return
		}
		if count <= 0 {
			log.Fatalf("KRAFTLOG_E2E_COUNT must be > 0")
		}
		client, err := kgo.NewClient(kgo.SeedBrokers(brokerAddr))
		if err != nil {
			log.Fatalf("create client: %v", err)
		}
		defer client.Close()
		total := 0
		for _, t := range described {
			for _, p := range t.Partitions {
				n, err := fetchAll(ctx, client, t.TopicID, p.PartitionID)
				if err != nil {
					log.Fatalf("fetch %s-%d: %v", t.Name, p.PartitionID, err)
				}
				total += n
			}
		}
		if total < count {
			log.Fatalf("fetched %d records, expected at least %d", total, count)
		}
		log.Printf("fetched %d records from %d topics", total, len(described))
	default:
		log.Fatalf("unknown KRAFTLOG_E2E_MODE %q", mode)
	}
}

// requester is the part of *kgo.Client the fetch check uses.
type requester interface {
	Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error)
}

// roundTripper sends one request and returns the response payload that
// follows the size prefix, starting at the correlation id.
type roundTripper interface {
	RoundTrip(ctx context.Context, req kmsg.Request) ([]byte, error)
}

// wireConn issues framed requests over a single connection. DescribeTopicPartitions
// goes through it because the response is decoded here, not by kmsg.
type wireConn struct {
	conn          net.Conn
	formatter     *kmsg.RequestFormatter
	correlationID int32
}

func dialWire(ctx context.Context, addr string) (*wireConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &wireConn{
		conn:      conn,
		formatter: kmsg.NewRequestFormatter(kmsg.FormatterClientID("kraftlog-e2e")),
	}, nil
}

func (c *wireConn) RoundTrip(ctx context.Context, req kmsg.Request) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	c.correlationID++
	if _, err := c.conn.Write(c.formatter.AppendRequest(nil, req, c.correlationID)); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	frame, err := protocol.ReadFrame(c.conn)
	if err != nil {
		return nil, err
	}
	if len(frame.Payload) < 4 {
		return nil, fmt.Errorf("response of %d bytes has no correlation id", len(frame.Payload))
	}
	if got := int32(binary.BigEndian.Uint32(frame.Payload[:4])); got != c.correlationID {
		return nil, fmt.Errorf("correlation id %d, expected %d", got, c.correlationID)
	}
	return frame.Payload, nil
}

func (c *wireConn) Close() error {
	return c.conn.Close()
}

func describeTopics(ctx context.Context, broker roundTripper, topics []string) ([]storage.TopicInfo, error) {
	req := kmsg.NewPtrDescribeTopicPartitionsRequest()
	for _, name := range topics {
		t := kmsg.NewDescribeTopicPartitionsRequestTopic()
		t.Topic = name
		req.Topics = append(req.Topics, t)
	}
	var out []storage.TopicInfo
	for {
		payload, err := broker.RoundTrip(ctx, req)
		if err != nil {
			return nil, err
		}
		resp, err := protocol.ParseDescribeTopicPartitionsResponse(payload)
		if err != nil {
			return nil, err
		}
		for _, t := range resp.Topics {
			if t.ErrorCode != protocol.NONE {
				return nil, fmt.Errorf("topic %q: error code %d", t.Name, t.ErrorCode)
			}
			info := storage.TopicInfo{TopicID: t.TopicID, Name: t.Name}
			// A cursor inside a topic continues it on the next page.
			if n := len(out); n > 0 && out[n-1].Name == t.Name {
				info = out[n-1]
				out = out[:n-1]
			}
			for _, p := range t.Partitions {
				info.Partitions = append(info.Partitions, storage.PartitionInfo{
					PartitionID: p.PartitionIndex,
					TopicID:     t.TopicID,
					LeaderID:    p.LeaderID,
					LeaderEpoch: p.LeaderEpoch,
					Replicas:    p.ReplicaNodes,
					ISR:         p.ISRNodes,
				})
			}
			out = append(out, info)
		}
		if resp.NextCursor == nil {
			return out, nil
		}
		cursor := kmsg.NewDescribeTopicPartitionsRequestCursor()
		cursor.Topic = resp.NextCursor.TopicName
		cursor.Partition = resp.NextCursor.PartitionIndex
		req.Cursor = &cursor
	}
}

// fetchAll reads one partition from offset 0 to its high watermark and
// returns the number of records seen.
func fetchAll(ctx context.Context, broker requester, topicID storage.TopicID, partition int32) (int, error) {
	var offset int64
	records := 0
	for {
		req := kmsg.NewPtrFetchRequest()
		req.MaxBytes = 1 << 20
		topic := kmsg.NewFetchRequestTopic()
		topic.TopicID = topicID
		part := kmsg.NewFetchRequestTopicPartition()
		part.Partition = partition
		part.FetchOffset = offset
		part.PartitionMaxBytes = 256 << 10
		topic.Partitions = append(topic.Partitions, part)
		req.Topics = append(req.Topics, topic)

		raw, err := broker.Request(ctx, req)
		if err != nil {
			return records, err
		}
		resp := raw.(*kmsg.FetchResponse)
		if len(resp.Topics) != 1 || len(resp.Topics[0].Partitions) != 1 {
			return records, errors.New("unexpected fetch response shape")
		}
		p := resp.Topics[0].Partitions[0]
		if p.ErrorCode != 0 {
			return records, fmt.Errorf("error code %d at offset %d", p.ErrorCode, offset)
		}
		next, n, err := lastOffset(p.RecordBatches)
		if err != nil {
			return records, err
		}
		records += n
		if n == 0 || next >= p.HighWatermark {
			return records, nil
		}
		offset = next
	}
}

// batchHeaderSize is the fixed v2 record batch header length.
const batchHeaderSize = 61

// lastOffset walks a record set and returns the offset after its last whole
// batch together with the records it holds.
func lastOffset(recordSet []byte) (int64, int, error) {
	var next int64
	records := 0
	for len(recordSet) >= batchHeaderSize {
		h, err := storage.ReadBatchHeader(recordSet)
		if err != nil {
			return 0, 0, err
		}
		if h.Size() > len(recordSet) {
			break
		}
		next = h.LastOffset() + 1
		records += int(h.RecordsCount)
		recordSet = recordSet[h.Size():]
	}
	return next, records, nil
}

type dialFunc func(addr string, timeout time.Duration) error

func dialAddr(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

func waitForAddrs(addrs []string, timeout time.Duration, retries int, sleep time.Duration, dial dialFunc) error {
	for _, addr := range addrs {
		var lastErr error
		for attempt := 0; attempt < retries; attempt++ {
			if lastErr = dial(addr, timeout); lastErr == nil {
				break
			}
			time.Sleep(sleep)
		}
		if lastErr != nil {
			return fmt.Errorf("dial %s failed: %w", addr, lastErr)
		}
	}
	return nil
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOrDefault(name, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		return val
	}
	return fallback
}

func parseEnvInt(name string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name)))
	if err != nil {
		return fallback
	}
	return parsed
}
