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

// Command logdump inspects and seeds the segment layout served by the broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/novatechflow/kraftlog/internal/config"
	"github.com/novatechflow/kraftlog/internal/console"
	"github.com/novatechflow/kraftlog/pkg/storage"
)

const usage = `logdump - inspect a KRaft log directory or bucket

Usage:
  logdump <command> [options]

Commands:
  snapshot   Print the cluster snapshot rebuilt from __cluster_metadata
  batches    List record batch headers of one partition
  segments   List stored segment files
  seed       Write a metadata log and demo partition segments
  status     Summarize a running broker's metrics endpoint

Storage comes from KRAFTLOG_CONFIG and KRAFTLOG_* variables; -log-dir
overrides the local directory.`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	logger := newLogger(stderr)
	var err error
	switch args[0] {
	case "snapshot":
		err = runSnapshot(ctx, args[1:], stdout)
	case "batches":
		err = runBatches(ctx, args[1:], stdout)
	case "segments":
		err = runSegments(ctx, args[1:], stdout)
	case "seed":
		err = runSeed(ctx, args[1:], stdout, logger)
	case "status":
		err = runStatus(ctx, args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n%s\n", args[0], usage)
		return 2
	}
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		logger.Error("command failed", "command", args[0], "error", err)
		return 1
	}
	return 0
}

// storageFlags registers the flags every command shares.
type storageFlags struct {
	logDir    *string
	verifyCRC *bool
}

func newFlagSet(name string) (*flag.FlagSet, storageFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs, storageFlags{
		logDir:    fs.String("log-dir", "", "local log directory (overrides configuration)"),
		verifyCRC: fs.Bool("verify-crc", true, "verify metadata batch checksums"),
	}
}

func (f storageFlags) open(ctx context.Context) (storage.SegmentStore, config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, cfg, err
	}
	if *f.logDir != "" {
		cfg.Storage.LogDir = *f.logDir
		cfg.Storage.S3 = storage.S3Config{}
	}
	cfg.Storage.VerifyCRC = *f.verifyCRC
	store, err := cfg.OpenSegmentStore(ctx)
	return store, cfg, err
}

func runSnapshot(ctx context.Context, args []string, out io.Writer) error {
	fs, sf := newFlagSet("snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, cfg, err := sf.open(ctx)
	if err != nil {
		return err
	}
	svc := storage.NewService(store, storage.ServiceOptions{VerifyCRC: cfg.Storage.VerifyCRC})
	snap, err := svc.LoadClusterSnapshot(ctx)
	if err != nil {
		return err
	}
	return writeYAML(out, map[string]any{"topics": snap.Topics()})
}

type batchRow struct {
	BaseOffset  int64  `yaml:"base_offset"`
	LastOffset  int64  `yaml:"last_offset"`
	Records     int32  `yaml:"records"`
	Size        int    `yaml:"size"`
	LeaderEpoch int32  `yaml:"leader_epoch"`
	Compression string `yaml:"compression"`
	Control     bool   `yaml:"control,omitempty"`
	CRCValid    bool   `yaml:"crc_valid"`
}

var codecNames = map[int]string{0: "none", 1: "gzip", 2: "snappy", 3: "lz4", 4: "zstd"}

func runBatches(ctx context.Context, args []string, out io.Writer) error {
	fs, sf := newFlagSet("batches")
	topic := fs.String("topic", storage.ClusterMetadataTopic, "topic name")
	partition := fs.Int("partition", 0, "partition index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, cfg, err := sf.open(ctx)
	if err != nil {
		return err
	}
	svc := storage.NewService(store, storage.ServiceOptions{VerifyCRC: cfg.Storage.VerifyCRC})
	data, err := svc.ReadPartitionData(ctx, *topic, int32(*partition))
	if err != nil {
		return err
	}
	rows := make([]batchRow, 0, len(data))
	for _, b := range data {
		h, err := storage.ReadBatchHeader(b)
		if err != nil {
			return err
		}
		rows = append(rows, batchRow{
			BaseOffset:  h.BaseOffset,
			LastOffset:  h.LastOffset(),
			Records:     h.RecordsCount,
			Size:        h.Size(),
			LeaderEpoch: h.PartitionLeaderEpoch,
			Compression: codecNames[h.Compression()],
			Control:     h.IsControl(),
			CRCValid:    storage.VerifyBatchCRC(b) == nil,
		})
	}
	return writeYAML(out, map[string]any{
		"topic":            *topic,
		"partition":        *partition,
		"log_start_offset": data.LogStartOffset(),
		"high_watermark":   data.HighWatermark(),
		"batches":          rows,
	})
}

func runSegments(ctx context.Context, args []string, out io.Writer) error {
	fs, sf := newFlagSet("segments")
	prefix := fs.String("prefix", "", "only list keys under this prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, _, err := sf.open(ctx)
	if err != nil {
		return err
	}
	objs, err := store.ListSegments(ctx, *prefix)
	if err != nil {
		return err
	}
	return writeYAML(out, map[string]any{"segments": objs})
}

type bucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

func runSeed(ctx context.Context, args []string, out io.Writer, logger *slog.Logger) error {
	fs, sf := newFlagSet("seed")
	topic := fs.String("topic", "orders", "topic name")
	topicID := fs.String("topic-id", "", "topic uuid (random when empty)")
	partitions := fs.Int("partitions", 1, "number of partitions")
	batches := fs.Int("batches", 3, "batches per partition")
	records := fs.Int("records", 2, "records per batch")
	codec := fs.String("codec", "none", "batch compression: none, gzip, snappy, lz4 or zstd")
	leader := fs.Int("leader", 1, "leader broker id for every partition")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *partitions <= 0 || *batches < 0 || *records <= 0 {
		return errors.New("partitions and records must be positive")
	}
	attrs, err := storage.ParseCodec(strings.ToLower(*codec))
	if err != nil {
		return err
	}
	id := storage.TopicID(uuid.New())
	if *topicID != "" {
		if id, err = storage.ParseTopicID(*topicID); err != nil {
			return fmt.Errorf("parse -topic-id: %w", err)
		}
	}
	store, cfg, err := sf.open(ctx)
	if err != nil {
		return err
	}
	if b, ok := store.(bucketEnsurer); ok {
		if err := b.EnsureBucket(ctx); err != nil {
			return err
		}
	}

	info := storage.TopicInfo{TopicID: id, Name: *topic}
	for p := 0; p < *partitions; p++ {
		info.Partitions = append(info.Partitions, storage.PartitionInfo{
			PartitionID: int32(p),
			LeaderID:    int32(*leader),
			Replicas:    []int32{int32(*leader)},
			ISR:         []int32{int32(*leader)},
		})
	}
	values := make([][][]byte, *batches)
	n := 0
	for b := range values {
		for r := 0; r < *records; r++ {
			values[b] = append(values[b], []byte(fmt.Sprintf("%s-%d", *topic, n)))
			n++
		}
	}
	if err := storage.SeedTopic(ctx, store, info, values, attrs); err != nil {
		return err
	}
	logger.Info("seeded topic", "topic", *topic, "topic_id", id.String(), "partitions", *partitions, "records", n, "s3", cfg.UseS3())
	return writeYAML(out, info)
}

func runStatus(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	url := fs.String("metrics-url", "http://127.0.0.1:9093/metrics", "broker metrics endpoint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	snap, err := console.NewPromMetricsClient(*url).Snapshot(ctx)
	if err != nil {
		return err
	}
	return writeYAML(out, snap)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(os.Getenv("KRAFTLOG_LOG_LEVEL"))) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})).With("component", "logdump")
}
