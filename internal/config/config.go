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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/novatechflow/kraftlog/pkg/storage"
)

// Config is the broker configuration. Values come from the optional YAML
// file first, then from KRAFTLOG_* environment variables.
type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type BrokerConfig struct {
	Addr         string        `yaml:"addr"`
	Workers      int           `yaml:"workers"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Trace        bool          `yaml:"trace"`
}

type StorageConfig struct {
	LogDir    string           `yaml:"log_dir"`
	VerifyCRC bool             `yaml:"verify_crc"`
	S3        storage.S3Config `yaml:"s3"`
}

type MetricsConfig struct {
	// Addr of the /metrics, /healthz and /readyz listener. Empty disables it.
	Addr string `yaml:"addr"`
}

const (
	DefaultBrokerAddr   = "0.0.0.0:9092"
	DefaultMetricsAddr  = ":9093"
	DefaultWriteTimeout = 5 * time.Second
)

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Broker: BrokerConfig{
			Addr:         DefaultBrokerAddr,
			Workers:      runtime.NumCPU(),
			WriteTimeout: DefaultWriteTimeout,
		},
		Storage: StorageConfig{
			LogDir:    storage.DefaultLogDir,
			VerifyCRC: true,
		},
		Metrics: MetricsConfig{Addr: DefaultMetricsAddr},
	}
}

// Load reads path when it is not empty, applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv loads the file named by KRAFTLOG_CONFIG, if any.
func FromEnv() (Config, error) {
	return Load(strings.TrimSpace(os.Getenv("KRAFTLOG_CONFIG")))
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Broker.Addr, "KRAFTLOG_BROKER_ADDR")
	setInt(&cfg.Broker.Workers, "KRAFTLOG_WORKERS")
	setDuration(&cfg.Broker.WriteTimeout, "KRAFTLOG_WRITE_TIMEOUT")
	setBool(&cfg.Broker.Trace, "KRAFTLOG_TRACE_KAFKA")

	setString(&cfg.Storage.LogDir, "KRAFTLOG_LOG_DIR")
	setBool(&cfg.Storage.VerifyCRC, "KRAFTLOG_VERIFY_CRC")
	setString(&cfg.Storage.S3.Bucket, "KRAFTLOG_S3_BUCKET")
	setString(&cfg.Storage.S3.Region, "KRAFTLOG_S3_REGION")
	setString(&cfg.Storage.S3.Endpoint, "KRAFTLOG_S3_ENDPOINT")
	setString(&cfg.Storage.S3.Prefix, "KRAFTLOG_S3_PREFIX")
	setBool(&cfg.Storage.S3.ForcePathStyle, "KRAFTLOG_S3_PATH_STYLE")
	setString(&cfg.Storage.S3.AccessKeyID, "KRAFTLOG_S3_ACCESS_KEY")
	setString(&cfg.Storage.S3.SecretAccessKey, "KRAFTLOG_S3_SECRET_KEY")
	setString(&cfg.Storage.S3.SessionToken, "KRAFTLOG_S3_SESSION_TOKEN")
	setInt(&cfg.Storage.S3.CacheBytes, "KRAFTLOG_S3_CACHE_BYTES")

	setString(&cfg.Metrics.Addr, "KRAFTLOG_METRICS_ADDR")
}

// Validate rejects configurations the broker cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Broker.Addr) == "" {
		errs = append(errs, errors.New("broker.addr is required"))
	}
	if c.Broker.Workers <= 0 {
		errs = append(errs, fmt.Errorf("broker.workers must be positive, got %d", c.Broker.Workers))
	}
	if c.Broker.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("broker.write_timeout must be positive, got %s", c.Broker.WriteTimeout))
	}
	if c.Storage.S3.Bucket == "" && strings.TrimSpace(c.Storage.LogDir) == "" {
		errs = append(errs, errors.New("storage.log_dir is required without an s3 bucket"))
	}
	if c.Storage.S3.CacheBytes < 0 {
		errs = append(errs, fmt.Errorf("storage.s3.cache_bytes must not be negative, got %d", c.Storage.S3.CacheBytes))
	}
	if c.Storage.S3.Bucket != "" && c.Storage.S3.Region == "" {
		errs = append(errs, errors.New("storage.s3.region is required with an s3 bucket"))
	}
	return errors.Join(errs...)
}

// UseS3 reports whether segments come from object storage.
func (c Config) UseS3() bool {
	return c.Storage.S3.Bucket != ""
}

// OpenSegmentStore builds the configured segment store: S3 when a bucket is
// set, the local log directory otherwise.
func (c Config) OpenSegmentStore(ctx context.Context) (storage.SegmentStore, error) {
	if c.UseS3() {
		src, err := storage.NewS3Source(ctx, c.Storage.S3)
		if err != nil {
			return nil, fmt.Errorf("s3 segment source: %w", err)
		}
		return src, nil
	}
	return storage.NewFileSource(c.Storage.LogDir), nil
}

func setString(target *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*target = strings.TrimSpace(val)
	}
}

func setInt(target *int, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(val))
		if err == nil {
			*target = parsed
		}
	}
}

func setBool(target *bool, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "true", "yes", "on":
			*target = true
		case "0", "false", "no", "off":
			*target = false
		}
	}
}

func setDuration(target *time.Duration, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		parsed, err := time.ParseDuration(strings.TrimSpace(val))
		if err == nil {
			*target = parsed
		}
	}
}
