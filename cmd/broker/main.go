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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novatechflow/kraftlog/internal/config"
	"github.com/novatechflow/kraftlog/pkg/broker"
	"github.com/novatechflow/kraftlog/pkg/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	if err := run(ctx, logger); err != nil {
		logger.Error("broker exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	source, err := cfg.OpenSegmentStore(ctx)
	if err != nil {
		return err
	}
	if cfg.UseS3() {
		logger.Info("reading segments from s3", "bucket", cfg.Storage.S3.Bucket, "prefix", cfg.Storage.S3.Prefix)
	} else {
		logger.Info("reading segments from disk", "log_dir", cfg.Storage.LogDir)
	}
	svc := storage.NewService(source, storage.ServiceOptions{VerifyCRC: cfg.Storage.VerifyCRC})
	health := broker.NewStorageHealthMonitor(broker.StorageHealthConfig{})
	h := newHandler(svc, health, logger, cfg.Broker.Trace)
	prometheus.MustRegister(newFetchRateGauge(h.fetchRate))

	if cfg.Metrics.Addr != "" {
		startMetricsServer(ctx, cfg.Metrics.Addr, h, logger)
	}

	srv := &broker.Server{
		Addr:         cfg.Broker.Addr,
		Handler:      h,
		Workers:      cfg.Broker.Workers,
		WriteTimeout: cfg.Broker.WriteTimeout,
		Logger:       logger,
	}
	logger.Info("broker starting", "addr", cfg.Broker.Addr, "workers", cfg.Broker.Workers, "verify_crc", cfg.Storage.VerifyCRC)
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("broker server: %w", err)
	}
	srv.Wait()
	logger.Info("broker stopped")
	return nil
}

func newMetricsMux(h *handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "ok state=%s\n", h.health.State())
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ready, state := h.readiness(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(struct {
			Ready   bool                         `json:"ready"`
			State   string                       `json:"state"`
			Storage broker.StorageHealthSnapshot `json:"storage"`
		}{Ready: ready, State: state, Storage: h.health.Snapshot()})
	})
	return mux
}

func startMetricsServer(ctx context.Context, addr string, h *handler, logger *slog.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMetricsMux(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
}

func logLevelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("KRAFTLOG_LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     logLevelFromEnv(),
		AddSource: true,
	})
	return slog.New(handler).With("component", "broker")
}
