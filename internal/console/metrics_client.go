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

// Package console reads a running broker's status from its metrics endpoint.
package console

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// MetricsSnapshot is the broker state decoded from one scrape.
type MetricsSnapshot struct {
	StorageState    string             `yaml:"storage_state"`
	OpenConnections int                `yaml:"open_connections"`
	QueuedConns     int                `yaml:"queued_connections"`
	SnapshotTopics  int                `yaml:"snapshot_topics"`
	FetchRPS        float64            `yaml:"fetch_records_per_second"`
	CRCFailures     float64            `yaml:"crc_failures"`
	DecodeErrors    float64            `yaml:"decode_errors"`
	Requests        map[string]float64 `yaml:"requests"`
	RequestErrors   map[string]float64 `yaml:"request_errors,omitempty"`
}

// MetricsProvider returns the current broker metrics.
type MetricsProvider interface {
	Snapshot(ctx context.Context) (*MetricsSnapshot, error)
}

type promMetricsClient struct {
	url    string
	client *http.Client
}

func NewPromMetricsClient(url string) MetricsProvider {
	return &promMetricsClient{
		url: url,
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
	}
}

func (c *promMetricsClient) Snapshot(ctx context.Context) (*MetricsSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics request failed: %s", resp.Status)
	}
	return parseMetrics(resp.Body)
}

func parseMetrics(r io.Reader) (*MetricsSnapshot, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}
	snap := &MetricsSnapshot{
		Requests:      map[string]float64{},
		RequestErrors: map[string]float64{},
	}
	for name, family := range families {
		switch name {
		case "kraftlog_broker_storage_health_state":
			for _, m := range family.GetMetric() {
				if sampleValue(m) == 1 {
					snap.StorageState = label(m, "state")
				}
			}
		case "kraftlog_broker_open_connections":
			snap.OpenConnections = int(firstValue(family))
		case "kraftlog_broker_queued_connections":
			snap.QueuedConns = int(firstValue(family))
		case "kraftlog_storage_snapshot_topics":
			snap.SnapshotTopics = int(firstValue(family))
		case "kraftlog_broker_fetch_records_per_second":
			snap.FetchRPS = firstValue(family)
		case "kraftlog_storage_crc_failures_total":
			snap.CRCFailures = firstValue(family)
		case "kraftlog_storage_decode_errors_total":
			snap.DecodeErrors = firstValue(family)
		case "kraftlog_broker_requests_total":
			for _, m := range family.GetMetric() {
				api := label(m, "api")
				snap.Requests[api] += sampleValue(m)
				if label(m, "outcome") == "error" {
					snap.RequestErrors[api] += sampleValue(m)
				}
			}
		}
	}
	return snap, nil
}

// APIs lists the request APIs seen, sorted.
func (s *MetricsSnapshot) APIs() []string {
	out := make([]string, 0, len(s.Requests))
	for api := range s.Requests {
		out = append(out, api)
	}
	sort.Strings(out)
	return out
}

func firstValue(family *dto.MetricFamily) float64 {
	if ms := family.GetMetric(); len(ms) > 0 {
		return sampleValue(ms[0])
	}
	return 0
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetUntyped() != nil:
		return m.GetUntyped().GetValue()
	}
	return 0
}

func label(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}
