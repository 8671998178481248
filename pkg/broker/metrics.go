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

package broker

import "github.com/prometheus/client_golang/prometheus"

var (
	openConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kraftlog",
			Subsystem: "broker",
			Name:      "open_connections",
			Help:      "Client connections currently being served.",
		},
	)
	queuedConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kraftlog",
			Subsystem: "broker",
			Name:      "queued_connections",
			Help:      "Accepted connections waiting for a worker.",
		},
	)
	acceptedConnections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kraftlog",
			Subsystem: "broker",
			Name:      "accepted_connections_total",
			Help:      "Connections accepted since start.",
		},
	)
	connectionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kraftlog",
			Subsystem: "broker",
			Name:      "connection_errors_total",
			Help:      "Connections closed because of an error, by stage.",
		},
		[]string{"stage"},
	)
	storageHealthState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kraftlog",
			Subsystem: "broker",
			Name:      "storage_health_state",
			Help:      "1 for the current storage health state.",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(
		openConnections,
		queuedConnections,
		acceptedConnections,
		connectionErrors,
		storageHealthState,
	)
}
