/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stats

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// PrometheusExporter republishes a JSONStats snapshot as Prometheus gauges,
// registering one gauge per discovered metric key on first sight.
type PrometheusExporter struct {
	registry *prometheus.Registry
	source   *JSONStats
	interval time.Duration
}

// NewPrometheusExporter returns an exporter that scrapes source every interval.
func NewPrometheusExporter(source *JSONStats, scrapeInterval time.Duration) *PrometheusExporter {
	return &PrometheusExporter{registry: prometheus.NewRegistry(), source: source, interval: scrapeInterval}
}

// Start runs the periodic scrape loop and the /metrics http server; it
// blocks the calling goroutine.
func (e *PrometheusExporter) Start(monitoringport int) {
	go func() {
		for {
			e.scrape()
			time.Sleep(e.interval)
		}
	}()

	http.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", monitoringport), nil))
}

func (e *PrometheusExporter) scrape() {
	e.source.Snapshot()
	for key, val := range e.source.toMap() {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: flattenKey(key), Help: key})
		if err := e.registry.Register(gauge); err != nil {
			are := &prometheus.AlreadyRegisteredError{}
			if errors.As(err, are) {
				gauge = are.ExistingCollector.(prometheus.Gauge)
			} else {
				log.Errorf("failed to register otp metric %s: %v", key, err)
				continue
			}
		}
		gauge.Set(float64(val))
	}
}

func flattenKey(key string) string {
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return "otp_" + key
}
