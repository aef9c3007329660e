/*
Copyright (c) BlueBridge contributors.

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

// Package metrics is the gateway's operational counter set: modem
// commands by status, NMEA overflow events per port, MQTT publish
// results, and SMS commands processed. Purely diagnostic -- none of
// this is the boat telemetry payload itself.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Registry owns the gateway's Prometheus collectors and the HTTP
// endpoint they're exposed on, the same "one registry, one monitoring
// port" shape as fbclock/daemon's JSONStats.Start, with real
// Prometheus collectors in place of a bespoke counter map.
type Registry struct {
	registry *prometheus.Registry

	ModemCommands   *prometheus.CounterVec
	NMEAOverflows   *prometheus.CounterVec
	MQTTPublishes   *prometheus.CounterVec
	SMSCommands     prometheus.Counter
	PublishedFrames prometheus.Counter
}

// New constructs a Registry with every collector registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		ModemCommands: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "bluebridge",
			Name:      "modem_commands_total",
			Help:      "Modem commands issued, labeled by resulting status.",
		}, []string{"status"}),
		NMEAOverflows: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "bluebridge",
			Name:      "nmea_overflow_events_total",
			Help:      "NMEA transmit back-pressure events, labeled by port.",
		}, []string{"port"}),
		MQTTPublishes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "bluebridge",
			Name:      "mqtt_publishes_total",
			Help:      "MQTT publish attempts, labeled by result.",
		}, []string{"result"}),
		SMSCommands: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "bluebridge",
			Name:      "sms_commands_processed_total",
			Help:      "SMS command tokens recognized and applied.",
		}),
		PublishedFrames: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "bluebridge",
			Name:      "composite_frames_published_total",
			Help:      "Composite boat-data frames successfully published.",
		}),
	}
	return r
}

// ObserveModemCommand records one modem command outcome.
func (r *Registry) ObserveModemCommand(status fmt.Stringer) {
	r.ModemCommands.WithLabelValues(status.String()).Inc()
}

// ObserveNMEAOverflow records one transmit back-pressure event on port.
func (r *Registry) ObserveNMEAOverflow(port string) {
	r.NMEAOverflows.WithLabelValues(port).Inc()
}

// ObserveMQTTPublish records one publish attempt's outcome.
func (r *Registry) ObserveMQTTPublish(result fmt.Stringer) {
	r.MQTTPublishes.WithLabelValues(result.String()).Inc()
	if result.String() == "ok" {
		r.PublishedFrames.Inc()
	}
}

// ObserveSMSCommand records one recognized SMS command token.
func (r *Registry) ObserveSMSCommand() {
	r.SMSCommands.Inc()
}

// Handler returns the /metrics HTTP handler directly, for a caller
// that wants to mount it on its own mux, or a test that wants to hit
// it without binding a real port.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Start runs an HTTP server exposing /metrics until ctx is canceled.
// It blocks, like fbclock/daemon's JSONStats.Start, but returns
// instead of log.Fatal-ing on shutdown so callers can supervise it
// alongside the rest of the gateway's goroutines.
func (r *Registry) Start(ctx context.Context, port int, log *logrus.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if log != nil {
			log.Infof("metrics: listening on %s", addr)
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
