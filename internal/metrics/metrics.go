// Package metrics exports archival pipeline telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/winson8942-oss/line-drive-bot/internal/storage"
)

const namespace = "linedrive"

// Observer records pipeline, upload and reply metrics. A nil *Observer is a no-op.
type Observer struct {
	registry       *prometheus.Registry
	events         *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	flushes        *prometheus.CounterVec
	flushedItems   prometheus.Counter
}

// New registers every collector on a fresh registry together with the Go and process collectors.
func New() (*Observer, error) {
	reg := prometheus.NewRegistry()
	o := &Observer{
		registry: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Webhook events by final pipeline state.",
		}, []string{"state"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_decisions_total",
			Help:      "Access gate decisions.",
		}, []string{"decision"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploads per storage backend and result.",
		}, []string{"backend", "result"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Latency of one upload including folder resolution.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"backend"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_flushes_total",
			Help:      "Batched acknowledgments by delivery method and result.",
		}, []string{"method", "result"}),
		flushedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_flushed_items_total",
			Help:      "Items acknowledged through batched replies.",
		}),
	}
	for _, c := range []prometheus.Collector{
		o.events, o.decisions, o.uploads, o.uploadDuration, o.flushes, o.flushedItems,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return o, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	if o == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry})
}

// Gatherer exposes the registry for tests and embedding.
func (o *Observer) Gatherer() prometheus.Gatherer {
	return o.registry
}

// ObserveEvent counts an event that finished in state.
func (o *Observer) ObserveEvent(state string) {
	if o == nil {
		return
	}
	o.events.WithLabelValues(state).Inc()
}

// ObserveDecision counts an access decision.
func (o *Observer) ObserveDecision(decision string) {
	if o == nil {
		return
	}
	o.decisions.WithLabelValues(decision).Inc()
}

// ObserveUpload implements storage.Observer.
func (o *Observer) ObserveUpload(backend storage.Kind, err error, elapsed time.Duration) {
	if o == nil {
		return
	}
	o.uploadDuration.WithLabelValues(string(backend)).Observe(elapsed.Seconds())
	o.uploads.WithLabelValues(string(backend), result(err)).Inc()
}

// ObserveFlush implements reply.FlushObserver.
func (o *Observer) ObserveFlush(items int, pushed bool, err error) {
	if o == nil {
		return
	}
	method := "reply"
	if pushed {
		method = "push"
	}
	o.flushes.WithLabelValues(method, result(err)).Inc()
	if err == nil {
		o.flushedItems.Add(float64(items))
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
