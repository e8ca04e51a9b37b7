// Package metrics exports cache pipeline telemetry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors/version"
)

const namespace = "image_cache"

// Observer receives pipeline events. Implementations must be safe for concurrent use.
type Observer interface {
	RecordResolve(outcome string, duration time.Duration)
	RecordFetch(duration time.Duration, sizeBytes int, err error)
	RecordRender(outcome string, duration time.Duration)
	RecordFallback(reason string)
	RecordSharedFetch()
}

type PrometheusObserver struct {
	resolves       *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	fetchErrors    prometheus.Counter
	fetchedBytes   prometheus.Counter
	renderDuration *prometheus.HistogramVec
	fallbacks      *prometheus.CounterVec
	sharedFetches  prometheus.Counter
}

var _ Observer = &PrometheusObserver{}

// NewPrometheusObserver registers the pipeline metrics and a build info collector.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_total",
			Help:      "Key resolutions by outcome (hit, miss or failure stage).",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of remote object fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Remote fetches that failed.",
		}),
		fetchedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetched_bytes_total",
			Help:      "Bytes downloaded from the object store.",
		}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Latency of per-request renditions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_total",
			Help:      "Responses served from the fallback asset, by reason.",
		}, []string{"reason"}),
		sharedFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_shared_total",
			Help:      "Resolutions that joined another caller's in-flight fetch.",
		}),
	}
	collectors := []prometheus.Collector{
		o.resolves, o.fetchDuration, o.fetchErrors, o.fetchedBytes,
		o.renderDuration, o.fallbacks, o.sharedFetches,
		version.NewCollector(namespace),
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return o, nil
}

func (o *PrometheusObserver) RecordResolve(outcome string, duration time.Duration) {
	o.resolves.WithLabelValues(outcome).Inc()
}

func (o *PrometheusObserver) RecordFetch(duration time.Duration, sizeBytes int, err error) {
	o.fetchDuration.Observe(duration.Seconds())
	if err != nil {
		o.fetchErrors.Inc()
		return
	}
	o.fetchedBytes.Add(float64(sizeBytes))
}

func (o *PrometheusObserver) RecordRender(outcome string, duration time.Duration) {
	o.renderDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (o *PrometheusObserver) RecordFallback(reason string) {
	o.fallbacks.WithLabelValues(reason).Inc()
}

func (o *PrometheusObserver) RecordSharedFetch() {
	o.sharedFetches.Inc()
}

type nop struct{}

// Nop discards everything.
var Nop Observer = nop{}

func (nop) RecordResolve(string, time.Duration) {}

func (nop) RecordFetch(time.Duration, int, error) {}

func (nop) RecordRender(string, time.Duration) {}

func (nop) RecordFallback(string) {}

func (nop) RecordSharedFetch() {}
