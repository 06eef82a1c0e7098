// Package telemetry holds the Prometheus metrics of one import run. A run is
// a batch job, so metrics are pushed to a Pushgateway when it ends instead of
// being scraped.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "logimport"

// Buckets for time spent sleeping in the throttle per batch.
var ThrottleWaitBuckets = []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	reg *prometheus.Registry

	files         *prometheus.CounterVec
	linesRead     prometheus.Counter
	linesMatched  prometheus.Counter
	sent          prometheus.Counter
	publishErrors *prometheus.CounterVec
	throttleWait  prometheus.Histogram
	runDuration   prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed, by result (ok, failed).",
		}, []string{"result"}),
		linesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Lines read from source files.",
		}),
		linesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_matched_total",
			Help:      "Lines that passed the filter.",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_sent_total",
			Help:      "Records handed to the broker client.",
		}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Publish failures, by stage (send, delivery).",
		}, []string{"stage"}),
		throttleWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "throttle_wait_seconds",
			Help:      "Time spent in the throttle per send.",
			Buckets:   ThrottleWaitBuckets,
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run without errors.",
		}),
	}
	m.reg.MustRegister(
		m.files, m.linesRead, m.linesMatched, m.sent,
		m.publishErrors, m.throttleWait, m.runDuration, m.lastSuccess,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) FileDone(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.files.WithLabelValues("failed").Inc()
		return
	}
	m.files.WithLabelValues("ok").Inc()
}

func (m *Metrics) LineRead() {
	if m != nil {
		m.linesRead.Inc()
	}
}

func (m *Metrics) LineMatched() {
	if m != nil {
		m.linesMatched.Inc()
	}
}

func (m *Metrics) Sent() {
	if m != nil {
		m.sent.Inc()
	}
}

func (m *Metrics) SendFailed() {
	if m != nil {
		m.publishErrors.WithLabelValues("send").Inc()
	}
}

func (m *Metrics) DeliveryFailed() {
	if m != nil {
		m.publishErrors.WithLabelValues("delivery").Inc()
	}
}

func (m *Metrics) ThrottleWait(d time.Duration) {
	if m != nil {
		m.throttleWait.Observe(d.Seconds())
	}
}

func (m *Metrics) RunFinished(elapsed time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.runDuration.Set(elapsed.Seconds())
	if ok {
		m.lastSuccess.SetToCurrentTime()
	}
}

// Push sends every metric of the run to the Pushgateway at url, replacing the
// previous push of the same job and instance.
func (m *Metrics) Push(ctx context.Context, url, instance string) error {
	if m == nil || url == "" {
		return nil
	}
	p := push.New(url, namespace).Gatherer(m.reg)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("telemetry: push to %s: %w", url, err)
	}
	return nil
}
