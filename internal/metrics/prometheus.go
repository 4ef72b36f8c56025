package metrics

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Capture outcomes.
const (
	OutcomeRecorded = "recorded"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// MetricsCollector instruments the capture pipeline and the query API. A nil
// collector is valid and records nothing.
type MetricsCollector struct {
	AppName         string
	Captures        *prometheus.CounterVec
	PersistDuration prometheus.Histogram
	NotifyErrors    prometheus.Counter
	QueryDuration   *prometheus.HistogramVec
	ProxyDuration   *prometheus.HistogramVec
	RateLimited     prometheus.Counter
	ActiveRequests  prometheus.Gauge
}

type MetricsResponse struct {
	AppName   string                 `json:"app_name"`
	Timestamp time.Time              `json:"timestamp"`
	Metrics   map[string]interface{} `json:"metrics"`
}

// NewMetricsCollector registers the collectors on reg, or on the default
// registry when reg is nil.
func NewMetricsCollector(namespace, appName string, reg prometheus.Registerer) *MetricsCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	app := prometheus.Labels{"app": appName}

	return &MetricsCollector{
		AppName: appName,
		Captures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "captures_total",
				Help:        "Captured exchanges by outcome",
				ConstLabels: app,
			},
			[]string{"outcome", "method", "status"},
		),

		PersistDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "persist_duration_seconds",
				Help:        "Time spent saving one api log",
				Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				ConstLabels: app,
			},
		),

		NotifyErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "notify_errors_total",
				Help:        "Failed alert notifications",
				ConstLabels: app,
			},
		),

		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "query_duration_seconds",
				Help:        "Query API latency",
				Buckets:     []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
				ConstLabels: app,
			},
			[]string{"status"},
		),

		ProxyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "proxy_duration_seconds",
				Help:        "Upstream round trip duration",
				Buckets:     []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
				ConstLabels: app,
			},
			[]string{"method", "status"},
		),

		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "rate_limited_total",
				Help:        "Query API requests rejected by the rate limiter",
				ConstLabels: app,
			},
		),

		ActiveRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "active_requests",
				Help:        "Requests currently inside the capture middleware",
				ConstLabels: app,
			},
		),
	}
}

func (m *MetricsCollector) ObserveCapture(outcome, method string, status int) {
	if m == nil {
		return
	}
	m.Captures.WithLabelValues(outcome, method, fmt.Sprint(status)).Inc()
}

func (m *MetricsCollector) ObservePersist(duration time.Duration) {
	if m == nil {
		return
	}
	m.PersistDuration.Observe(duration.Seconds())
}

func (m *MetricsCollector) IncNotifyErrors() {
	if m == nil {
		return
	}
	m.NotifyErrors.Inc()
}

func (m *MetricsCollector) ObserveQuery(status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(fmt.Sprint(status)).Observe(duration.Seconds())
}

func (m *MetricsCollector) ObserveProxy(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProxyDuration.WithLabelValues(method, fmt.Sprint(status)).Observe(duration.Seconds())
}

func (m *MetricsCollector) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

func (m *MetricsCollector) IncActiveRequests() {
	if m == nil {
		return
	}
	m.ActiveRequests.Inc()
}

func (m *MetricsCollector) DecActiveRequests() {
	if m == nil {
		return
	}
	m.ActiveRequests.Dec()
}

// GetMetricsJSON returns a JSON summary of the collectors
func (m *MetricsCollector) GetMetricsJSON() ([]byte, error) {
	metrics := MetricsResponse{
		AppName:   m.AppName,
		Timestamp: time.Now(),
		Metrics: map[string]interface{}{
			"captures_total":      collectValues(m.Captures),
			"persist_duration":    histogramSummary(m.PersistDuration),
			"notify_errors_total": collectValues(m.NotifyErrors)[""],
			"rate_limited_total":  collectValues(m.RateLimited)[""],
			"active_requests":     collectValues(m.ActiveRequests)[""],
		},
	}

	return json.Marshal(metrics)
}

// collectValues reads counter and gauge samples keyed by their variable
// labels ("" for unlabelled metrics).
func collectValues(c prometheus.Collector) map[string]float64 {
	values := make(map[string]float64)
	for _, metric := range collect(c) {
		switch {
		case metric.GetCounter() != nil:
			values[labelKey(metric)] = metric.GetCounter().GetValue()
		case metric.GetGauge() != nil:
			values[labelKey(metric)] = metric.GetGauge().GetValue()
		}
	}
	return values
}

func histogramSummary(c prometheus.Collector) map[string]float64 {
	summary := make(map[string]float64)
	for _, metric := range collect(c) {
		hist := metric.GetHistogram()
		summary["sum"] += hist.GetSampleSum()
		summary["count"] += float64(hist.GetSampleCount())
	}
	return summary
}

func collect(c prometheus.Collector) []*dto.Metric {
	ch := make(chan prometheus.Metric, 1000)
	c.Collect(ch)
	close(ch)

	out := make([]*dto.Metric, 0, len(ch))
	for metric := range ch {
		dtoMetric := &dto.Metric{}
		if err := metric.Write(dtoMetric); err != nil {
			continue
		}
		out = append(out, dtoMetric)
	}
	return out
}

func labelKey(metric *dto.Metric) string {
	var labels []string
	for _, label := range metric.GetLabel() {
		if label.GetName() == "app" {
			continue
		}
		labels = append(labels, fmt.Sprintf("%s=%s", label.GetName(), label.GetValue()))
	}
	return strings.Join(labels, ",")
}
