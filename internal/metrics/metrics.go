// Package metrics holds the gateway's prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bucketgw"

// Metrics owns a private registry so tests and multiple servers in one
// process never collide.
type Metrics struct {
	reg *prometheus.Registry

	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	StoreRequests *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec
	TasksTotal    *prometheus.CounterVec
	TasksInFlight *prometheus.GaugeVec
	TaskDuration  *prometheus.HistogramVec
	ProbeMessages *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		StoreRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "requests_total",
			Help:      "Object store calls by operation and outcome",
		}, []string{"op", "status"}),
		StoreDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "request_duration_seconds",
			Help:      "Object store call latency by operation",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"op"}),
		TasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "completed_total",
			Help:      "Async tasks by name and outcome",
		}, []string{"task", "status"}),
		TasksInFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "in_flight",
			Help:      "Async tasks currently executing",
		}, []string{"task"}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "duration_seconds",
			Help:      "Async task execution time",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"task"}),
		ProbeMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "messages_total",
			Help:      "Liveness messages by direction",
		}, []string{"direction"}),
	}
}

// Registry exposes the registry, e.g. for testutil.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Middleware records every request under its route template, so
// /buckets/:bucketName is one series no matter how many buckets exist.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// ObserveStore has the s3.ObserveFunc signature.
func (m *Metrics) ObserveStore(op string, took time.Duration, err error) {
	m.StoreRequests.WithLabelValues(op, status(err)).Inc()
	m.StoreDuration.WithLabelValues(op).Observe(took.Seconds())
}

// Started and Finished implement tasks.Observer.
func (m *Metrics) Started(name string) { m.TasksInFlight.WithLabelValues(name).Inc() }

func (m *Metrics) Finished(name string, took time.Duration, err error) {
	m.TasksInFlight.WithLabelValues(name).Dec()
	m.TasksTotal.WithLabelValues(name, status(err)).Inc()
	m.TaskDuration.WithLabelValues(name).Observe(took.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
