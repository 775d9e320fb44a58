package services

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry holds every s5 metric; it is served on /metrics and pushed to the pushgateway.
var Registry = prometheus.NewRegistry()

var (
	requestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s5_api_request_total",
			Help: "Total management API requests",
		},
		[]string{"route"},
	)

	requestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s5_api_request_errors_total",
			Help: "Management API requests answered with status >= 400",
		},
		[]string{"route"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "s5_api_request_duration_seconds",
			Help:    "Duration of management API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	stageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s5_provision_stage_total",
			Help: "Provisioning stages run, by result",
		},
		[]string{"stage", "result"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "s5_provision_stage_duration_seconds",
			Help:    "Duration of provisioning stages",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	supervisorActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s5_supervisor_actions_total",
			Help: "Supervisor actions issued, by result",
		},
		[]string{"action", "result"},
	)

	serviceActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "s5_service_active",
			Help: "1 when the proxy service was last observed active",
		},
	)
)

// 本地计数器, 供健康检查接口使用
var totalRequests atomic.Int64
var totalErrors atomic.Int64

func init() {
	Registry.MustRegister(
		requestCount,
		requestErrors,
		requestDuration,
		stageTotal,
		stageDuration,
		supervisorActions,
		serviceActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func IncrementRequestCount(route string) {
	requestCount.WithLabelValues(route).Inc()
	totalRequests.Add(1)
}

func IncrementErrorCount(route string) {
	requestErrors.WithLabelValues(route).Inc()
	totalErrors.Add(1)
}

func RecordRequestDuration(route string, seconds float64) {
	requestDuration.WithLabelValues(route).Observe(seconds)
}

func GetTotalRequestCount() int64 {
	return totalRequests.Load()
}

func GetTotalErrorCount() int64 {
	return totalErrors.Load()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func recordStage(stage string, start time.Time, err error) {
	stageTotal.WithLabelValues(stage, resultLabel(err == nil)).Inc()
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func recordSupervisorAction(action string, ok bool) {
	supervisorActions.WithLabelValues(action, resultLabel(ok)).Inc()
}

func setServiceActive(active bool) {
	if active {
		serviceActive.Set(1)
	} else {
		serviceActive.Set(0)
	}
}

// MetricsHandler serves Registry in the Prometheus exposition format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

/**
 * Push the collected metrics to a Prometheus pushgateway
 * @param {string} addr - Pushgateway URL, empty disables pushing
 * @param {string} job - Job label
 * @returns {error} Push failure
 */
func PushMetrics(addr, job string) error {
	if addr == "" {
		return nil
	}
	if err := push.New(addr, job).Gatherer(Registry).Push(); err != nil {
		return fmt.Errorf("push metrics to '%s': %w", addr, err)
	}
	return nil
}
