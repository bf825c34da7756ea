package oidcly

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector receives verification counters. All methods must be safe
// for concurrent use. Implementations must never record tokens or claims.
type MetricsCollector interface {
	ValidationOK()
	// ValidationFailed receives the failure Kind as reason.
	ValidationFailed(reason string)
	// KeyRefresh is called after every network refresh of the key set.
	KeyRefresh(forced bool, err error)
}

type noopMetrics struct{}

func (noopMetrics) ValidationOK()           {}
func (noopMetrics) ValidationFailed(string) {}
func (noopMetrics) KeyRefresh(bool, error)  {}

// PrometheusCollector implements MetricsCollector with Prometheus counters.
type PrometheusCollector struct {
	validations *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
}

// NewPrometheusCollector creates the collector and registers its counters
// with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oidcly",
			Name:      "token_validations_total",
			Help:      "Bearer token verifications by result and failure kind.",
		}, []string{"result", "reason"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oidcly",
			Name:      "jwks_refreshes_total",
			Help:      "Signing key set refreshes by trigger and result.",
		}, []string{"forced", "result"}),
	}
	for _, col := range []prometheus.Collector{c.validations, c.refreshes} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *PrometheusCollector) ValidationOK() {
	c.validations.WithLabelValues("ok", "").Inc()
}

func (c *PrometheusCollector) ValidationFailed(reason string) {
	c.validations.WithLabelValues("failed", reason).Inc()
}

func (c *PrometheusCollector) KeyRefresh(forced bool, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.refreshes.WithLabelValues(strconv.FormatBool(forced), result).Inc()
}
