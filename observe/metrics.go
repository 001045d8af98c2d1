// Package observe exports event dispatch and operation metrics to Prometheus.
package observe

import (
	"context"
	"time"

	"github.com/leandroluk/oxm/core"
	"github.com/leandroluk/oxm/events"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for event dispatches and driver operations.
type Metrics struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	listenerGauge    *prometheus.GaugeVec
	operationTotal   *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
}

var _ core.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them on reg. A nil reg
// selects prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "oxm",
				Subsystem: "events",
				Name:      "dispatch_total",
				Help:      "Total number of event dispatches",
			},
			[]string{"event", "category", "outcome"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "oxm",
				Subsystem: "events",
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent running the listeners of an event",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
			},
			[]string{"event"},
		),
		listenerGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "oxm",
				Subsystem: "events",
				Name:      "listeners",
				Help:      "Listeners invoked by the last dispatch of an event",
			},
			[]string{"event"},
		),
		operationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "oxm",
				Subsystem: "operations",
				Name:      "total",
				Help:      "Total number of mapper operations",
			},
			[]string{"op", "outcome"},
		),
		operationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "oxm",
				Subsystem: "operations",
				Name:      "duration_seconds",
				Help:      "Duration of mapper operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
	reg.MustRegister(m.dispatchTotal, m.dispatchDuration, m.listenerGauge, m.operationTotal, m.operationLatency)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveDispatch implements core.Observer.
func (m *Metrics) ObserveDispatch(name events.Name, listenerCount int, elapsed time.Duration, err error) {
	category := "unknown"
	if name.Known() {
		category = string(name.Category())
	}
	m.dispatchTotal.WithLabelValues(string(name), category, outcome(err)).Inc()
	m.dispatchDuration.WithLabelValues(string(name)).Observe(elapsed.Seconds())
	m.listenerGauge.WithLabelValues(string(name)).Set(float64(listenerCount))
}

// Attach makes m observe every dispatch of em.
func (m *Metrics) Attach(em *core.EventManager) { em.Observe(m) }

// Middleware returns a core.Middleware recording every operation.
//
// Example:
//
//	core.Use(metrics.Middleware())
func (m *Metrics) Middleware() core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, op core.Operation, payload any) error {
			start := time.Now()
			err := next(ctx, op, payload)
			m.operationLatency.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())
			m.operationTotal.WithLabelValues(string(op), outcome(err)).Inc()
			return err
		}
	}
}
