// Package metrics exposes prometheus counters for dispatch, webhooks and job processing.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/flowforge/flowforge/pkg/eventbus"
	"github.com/flowforge/flowforge/pkg/events"
	"github.com/flowforge/flowforge/pkg/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flowforge"

// Webhook request outcomes.
const (
	WebhookAccepted = "accepted"
	WebhookRejected = "rejected"
	WebhookNotFound = "not_found"
	WebhookInvalid  = "invalid"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	ExecutionsTriggered *prometheus.CounterVec
	WebhookRequests     *prometheus.CounterVec
	Jobs                *prometheus.CounterVec
	JobDuration         prometheus.Histogram
	QueueJobs           *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return NewWithRegistry(reg, reg)
}

func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		ExecutionsTriggered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_triggered_total",
				Help:      "Executions created and enqueued, by trigger source",
			},
			[]string{"source"},
		),

		WebhookRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_requests_total",
				Help:      "Inbound webhook requests, by outcome",
			},
			[]string{"outcome"},
		),

		Jobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Job attempts, by outcome",
			},
			[]string{"outcome"},
		),

		JobDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of successful jobs",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),

		QueueJobs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_jobs",
				Help:      "Jobs held by the queue, by state",
			},
			[]string{"state"},
		),
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordQueue publishes a queue snapshot.
func (m *Metrics) RecordQueue(stats queue.Stats) {
	m.QueueJobs.WithLabelValues(string(queue.StatusWaiting)).Set(float64(stats.Waiting))
	m.QueueJobs.WithLabelValues(string(queue.StatusDelayed)).Set(float64(stats.Delayed))
	m.QueueJobs.WithLabelValues(string(queue.StatusActive)).Set(float64(stats.Active))
	m.QueueJobs.WithLabelValues(string(queue.StatusCompleted)).Set(float64(stats.Completed))
	m.QueueJobs.WithLabelValues(string(queue.StatusFailed)).Set(float64(stats.Failed))
}

// Observe counts lifecycle events as they arrive on bus.
func (m *Metrics) Observe(bus eventbus.EventSubscriber) error {
	handlers := map[events.EventType]eventbus.EventHandler{
		events.ExecutionQueuedEvent: func(_ context.Context, event any) error {
			if e, ok := event.(*events.ExecutionQueued); ok {
				m.ExecutionsTriggered.WithLabelValues(e.TriggeredBy).Inc()
			}

			return nil
		},
		events.JobCompletedEvent: func(_ context.Context, event any) error {
			if e, ok := event.(*events.JobCompleted); ok {
				m.Jobs.WithLabelValues("completed").Inc()
				m.JobDuration.Observe((time.Duration(e.DurationMs) * time.Millisecond).Seconds())
			}

			return nil
		},
		events.JobFailedEvent: func(_ context.Context, event any) error {
			if e, ok := event.(*events.JobFailed); ok {
				outcome := "failed"
				if e.Retrying {
					outcome = "retried"
				}

				m.Jobs.WithLabelValues(outcome).Inc()
			}

			return nil
		},
		events.JobStalledEvent: func(_ context.Context, _ any) error {
			m.Jobs.WithLabelValues("stalled").Inc()

			return nil
		},
	}

	for eventType, handler := range handlers {
		if err := bus.Handle(eventType, handler); err != nil {
			return err
		}
	}

	return nil
}
