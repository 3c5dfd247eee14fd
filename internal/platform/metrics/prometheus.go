package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type counterEvent struct {
	vec    *prometheus.CounterVec
	labels []string
}

// PrometheusRecorder implements Recorder on a private registry. Counter
// increments are queued on a channel and applied by a background goroutine;
// Flush applies everything queued so far.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	webhooks      *prometheus.CounterVec
	parseOutcomes *prometheus.CounterVec
	inbound       *prometheus.CounterVec
	sends         *prometheus.CounterVec
	sendDuration  *prometheus.HistogramVec
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec

	queue   chan counterEvent
	started bool
	mu      sync.Mutex
	done    chan struct{}
}

// NewPrometheus builds a recorder with all series registered under the given
// namespace (one namespace per service binary).
func NewPrometheus(namespace string) *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		queue:    make(chan counterEvent, 1024),
		done:     make(chan struct{}),
	}

	r.webhooks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhooks_received_total",
		Help:      "Inbound provider webhooks by provider and status.",
	}, []string{"provider", "status"})

	r.parseOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "parse_outcomes_total",
		Help:      "Command parser outcomes.",
	}, []string{"outcome"})

	r.inbound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_processed_total",
		Help:      "Inbound messages processed by intent branch and status.",
	}, []string{"branch", "status"})

	r.sends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sends_total",
		Help:      "Outbound send attempts by backend and status.",
	}, []string{"backend", "status"})

	r.sendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "send_duration_seconds",
		Help:      "Duration of outbound send calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})

	r.jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Scheduler job runs by job type and status.",
	}, []string{"job", "status"})

	r.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of scheduler job runs.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})

	r.registry.MustRegister(
		r.webhooks, r.parseOutcomes, r.inbound,
		r.sends, r.sendDuration, r.jobRuns, r.jobDuration,
	)
	return r
}

func (r *PrometheusRecorder) enqueue(vec *prometheus.CounterVec, labels ...string) {
	select {
	case r.queue <- counterEvent{vec: vec, labels: labels}:
	default:
		// Queue full: apply inline rather than drop the observation.
		vec.WithLabelValues(labels...).Inc()
	}
}

func (r *PrometheusRecorder) IncWebhook(provider, status string) {
	r.enqueue(r.webhooks, provider, status)
}

func (r *PrometheusRecorder) IncParseOutcome(outcome string) {
	r.enqueue(r.parseOutcomes, outcome)
}

func (r *PrometheusRecorder) IncInboundProcessed(branch, status string) {
	r.enqueue(r.inbound, branch, status)
}

func (r *PrometheusRecorder) IncSend(backend, status string) {
	r.enqueue(r.sends, backend, status)
}

func (r *PrometheusRecorder) ObserveSendDuration(backend string, d time.Duration) {
	r.sendDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (r *PrometheusRecorder) IncJobRun(job, status string) {
	r.enqueue(r.jobRuns, job, status)
}

func (r *PrometheusRecorder) ObserveJobDuration(job string, d time.Duration) {
	r.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// Start launches the background applier. Safe to call once.
func (r *PrometheusRecorder) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		for {
			select {
			case ev := <-r.queue:
				ev.vec.WithLabelValues(ev.labels...).Inc()
			case <-ctx.Done():
				r.Flush()
				return
			}
		}
	}()
}

// Flush applies all currently queued increments.
func (r *PrometheusRecorder) Flush() {
	for {
		select {
		case ev := <-r.queue:
			ev.vec.WithLabelValues(ev.labels...).Inc()
		default:
			return
		}
	}
}

// Shutdown waits for the applier goroutine to finish flushing.
func (r *PrometheusRecorder) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		r.Flush()
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
