// Package metrics exposes runq's Prometheus collectors on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/runq/internal/taskqueue"
)

const namespace = "runq"

// Metrics holds every collector. It satisfies taskqueue.MetricsHook and
// pebblestore.MetricsHook.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	tasksSubmitted  prometheus.Counter
	tasksLeased     prometheus.Counter
	leasesReclaimed prometheus.Counter
	outcomes        *prometheus.CounterVec
	queueTasks      *prometheus.GaugeVec
	activeLeases    prometheus.Gauge

	snapshotDuration prometheus.Histogram
	snapshotErrors   prometheus.Counter

	storageReadBytes   prometheus.Counter
	storageCommitOps   prometheus.Counter
	storageCommitBytes prometheus.Counter
	storageCommitTime  prometheus.Histogram

	authRejects *prometheus.CounterVec

	eventsAppended *prometheus.CounterVec
	eventsTrimmed  prometheus.Counter
	eventErrors    prometheus.Counter
}

// New builds and registers all collectors, plus Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Tasks accepted by submit.",
		}),
		tasksLeased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_leased_total",
			Help:      "Tasks handed out by lease.",
		}),
		leasesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leases_reclaimed_total",
			Help:      "Expired leases returned to pending by the sweep.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_outcomes_total",
			Help:      "Accepted results by resulting task state.",
		}, []string{"state"}),
		queueTasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_tasks",
			Help:      "Tasks per state as of the last stats call.",
		}, []string{"state"}),
		activeLeases: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_active_leases",
			Help:      "Active leases as of the last stats call.",
		}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_write_seconds",
			Help:      "Time to write a full queue snapshot.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		snapshotErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_write_errors_total",
			Help:      "Failed snapshot writes.",
		}),
		storageReadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "read_bytes_total",
			Help:      "Bytes read from Pebble.",
		}),
		storageCommitOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "batch_ops_total",
			Help:      "Operations committed in Pebble batches.",
		}),
		storageCommitBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "batch_bytes_total",
			Help:      "Bytes committed in Pebble batches.",
		}),
		storageCommitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "batch_commit_seconds",
			Help:      "Pebble batch commit latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		authRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Requests rejected by signature verification.",
		}, []string{"reason"}),
		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "appended_total",
			Help:      "Task events written to the journal, by kind.",
		}, []string{"kind"}),
		eventsTrimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "trimmed_total",
			Help:      "Task events removed by retention.",
		}),
		eventErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "append_errors_total",
			Help:      "Failed journal appends.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.tasksSubmitted,
		m.tasksLeased,
		m.leasesReclaimed,
		m.outcomes,
		m.queueTasks,
		m.activeLeases,
		m.snapshotDuration,
		m.snapshotErrors,
		m.storageReadBytes,
		m.storageCommitOps,
		m.storageCommitBytes,
		m.storageCommitTime,
		m.authRejects,
		m.eventsAppended,
		m.eventsTrimmed,
		m.eventErrors,
	)
	return m
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one finished HTTP request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// AuthRejected counts a rejected request. Suitable for auth.Options.OnReject.
func (m *Metrics) AuthRejected(reason string) {
	m.authRejects.WithLabelValues(reason).Inc()
}

// SetQueueStats publishes the latest per-state counts.
func (m *Metrics) SetQueueStats(st taskqueue.Stats) {
	for state, n := range st.ByState {
		m.queueTasks.WithLabelValues(string(state)).Set(float64(n))
	}
	m.activeLeases.Set(float64(st.Leases))
}

func (m *Metrics) ObserveSubmitted(n int) { m.tasksSubmitted.Add(float64(n)) }

func (m *Metrics) ObserveLeased(n int) { m.tasksLeased.Add(float64(n)) }

func (m *Metrics) ObserveReclaimed(n int) { m.leasesReclaimed.Add(float64(n)) }

func (m *Metrics) ObserveOutcome(to taskqueue.State) {
	m.outcomes.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) ObserveSnapshot(elapsed time.Duration, err error) {
	m.snapshotDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.snapshotErrors.Inc()
	}
}

func (m *Metrics) ObserveRead(_ time.Duration, bytes int) {
	m.storageReadBytes.Add(float64(bytes))
}

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	m.storageCommitOps.Add(float64(numOps))
	m.storageCommitBytes.Add(float64(bytes))
	m.storageCommitTime.Observe(elapsed.Seconds())
}

// ObserveEvents counts journal appends. A non-nil err counts one failed batch.
func (m *Metrics) ObserveEvents(kinds []string, err error) {
	if err != nil {
		m.eventErrors.Inc()
		return
	}
	for _, k := range kinds {
		m.eventsAppended.WithLabelValues(k).Inc()
	}
}

// EventsTrimmed counts entries removed by retention. Suitable for eventlog.Log.OnTrim.
func (m *Metrics) EventsTrimmed(n int) { m.eventsTrimmed.Add(float64(n)) }
