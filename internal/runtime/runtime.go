package runtime

import (
	"context"
	"errors"
	"time"

	cfgpkg "github.com/rzbill/runq/internal/config"
	"github.com/rzbill/runq/internal/eventlog"
	"github.com/rzbill/runq/internal/metrics"
	"github.com/rzbill/runq/internal/registry"
	pebblestore "github.com/rzbill/runq/internal/storage/pebble"
	"github.com/rzbill/runq/internal/taskqueue"
	logpkg "github.com/rzbill/runq/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Metrics is created when nil.
	Metrics *metrics.Metrics
	Logger  logpkg.Logger
	// Now overrides the clock used by the queue and registry.
	Now func() time.Time
}

// Runtime wires storage, the task queue, and the runner registry for a
// single-node instance.
type Runtime struct {
	db       *pebblestore.DB
	config   cfgpkg.Config
	queue    *taskqueue.Queue
	registry *registry.Registry
	events   *eventlog.Log
	metrics  *metrics.Metrics
	logger   logpkg.Logger
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	var events *eventlog.Log
	if !opts.Config.Events.Disabled {
		if events, err = eventlog.Open(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		events.OnTrim(opts.Metrics.EventsTrimmed)
	}
	qc := opts.Config.Queue
	queue := taskqueue.New(taskqueue.NewPebbleStore(db), taskqueue.Options{
		DefaultLeaseMs:    qc.DefaultLeaseMs,
		DefaultMaxRetries: qc.DefaultMaxRetries,
		MaxLeaseBatch:     qc.MaxLeaseBatch,
		EmptyBackoffMs:    qc.EmptyBackoffMs,
		LeasedBackoffMs:   qc.LeasedBackoffMs,
		OnEvents:          journal(events, opts.Metrics, opts.Logger),
		Now:               opts.Now,
		Metrics:           opts.Metrics,
		Logger:            opts.Logger,
	})
	reg := registry.New(db, registry.Options{
		TTL: time.Duration(opts.Config.Registry.RunnerTTLMs) * time.Millisecond,
		Now: opts.Now,
	})
	return &Runtime{
		db:       db,
		config:   opts.Config,
		queue:    queue,
		registry: reg,
		events:   events,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth confirms the store is readable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Ping()
}

// Queue returns the task queue.
func (r *Runtime) Queue() *taskqueue.Queue { return r.queue }

// Registry returns the runner registry.
func (r *Runtime) Registry() *registry.Registry { return r.registry }

// Events returns the task event journal, or nil when it is disabled.
func (r *Runtime) Events() *eventlog.Log { return r.events }

// Metrics returns the collectors shared by every component.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Logger returns the root logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// journal returns a queue event hook that appends to l. Append failures are
// logged and counted; they never fail the queue operation.
func journal(l *eventlog.Log, m *metrics.Metrics, logger logpkg.Logger) func([]taskqueue.Event) {
	if l == nil {
		return nil
	}
	return func(evs []taskqueue.Event) {
		out := make([]eventlog.Event, len(evs))
		kinds := make([]string, len(evs))
		for i, e := range evs {
			out[i] = eventlog.Event{
				At:       e.At,
				Kind:     string(e.Kind),
				TaskID:   e.TaskID,
				Type:     e.Type,
				LeaseID:  e.LeaseID,
				RunnerID: e.RunnerID,
				Retries:  e.Retries,
				Deadline: e.Deadline,
				Error:    e.Error,
			}
			kinds[i] = out[i].Kind
		}
		_, err := l.Append(context.Background(), out)
		m.ObserveEvents(kinds, err)
		if err != nil {
			logger.Error("event journal append failed", logpkg.Int("events", len(out)), logpkg.Err(err))
		}
	}
}
