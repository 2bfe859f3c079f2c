package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/metric"
)

// Pool runs a handler over queued work items on a fixed number of goroutines.
type Pool[T any] struct {
	name      string
	workers   int
	queueSize int
	handler   func(context.Context, T) error
	onError   func(T, error)
	logger    *slog.Logger

	queue    chan T
	stopping chan struct{}
	metrics  *poolMetrics
	wg       sync.WaitGroup

	// Submit holds the read lock while queueing; Stop takes the write lock
	// before closing the queue.
	lifecycleMu sync.RWMutex
	started     bool
	stopped     bool
	stopOnce    sync.Once

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	metricsRegistry *metric.MetricsRegistry
}

type poolMetrics struct {
	queueDepth     prometheus.Gauge
	utilization    prometheus.Gauge
	submitted      prometheus.Counter
	processed      prometheus.Counter
	failed         prometheus.Counter
	dropped        prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithMetricsRegistry registers the pool's metrics, labelled with the pool name.
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry) Option[T] {
	return func(p *Pool[T]) {
		p.metricsRegistry = registry
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(p *Pool[T]) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithErrorHandler is called with every work item whose handler failed.
func WithErrorHandler[T any](fn func(T, error)) Option[T] {
	return func(p *Pool[T]) {
		p.onError = fn
	}
}

// NewPool creates a stopped pool. workers and queueSize default to 10 and 1000.
func NewPool[T any](name string, workers, queueSize int, handler func(context.Context, T) error, opts ...Option[T]) (*Pool[T], error) {
	if handler == nil {
		return nil, errors.WrapFatal(ErrNilHandler, "Pool", "NewPool", "handler validation")
	}
	if workers <= 0 {
		workers = 10
	}
	if queueSize <= 0 {
		queueSize = 1000
	}

	p := &Pool[T]{
		name:      name,
		workers:   workers,
		queueSize: queueSize,
		handler:   handler,
		logger:    slog.Default(),
		queue:     make(chan T, queueSize),
		stopping:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.metricsRegistry != nil {
		m, err := newPoolMetrics(p.metricsRegistry, name)
		if err != nil {
			return nil, errors.WrapTransient(err, "Pool", "NewPool", "metrics registration")
		}
		p.metrics = m
	}

	return p, nil
}

func newPoolMetrics(registry *metric.MetricsRegistry, name string) (*poolMetrics, error) {
	labels := prometheus.Labels{"pool": name}
	opts := func(metricName, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   "fleetbus",
			Subsystem:   "worker",
			Name:        metricName,
			Help:        help,
			ConstLabels: labels,
		}
	}

	m := &poolMetrics{
		queueDepth:  prometheus.NewGauge(prometheus.GaugeOpts(opts("queue_depth", "Current worker pool queue depth"))),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts(opts("utilization", "Worker pool queue utilization (0-1)"))),
		submitted:   prometheus.NewCounter(prometheus.CounterOpts(opts("submitted_total", "Total work items submitted"))),
		processed:   prometheus.NewCounter(prometheus.CounterOpts(opts("processed_total", "Total work items processed"))),
		failed:      prometheus.NewCounter(prometheus.CounterOpts(opts("failed_total", "Total work items that failed processing"))),
		dropped:     prometheus.NewCounter(prometheus.CounterOpts(opts("dropped_total", "Total work items dropped due to full queue"))),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "fleetbus",
			Subsystem:   "worker",
			Name:        "processing_duration_seconds",
			Help:        "Time spent processing work items",
			ConstLabels: labels,
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"status"}),
	}

	owner := "worker_" + name
	for metricName, g := range map[string]prometheus.Gauge{"queue_depth": m.queueDepth, "utilization": m.utilization} {
		if err := registry.RegisterGauge(owner, metricName, g); err != nil {
			return nil, err
		}
	}
	for metricName, c := range map[string]prometheus.Counter{
		"submitted_total": m.submitted,
		"processed_total": m.processed,
		"failed_total":    m.failed,
		"dropped_total":   m.dropped,
	} {
		if err := registry.RegisterCounter(owner, metricName, c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterHistogramVec(owner, "processing_duration_seconds", m.processingTime); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the pool name used in metrics and logs.
func (p *Pool[T]) Name() string { return p.name }

// Submit queues work without blocking. A full queue drops the item and returns
// ErrQueueFull.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.RLock()
	defer p.lifecycleMu.RUnlock()

	if err := p.checkOpen(); err != nil {
		return err
	}

	select {
	case p.queue <- work:
		p.recordSubmitted()
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// SubmitWait queues work, waiting for room until ctx is done or the pool stops.
func (p *Pool[T]) SubmitWait(ctx context.Context, work T) error {
	p.lifecycleMu.RLock()
	defer p.lifecycleMu.RUnlock()

	if err := p.checkOpen(); err != nil {
		return err
	}

	select {
	case p.queue <- work:
		p.recordSubmitted()
		return nil
	case <-p.stopping:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool[T]) checkOpen() error {
	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}
	return nil
}

func (p *Pool[T]) recordSubmitted() {
	p.submitted.Add(1)
	if p.metrics != nil {
		p.metrics.submitted.Inc()
		p.metrics.queueDepth.Set(float64(len(p.queue)))
	}
}

// Start launches the workers. They exit when ctx is done or Stop is called.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	if p.metrics != nil {
		p.wg.Add(1)
		go p.metricsUpdater(ctx)
	}

	p.started = true
	p.logger.Debug("Worker pool started", "pool", p.name, "workers", p.workers, "queue_size", p.queueSize)
	return nil
}

// Stop closes the queue and waits up to timeout for queued work to finish.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.stopOnce.Do(func() { close(p.stopping) })

	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.queue),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, work)
		}
	}
}

func (p *Pool[T]) process(ctx context.Context, work T) {
	start := time.Now()
	err := p.handler(ctx, work)
	duration := time.Since(start)

	p.processed.Add(1)
	status := "success"
	if err != nil {
		status = "error"
		p.failed.Add(1)
		p.logger.Warn("Work item failed", "pool", p.name, "error", err, "class", errors.Classify(err).String())
		if p.onError != nil {
			p.onError(work, err)
		}
	}

	if p.metrics != nil {
		p.metrics.processed.Inc()
		if err != nil {
			p.metrics.failed.Inc()
		}
		p.metrics.processingTime.WithLabelValues(status).Observe(duration.Seconds())
	}
}

// metricsUpdater samples queue depth and utilization once a second.
func (p *Pool[T]) metricsUpdater(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopping:
			return
		case <-ticker.C:
			depth := float64(len(p.queue))
			p.metrics.queueDepth.Set(depth)
			p.metrics.utilization.Set(depth / float64(p.queueSize))
		}
	}
}
