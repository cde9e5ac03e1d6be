// Package bench drives concurrent workloads against a slot pool and
// reports throughput, latency and pool behaviour.
package bench

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/slotpool/pkg/config"
	"github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/logger"
	"github.com/ajitpratap0/slotpool/pkg/metrics"
	"github.com/ajitpratap0/slotpool/pkg/observability"
	"github.com/ajitpratap0/slotpool/pkg/performance"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// checkEvery is how many cycles a worker runs between context checks.
const checkEvery = 1024

// Payload is the fixed-size value cycled through the pool.
type Payload struct {
	Worker int
	Seq    int
	Data   [48]byte
}

func (p *Payload) fill(worker, seq int) {
	p.Worker = worker
	p.Seq = seq
	p.Data[0] = byte(seq)
	p.Data[len(p.Data)-1] = byte(worker)
}

func (p *Payload) check(worker, seq int) error {
	if p.Worker != worker || p.Seq != seq || p.Data[0] != byte(seq) || p.Data[len(p.Data)-1] != byte(worker) {
		return errors.New(errors.ErrorTypeInternal, "payload overwritten while held").
			WithDetail("worker", worker).
			WithDetail("seq", seq).
			WithDetail("found_worker", p.Worker).
			WithDetail("found_seq", p.Seq)
	}
	return nil
}

// Runner runs one workload against its own pool.
type Runner struct {
	cfg    config.BenchConfig
	pool   *pool.Pool[Payload]
	logger *zap.Logger

	metrics        *metrics.BenchMetrics
	tracer         trace.Tracer
	beforeTeardown func(*pool.Pool[Payload])

	destroyed atomic.Int64
	ran       atomic.Bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records cycle counts, sampled latencies and throughput.
func WithMetrics(bm *metrics.BenchMetrics) Option {
	return func(r *Runner) {
		r.metrics = bm
	}
}

// WithTracer traces the run phases.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithBeforeTeardown registers fn to run after verification, while the
// pool is still open.
func WithBeforeTeardown(fn func(*pool.Pool[Payload])) Option {
	return func(r *Runner) {
		r.beforeTeardown = fn
	}
}

// NewRunner validates cfg and creates the pool under test.
func NewRunner(cfg config.BenchConfig, poolCfg config.PoolConfig, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:    cfg,
		logger: logger.Get().Named("bench"),
		tracer: noop.NewTracerProvider().Tracer("bench"),
	}
	for _, opt := range opts {
		opt(r)
	}

	name := poolCfg.Name
	if name == "" {
		name = "bench"
	}
	r.pool = pool.NewWithCapacity(poolCfg.PageLen,
		pool.WithName[Payload](name),
		pool.WithLogger[Payload](r.logger),
		pool.WithDestructor(func(*Payload) { r.destroyed.Add(1) }),
	)
	r.logger = r.logger.With(zap.String("mode", cfg.Mode))
	return r, nil
}

// Pool returns the pool under test.
func (r *Runner) Pool() *pool.Pool[Payload] {
	return r.pool
}

// Run executes the workload, verifies and closes the pool, and returns the
// report. A Runner can run once.
func (r *Runner) Run(ctx context.Context) (rep *Report, err error) {
	if !r.ran.CompareAndSwap(false, true) {
		return nil, errors.New(errors.ErrorTypeClosed, "runner already used")
	}

	workers := r.cfg.GetWorkers()
	rep = &Report{
		Mode:      r.cfg.Mode,
		Workers:   workers,
		Cycles:    r.cfg.Cycles,
		Hold:      r.cfg.Hold,
		PageLen:   r.pool.PageLen(),
		StartedAt: time.Now().UTC(),
	}

	pt := observability.NewPhaseTracer(ctx, r.tracer, "bench.run")
	pt.Root().SetAttribute("mode", r.cfg.Mode)
	pt.Root().SetAttribute("workers", workers)
	defer func() { pt.End(err) }()
	log := observability.LoggerWithSpan(pt.Context(), r.logger)

	log.Info("workload starting",
		zap.Int("workers", workers),
		zap.Int("cycles", r.cfg.Cycles),
		zap.Int("hold", r.cfg.Hold),
		zap.Int("page_len", r.pool.PageLen()))

	err = pt.Phase("workload", func(ctx context.Context, span *observability.Span) error {
		if err := r.runWorkload(ctx, workers, rep); err != nil {
			return err
		}
		span.SetAttribute("cycles", rep.TotalCycles)
		span.SetAttribute("throughput", rep.Throughput)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = pt.Phase("verify", func(ctx context.Context, span *observability.Span) error {
		if err := r.pool.Verify(); err != nil {
			return err
		}
		rep.Verified = true
		rep.Pool = r.pool.Stats()
		span.SetAttribute("pages", rep.Pool.Pages)
		span.AddEvent("pool.verified",
			attribute.Int("live", rep.Pool.Live),
			attribute.Int("free", rep.Pool.Free))
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.beforeTeardown != nil {
		r.beforeTeardown(r.pool)
	}

	err = pt.Phase("teardown", func(ctx context.Context, span *observability.Span) error {
		if err := r.pool.Close(); err != nil {
			return err
		}
		log.Debug("pool torn down", zap.Duration("took", span.Duration()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	rep.Destroyed = r.destroyed.Load()

	log.Info("workload finished",
		zap.Uint64("cycles", rep.TotalCycles),
		zap.Duration("duration", rep.Duration),
		zap.Float64("cycles_per_second", rep.Throughput),
		zap.Int("pages", rep.Pool.Pages),
		zap.Int64("destroyed", rep.Destroyed))
	return rep, nil
}

func (r *Runner) runWorkload(ctx context.Context, workers int, rep *Report) error {
	gc := performance.TakeGCSnapshot()
	latency := performance.NewLatencyTracker(0)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	var resources chan performance.ResourceSummary
	if r.cfg.MonitorInterval > 0 {
		rm, err := performance.NewResourceMonitor()
		if err != nil {
			r.logger.Warn("resource monitoring disabled", zap.Error(err))
		} else {
			resources = make(chan performance.ResourceSummary, 1)
			go func() { resources <- rm.Sample(monitorCtx, r.cfg.MonitorInterval) }()
		}
	}

	var tracker *metrics.ThroughputTracker
	if r.metrics != nil {
		tracker = metrics.NewThroughputTracker(r.metrics.Throughput.WithLabelValues(r.cfg.Mode))
	}

	var completed atomic.Uint64
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			local := performance.NewLatencyTracker(0)
			n, err := r.worker(gctx, w, local)
			completed.Add(uint64(n)) //nolint:gosec // n is non-negative
			latency.Merge(local)
			return err
		})
	}
	err := g.Wait()
	rep.Duration = time.Since(start)
	stopMonitor()

	rep.TotalCycles = completed.Load()
	if secs := rep.Duration.Seconds(); secs > 0 {
		rep.Throughput = float64(rep.TotalCycles) / secs
	}
	rep.Latency = latency.Summary()
	rep.GC = gc.Since()
	if resources != nil {
		sum := <-resources
		rep.Resources = &sum
	}
	if tracker != nil {
		tracker.Increment(int64(rep.TotalCycles)) //nolint:gosec // bounded by workers*cycles
		tracker.GetAndReset()
		r.metrics.Cycles.WithLabelValues(r.cfg.Mode).Add(float64(rep.TotalCycles))
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// worker runs the configured cycles and returns how many completed. A
// contract violation panic is returned as an error.
func (r *Runner) worker(ctx context.Context, id int, lt *performance.LatencyTracker) (done int, err error) {
	defer func() {
		if v := recover(); v != nil {
			if e, ok := errors.FromPanic(v); ok {
				err = e.WithDetail("worker", id)
				return
			}
			panic(v)
		}
	}()

	var observe func(time.Duration)
	if r.metrics != nil {
		hist := r.metrics.OpLatency.WithLabelValues(r.cfg.Mode)
		observe = func(d time.Duration) { hist.Observe(float64(d.Nanoseconds())) }
	}
	sampled := func(seq int) bool {
		return r.cfg.IsSampling() && seq%r.cfg.SampleEvery == 0
	}

	var cycle func(seq int) error
	var drain func() error
	switch r.cfg.Mode {
	case config.ModeRaw:
		cycle, drain = r.rawCycle(id)
	case config.ModeRef:
		cycle, drain = r.refCycle(id)
	case config.ModeGuard:
		cycle, drain = r.guardCycle(id)
	case config.ModeScope:
		cycle, drain = r.scopeCycle(id)
	default:
		return 0, errors.Newf(errors.ErrorTypeConfig, "unknown mode %q", r.cfg.Mode)
	}

	for seq := 0; seq < r.cfg.Cycles; seq++ {
		if seq%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				if derr := drain(); derr != nil {
					return done, derr
				}
				return done, err
			}
		}
		if sampled(seq) {
			start := time.Now()
			err = cycle(seq)
			d := time.Since(start)
			lt.Record(d)
			if observe != nil {
				observe(d)
			}
		} else {
			err = cycle(seq)
		}
		if err != nil {
			return done, err
		}
		done++
	}
	return done, drain()
}

// ring holds up to n values, handing back the oldest when full.
type ring[V any] struct {
	items []V
	seqs  []int
	head  int
	size  int
}

func newRing[V any](n int) *ring[V] {
	return &ring[V]{items: make([]V, n), seqs: make([]int, n)}
}

// push stores v and returns the evicted value, if any.
func (rg *ring[V]) push(v V, seq int) (V, int, bool) {
	var zero V
	if len(rg.items) == 0 {
		return v, seq, true
	}
	if rg.size < len(rg.items) {
		idx := (rg.head + rg.size) % len(rg.items)
		rg.items[idx], rg.seqs[idx] = v, seq
		rg.size++
		return zero, 0, false
	}
	old, oldSeq := rg.items[rg.head], rg.seqs[rg.head]
	rg.items[rg.head], rg.seqs[rg.head] = v, seq
	rg.head = (rg.head + 1) % len(rg.items)
	return old, oldSeq, true
}

// drain calls fn on every held value, oldest first, and empties the ring.
func (rg *ring[V]) drain(fn func(V, int) error) error {
	for rg.size > 0 {
		v, seq := rg.items[rg.head], rg.seqs[rg.head]
		var zero V
		rg.items[rg.head] = zero
		rg.head = (rg.head + 1) % len(rg.items)
		rg.size--
		if err := fn(v, seq); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) rawCycle(id int) (func(int) error, func() error) {
	held := newRing[pool.Handle](r.cfg.Hold)
	release := func(h pool.Handle, seq int) error {
		if err := r.pool.Deref(h).check(id, seq); err != nil {
			return err
		}
		r.pool.FreePtr(h)
		return nil
	}
	cycle := func(seq int) error {
		h := r.pool.AllocPtr()
		r.pool.Deref(h).fill(id, seq)
		if old, oldSeq, ok := held.push(h, seq); ok {
			return release(old, oldSeq)
		}
		return nil
	}
	return cycle, func() error { return held.drain(release) }
}

func (r *Runner) refCycle(id int) (func(int) error, func() error) {
	held := newRing[*Payload](r.cfg.Hold)
	release := func(ref *Payload, seq int) error {
		if err := ref.check(id, seq); err != nil {
			return err
		}
		r.pool.FreeRef(ref)
		return nil
	}
	cycle := func(seq int) error {
		var v Payload
		v.fill(id, seq)
		ref := r.pool.AllocRef(v)
		if old, oldSeq, ok := held.push(ref, seq); ok {
			return release(old, oldSeq)
		}
		return nil
	}
	return cycle, func() error { return held.drain(release) }
}

func (r *Runner) guardCycle(id int) (func(int) error, func() error) {
	held := newRing[*pool.Guard[Payload]](r.cfg.Hold)
	release := func(g *pool.Guard[Payload], seq int) error {
		defer g.Release()
		return g.Get().check(id, seq)
	}
	cycle := func(seq int) error {
		var v Payload
		v.fill(id, seq)
		g := r.pool.AllocGuard(v)
		if old, oldSeq, ok := held.push(g, seq); ok {
			return release(old, oldSeq)
		}
		return nil
	}
	return cycle, func() error { return held.drain(release) }
}

// scopeCycle nests Hold scopes per cycle, so up to Hold+1 values are live
// at once within a cycle.
func (r *Runner) scopeCycle(id int) (func(int) error, func() error) {
	var nest func(depth, seq int) error
	nest = func(depth, seq int) error {
		var v Payload
		v.fill(id, seq)
		return r.pool.Scope(v, func(p *Payload) error {
			if depth > 0 {
				if err := nest(depth-1, seq); err != nil {
					return err
				}
			}
			return p.check(id, seq)
		})
	}
	cycle := func(seq int) error { return nest(r.cfg.Hold, seq) }
	return cycle, func() error { return nil }
}
