package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/internal/bench"
	"github.com/ajitpratap0/slotpool/pkg/compression"
	"github.com/ajitpratap0/slotpool/pkg/config"
	"github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/logger"
	"github.com/ajitpratap0/slotpool/pkg/metrics"
	"github.com/ajitpratap0/slotpool/pkg/observability"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// modeAll runs every mode in turn.
const modeAll = "all"

var allModes = []string{config.ModeRaw, config.ModeRef, config.ModeGuard, config.ModeScope}

type benchFlags struct {
	configFile string
	timeout    time.Duration

	workers, cycles, hold, pageLen, sampleEvery int
	monitorInterval                             time.Duration
	mode, report, compression, logLevel         string
	metrics, trace                              bool
}

func newBenchCmd() *cobra.Command {
	var f benchFlags
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a concurrent alloc/free workload",
		Long: `Run workers x cycles alloc/free cycles against a fresh pool, verify
the pool afterwards and write a JSON report. Flags override values from
the YAML configuration file.

Example:
  slotpool bench --mode all --workers 8 --cycles 100000 --hold 16 --report out.json.zst`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveBenchConfig(cmd, &f)
			if err != nil {
				return err
			}
			return runBench(cmd, cfg, f.timeout)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configFile, "config", "c", "", "Path to YAML configuration file (optional)")
	flags.DurationVar(&f.timeout, "timeout", 0, "Abort the run after this long (0 = no limit)")
	flags.IntVar(&f.workers, "workers", 0, "Number of concurrent workers (0 = NumCPU)")
	flags.IntVar(&f.cycles, "cycles", 0, "Alloc/free cycles per worker")
	flags.StringVar(&f.mode, "mode", "", "API exercised: raw, ref, guard, scope or all")
	flags.IntVar(&f.hold, "hold", 0, "Values each worker keeps alive. Higher values force page growth")
	flags.IntVar(&f.pageLen, "page-len", 0, "Slots per page")
	flags.IntVar(&f.sampleEvery, "sample-every", 0, "Record the latency of every Nth cycle (0 = off)")
	flags.DurationVar(&f.monitorInterval, "monitor-interval", 0, "Resource sampling interval (0 = off)")
	flags.StringVar(&f.report, "report", "", `Report output path ("-" = stdout)`)
	flags.StringVar(&f.compression, "compression", "", "Report compression: none, gzip, zstd, lz4, snappy, s2 or deflate (default: from extension)")
	flags.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&f.metrics, "metrics", false, "Dump Prometheus metrics after the run")
	flags.BoolVar(&f.trace, "trace", false, "Export run phase spans to stderr")
	return cmd
}

// resolveBenchConfig loads the configuration file, if any, and applies the
// flags that were set explicitly.
func resolveBenchConfig(cmd *cobra.Command, f *benchFlags) (*config.Config, error) {
	cfg := config.NewDefault()
	if f.configFile != "" {
		loaded, err := config.LoadFile(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	set := cmd.Flags().Changed
	if set("workers") {
		cfg.Bench.Workers = f.workers
	}
	if set("cycles") {
		cfg.Bench.Cycles = f.cycles
	}
	if set("mode") {
		cfg.Bench.Mode = f.mode
	}
	if set("hold") {
		cfg.Bench.Hold = f.hold
	}
	if set("page-len") {
		cfg.Pool.PageLen = f.pageLen
	}
	if set("sample-every") {
		cfg.Bench.SampleEvery = f.sampleEvery
	}
	if set("monitor-interval") {
		cfg.Bench.MonitorInterval = f.monitorInterval
	}
	if set("report") {
		cfg.Bench.Report = f.report
	}
	if set("compression") {
		cfg.Bench.Compression = f.compression
	}
	if set("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if set("metrics") {
		cfg.Metrics.Enabled = f.metrics
	}
	if set("trace") {
		cfg.Tracing.Enabled = f.trace
	}

	// "all" is expanded by runBench; validate with one concrete mode.
	check := *cfg
	if check.Bench.Mode == modeAll {
		check.Bench.Mode = config.ModeRef
	}
	if err := check.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runBench(cmd *cobra.Command, cfg *config.Config, timeout time.Duration) (err error) {
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
		OutputPaths: cfg.Logging.OutputPaths,
	}); err != nil {
		return err
	}
	log := logger.Get().With(zap.String("component", "slotpool-cli"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var tracer trace.Tracer
	if cfg.Tracing.Enabled {
		tcfg := observability.DefaultTracingConfig(cfg.Tracing.ServiceName)
		tcfg.ServiceVersion = version
		tcfg.SamplingRate = cfg.Tracing.SamplingRate
		tcfg.Output = cmd.ErrOrStderr()
		provider, err := observability.NewProvider(tcfg)
		if err != nil {
			return err
		}
		defer func() {
			if serr := provider.Shutdown(context.Background()); serr != nil {
				log.Warn("failed to flush traces", zap.Error(serr))
			}
		}()
		provider.SetGlobal()
		tracer = provider.Tracer()
	}

	registry := prometheus.NewRegistry()
	gatherers := prometheus.Gatherers{registry}
	var bm *metrics.BenchMetrics
	if cfg.Metrics.Enabled {
		bm = metrics.NewBenchMetrics(registry, cfg.Metrics.Namespace)
	}

	rw, err := bench.NewReportWriter(cfg.Bench.Report, cfg.Bench.Compression, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rw.Close(); err == nil {
			err = cerr
		}
	}()

	modes := []string{cfg.Bench.Mode}
	if cfg.Bench.Mode == modeAll {
		modes = allModes
	}
	for _, mode := range modes {
		bcfg := cfg.Bench
		bcfg.Mode = mode
		pcfg := cfg.Pool
		if len(modes) > 1 {
			pcfg.Name = fmt.Sprintf("%s-%s", cfg.Pool.Name, mode)
		}

		opts := []bench.Option{
			bench.WithLogger(log),
			bench.WithTracer(tracer),
			bench.WithBeforeTeardown(func(p *pool.Pool[bench.Payload]) {
				st := p.Stats()
				log.Debug("pool verified",
					zap.String("pool", st.Name),
					zap.Int("pages", st.Pages),
					zap.Uint64("reuses", st.Reuses))
			}),
		}
		if bm != nil {
			opts = append(opts, bench.WithMetrics(bm))
		}
		runner, err := bench.NewRunner(bcfg, pcfg, opts...)
		if err != nil {
			return err
		}
		if cfg.Metrics.Enabled {
			reg := prometheus.NewRegistry()
			if err := metrics.RegisterPool(reg, cfg.Metrics.Namespace, runner.Pool()); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "failed to register pool metrics")
			}
			gatherers = append(gatherers, reg)
		}

		rep, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		timer := metrics.NewTimer("report.write")
		if err := rw.Write(rep); err != nil {
			return err
		}
		log.Debug("report written",
			zap.String("mode", rep.Mode),
			zap.String("timer", timer.Name()),
			zap.Duration("elapsed", timer.Stop()))
		fmt.Fprintf(cmd.ErrOrStderr(), "%-5s %12d cycles %10s %14.0f cycles/s  pages=%d p99=%s\n",
			rep.Mode, rep.TotalCycles, rep.Duration.Round(time.Microsecond), rep.Throughput,
			rep.Pool.Pages, rep.Latency.P99)
	}

	if cfg.Metrics.Enabled {
		return dumpMetrics(gatherers, cfg.Metrics.Output, cmd.OutOrStdout())
	}
	return nil
}

// dumpMetrics writes the text exposition to stdout, or to path compressed
// according to its extension.
func dumpMetrics(g prometheus.Gatherer, path string, stdout io.Writer) error {
	if path == "" || path == "-" {
		return metrics.Dump(g, stdout)
	}
	comp, err := compression.NewCompressor(&compression.Config{
		Algorithm: compression.AlgorithmFromPath(path),
		Level:     compression.Default,
	})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := metrics.Dump(g, &buf); err != nil {
		return err
	}
	data, err := comp.Compress(buf.Bytes())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write metrics output").
			WithDetail("path", path)
	}
	return nil
}
