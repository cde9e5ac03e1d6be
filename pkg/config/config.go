package config

import (
	"runtime"
	"time"

	"github.com/ajitpratap0/slotpool/pkg/errors"
)

// Benchmark workload modes. Each exercises one pool API.
const (
	ModeRaw   = "raw"   // AllocPtr / FreePtr
	ModeRef   = "ref"   // AllocRef / FreeRef
	ModeGuard = "guard" // AllocGuard / Release
	ModeScope = "scope" // Scope
)

// Config is the configuration of the slotpool tool. Library users configure
// pools through options; this structure is what the CLI loads from YAML.
type Config struct {
	// Name identifies the run in logs and reports
	Name string `yaml:"name" json:"name"`
	// Version indicates the configuration version
	Version string `yaml:"version" json:"version"`

	// Pool settings for the pool under test
	Pool PoolConfig `yaml:"pool" json:"pool"`

	// Logging controls the global zap logger
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Metrics controls the Prometheus exposition dump
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Tracing controls OpenTelemetry spans around benchmark phases
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`

	// Bench describes the workload
	Bench BenchConfig `yaml:"bench" json:"bench"`
}

// PoolConfig configures the pool under test.
type PoolConfig struct {
	// Name labels the pool in logs and metrics
	Name    string `yaml:"name" json:"name"`
	// PageLen is the number of slots per page
	PageLen int    `yaml:"page_len" json:"page_len"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level       string   `yaml:"level" json:"level"`
	// Encoding is json or console
	Encoding    string   `yaml:"encoding" json:"encoding"`
	Development bool     `yaml:"development" json:"development"`
	OutputPaths []string `yaml:"output_paths" json:"output_paths"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
	// Output is a file path, or "-" for stdout
	Output    string `yaml:"output" json:"output"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"service_name" json:"service_name"`
	// SamplingRate is the fraction of traces kept (0.0-1.0)
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
}

// BenchConfig describes a benchmark workload.
type BenchConfig struct {
	// Workers is the number of concurrent goroutines (0 = NumCPU)
	Workers         int           `yaml:"workers" json:"workers"`
	// Cycles is the number of alloc/free cycles per worker
	Cycles          int           `yaml:"cycles" json:"cycles"`
	// Mode selects the API exercised: raw, ref, guard or scope
	Mode            string        `yaml:"mode" json:"mode"`
	// Hold keeps this many values alive per worker to force page growth
	Hold            int           `yaml:"hold" json:"hold"`
	// SampleEvery records the latency of every Nth cycle (0 = none)
	SampleEvery     int           `yaml:"sample_every" json:"sample_every"`
	// MonitorInterval is the resource sampling period (0 = disabled)
	MonitorInterval time.Duration `yaml:"monitor_interval" json:"monitor_interval"`
	// Report is the output path of the JSON report ("" = stdout)
	Report          string        `yaml:"report" json:"report"`
	// Compression for the report: none, gzip, zstd, lz4, snappy, s2 or
	// deflate. Empty infers it from the report file extension.
	Compression     string        `yaml:"compression" json:"compression"`
}

// NewDefault returns a configuration with defaults suitable for a quick
// local run.
func NewDefault() *Config {
	return &Config{
		Name:    "slotpool",
		Version: "1.0.0",
		Pool: PoolConfig{
			Name:    "bench",
			PageLen: 64,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stderr"},
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "slotpool",
			Output:    "-",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ServiceName:  "slotpool",
			SamplingRate: 1.0,
		},
		Bench: BenchConfig{
			Workers:         runtime.NumCPU(),
			Cycles:          100000,
			Mode:            ModeRef,
			Hold:            0,
			SampleEvery:     64,
			MonitorInterval: 100 * time.Millisecond,
		},
	}
}

// Validate validates the configuration for correctness. Errors are of type
// errors.ErrorTypeConfig and name the offending field.
func (c *Config) Validate() error {
	if c.Pool.PageLen <= 0 {
		return invalid("pool.page_len", "must be positive", c.Pool.PageLen)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("logging.level", "must be debug, info, warn or error", c.Logging.Level)
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		return invalid("logging.encoding", "must be json or console", c.Logging.Encoding)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return invalid("tracing.sampling_rate", "must be between 0 and 1", c.Tracing.SamplingRate)
	}
	return c.Bench.Validate()
}

// Validate checks the workload description.
func (b *BenchConfig) Validate() error {
	if b.Workers < 0 {
		return invalid("bench.workers", "cannot be negative", b.Workers)
	}
	if b.Cycles <= 0 {
		return invalid("bench.cycles", "must be positive", b.Cycles)
	}
	switch b.Mode {
	case ModeRaw, ModeRef, ModeGuard, ModeScope:
	default:
		return invalid("bench.mode", "must be raw, ref, guard or scope", b.Mode)
	}
	if b.Hold < 0 {
		return invalid("bench.hold", "cannot be negative", b.Hold)
	}
	if b.SampleEvery < 0 {
		return invalid("bench.sample_every", "cannot be negative", b.SampleEvery)
	}
	if b.MonitorInterval < 0 {
		return invalid("bench.monitor_interval", "cannot be negative", b.MonitorInterval)
	}
	switch b.Compression {
	case "", "none", "gzip", "zstd", "lz4", "snappy", "s2", "deflate":
	default:
		return invalid("bench.compression", "must be none, gzip, zstd, lz4, snappy, s2 or deflate", b.Compression)
	}
	return nil
}

// GetWorkers returns the number of workers, ensuring it's at least 1
func (b *BenchConfig) GetWorkers() int {
	if b.Workers <= 0 {
		return runtime.NumCPU()
	}
	return b.Workers
}

// IsSampling reports whether per-cycle latency is recorded.
func (b *BenchConfig) IsSampling() bool {
	return b.SampleEvery > 0
}

func invalid(field, msg string, value interface{}) error {
	return errors.New(errors.ErrorTypeConfig, field+" "+msg).
		WithDetail("field", field).
		WithDetail("value", value)
}
