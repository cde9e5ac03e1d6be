package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/slotpool/pkg/errors"
)

func TestNewDefaultIsValid(t *testing.T) {
	cfg := NewDefault()
	require.NoError(t, cfg.Validate())
	assert.Greater(t, cfg.Bench.GetWorkers(), 0)
	assert.True(t, cfg.Bench.IsSampling())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"page len", func(c *Config) { c.Pool.PageLen = 0 }, "pool.page_len"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"encoding", func(c *Config) { c.Logging.Encoding = "xml" }, "logging.encoding"},
		{"sampling", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, "tracing.sampling_rate"},
		{"workers", func(c *Config) { c.Bench.Workers = -1 }, "bench.workers"},
		{"cycles", func(c *Config) { c.Bench.Cycles = 0 }, "bench.cycles"},
		{"mode", func(c *Config) { c.Bench.Mode = "arena" }, "bench.mode"},
		{"hold", func(c *Config) { c.Bench.Hold = -2 }, "bench.hold"},
		{"sample every", func(c *Config) { c.Bench.SampleEvery = -1 }, "bench.sample_every"},
		{"monitor interval", func(c *Config) { c.Bench.MonitorInterval = -time.Second }, "bench.monitor_interval"},
		{"compression", func(c *Config) { c.Bench.Compression = "brotli" }, "bench.compression"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.field, e.Details["field"])
		})
	}
}

func TestGetWorkersFallsBackToNumCPU(t *testing.T) {
	b := BenchConfig{Workers: 0}
	assert.Greater(t, b.GetWorkers(), 0)
	b.Workers = 3
	assert.Equal(t, 3, b.GetWorkers())
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("SLOTPOOL_A", "alpha")
	t.Setenv("SLOTPOOL_LOOP", "${SLOTPOOL_A}")

	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"x: ${SLOTPOOL_A}", "x: alpha"},
		{"${SLOTPOOL_A}-${SLOTPOOL_A}", "alpha-alpha"},
		{"${SLOTPOOL_UNSET}", ""},
		{"${SLOTPOOL_UNSET:-fallback}", "fallback"},
		{"${SLOTPOOL_A:-fallback}", "alpha"},
		{"${SLOTPOOL_LOOP}", "${SLOTPOOL_A}"},
		{"open ${SLOTPOOL_A", "open ${SLOTPOOL_A"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, substituteEnvVars(tt.in), tt.in)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("SLOTPOOL_WORKERS", "6")
	path := filepath.Join(t.TempDir(), "bench.yaml")
	content := `
name: nightly
pool:
  name: orders
  page_len: 128
logging:
  level: debug
bench:
  workers: ${SLOTPOOL_WORKERS}
  cycles: 5000
  mode: guard
  hold: 16
  monitor_interval: 250ms
  report: out/report.json.zst
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "nightly", cfg.Name)
	assert.Equal(t, "orders", cfg.Pool.Name)
	assert.Equal(t, 128, cfg.Pool.PageLen)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Encoding, "default kept")
	assert.Equal(t, 6, cfg.Bench.Workers)
	assert.Equal(t, ModeGuard, cfg.Bench.Mode)
	assert.Equal(t, 16, cfg.Bench.Hold)
	assert.Equal(t, 250*time.Millisecond, cfg.Bench.MonitorInterval)
	assert.Equal(t, "out/report.json.zst", cfg.Bench.Report)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("pool: [unterminated"), 0600))
	_, err = LoadFile(bad)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	invalidMode := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalidMode, []byte("bench:\n  mode: arena\n"), 0600))
	_, err = LoadFile(invalidMode)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := NewDefault()
	cfg.Pool.PageLen = 4
	cfg.Bench.Mode = ModeScope
	cfg.Bench.Compression = "lz4"

	require.NoError(t, Save(path, cfg))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
