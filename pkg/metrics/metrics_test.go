package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

func newPool(t *testing.T) *pool.Pool[int] {
	t.Helper()
	p := pool.NewWithCapacity[int](4,
		pool.WithName[int]("ints"),
		pool.WithLogger[int](zap.NewNop()),
	)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPoolCollector(t *testing.T) {
	p := newPool(t)
	refs := make([]*int, 5)
	for i := range refs {
		refs[i] = p.AllocRef(i)
	}
	p.FreeRef(refs[0])
	p.FreeRef(refs[1])
	p.AllocRef(9)

	c := NewPoolCollector("test", p)
	assert.Equal(t, 10, promtestutil.CollectAndCount(c))

	expected := `
# HELP test_pool_pages Number of pages owned by the pool
# TYPE test_pool_pages gauge
test_pool_pages{pool="ints"} 2
# HELP test_pool_live_slots Slots currently holding a value
# TYPE test_pool_live_slots gauge
test_pool_live_slots{pool="ints"} 4
# HELP test_pool_free_slots Slots on the free list
# TYPE test_pool_free_slots gauge
test_pool_free_slots{pool="ints"} 1
# HELP test_pool_unused_slots Slots never handed out
# TYPE test_pool_unused_slots gauge
test_pool_unused_slots{pool="ints"} 3
# HELP test_pool_allocations_total Slots handed out
# TYPE test_pool_allocations_total counter
test_pool_allocations_total{pool="ints"} 6
# HELP test_pool_reuses_total Allocations served from the free list
# TYPE test_pool_reuses_total counter
test_pool_reuses_total{pool="ints"} 1
`
	require.NoError(t, promtestutil.CollectAndCompare(c, strings.NewReader(expected),
		"test_pool_pages",
		"test_pool_live_slots",
		"test_pool_free_slots",
		"test_pool_unused_slots",
		"test_pool_allocations_total",
		"test_pool_reuses_total",
	))
}

func TestPoolCollectorReadsOnScrape(t *testing.T) {
	p := newPool(t)
	c := NewPoolCollector("test", p)

	const metric = `
# HELP test_pool_guards Outstanding guards
# TYPE test_pool_guards gauge
test_pool_guards{pool="ints"} %s
`
	require.NoError(t, promtestutil.CollectAndCompare(c,
		strings.NewReader(strings.Replace(metric, "%s", "0", 1)), "test_pool_guards"))

	g := p.AllocGuard(1)
	require.NoError(t, promtestutil.CollectAndCompare(c,
		strings.NewReader(strings.Replace(metric, "%s", "1", 1)), "test_pool_guards"))
	g.Release()
}

func TestRegisterPoolTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := newPool(t)

	require.NoError(t, RegisterPool(reg, "test", p))
	err := RegisterPool(reg, "test", p)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
}

func TestBenchMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	bm := NewBenchMetrics(reg, "test")

	bm.Cycles.WithLabelValues("ref").Add(100)
	bm.OpLatency.WithLabelValues("ref").Observe(50)
	bm.Throughput.WithLabelValues("ref").Set(2e6)

	assert.Equal(t, 100.0, promtestutil.ToFloat64(bm.Cycles.WithLabelValues("ref")))
	assert.Equal(t, 2e6, promtestutil.ToFloat64(bm.Throughput.WithLabelValues("ref")))
	assert.Equal(t, 1, promtestutil.CollectAndCount(bm.OpLatency))
}

func TestDump(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := newPool(t)
	p.AllocPtr()
	require.NoError(t, RegisterPool(reg, "slotpool", p))

	var buf bytes.Buffer
	require.NoError(t, Dump(reg, &buf))

	out := buf.String()
	assert.Contains(t, out, "# TYPE slotpool_pool_live_slots gauge")
	assert.Contains(t, out, `slotpool_pool_live_slots{pool="ints"} 1`)
	assert.Contains(t, out, `slotpool_pool_page_grows_total{pool="ints"} 0`)
}

func TestThroughputTracker(t *testing.T) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "tput"})
	tr := NewThroughputTracker(g)

	tr.Increment(500)
	tr.Increment(500)
	time.Sleep(10 * time.Millisecond)

	rate := tr.GetAndReset()
	assert.Greater(t, rate, 0.0)
	assert.Equal(t, rate, promtestutil.ToFloat64(g))

	assert.Zero(t, NewThroughputTracker(nil).GetAndReset())
}

func TestTimer(t *testing.T) {
	timer := NewTimer("phase")
	time.Sleep(time.Millisecond)
	assert.Equal(t, "phase", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
