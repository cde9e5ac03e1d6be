// Package slotpool provides a goroutine-safe, fixed-slot memory pool for
// Go values of a single type, plus the tooling to benchmark and inspect it.
//
// A pool hands out slots from pre-allocated pages, keeps released slots on
// a free list threaded through the slots themselves, and grows by adding
// whole pages. Slot addresses never move, so references stay valid until
// the pool is closed.
//
// # Architecture
//
// The module is organized in layers:
//
//  1. pkg/pool: the allocator. Pool[T] with raw handles (AllocPtr,
//     Deref, FreePtr), references (AllocRef, FreeRef), guards (AllocGuard,
//     Scope) and teardown (Close).
//
//  2. Ambient packages: pkg/errors (typed errors), pkg/logger (zap),
//     pkg/config (YAML configuration), pkg/metrics (Prometheus collectors).
//
//  3. Tooling: pkg/performance (resource and latency sampling),
//     pkg/observability (OpenTelemetry spans), pkg/compression and pkg/json
//     (report output), internal/bench (the workload runner) and
//     cmd/slotpool (the CLI).
//
// # Quick Start
//
//	import "github.com/ajitpratap0/slotpool/pkg/pool"
//
//	type Order struct {
//	    ID  uint64
//	    Qty int
//	}
//
//	p := pool.NewWithCapacity[Order](1024,
//	    pool.WithDestructor(func(o *Order) { releaseOrder(o) }),
//	)
//	defer p.Close()
//
//	g := p.AllocGuard(Order{ID: 42})
//	defer g.Release()
//	g.Get().Qty++
//
// # Benchmarking
//
// The slotpool command drives concurrent workloads against a fresh pool:
//
//	slotpool bench --mode all --workers 8 --cycles 100000 --hold 16
//	slotpool bench --config bench.yaml --report out.json.zst --metrics
//	slotpool demo --page-len 4 --count 5
//	slotpool init-config bench.yaml
//
// Each run verifies the pool's bookkeeping before closing it and reports
// throughput, sampled latency percentiles, page usage and GC activity.
//
// # Configuration
//
// Configuration files are YAML with sections pool, logging, metrics,
// tracing and bench. Environment variables are supported with ${VAR_NAME}
// and ${VAR_NAME:-default} syntax, and a .env file is loaded if present.
package slotpool
