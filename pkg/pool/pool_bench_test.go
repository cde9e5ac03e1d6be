package pool

import (
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type benchValue struct {
	A, B, C, D int64
}

func benchPool(pageLen int) *Pool[benchValue] {
	return NewWithCapacity(pageLen, WithLogger[benchValue](zap.NewNop()))
}

func BenchmarkAllocPtrFreePtr(b *testing.B) {
	p := benchPool(DefaultPageLen)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h := p.AllocPtr()
		p.FreePtr(h)
	}
}

func BenchmarkAllocRefFreeRef(b *testing.B) {
	p := benchPool(DefaultPageLen)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ref := p.AllocRef(benchValue{A: int64(i)})
		p.FreeRef(ref)
	}
}

func BenchmarkAllocGuard(b *testing.B) {
	p := benchPool(DefaultPageLen)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g := p.AllocGuard(benchValue{A: int64(i)})
		g.Release()
	}
}

func BenchmarkGrowth(b *testing.B) {
	for _, pageLen := range []int{16, 256, 4096} {
		b.Run(fmt.Sprintf("page_%d", pageLen), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				p := benchPool(pageLen)
				for j := 0; j < 10000; j++ {
					p.AllocPtr()
				}
				_ = p.Close()
			}
		})
	}
}

func BenchmarkParallel(b *testing.B) {
	p := benchPool(DefaultPageLen)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ref := p.AllocRef(benchValue{})
			p.FreeRef(ref)
		}
	})
}

// BenchmarkSyncPool is the baseline the pool is compared against.
func BenchmarkSyncPool(b *testing.B) {
	sp := sync.Pool{New: func() interface{} { return new(benchValue) }}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v := sp.Get().(*benchValue)
		v.A = int64(i)
		sp.Put(v)
	}
}
