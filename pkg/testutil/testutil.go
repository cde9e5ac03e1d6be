// Package testutil provides testing utilities for slotpool
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t testing.TB) *zap.Logger {
	return zaptest.NewLogger(t)
}

// ObservedLogger returns a logger that records entries at level and above,
// along with the recorded entries.
func ObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ testing.TB) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// CheckedAllocator returns an arrow allocator that fails the test at cleanup
// if any bytes allocated through it were not freed.
func CheckedAllocator(t testing.TB) *memory.CheckedAllocator {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() { mem.AssertSize(t, 0) })
	return mem
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t testing.TB, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// DestructorCounter records destructor calls keyed by a value identity.
type DestructorCounter[K comparable] struct {
	mu    sync.Mutex
	calls map[K]int
	order []K
}

// NewDestructorCounter creates an empty counter.
func NewDestructorCounter[K comparable]() *DestructorCounter[K] {
	return &DestructorCounter[K]{calls: make(map[K]int)}
}

// Record notes one destructor call for k.
func (c *DestructorCounter[K]) Record(k K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[k]++
	c.order = append(c.order, k)
}

// Count returns how many times k was destructed.
func (c *DestructorCounter[K]) Count(k K) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[k]
}

// Total returns the number of destructor calls.
func (c *DestructorCounter[K]) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Order returns the keys in the order they were destructed.
func (c *DestructorCounter[K]) Order() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]K, len(c.order))
	copy(out, c.order)
	return out
}

// RequireExactlyOnce fails the test unless every key in keys was
// destructed exactly once and nothing else was destructed.
func (c *DestructorCounter[K]) RequireExactlyOnce(t testing.TB, keys ...K) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if n := c.calls[k]; n != 1 {
			t.Fatalf("value %v destructed %d times, want 1", k, n)
		}
	}
	if len(c.order) != len(keys) {
		t.Fatalf("%d destructor calls, want %d", len(c.order), len(keys))
	}
}
