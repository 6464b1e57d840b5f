package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
)

func TestFixedWindowLimit(t *testing.T) {
	clock := quartz.NewMock(t)
	l := NewFixedWindow(10, time.Minute, clock)

	for i := 1; i <= 10; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("11th request should be denied")
	}

	clock.Advance(time.Minute + time.Millisecond)
	if !l.Allow("1.2.3.4") {
		t.Fatal("first request of the new window should be allowed")
	}
	if got := l.Count("1.2.3.4"); got != 1 {
		t.Errorf("count after reset: got %d, want 1", got)
	}
}

func TestFixedWindowBoundaryIsInclusive(t *testing.T) {
	clock := quartz.NewMock(t)
	l := NewFixedWindow(1, time.Minute, clock)

	if !l.Allow("c") {
		t.Fatal("first request should be allowed")
	}

	// Exactly one window later is still the same window.
	clock.Advance(time.Minute)
	if l.Allow("c") {
		t.Fatal("request at exactly the window length should still count")
	}

	clock.Advance(time.Millisecond)
	if !l.Allow("c") {
		t.Fatal("request after the window should reset")
	}
}

func TestFixedWindowPerClient(t *testing.T) {
	l := NewFixedWindow(2, time.Minute, quartz.NewMock(t))

	l.Allow("a")
	l.Allow("a")
	if l.Allow("a") {
		t.Error("client a should be limited")
	}
	if !l.Allow("b") {
		t.Error("client b has its own counter")
	}
}

func TestFixedWindowDeniedRequestsStillCount(t *testing.T) {
	l := NewFixedWindow(2, time.Minute, quartz.NewMock(t))
	for i := 0; i < 5; i++ {
		l.Allow("x")
	}
	if got := l.Count("x"); got != 5 {
		t.Errorf("count: got %d, want 5", got)
	}
}

func TestFixedWindowSweepsExpiredCounters(t *testing.T) {
	clock := quartz.NewMock(t)
	l := NewFixedWindow(10, time.Minute, clock)

	for i := 0; i < 100; i++ {
		l.Allow(fmt.Sprintf("client-%d", i))
	}

	clock.Advance(2 * time.Minute)
	l.Allow("fresh")

	l.mu.Lock()
	n := len(l.counters)
	l.mu.Unlock()
	if n != 1 {
		t.Errorf("expected expired counters to be swept, %d remain", n)
	}
}

func TestFixedWindowConcurrent(t *testing.T) {
	l := NewFixedWindow(50, time.Minute, quartz.NewMock(t))

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 50 {
		t.Errorf("allowed: got %d, want exactly 50", got)
	}
	if got := l.Count("shared"); got != 200 {
		t.Errorf("count: got %d, want 200", got)
	}
}

func TestNewFixedWindowDefaults(t *testing.T) {
	l := NewFixedWindow(0, 0, nil)
	if l.limit != DefaultLimit || l.window != DefaultWindow {
		t.Errorf("defaults: got (%d, %v)", l.limit, l.window)
	}
}
