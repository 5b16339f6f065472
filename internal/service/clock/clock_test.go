package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func currentGen(c *Clock) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func TestClockCountsTicks(t *testing.T) {
	var last int64
	c := New(time.Hour, func(elapsed int64) { last = elapsed })
	c.Start()
	defer c.Stop()

	gen := currentGen(c)
	for i := 0; i < 90; i++ {
		elapsed, counted := c.advance(gen)
		if counted {
			c.onTick(elapsed)
		}
	}

	if c.Elapsed() != 90 {
		t.Fatalf("Elapsed() = %d, want 90", c.Elapsed())
	}
	if last != 90 {
		t.Fatalf("subscriber saw %d, want 90", last)
	}
}

func TestClockPauseDropsTicks(t *testing.T) {
	c := New(time.Hour, nil)
	c.Start()
	defer c.Stop()
	gen := currentGen(c)

	for i := 0; i < 10; i++ {
		c.advance(gen)
	}

	c.Pause()
	for i := 0; i < 25; i++ {
		if _, counted := c.advance(gen); counted {
			t.Fatal("tick counted while paused")
		}
	}
	if c.Elapsed() != 10 {
		t.Fatalf("Elapsed() after pause = %d, want 10", c.Elapsed())
	}
	if !c.Running() {
		t.Fatal("pause must not cancel the ticker")
	}

	c.Resume()
	elapsed, counted := c.advance(gen)
	if !counted || elapsed != 11 {
		t.Fatalf("first tick after resume = (%d, %v), want (11, true)", elapsed, counted)
	}
}

func TestClockRestartDropsOldTicker(t *testing.T) {
	c := New(time.Hour, nil)
	c.Start()
	oldGen := currentGen(c)
	c.Start()
	defer c.Stop()

	if _, counted := c.advance(oldGen); counted {
		t.Fatal("tick from replaced ticker should be ignored")
	}
	if _, counted := c.advance(currentGen(c)); !counted {
		t.Fatal("tick from current ticker should count")
	}
	if c.Elapsed() != 1 {
		t.Fatalf("Elapsed() = %d, want 1", c.Elapsed())
	}
}

func TestClockStopTerminatesTicking(t *testing.T) {
	var ticks atomic.Int64
	c := New(5*time.Millisecond, func(int64) { ticks.Add(1) })
	c.Start()

	deadline := time.After(2 * time.Second)
	for ticks.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("clock did not tick, got %d ticks", ticks.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	c.Stop()
	stoppedAt := c.Elapsed()
	time.Sleep(40 * time.Millisecond)

	if c.Elapsed() != stoppedAt {
		t.Fatalf("clock kept counting after Stop: %d -> %d", stoppedAt, c.Elapsed())
	}
	if c.Running() {
		t.Fatal("Running() should be false after Stop")
	}

	c.Stop()
}
