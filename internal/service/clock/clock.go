package clock

import (
	"sync"
	"time"
)

// DefaultInterval is one wall-clock second.
const DefaultInterval = time.Second

// Clock 是一个按固定间隔递增的计时器。暂停只停止计数，不取消底层 ticker；
// 只有 Stop 会终止计时。没有漂移校正。
type Clock struct {
	interval time.Duration
	onTick   func(elapsed int64)

	mu      sync.Mutex
	elapsed int64
	paused  bool
	running bool
	gen     uint64
	stop    chan struct{}
}

// New creates a stopped clock. onTick receives the new total after every
// counted tick and runs on the clock goroutine.
func New(interval time.Duration, onTick func(elapsed int64)) *Clock {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Clock{interval: interval, onTick: onTick}
}

// Start begins ticking. Calling it again cancels the previous ticker before
// creating a new one, so at most one ticker ever counts.
func (c *Clock) Start() {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
	}
	c.gen++
	gen := c.gen
	stop := make(chan struct{})
	c.stop = stop
	c.running = true
	c.mu.Unlock()

	go c.run(gen, stop)
}

// Pause keeps the ticker alive but stops counting.
func (c *Clock) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume counts again from the next tick.
func (c *Clock) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

// Stop cancels the ticker. It is safe to call more than once.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.running = false
	c.gen++
}

// Elapsed returns the counted seconds.
func (c *Clock) Elapsed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// Paused reports whether ticks are currently ignored.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Running reports whether a ticker is outstanding.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Clock) run(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			elapsed, counted := c.advance(gen)
			if counted && c.onTick != nil {
				c.onTick(elapsed)
			}
		}
	}
}

// advance counts one tick for generation gen. Ticks from a replaced or
// stopped ticker are dropped.
func (c *Clock) advance(gen uint64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || !c.running || c.paused {
		return c.elapsed, false
	}
	c.elapsed++
	return c.elapsed, true
}
