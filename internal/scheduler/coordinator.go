package scheduler

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/hamed0406/uptimealert/internal/notify"
)

// Settings are the knobs a tick runs with. They can change between ticks.
type Settings struct {
	Sender      notify.Sender
	RateLimit   time.Duration
	Concurrency int
}

// Coordinator runs one tick: a full check cycle, then dispatch. Ticks and
// dispatches are serialized so a retired sender is never closed under one.
type Coordinator struct {
	Executor   *Executor
	Dispatcher *Dispatcher

	tickMu sync.Mutex

	mu       sync.RWMutex
	settings Settings
}

func NewCoordinator(exec *Executor, disp *Dispatcher, s Settings) *Coordinator {
	return &Coordinator{
		Executor:   exec,
		Dispatcher: disp,
		settings:   s,
	}
}

// Configure replaces the settings used by later ticks and returns the
// sender they replaced. Hand that to Retire once it is no longer needed.
func (c *Coordinator) Configure(s Settings) notify.Sender {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.settings.Sender
	c.settings = s
	return prev
}

// Retire waits for the running tick, if any, then closes sender when it
// holds a connection.
func (c *Coordinator) Retire(sender notify.Sender) error {
	closer, ok := sender.(io.Closer)
	if !ok {
		return nil
	}
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	return closer.Close()
}

// Close retires the current sender.
func (c *Coordinator) Close() error {
	return c.Retire(c.current().Sender)
}

func (c *Coordinator) current() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Tick returns the number of alerts dispatched, or the first store error.
func (c *Coordinator) Tick(ctx context.Context) (int, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	s := c.current()
	if err := c.Executor.RunCycle(ctx, s.Concurrency); err != nil {
		return 0, err
	}
	return c.Dispatcher.DispatchPending(ctx, s.Sender, s.RateLimit)
}

// Dispatch runs only the dispatch half of a tick.
func (c *Coordinator) Dispatch(ctx context.Context) (int, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	s := c.current()
	return c.Dispatcher.DispatchPending(ctx, s.Sender, s.RateLimit)
}
