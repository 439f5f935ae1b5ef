package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/config"
	"github.com/hamed0406/uptimealert/internal/metrics"
	"github.com/hamed0406/uptimealert/internal/notify"
	"github.com/hamed0406/uptimealert/internal/repo"
)

// DefaultRotateEvery is how often old results are purged.
const DefaultRotateEvery = 6 * time.Hour

// Daemon is the supervising loop: one coordinator tick per interval, never
// two at once, plus periodic retention.
type Daemon struct {
	Logger      *zap.Logger
	Coordinator *Coordinator
	Results     repo.ResultStore
	Interval    time.Duration
	RotateEvery time.Duration

	// NewSender builds the sender on Reload.
	NewSender func(*config.Config, *zap.Logger) (notify.Sender, error)

	mu            sync.Mutex
	retentionDays int
}

func NewDaemon(logger *zap.Logger, coord *Coordinator, results repo.ResultStore, cfg *config.Config) *Daemon {
	return &Daemon{
		Logger:        logger,
		Coordinator:   coord,
		Results:       results,
		Interval:      cfg.Check.Interval,
		RotateEvery:   DefaultRotateEvery,
		NewSender:     notify.New,
		retentionDays: cfg.DB.RetentionDays,
	}
}

// Run ticks immediately, then on every interval until ctx is cancelled.
// Cancellation stops scheduling; an in-flight tick is allowed to finish
// before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	if d.Interval <= 0 {
		return fmt.Errorf("daemon: interval must be positive, got %s", d.Interval)
	}
	// ticks must not be aborted mid-probe by shutdown
	tickCtx := context.WithoutCancel(ctx)

	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{d.Logger}),
		cron.SkipIfStillRunning(cronLogger{d.Logger}),
	))
	if _, err := c.AddFunc("@every "+d.Interval.String(), func() { d.tick(tickCtx) }); err != nil {
		return fmt.Errorf("daemon: schedule tick: %w", err)
	}
	rotateEvery := d.RotateEvery
	if rotateEvery <= 0 {
		rotateEvery = DefaultRotateEvery
	}
	if _, err := c.AddFunc("@every "+rotateEvery.String(), func() { d.rotate(tickCtx) }); err != nil {
		return fmt.Errorf("daemon: schedule rotate: %w", err)
	}

	d.Logger.Info("daemon_started",
		zap.Duration("interval", d.Interval),
		zap.Duration("rotate_every", rotateEvery),
	)
	d.tick(tickCtx)
	c.Start()

	<-ctx.Done()
	d.Logger.Info("daemon_stopping")
	<-c.Stop().Done()
	d.Logger.Info("daemon_stopped")
	return nil
}

func (d *Daemon) tick(ctx context.Context) {
	n, err := d.Coordinator.Tick(ctx)
	if err != nil {
		d.Logger.Error("daemon_tick_failed", zap.Error(err))
		return
	}
	d.Logger.Debug("daemon_tick", zap.Int("dispatched", n))
}

func (d *Daemon) rotate(ctx context.Context) {
	days := d.RetentionDays()
	n, err := d.Results.Rotate(ctx, days)
	if err != nil {
		d.Logger.Error("daemon_rotate_failed", zap.Error(err))
		return
	}
	metrics.ResultsRotatedTotal.Add(float64(n))
	d.Logger.Info("daemon_rotated", zap.Int64("deleted", n), zap.Int("retention_days", days))
}

func (d *Daemon) RetentionDays() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.retentionDays
}

// Reload applies a new config to later ticks: sender, rate limit,
// concurrency and retention. The replaced sender is closed once the running
// tick is done with it. The tick interval is fixed for the life of Run.
func (d *Daemon) Reload(cfg *config.Config) error {
	sender, err := d.NewSender(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("daemon: reload sender: %w", err)
	}
	prev := d.Coordinator.Configure(Settings{
		Sender:      sender,
		RateLimit:   cfg.Alerts.RateLimit(),
		Concurrency: cfg.Check.Concurrency,
	})
	if err := d.Coordinator.Retire(prev); err != nil {
		d.Logger.Warn("daemon_sender_close_failed", zap.Error(err))
	}

	d.mu.Lock()
	d.retentionDays = cfg.DB.RetentionDays
	d.mu.Unlock()

	if cfg.Check.Interval != d.Interval {
		d.Logger.Warn("daemon_interval_change_ignored",
			zap.Duration("running", d.Interval),
			zap.Duration("configured", cfg.Check.Interval),
		)
	}
	d.Logger.Info("daemon_reloaded",
		zap.String("sender", cfg.Alerts.Sender),
		zap.Duration("rate_limit", cfg.Alerts.RateLimit()),
		zap.Int("concurrency", cfg.Check.Concurrency),
	)
	return nil
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct{ l *zap.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw("cron_"+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw("cron_"+msg, append(keysAndValues, "error", err)...)
}
