package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/domain"
	"github.com/hamed0406/uptimealert/internal/metrics"
	"github.com/hamed0406/uptimealert/internal/probe"
	"github.com/hamed0406/uptimealert/internal/repo"
)

// Executor probes every monitor once per cycle and records the outcome.
type Executor struct {
	Logger  *zap.Logger
	Store   repo.Store
	Checker probe.Checker
	Timeout time.Duration

	// Classify annotates unreachable alerts with a DNS class. Nil disables it.
	Classify func(ctx context.Context, host string) string

	now func() time.Time
}

func NewExecutor(
	logger *zap.Logger,
	store repo.Store,
	checker probe.Checker,
	timeout time.Duration,
) *Executor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{
		Logger:  logger,
		Store:   store,
		Checker: checker,
		Timeout: timeout,
		Classify: func(ctx context.Context, host string) string {
			return probe.CheckDNS(ctx, host).Class
		},
		now: time.Now,
	}
}

// RunCycle checks all monitors with at most limit probes in flight.
// Only a failure to list monitors is returned; per-monitor persistence
// errors are logged and do not stop the sweep.
func (e *Executor) RunCycle(ctx context.Context, limit int) error {
	if limit < 1 {
		limit = 1
	}
	start := time.Now()
	monitors, err := e.Store.ListMonitors(ctx)
	if err != nil {
		e.Logger.Warn("executor_list_error", zap.Error(err))
		return err
	}
	if len(monitors) == 0 {
		return nil
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for _, m := range monitors {
		m := m
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()

			if _, err := e.RunOnce(ctx, m.ID, m.Target); err != nil {
				e.Logger.Warn("executor_persist_error",
					zap.String("monitor_id", string(m.ID)),
					zap.String("target", m.Target),
					zap.Error(err),
				)
			}
		}()
	}

	wg.Wait()

	elapsed := time.Since(start)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	e.Logger.Info("executor_cycle_done",
		zap.Int("monitors", len(monitors)),
		zap.Int("concurrency", limit),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

// RunOnce probes a single target, stores its result and, on failure, one
// alert. The stored result id is returned even when the alert write fails.
func (e *Executor) RunOnce(ctx context.Context, id domain.MonitorID, target string) (int64, error) {
	cctx, cancel := context.WithTimeout(ctx, e.Timeout)
	out := e.Checker.Check(cctx, target)
	cancel()

	ts := e.now().UTC()
	e.observe(out)

	var errs error
	resultID, err := e.Store.InsertResult(ctx, id, out.Success, out.Status(), ts)
	if err != nil {
		metrics.PersistErrorsTotal.Inc()
		errs = multierr.Append(errs, fmt.Errorf("insert result: %w", err))
	}

	e.Logger.Debug("executor_checked",
		zap.String("monitor_id", string(id)),
		zap.String("target", target),
		zap.Bool("reachable", out.Reachable),
		zap.Int("status", out.StatusCode),
		zap.Bool("success", out.Success),
		zap.Float64("latency_ms", out.LatencyMS),
		zap.String("reason", out.Message),
	)

	if out.Success {
		return resultID, errs
	}

	msg := e.alertMessage(ctx, id, target, out)
	if _, err := e.Store.InsertAlert(ctx, id, msg, ts); err != nil {
		metrics.PersistErrorsTotal.Inc()
		errs = multierr.Append(errs, fmt.Errorf("insert alert: %w", err))
	} else {
		metrics.AlertsCreatedTotal.Inc()
	}
	return resultID, errs
}

func (e *Executor) alertMessage(ctx context.Context, id domain.MonitorID, target string, out probe.Result) string {
	if out.Reachable {
		return fmt.Sprintf("monitor %s (%s) returned HTTP %d", id, target, out.StatusCode)
	}
	msg := fmt.Sprintf("monitor %s (%s) unreachable: %s", id, target, out.Message)
	if e.Classify != nil {
		if class := e.Classify(ctx, probe.HostOf(target)); class != "" {
			msg += " (dns=" + class + ")"
		}
	}
	return msg
}

func (e *Executor) observe(out probe.Result) {
	switch {
	case out.Success:
		metrics.ChecksTotal.WithLabelValues(metrics.OutcomeUp).Inc()
	case out.Reachable:
		metrics.ChecksTotal.WithLabelValues(metrics.OutcomeDown).Inc()
	default:
		metrics.ChecksTotal.WithLabelValues(metrics.OutcomeUnreachable).Inc()
	}
	if out.Reachable {
		metrics.CheckLatency.Observe(out.LatencyMS / 1000)
	}
}
