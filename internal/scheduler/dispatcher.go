package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/domain"
	"github.com/hamed0406/uptimealert/internal/metrics"
	"github.com/hamed0406/uptimealert/internal/notify"
	"github.com/hamed0406/uptimealert/internal/repo"
)

// DispatchStore is what the dispatcher reads and writes.
type DispatchStore interface {
	repo.MonitorStore
	repo.AlertStore
}

// Dispatcher delivers pending alerts oldest first, honoring a per-monitor
// rate limit. It keeps no state between calls.
type Dispatcher struct {
	Logger *zap.Logger
	Store  DispatchStore

	now func() time.Time
}

func NewDispatcher(logger *zap.Logger, store DispatchStore) *Dispatcher {
	return &Dispatcher{Logger: logger, Store: store, now: time.Now}
}

// DispatchPending sends every unsent alert that is not rate limited and
// returns how many were delivered. A rateLimit of 0 disables limiting.
// Store errors abort the call; delivery errors only leave the alert unsent.
func (d *Dispatcher) DispatchPending(ctx context.Context, sender notify.Sender, rateLimit time.Duration) (int, error) {
	alerts, err := d.fetchAlertsOldestFirst(ctx)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, a := range alerts {
		if a.Sent {
			continue
		}

		if rateLimit > 0 {
			last, err := d.Store.LastSentTime(ctx, a.MonitorID)
			if err != nil {
				return dispatched, err
			}
			if last != nil && d.now().Sub(*last) < rateLimit {
				metrics.AlertsSuppressedTotal.Inc()
				d.Logger.Debug("dispatch_rate_limited",
					zap.Int64("alert_id", a.ID),
					zap.String("monitor_id", string(a.MonitorID)),
					zap.Time("last_sent", *last),
				)
				continue
			}
		}

		if !d.deliver(ctx, sender, a) {
			continue
		}

		if err := d.Store.MarkAlertSent(ctx, a.ID, d.now().UTC()); err != nil {
			return dispatched, err
		}
		dispatched++
		metrics.AlertsDispatchedTotal.Inc()
	}

	if dispatched > 0 {
		d.Logger.Info("dispatch_done", zap.Int("dispatched", dispatched))
	}
	return dispatched, nil
}

// fetchAlertsOldestFirst reverses the store's newest-first order. Delivery
// order depends on this, so it does not rely on the store's ORDER BY.
func (d *Dispatcher) fetchAlertsOldestFirst(ctx context.Context) ([]domain.Alert, error) {
	alerts, err := d.Store.FetchAlerts(ctx, "")
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(alerts)-1; i < j; i, j = i+1, j-1 {
		alerts[i], alerts[j] = alerts[j], alerts[i]
	}
	return alerts, nil
}

// deliver reports whether at least one delivery attempt succeeded.
func (d *Dispatcher) deliver(ctx context.Context, sender notify.Sender, a domain.Alert) bool {
	var recipients []string
	m, err := d.Store.GetMonitor(ctx, a.MonitorID)
	if err != nil {
		d.Logger.Warn("dispatch_monitor_lookup_failed",
			zap.String("monitor_id", string(a.MonitorID)),
			zap.Error(err),
		)
	} else {
		recipients = m.RecipientList()
	}

	if len(recipients) == 0 {
		if err := sender.Send(ctx, a.MonitorID, a.Message); err != nil {
			metrics.DeliveryFailuresTotal.WithLabelValues("monitor").Inc()
			d.Logger.Warn("dispatch_send_failed",
				zap.Int64("alert_id", a.ID),
				zap.String("monitor_id", string(a.MonitorID)),
				zap.Error(err),
			)
			return false
		}
		return true
	}

	ok := false
	for _, r := range recipients {
		if err := notify.SendTo(ctx, sender, r, a.Message); err != nil {
			metrics.DeliveryFailuresTotal.WithLabelValues("recipient").Inc()
			d.Logger.Warn("dispatch_send_to_failed",
				zap.Int64("alert_id", a.ID),
				zap.String("monitor_id", string(a.MonitorID)),
				zap.String("recipient", r),
				zap.Error(err),
			)
			continue
		}
		ok = true
	}
	return ok
}
