package notify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/config"
	"github.com/hamed0406/uptimealert/internal/domain"
)

// Sender delivers an alert addressed to a monitor. It is the only method a
// delivery channel must implement.
type Sender interface {
	Send(ctx context.Context, monitorID domain.MonitorID, message string) error
}

// RecipientSender is implemented by channels that can address a single
// recipient directly.
type RecipientSender interface {
	SendTo(ctx context.Context, recipient, message string) error
}

// SendTo delivers to one recipient, falling back to Send with the recipient
// as the target when s has no recipient-addressed form.
func SendTo(ctx context.Context, s Sender, recipient, message string) error {
	if rs, ok := s.(RecipientSender); ok {
		return rs.SendTo(ctx, recipient, message)
	}
	return s.Send(ctx, domain.MonitorID(recipient), message)
}

// Multi fans out to every sender. A delivery counts when at least one
// sender accepts it; otherwise the combined error is returned.
type Multi []Sender

func (m Multi) Send(ctx context.Context, monitorID domain.MonitorID, message string) error {
	return m.fanOut(func(s Sender) error { return s.Send(ctx, monitorID, message) })
}

func (m Multi) SendTo(ctx context.Context, recipient, message string) error {
	return m.fanOut(func(s Sender) error { return SendTo(ctx, s, recipient, message) })
}

func (m Multi) fanOut(send func(Sender) error) error {
	var (
		errs error
		ok   bool
	)
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := send(s); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		ok = true
	}
	if ok {
		return nil
	}
	if errs == nil {
		return errors.New("notify: no senders configured")
	}
	return errs
}

// Close closes every member that holds a connection.
func (m Multi) Close() error {
	var err error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

// Log writes alerts to the logger and always succeeds.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Send(ctx context.Context, monitorID domain.MonitorID, message string) error {
	l.logger().Info("alert_logged", zap.String("monitor_id", string(monitorID)), zap.String("message", message))
	return nil
}

func (l Log) SendTo(ctx context.Context, recipient, message string) error {
	l.logger().Info("alert_logged", zap.String("recipient", recipient), zap.String("message", message))
	return nil
}

func (l Log) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// New builds the sender selected by cfg.Alerts.Sender.
func New(cfg *config.Config, log *zap.Logger) (Sender, error) {
	if cfg.Alerts.Sender != config.SenderMulti {
		return build(cfg.Alerts.Sender, cfg, log)
	}
	var m Multi
	for _, kind := range cfg.Alerts.Senders {
		s, err := build(kind, cfg, log)
		if err != nil {
			return nil, err
		}
		m = append(m, s)
	}
	return m, nil
}

func build(kind string, cfg *config.Config, log *zap.Logger) (Sender, error) {
	switch kind {
	case "", config.SenderLog:
		return Log{Logger: log}, nil
	case config.SenderSMTP:
		return NewMail(cfg.SMTP)
	case config.SenderSlack:
		s := NewSlack(cfg.Slack.Webhook)
		if s == nil {
			return nil, errors.New("notify: slack webhook not configured")
		}
		return s, nil
	case config.SenderRedis:
		return NewRedis(cfg.Redis.URL, cfg.Redis.Key)
	default:
		return nil, fmt.Errorf("notify: unknown sender %q", kind)
	}
}
