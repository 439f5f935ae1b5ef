package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hamed0406/uptimealert/internal/domain"
)

// OutboxLimit caps the outbox list length.
const OutboxLimit = 1000

// Envelope is one queued alert in the Redis outbox.
type Envelope struct {
	To        string    `json:"to,omitempty"`
	MonitorID string    `json:"monitor_id,omitempty"`
	Message   string    `json:"message"`
	QueuedAt  time.Time `json:"queued_at"`
}

// Redis pushes alerts onto a list for an external mailer to drain.
type Redis struct {
	Client *redis.Client
	Key    string
	now    func() time.Time
}

func NewRedis(url, key string) (*Redis, error) {
	if url == "" {
		return nil, errors.New("notify: redis url not configured")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("notify: parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second
	return NewRedisClient(redis.NewClient(opts), key), nil
}

func NewRedisClient(c *redis.Client, key string) *Redis {
	if key == "" {
		key = "uptimealert:outbox"
	}
	return &Redis{Client: c, Key: key, now: time.Now}
}

func (r *Redis) Send(ctx context.Context, monitorID domain.MonitorID, message string) error {
	return r.push(ctx, Envelope{MonitorID: string(monitorID), Message: message})
}

func (r *Redis) SendTo(ctx context.Context, recipient, message string) error {
	return r.push(ctx, Envelope{To: recipient, Message: message})
}

func (r *Redis) push(ctx context.Context, env Envelope) error {
	env.QueuedAt = r.now().UTC()
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	pipe := r.Client.TxPipeline()
	pipe.LPush(ctx, r.Key, b)
	pipe.LTrim(ctx, r.Key, 0, OutboxLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("notify: redis push: %w", err)
	}
	return nil
}

func (r *Redis) Close() error { return r.Client.Close() }
