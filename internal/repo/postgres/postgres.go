package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/domain"
	"github.com/hamed0406/uptimealert/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS monitors (
  id         TEXT PRIMARY KEY,
  name       TEXT NOT NULL,
  target     TEXT NOT NULL,
  recipients TEXT NULL
);

CREATE TABLE IF NOT EXISTS results (
  id          BIGSERIAL PRIMARY KEY,
  monitor_id  TEXT NOT NULL,
  success     BOOLEAN NOT NULL,
  status_code INTEGER NULL,
  timestamp   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
  id         BIGSERIAL PRIMARY KEY,
  monitor_id TEXT NOT NULL,
  message    TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  sent       BOOLEAN NOT NULL DEFAULT FALSE,
  sent_at    TIMESTAMPTZ NULL
);

CREATE INDEX IF NOT EXISTS idx_results_monitor_id ON results (monitor_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_results_timestamp  ON results (timestamp);
CREATE INDEX IF NOT EXISTS idx_alerts_monitor_sent ON alerts (monitor_id, sent, sent_at DESC);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
	now  func() time.Time
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, repo.Wrap("open", fmt.Errorf("pgxpool.New: %w", err))
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, repo.Wrap("ping", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, repo.Wrap("migrate", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ---- MonitorStore ----

func (s *Store) UpsertMonitor(ctx context.Context, id domain.MonitorID, name, target string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monitors (id, name, target)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, target = EXCLUDED.target`,
		string(id), name, target)
	return repo.Wrap("upsert monitor", err)
}

func (s *Store) SetRecipients(ctx context.Context, id domain.MonitorID, recipients *string) error {
	_, err := s.pool.Exec(ctx, `UPDATE monitors SET recipients = $1 WHERE id = $2`, recipients, string(id))
	return repo.Wrap("set recipients", err)
}

func (s *Store) ListMonitors(ctx context.Context) ([]domain.Monitor, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, target, recipients FROM monitors ORDER BY id`)
	if err != nil {
		return nil, repo.Wrap("list monitors", err)
	}
	defer rows.Close()

	var out []domain.Monitor
	for rows.Next() {
		var (
			id string
			m  domain.Monitor
		)
		if err := rows.Scan(&id, &m.Name, &m.Target, &m.Recipients); err != nil {
			return nil, repo.Wrap("scan monitor", err)
		}
		m.ID = domain.MonitorID(id)
		out = append(out, m)
	}
	return out, repo.Wrap("list monitors", rows.Err())
}

func (s *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	var (
		mid string
		m   domain.Monitor
	)
	err := s.pool.QueryRow(ctx, `SELECT id, name, target, recipients FROM monitors WHERE id = $1`, string(id)).
		Scan(&mid, &m.Name, &m.Target, &m.Recipients)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, repo.Wrap("get monitor", err)
	}
	m.ID = domain.MonitorID(mid)
	return &m, nil
}

func (s *Store) DeleteMonitor(ctx context.Context, id domain.MonitorID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitors WHERE id = $1`, string(id))
	if err != nil {
		return 0, repo.Wrap("delete monitor", err)
	}
	return tag.RowsAffected(), nil
}

// ---- ResultStore ----

func (s *Store) InsertResult(ctx context.Context, monitorID domain.MonitorID, success bool, statusCode *int, ts time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO results (monitor_id, success, status_code, timestamp)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		string(monitorID), success, statusCode, ts.UTC()).Scan(&id)
	return id, repo.Wrap("insert result", err)
}

func (s *Store) RecentResults(ctx context.Context, monitorID domain.MonitorID) ([]domain.CheckResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, monitor_id, success, status_code, timestamp
		   FROM results
		  WHERE monitor_id = $1
		  ORDER BY id DESC
		  LIMIT $2`, string(monitorID), repo.RecentResultsLimit)
	if err != nil {
		return nil, repo.Wrap("recent results", err)
	}
	defer rows.Close()

	out := make([]domain.CheckResult, 0, 16)
	for rows.Next() {
		var (
			r   domain.CheckResult
			mid string
		)
		if err := rows.Scan(&r.ID, &mid, &r.Success, &r.StatusCode, &r.Timestamp); err != nil {
			return nil, repo.Wrap("scan result", err)
		}
		r.MonitorID = domain.MonitorID(mid)
		r.Timestamp = r.Timestamp.UTC()
		out = append(out, r)
	}
	return out, repo.Wrap("recent results", rows.Err())
}

func (s *Store) Rotate(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	tag, err := s.pool.Exec(ctx, `DELETE FROM results WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, repo.Wrap("rotate", err)
	}
	s.log.Debug("postgres_rotated", zap.Int64("deleted", tag.RowsAffected()), zap.Time("cutoff", cutoff))
	return tag.RowsAffected(), nil
}

// ---- AlertStore ----

func (s *Store) InsertAlert(ctx context.Context, monitorID domain.MonitorID, message string, createdAt time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO alerts (monitor_id, message, created_at, sent)
		 VALUES ($1, $2, $3, FALSE)
		 RETURNING id`,
		string(monitorID), message, createdAt.UTC()).Scan(&id)
	return id, repo.Wrap("insert alert", err)
}

func (s *Store) MarkAlertSent(ctx context.Context, alertID int64, sentAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE alerts SET sent = TRUE, sent_at = $1 WHERE id = $2 AND NOT sent`, sentAt.UTC(), alertID)
	return repo.Wrap("mark alert sent", err)
}

func (s *Store) LastSentTime(ctx context.Context, monitorID domain.MonitorID) (*time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT sent_at FROM alerts
		  WHERE monitor_id = $1 AND sent AND sent_at IS NOT NULL
		  ORDER BY sent_at DESC
		  LIMIT 1`, string(monitorID)).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, repo.Wrap("last sent time", err)
	}
	ts = ts.UTC()
	return &ts, nil
}

func (s *Store) FetchAlerts(ctx context.Context, monitorID domain.MonitorID) ([]domain.Alert, error) {
	q := `SELECT id, monitor_id, message, created_at, sent, sent_at FROM alerts`
	var args []any
	if monitorID != "" {
		q += ` WHERE monitor_id = $1`
		args = append(args, string(monitorID))
	}
	q += ` ORDER BY id DESC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, repo.Wrap("fetch alerts", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var (
			a   domain.Alert
			mid string
		)
		if err := rows.Scan(&a.ID, &mid, &a.Message, &a.CreatedAt, &a.Sent, &a.SentAt); err != nil {
			return nil, repo.Wrap("scan alert", err)
		}
		a.MonitorID = domain.MonitorID(mid)
		a.CreatedAt = a.CreatedAt.UTC()
		if a.SentAt != nil {
			t := a.SentAt.UTC()
			a.SentAt = &t
		}
		out = append(out, a)
	}
	return out, repo.Wrap("fetch alerts", rows.Err())
}
