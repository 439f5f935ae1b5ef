package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/domain"
	"github.com/hamed0406/uptimealert/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// timeLayout is fixed-width UTC so that text comparison orders like time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
// ":memory:" is accepted for throwaway stores.
func Open(path string, log *zap.Logger) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, repo.Wrap("mkdir data dir", err)
		}
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, repo.Wrap("open", err)
	}
	// One connection serializes all statements; the executor's per-monitor
	// goroutines queue on the pool instead of racing on the file lock.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, repo.Wrap("ping", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, repo.Wrap("migrate", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS monitors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			target TEXT NOT NULL,
			recipients TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			monitor_id TEXT NOT NULL,
			success INTEGER NOT NULL,
			status_code INTEGER,
			timestamp TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			monitor_id TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL,
			sent INTEGER NOT NULL DEFAULT 0,
			sent_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_results_monitor_id ON results(monitor_id, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_results_timestamp ON results(timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_monitor_sent ON alerts(monitor_id, sent, sent_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return repo.Wrap("close", s.db.Close()) }

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		// rows written by other tools may carry a zone offset
		return time.Parse(time.RFC3339Nano, v)
	}
	return t, nil
}

// ---- MonitorStore ----

func (s *Store) UpsertMonitor(ctx context.Context, id domain.MonitorID, name, target string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO monitors (id, name, target, recipients)
		 VALUES (?1, ?2, ?3, (SELECT recipients FROM monitors WHERE id = ?1))`,
		string(id), name, target)
	return repo.Wrap("upsert monitor", err)
}

func (s *Store) SetRecipients(ctx context.Context, id domain.MonitorID, recipients *string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE monitors SET recipients = ? WHERE id = ?`, recipients, string(id))
	return repo.Wrap("set recipients", err)
}

func (s *Store) ListMonitors(ctx context.Context) ([]domain.Monitor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, target, recipients FROM monitors ORDER BY id`)
	if err != nil {
		return nil, repo.Wrap("list monitors", err)
	}
	defer rows.Close()
	var out []domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, repo.Wrap("scan monitor", err)
		}
		out = append(out, m)
	}
	return out, repo.Wrap("list monitors", rows.Err())
}

func (s *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, target, recipients FROM monitors WHERE id = ?`, string(id))
	m, err := scanMonitor(row)
	if err == sql.ErrNoRows {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, repo.Wrap("get monitor", err)
	}
	return &m, nil
}

func (s *Store) DeleteMonitor(ctx context.Context, id domain.MonitorID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitors WHERE id = ?`, string(id))
	if err != nil {
		return 0, repo.Wrap("delete monitor", err)
	}
	n, err := res.RowsAffected()
	return n, repo.Wrap("delete monitor", err)
}

type scanner interface{ Scan(dest ...any) error }

func scanMonitor(sc scanner) (domain.Monitor, error) {
	var (
		m    domain.Monitor
		id   string
		recs sql.NullString
	)
	if err := sc.Scan(&id, &m.Name, &m.Target, &recs); err != nil {
		return m, err
	}
	m.ID = domain.MonitorID(id)
	if recs.Valid {
		v := recs.String
		m.Recipients = &v
	}
	return m, nil
}

// ---- ResultStore ----

func (s *Store) InsertResult(ctx context.Context, monitorID domain.MonitorID, success bool, statusCode *int, ts time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO results (monitor_id, success, status_code, timestamp) VALUES (?, ?, ?, ?)`,
		string(monitorID), success, statusCode, formatTime(ts))
	if err != nil {
		return 0, repo.Wrap("insert result", err)
	}
	id, err := res.LastInsertId()
	return id, repo.Wrap("insert result", err)
}

func (s *Store) RecentResults(ctx context.Context, monitorID domain.MonitorID) ([]domain.CheckResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, monitor_id, success, status_code, timestamp
		   FROM results
		  WHERE monitor_id = ?
		  ORDER BY id DESC
		  LIMIT ?`, string(monitorID), repo.RecentResultsLimit)
	if err != nil {
		return nil, repo.Wrap("recent results", err)
	}
	defer rows.Close()
	out := make([]domain.CheckResult, 0, 16)
	for rows.Next() {
		var (
			r      domain.CheckResult
			mid    string
			status sql.NullInt64
			ts     string
		)
		if err := rows.Scan(&r.ID, &mid, &r.Success, &status, &ts); err != nil {
			return nil, repo.Wrap("scan result", err)
		}
		r.MonitorID = domain.MonitorID(mid)
		if status.Valid {
			v := int(status.Int64)
			r.StatusCode = &v
		}
		if r.Timestamp, err = parseTime(ts); err != nil {
			return nil, repo.Wrap("parse result timestamp", err)
		}
		out = append(out, r)
	}
	return out, repo.Wrap("recent results", rows.Err())
}

func (s *Store) Rotate(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE timestamp < ?`, formatTime(cutoff))
	if err != nil {
		return 0, repo.Wrap("rotate", err)
	}
	n, err := res.RowsAffected()
	if err == nil {
		s.log.Debug("sqlite_rotated", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
	return n, repo.Wrap("rotate", err)
}

// ---- AlertStore ----

func (s *Store) InsertAlert(ctx context.Context, monitorID domain.MonitorID, message string, createdAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (monitor_id, message, created_at, sent) VALUES (?, ?, ?, 0)`,
		string(monitorID), message, formatTime(createdAt))
	if err != nil {
		return 0, repo.Wrap("insert alert", err)
	}
	id, err := res.LastInsertId()
	return id, repo.Wrap("insert alert", err)
}

func (s *Store) MarkAlertSent(ctx context.Context, alertID int64, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE alerts SET sent = 1, sent_at = ? WHERE id = ? AND sent = 0`, formatTime(sentAt), alertID)
	return repo.Wrap("mark alert sent", err)
}

func (s *Store) LastSentTime(ctx context.Context, monitorID domain.MonitorID) (*time.Time, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT sent_at FROM alerts
		  WHERE monitor_id = ? AND sent = 1 AND sent_at IS NOT NULL
		  ORDER BY sent_at DESC
		  LIMIT 1`, string(monitorID)).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, repo.Wrap("last sent time", err)
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, repo.Wrap("parse sent_at", err)
	}
	return &t, nil
}

func (s *Store) FetchAlerts(ctx context.Context, monitorID domain.MonitorID) ([]domain.Alert, error) {
	q := `SELECT id, monitor_id, message, created_at, sent, sent_at FROM alerts`
	var args []any
	if monitorID != "" {
		q += ` WHERE monitor_id = ?`
		args = append(args, string(monitorID))
	}
	q += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, repo.Wrap("fetch alerts", err)
	}
	defer rows.Close()
	var out []domain.Alert
	for rows.Next() {
		var (
			a       domain.Alert
			mid     string
			created string
			sentAt  sql.NullString
		)
		if err := rows.Scan(&a.ID, &mid, &a.Message, &created, &a.Sent, &sentAt); err != nil {
			return nil, repo.Wrap("scan alert", err)
		}
		a.MonitorID = domain.MonitorID(mid)
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, repo.Wrap("parse created_at", err)
		}
		if sentAt.Valid {
			t, err := parseTime(sentAt.String)
			if err != nil {
				return nil, repo.Wrap("parse sent_at", err)
			}
			a.SentAt = &t
		}
		out = append(out, a)
	}
	return out, repo.Wrap("fetch alerts", rows.Err())
}
