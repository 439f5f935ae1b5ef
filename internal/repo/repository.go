package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/uptimealert/internal/domain"
)

// RecentResultsLimit caps RecentResults.
const RecentResultsLimit = 100

// ErrNotFound is returned by GetMonitor when no monitor has the given id.
var ErrNotFound = errors.New("monitor not found")

// StorageError wraps any backend failure (open, query, write, constraint).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err, otherwise a *StorageError tagged with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Ports. Every backend implements all three.
type MonitorStore interface {
	// UpsertMonitor inserts or replaces a monitor, keeping any existing recipients.
	UpsertMonitor(ctx context.Context, id domain.MonitorID, name, target string) error
	// SetRecipients overwrites recipients; nil clears them. Unknown ids are a silent no-op.
	SetRecipients(ctx context.Context, id domain.MonitorID, recipients *string) error
	// ListMonitors returns all monitors ordered by id ascending.
	ListMonitors(ctx context.Context) ([]domain.Monitor, error)
	GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	// DeleteMonitor returns the number of removed rows (0 or 1). Results and
	// alerts of the monitor are kept.
	DeleteMonitor(ctx context.Context, id domain.MonitorID) (int64, error)
}

type ResultStore interface {
	// InsertResult appends a result; ids are strictly increasing per store.
	InsertResult(ctx context.Context, monitorID domain.MonitorID, success bool, statusCode *int, ts time.Time) (int64, error)
	// RecentResults returns at most RecentResultsLimit results, newest id first.
	RecentResults(ctx context.Context, monitorID domain.MonitorID) ([]domain.CheckResult, error)
	// Rotate deletes results older than now - retentionDays.
	Rotate(ctx context.Context, retentionDays int) (int64, error)
}

type AlertStore interface {
	InsertAlert(ctx context.Context, monitorID domain.MonitorID, message string, createdAt time.Time) (int64, error)
	MarkAlertSent(ctx context.Context, alertID int64, sentAt time.Time) error
	// LastSentTime returns the latest sent_at among sent alerts, nil if none.
	LastSentTime(ctx context.Context, monitorID domain.MonitorID) (*time.Time, error)
	// FetchAlerts returns alerts newest id first; an empty monitorID means all.
	FetchAlerts(ctx context.Context, monitorID domain.MonitorID) ([]domain.Alert, error)
}

type Store interface {
	MonitorStore
	ResultStore
	AlertStore
	Close() error
}
