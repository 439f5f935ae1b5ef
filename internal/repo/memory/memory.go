package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/uptimealert/internal/domain"
	"github.com/hamed0406/uptimealert/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store keeps everything in process memory behind one mutex.
type Store struct {
	mu       sync.RWMutex
	monitors map[domain.MonitorID]domain.Monitor
	results  []domain.CheckResult
	alerts   []domain.Alert
	nextRes  int64
	nextAl   int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		monitors: make(map[domain.MonitorID]domain.Monitor),
		results:  make([]domain.CheckResult, 0, 128),
		now:      time.Now,
	}
}

func (m *Store) Close() error { return nil }

// copies keep callers from reaching stored pointers.

func copyMonitor(mon domain.Monitor) domain.Monitor {
	if mon.Recipients != nil {
		v := *mon.Recipients
		mon.Recipients = &v
	}
	return mon
}

func copyResult(r domain.CheckResult) domain.CheckResult {
	if r.StatusCode != nil {
		v := *r.StatusCode
		r.StatusCode = &v
	}
	return r
}

func copyAlert(a domain.Alert) domain.Alert {
	if a.SentAt != nil {
		ts := *a.SentAt
		a.SentAt = &ts
	}
	return a
}

// ---- MonitorStore ----

func (m *Store) UpsertMonitor(ctx context.Context, id domain.MonitorID, name, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon := domain.Monitor{ID: id, Name: name, Target: target}
	if old, ok := m.monitors[id]; ok {
		mon.Recipients = old.Recipients
	}
	m.monitors[id] = mon
	return nil
}

func (m *Store) SetRecipients(ctx context.Context, id domain.MonitorID, recipients *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.monitors[id]
	if !ok {
		return nil
	}
	mon.Recipients = recipients
	m.monitors[id] = copyMonitor(mon)
	return nil
}

func (m *Store) ListMonitors(ctx context.Context) ([]domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		out = append(out, copyMonitor(mon))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	mon = copyMonitor(mon)
	return &mon, nil
}

func (m *Store) DeleteMonitor(ctx context.Context, id domain.MonitorID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[id]; !ok {
		return 0, nil
	}
	delete(m.monitors, id)
	return 1, nil
}

// ---- ResultStore ----

func (m *Store) InsertResult(ctx context.Context, monitorID domain.MonitorID, success bool, statusCode *int, ts time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRes++
	m.results = append(m.results, copyResult(domain.CheckResult{
		ID:         m.nextRes,
		MonitorID:  monitorID,
		Success:    success,
		StatusCode: statusCode,
		Timestamp:  ts.UTC(),
	}))
	return m.nextRes, nil
}

func (m *Store) RecentResults(ctx context.Context, monitorID domain.MonitorID) ([]domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.CheckResult
	// results are appended in id order, so walk backwards
	for i := len(m.results) - 1; i >= 0 && len(out) < repo.RecentResultsLimit; i-- {
		if m.results[i].MonitorID == monitorID {
			out = append(out, copyResult(m.results[i]))
		}
	}
	return out, nil
}

func (m *Store) Rotate(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := m.now().UTC().AddDate(0, 0, -retentionDays)
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.results[:0]
	var n int64
	for _, r := range m.results {
		if r.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.results = kept
	return n, nil
}

// ---- AlertStore ----

func (m *Store) InsertAlert(ctx context.Context, monitorID domain.MonitorID, message string, createdAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAl++
	m.alerts = append(m.alerts, domain.Alert{
		ID:        m.nextAl,
		MonitorID: monitorID,
		Message:   message,
		CreatedAt: createdAt.UTC(),
	})
	return m.nextAl, nil
}

func (m *Store) MarkAlertSent(ctx context.Context, alertID int64, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == alertID {
			// the first sent_at wins
			if m.alerts[i].Sent {
				return nil
			}
			ts := sentAt.UTC()
			m.alerts[i].Sent = true
			m.alerts[i].SentAt = &ts
			return nil
		}
	}
	return nil
}

func (m *Store) LastSentTime(ctx context.Context, monitorID domain.MonitorID) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last *time.Time
	for _, a := range m.alerts {
		if a.MonitorID != monitorID || !a.Sent || a.SentAt == nil {
			continue
		}
		if last == nil || a.SentAt.After(*last) {
			ts := *a.SentAt
			last = &ts
		}
	}
	return last, nil
}

func (m *Store) FetchAlerts(ctx context.Context, monitorID domain.MonitorID) ([]domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Alert, 0, len(m.alerts))
	for i := len(m.alerts) - 1; i >= 0; i-- {
		a := m.alerts[i]
		if monitorID != "" && a.MonitorID != monitorID {
			continue
		}
		out = append(out, copyAlert(a))
	}
	return out, nil
}
