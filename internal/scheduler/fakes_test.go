package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hamed0406/uptimealert/internal/domain"
	"github.com/hamed0406/uptimealert/internal/repo"
	"github.com/hamed0406/uptimealert/internal/repo/memory"
)

// --- fakes ---

type call struct {
	method string // "send" or "send_to"
	target string
	msg    string
}

// recordingSender implements both notify.Sender and notify.RecipientSender.
type recordingSender struct {
	mu       sync.Mutex
	calls    []call
	failAll  bool
	failFor  map[string]bool
	failSend bool
}

func (s *recordingSender) Send(ctx context.Context, monitorID domain.MonitorID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{"send", string(monitorID), message})
	if s.failAll || s.failSend {
		return errors.New("send failed")
	}
	return nil
}

func (s *recordingSender) SendTo(ctx context.Context, recipient, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{"send_to", recipient, message})
	if s.failAll || s.failFor[recipient] {
		return errors.New("send_to failed")
	}
	return nil
}

func (s *recordingSender) snapshot() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

// closingSender records Close and can hold Send open until release is closed.
type closingSender struct {
	recordingSender
	entered chan struct{}
	release chan struct{}

	closeMu sync.Mutex
	closed  bool
}

func newClosingSender() *closingSender {
	return &closingSender{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (s *closingSender) Send(ctx context.Context, monitorID domain.MonitorID, message string) error {
	s.entered <- struct{}{}
	<-s.release
	return s.recordingSender.Send(ctx, monitorID, message)
}

func (s *closingSender) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	s.closed = true
	return nil
}

func (s *closingSender) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

// faultyStore wraps the memory store and injects errors per operation.
type faultyStore struct {
	*memory.Store
	listErr      error
	fetchErr     error
	lastSentErr  error
	markErr      error
	getErr       error
	insertResErr map[domain.MonitorID]error
}

func newFaultyStore() *faultyStore { return &faultyStore{Store: memory.New()} }

func (f *faultyStore) ListMonitors(ctx context.Context) ([]domain.Monitor, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.ListMonitors(ctx)
}

func (f *faultyStore) FetchAlerts(ctx context.Context, id domain.MonitorID) ([]domain.Alert, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.Store.FetchAlerts(ctx, id)
}

func (f *faultyStore) LastSentTime(ctx context.Context, id domain.MonitorID) (*time.Time, error) {
	if f.lastSentErr != nil {
		return nil, f.lastSentErr
	}
	return f.Store.LastSentTime(ctx, id)
}

func (f *faultyStore) MarkAlertSent(ctx context.Context, id int64, at time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	return f.Store.MarkAlertSent(ctx, id, at)
}

func (f *faultyStore) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Store.GetMonitor(ctx, id)
}

func (f *faultyStore) InsertResult(ctx context.Context, id domain.MonitorID, success bool, code *int, ts time.Time) (int64, error) {
	if err := f.insertResErr[id]; err != nil {
		return 0, err
	}
	return f.Store.InsertResult(ctx, id, success, code, ts)
}

var errStorage = repo.Wrap("query", errors.New("database is locked"))

func strPtr(s string) *string { return &s }
