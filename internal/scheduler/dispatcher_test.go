package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/domain"
	"github.com/hamed0406/uptimealert/internal/repo"
)

func newTestDispatcher(store DispatchStore, now time.Time) *Dispatcher {
	d := NewDispatcher(zap.NewNop(), store)
	d.now = func() time.Time { return now }
	return d
}

func alertByID(t *testing.T, s repo.AlertStore, id int64) domain.Alert {
	t.Helper()
	all, err := s.FetchAlerts(context.Background(), "")
	require.NoError(t, err)
	for _, a := range all {
		if a.ID == id {
			return a
		}
	}
	t.Fatalf("alert %d not found", id)
	return domain.Alert{}
}

func TestDispatch_OldestFirst(t *testing.T) {
	ctx := context.Background()
	st := newFaultyStore()
	now := time.Now().UTC()
	require.NoError(t, st.UpsertMonitor(ctx, "api", "API", "https://api.example"))
	for i, msg := range []string{"t1", "t2", "t3"} {
		_, err := st.InsertAlert(ctx, "api", msg, now.Add(time.Duration(i-3)*time.Minute))
		require.NoError(t, err)
	}

	snd := &recordingSender{}
	n, err := newTestDispatcher(st, now).DispatchPending(ctx, snd, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	calls := snd.snapshot()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"t1", "t2", "t3"}, []string{calls[0].msg, calls[1].msg, calls[2].msg})
	for _, c := range calls {
		assert.Equal(t, "send", c.method)
		assert.Equal(t, "api", c.target)
	}
}

func TestDispatch_RateLimitWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	setup := func(t *testing.T) *faultyStore {
		st := newFaultyStore()
		old, err := st.InsertAlert(ctx, "api", "earlier", now.Add(-time.Minute))
		require.NoError(t, err)
		require.NoError(t, st.MarkAlertSent(ctx, old, now.Add(-30*time.Second)))
		_, err = st.InsertAlert(ctx, "api", "new", now)
		require.NoError(t, err)
		return st
	}

	t.Run("inside window", func(t *testing.T) {
		st := setup(t)
		snd := &recordingSender{}
		n, err := newTestDispatcher(st, now).DispatchPending(ctx, snd, 60*time.Second)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Empty(t, snd.snapshot())
	})

	t.Run("window expired", func(t *testing.T) {
		st := setup(t)
		snd := &recordingSender{}
		n, err := newTestDispatcher(st, now).DispatchPending(ctx, snd, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("no limit", func(t *testing.T) {
		st := setup(t)
		n, err := newTestDispatcher(st, now).DispatchPending(ctx, &recordingSender{}, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestDispatch_RateLimitNeverBlocksFirstAlert(t *testing.T) {
	ctx := context.Background()
	st := newFaultyStore()
	_, err := st.InsertAlert(ctx, "api", "first ever", time.Now())
	require.NoError(t, err)

	n, err := newTestDispatcher(st, time.Now()).DispatchPending(ctx, &recordingSender{}, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDispatch_RateLimitAppliesWithinOneCall(t *testing.T) {
	ctx := context.Background()
	st := newFaultyStore()
	now := time.Now().UTC()
	_, err := st.InsertAlert(ctx, "api", "a", now.Add(-2*time.Minute))
	require.NoError(t, err)
	_, err = st.InsertAlert(ctx, "api", "b", now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = st.InsertAlert(ctx, "web", "c", now)
	require.NoError(t, err)

	d := newTestDispatcher(st, now)
	n, err := d.DispatchPending(ctx, &recordingSender{}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one per monitor")

	n, err = d.DispatchPending(ctx, &recordingSender{}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDispatch_RecipientsReplaceMonitorSend(t *testing.T) {
	ctx := context.Background()
	st := newFaultyStore()
	require.NoError(t, st.UpsertMonitor(ctx, "api", "API", "https://api.example"))
	require.NoError(t, st.SetRecipients(ctx, "api", strPtr("a@x.com, b@x.com")))
	id, err := st.InsertAlert(ctx, "api", "down", time.Now())
	require.NoError(t, err)

	snd := &recordingSender{}
	n, err := newTestDispatcher(st, time.Now()).DispatchPending(ctx, snd, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []call{
		{"send_to", "a@x.com", "down"},
		{"send_to", "b@x.com", "down"},
	}, snd.snapshot())
	assert.True(t, alertByID(t, st, id).Sent)
}

func TestDispatch_NoRecipientsUsesMonitorSend(t *testing.T) {
	ctx := context.Background()
	st := newFaultyStore()
	require.NoError(t, st.UpsertMonitor(ctx, "api", "API", "https://api.example"))
	_, err := st.InsertAlert(ctx, "api", "down", time.Now())
	require.NoError(t, err)

	snd := &recordingSender{}
	_, err = newTestDispatcher(st, time.Now()).DispatchPending(ctx, snd, 0)
	require.NoError(t, err)
	assert.Equal(t, []call{{"send", "api", "down"}}, snd.snapshot())
}

func TestDispatch_MonitorLookupFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	st := newFaultyStore()
	st.getErr = errStorage
	_, err := st.InsertAlert(ctx, "api", "down", time.Now())
	require.NoError(t, err)

	snd := &recordingSender{}
	n, err := newTestDispatcher(st, time.Now()).DispatchPending(ctx, snd, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []call{{"send", "api", "down"}}, snd.snapshot())
}

func TestDispatch_PartialRecipientFailureStillSent(t *testing.T) {
	ctx := context.Background()
	st := newFaultyStore()
	require.NoError(t, st.UpsertMonitor(ctx, "api", "API", "https://api.example"))
	require.NoError(t, st.SetRecipients(ctx, "api", strPtr("a@x.com,b@x.com")))
	id, err := st.InsertAlert(ctx, "api", "down", time.Now())
	require.NoError(t, err)

	snd := &recordingSender{failFor: map[string]bool{"a@x.com": true}}
	n, err := newTestDispatcher(st, time.Now()).DispatchPending(ctx, snd, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	a := alertByID(t, st, id)
	assert.True(t, a.Sent)
	require.NotNil(t, a.SentAt)
}

func TestDispatch_AllRecipientsFailLeavesUnsent(t *testing.T) {
	ctx := context.Background()
	st := newFaultyStore()
	require.NoError(t, st.UpsertMonitor(ctx, "api", "API", "https://api.example"))
	require.NoError(t, st.SetRecipients(ctx, "api", strPtr("a@x.com,b@x.com")))
	id, err := st.InsertAlert(ctx, "api", "down", time.Now())
	require.NoError(t, err)

	snd := &recordingSender{failAll: true}
	n, err := newTestDispatcher(st, time.Now()).DispatchPending(ctx, snd, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, alertByID(t, st, id).Sent)
	for _, c := range snd.snapshot() {
		assert.Equal(t, "send_to", c.method)
	}
}

func TestDispatch_SendFailureLeavesUnsentAndContinues(t *testing.T) {
	ctx := context.Background()
	st := newFaultyStore()
	require.NoError(t, st.UpsertMonitor(ctx, "web", "Web", "https://web.example"))
	require.NoError(t, st.SetRecipients(ctx, "web", strPtr("ops@x.com")))
	failing, err := st.InsertAlert(ctx, "api", "api down", time.Now())
	require.NoError(t, err)
	ok, err := st.InsertAlert(ctx, "web", "web down", time.Now())
	require.NoError(t, err)

	snd := &recordingSender{failSend: true}
	n, err := newTestDispatcher(st, time.Now()).DispatchPending(ctx, snd, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, alertByID(t, st, failing).Sent)
	assert.True(t, alertByID(t, st, ok).Sent)
}

func TestDispatch_SkipsAlreadySent(t *testing.T) {
	ctx := context.Background()
	st := newFaultyStore()
	id, err := st.InsertAlert(ctx, "api", "old", time.Now())
	require.NoError(t, err)
	require.NoError(t, st.MarkAlertSent(ctx, id, time.Now()))

	snd := &recordingSender{}
	n, err := newTestDispatcher(st, time.Now()).DispatchPending(ctx, snd, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, snd.snapshot())
}

func TestDispatch_StoreErrorsAreFatal(t *testing.T) {
	ctx := context.Background()

	cases := map[string]func(*faultyStore){
		"fetch":     func(s *faultyStore) { s.fetchErr = errStorage },
		"last sent": func(s *faultyStore) { s.lastSentErr = errStorage },
		"mark sent": func(s *faultyStore) { s.markErr = errStorage },
	}
	for name, inject := range cases {
		t.Run(name, func(t *testing.T) {
			st := newFaultyStore()
			_, err := st.InsertAlert(ctx, "api", "down", time.Now())
			require.NoError(t, err)
			inject(st)

			_, err = newTestDispatcher(st, time.Now()).DispatchPending(ctx, &recordingSender{}, time.Minute)
			require.Error(t, err)
			var se *repo.StorageError
			assert.True(t, errors.As(err, &se))
		})
	}
}
