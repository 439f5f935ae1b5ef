// Package repotest holds the behavioural suite every repo.Store backend must pass.
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/uptimealert/internal/domain"
	"github.com/hamed0406/uptimealert/internal/repo"
)

// Run executes the suite. newStore must return an empty store; it is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) repo.Store) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, s repo.Store)
	}{
		{"UpsertKeepsRecipients", upsertKeepsRecipients},
		{"ListMonitorsOrdered", listMonitorsOrdered},
		{"GetMonitorNotFound", getMonitorNotFound},
		{"SetRecipientsUnknownIsNoop", setRecipientsUnknownIsNoop},
		{"DeleteMonitor", deleteMonitor},
		{"RecentResultsCapped", recentResultsCapped},
		{"RecentResultsNullStatus", recentResultsNullStatus},
		{"Rotate", rotate},
		{"LastSentTime", lastSentTime},
		{"MarkAlertSentKeepsFirst", markAlertSentKeepsFirst},
		{"FetchAlertsOrder", fetchAlertsOrder},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func upsertKeepsRecipients(t *testing.T, s repo.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertMonitor(ctx, "m1", "Site", "https://a.example"))
	require.NoError(t, s.SetRecipients(ctx, "m1", ptr("a@x.io,b@x.io")))
	require.NoError(t, s.UpsertMonitor(ctx, "m1", "Site 2", "https://b.example"))

	m, err := s.GetMonitor(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Site 2", m.Name)
	assert.Equal(t, "https://b.example", m.Target)
	require.NotNil(t, m.Recipients)
	assert.Equal(t, "a@x.io,b@x.io", *m.Recipients)

	require.NoError(t, s.SetRecipients(ctx, "m1", nil))
	m, err = s.GetMonitor(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, m.Recipients)
}

func listMonitorsOrdered(t *testing.T, s repo.Store) {
	ctx := context.Background()
	for _, id := range []domain.MonitorID{"c", "a", "b"} {
		require.NoError(t, s.UpsertMonitor(ctx, id, string(id), "https://"+string(id)+".example"))
	}
	list, err := s.ListMonitors(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, domain.MonitorID("a"), list[0].ID)
	assert.Equal(t, domain.MonitorID("b"), list[1].ID)
	assert.Equal(t, domain.MonitorID("c"), list[2].ID)
}

func getMonitorNotFound(t *testing.T, s repo.Store) {
	_, err := s.GetMonitor(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, repo.ErrNotFound), "got %v", err)
}

func setRecipientsUnknownIsNoop(t *testing.T, s repo.Store) {
	ctx := context.Background()
	require.NoError(t, s.SetRecipients(ctx, "ghost", ptr("a@x.io")))
	list, err := s.ListMonitors(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func deleteMonitor(t *testing.T, s repo.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertMonitor(ctx, "m1", "Site", "https://a.example"))
	_, err := s.InsertResult(ctx, "m1", true, ptr(200), time.Now())
	require.NoError(t, err)

	n, err := s.DeleteMonitor(ctx, "m1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.DeleteMonitor(ctx, "m1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	// history survives the monitor
	res, err := s.RecentResults(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func recentResultsCapped(t *testing.T, s repo.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	var last int64
	for i := 0; i < 120; i++ {
		id, err := s.InsertResult(ctx, "m1", i%2 == 0, ptr(200), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.Greater(t, id, last)
		last = id
	}
	_, err := s.InsertResult(ctx, "other", true, ptr(200), base)
	require.NoError(t, err)

	res, err := s.RecentResults(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, res, repo.RecentResultsLimit)
	assert.Equal(t, last, res[0].ID)
	for i := 1; i < len(res); i++ {
		assert.Greater(t, res[i-1].ID, res[i].ID)
		assert.Equal(t, domain.MonitorID("m1"), res[i].MonitorID)
	}
}

func recentResultsNullStatus(t *testing.T, s repo.Store) {
	ctx := context.Background()
	_, err := s.InsertResult(ctx, "m1", false, nil, time.Now())
	require.NoError(t, err)
	res, err := s.RecentResults(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.False(t, res[0].Success)
	assert.Nil(t, res[0].StatusCode)
}

func rotate(t *testing.T, s repo.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	_, err := s.InsertResult(ctx, "m1", true, ptr(200), now.AddDate(0, 0, -40))
	require.NoError(t, err)
	keep, err := s.InsertResult(ctx, "m1", true, ptr(200), now.AddDate(0, 0, -10))
	require.NoError(t, err)

	n, err := s.Rotate(ctx, 30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	res, err := s.RecentResults(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, keep, res[0].ID)
}

func lastSentTime(t *testing.T, s repo.Store) {
	ctx := context.Background()
	ts, err := s.LastSentTime(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, ts)

	now := time.Now().UTC().Truncate(time.Microsecond)
	a1, err := s.InsertAlert(ctx, "m1", "down", now.Add(-time.Hour))
	require.NoError(t, err)
	a2, err := s.InsertAlert(ctx, "m1", "down again", now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = s.InsertAlert(ctx, "m1", "unsent", now)
	require.NoError(t, err)

	require.NoError(t, s.MarkAlertSent(ctx, a2, now.Add(-30*time.Second)))
	require.NoError(t, s.MarkAlertSent(ctx, a1, now.Add(-2*time.Minute)))

	ts, err = s.LastSentTime(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(now.Add(-30*time.Second)), "got %v", ts)

	other, err := s.LastSentTime(ctx, "m2")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func fetchAlertsOrder(t *testing.T, s repo.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	a1, err := s.InsertAlert(ctx, "m1", "first", now)
	require.NoError(t, err)
	a2, err := s.InsertAlert(ctx, "m2", "second", now)
	require.NoError(t, err)
	a3, err := s.InsertAlert(ctx, "m1", "third", now)
	require.NoError(t, err)

	all, err := s.FetchAlerts(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{a3, a2, a1}, []int64{all[0].ID, all[1].ID, all[2].ID})
	for _, a := range all {
		assert.False(t, a.Sent)
		assert.Nil(t, a.SentAt)
	}

	m1, err := s.FetchAlerts(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, m1, 2)
	assert.Equal(t, "third", m1[0].Message)
	assert.Equal(t, "first", m1[1].Message)

	require.NoError(t, s.MarkAlertSent(ctx, a1, now))
	m1, err = s.FetchAlerts(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, m1[1].Sent)
	require.NotNil(t, m1[1].SentAt)
}

func markAlertSentKeepsFirst(t *testing.T, s repo.Store) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	id, err := s.InsertAlert(ctx, "m1", "down", base)
	require.NoError(t, err)

	first := base.Add(time.Minute)
	require.NoError(t, s.MarkAlertSent(ctx, id, first))
	require.NoError(t, s.MarkAlertSent(ctx, id, first.Add(time.Hour)))

	alerts, err := s.FetchAlerts(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Sent)
	require.NotNil(t, alerts[0].SentAt)
	assert.True(t, first.Equal(*alerts[0].SentAt), "sent_at = %s", alerts[0].SentAt)

	last, err := s.LastSentTime(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, first.Equal(*last))
}
