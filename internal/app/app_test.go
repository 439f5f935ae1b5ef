package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/config"
	"github.com/hamed0406/uptimealert/internal/notify"
	"github.com/hamed0406/uptimealert/internal/repo/memory"
	"github.com/hamed0406/uptimealert/internal/repo/sqlite"
)

func TestOpenStore_Drivers(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	cfg.DB.Driver = "memory"
	s, err := OpenStore(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	cfg.DB.Driver = "sqlite"
	cfg.DB.Path = filepath.Join(t.TempDir(), "uptime.db")
	s, err = OpenStore(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, s)
	require.NoError(t, s.Close())

	cfg.DB.Driver = "oracle"
	_, err = OpenStore(ctx, cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestNew_WiresPipeline(t *testing.T) {
	cfg := config.Default()
	cfg.DB.Driver = "memory"
	cfg.Alerts.RateLimitSeconds = 60

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, notify.Log{}, a.Sender)
	assert.NotNil(t, a.Daemon())

	n, err := a.Coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNew_BadSenderClosesStore(t *testing.T) {
	cfg := config.Default()
	cfg.DB.Driver = "memory"
	cfg.Alerts.Sender = config.SenderSlack
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
