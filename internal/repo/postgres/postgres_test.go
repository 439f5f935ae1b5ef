package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/repo"
	"github.com/hamed0406/uptimealert/internal/repo/repotest"
)

func TestStore_Conformance(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	repotest.Run(t, func(t *testing.T) repo.Store {
		ctx := context.Background()
		s, err := New(ctx, dsn, zap.NewNop())
		require.NoError(t, err)
		_, err = s.pool.Exec(ctx, `TRUNCATE monitors, results, alerts RESTART IDENTITY`)
		require.NoError(t, err)
		return s
	})
}
