package repo_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hamed0406/uptimealert/internal/repo"
	"github.com/hamed0406/uptimealert/internal/repo/memory"
	"github.com/hamed0406/uptimealert/internal/repo/postgres"
	"github.com/hamed0406/uptimealert/internal/repo/sqlite"
)

// Compile-time checks that every backend satisfies the ports.
var (
	_ repo.Store = (*memory.Store)(nil)
	_ repo.Store = (*sqlite.Store)(nil)
	_ repo.Store = (*postgres.Store)(nil)
)

func TestWrap(t *testing.T) {
	assert.NoError(t, repo.Wrap("op", nil))

	base := errors.New("disk full")
	err := repo.Wrap("insert result", base)
	assert.EqualError(t, err, "storage: insert result: disk full")
	assert.ErrorIs(t, err, base)

	var se *repo.StorageError
	assert.True(t, errors.As(fmt.Errorf("outer: %w", err), &se))
	assert.Equal(t, "insert result", se.Op)
}
