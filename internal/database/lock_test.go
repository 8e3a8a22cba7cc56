package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockKeyStableAcrossCalls(t *testing.T) {
	assert.Equal(t, lockKey("catalog_migrations"), lockKey("catalog_migrations"))
}

func TestLockKeyDistinctPerNamespace(t *testing.T) {
	assert.NotEqual(t, lockKey("catalog_migrations"), lockKey("other_tool"))
}

func TestNoopLocker(t *testing.T) {
	var locker NoopLocker
	require.NoError(t, locker.Acquire(context.Background()))
	locker.Release()
}
