package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/catalog-migrate/internal/migrations"
	"github.com/ksred/catalog-migrate/internal/models"
	"github.com/ksred/catalog-migrate/internal/utils"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the in-memory database alive across queries
	sqlDB.SetMaxOpenConns(1)

	return db
}

func testFile(version int64, label, name string) migrations.MigrationFile {
	return migrations.MigrationFile{
		Version: version,
		Label:   label,
		Name:    name,
		Body:    "SELECT 1;",
	}
}

func TestEnsureTrackingTableIdempotent(t *testing.T) {
	db := setupTestDB(t)
	store := NewStateStore(db)
	ctx := context.Background()

	require.NoError(t, store.EnsureTrackingTable(ctx))
	assert.True(t, db.Migrator().HasTable(&models.SchemaMigration{}))

	// Second call must be a no-op, not an error
	require.NoError(t, store.EnsureTrackingTable(ctx))
}

func TestRecordAndLoadApplied(t *testing.T) {
	db := setupTestDB(t)
	store := NewStateStore(db)
	ctx := context.Background()

	require.NoError(t, store.EnsureTrackingTable(ctx))

	require.NoError(t, store.Record(db, testFile(1, "001", "001_first.sql")))
	require.NoError(t, store.Record(db, testFile(2, "002", "002_second.sql")))

	applied, err := store.LoadApplied(ctx)
	require.NoError(t, err)

	// Keyed by numeric value, so zero padding in the label does not matter
	assert.Equal(t, map[int64]bool{1: true, 2: true}, applied)
}

func TestRecordDuplicateVersion(t *testing.T) {
	db := setupTestDB(t)
	store := NewStateStore(db)
	ctx := context.Background()

	require.NoError(t, store.EnsureTrackingTable(ctx))
	require.NoError(t, store.Record(db, testFile(1, "001", "001_first.sql")))

	err := store.Record(db, testFile(1, "001", "001_first.sql"))
	require.Error(t, err)
	assert.True(t, utils.IsDuplicateVersionError(err))
}

func TestRecordInsideRolledBackTransaction(t *testing.T) {
	db := setupTestDB(t)
	store := NewStateStore(db)
	ctx := context.Background()

	require.NoError(t, store.EnsureTrackingTable(ctx))

	tx := db.Begin()
	require.NoError(t, tx.Error)
	require.NoError(t, store.Record(tx, testFile(1, "001", "001_first.sql")))
	tx.Rollback()

	applied, err := store.LoadApplied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestAppliedRecordsInApplicationOrder(t *testing.T) {
	db := setupTestDB(t)
	store := NewStateStore(db)
	ctx := context.Background()

	require.NoError(t, store.EnsureTrackingTable(ctx))
	require.NoError(t, store.Record(db, testFile(1, "001", "001_first.sql")))
	require.NoError(t, store.Record(db, testFile(2, "002", "002_second.sql")))

	records, err := store.AppliedRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "001", records[0].Version)
	assert.Equal(t, "001_first.sql", records[0].Name)
	assert.Equal(t, "002", records[1].Version)
}

func TestResetClearsTracking(t *testing.T) {
	db := setupTestDB(t)
	store := NewStateStore(db)
	ctx := context.Background()

	require.NoError(t, store.EnsureTrackingTable(ctx))
	require.NoError(t, store.Record(db, testFile(1, "001", "001_first.sql")))
	require.NoError(t, store.Record(db, testFile(2, "002", "002_second.sql")))

	removed, err := store.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	applied, err := store.LoadApplied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestResetWithoutTrackingTable(t *testing.T) {
	db := setupTestDB(t)
	store := NewStateStore(db)

	removed, err := store.Reset(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
