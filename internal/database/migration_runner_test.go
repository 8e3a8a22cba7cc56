package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ksred/catalog-migrate/internal/models"
	"github.com/ksred/catalog-migrate/internal/utils"
)

const trackingTableSQL = `-- bootstrap migration; the runner also creates this table itself,
-- so the guard keeps re-runs safe
CREATE TABLE IF NOT EXISTS schema_migrations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    version TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    applied_at TIMESTAMP
);
`

const initialSchemaSQL = `CREATE TABLE products (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT DEFAULT ''
);

CREATE TABLE services (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT DEFAULT ''
);
`

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func setupRunner(t *testing.T, dir string) (*MigrationRunner, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	runner := NewMigrationRunner(NewFromGorm(db), NoopLocker{}, dir, zerolog.Nop())
	return runner, db
}

func appliedVersions(t *testing.T, db *gorm.DB) []string {
	t.Helper()
	var versions []string
	require.NoError(t, db.Model(&models.SchemaMigration{}).Order("id").Pluck("version", &versions).Error)
	return versions
}

func TestRunAppliesPendingInOrder(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "002_initial_schema.sql", initialSchemaSQL)
	writeMigration(t, dir, "001_create_migrations_table.sql", trackingTableSQL)

	runner, db := setupRunner(t, dir)

	applied, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	assert.Equal(t, []string{"001", "002"}, appliedVersions(t, db))
	assert.True(t, db.Migrator().HasTable("products"))
	assert.True(t, db.Migrator().HasTable("services"))
}

func TestRunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_create_migrations_table.sql", trackingTableSQL)
	writeMigration(t, dir, "002_initial_schema.sql", initialSchemaSQL)

	runner, db := setupRunner(t, dir)
	ctx := context.Background()

	applied, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	// Second consecutive run performs zero executions and zero writes
	applied, err = runner.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	assert.Equal(t, []string{"001", "002"}, appliedVersions(t, db))
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_create_migrations_table.sql", trackingTableSQL)
	writeMigration(t, dir, "002_initial_schema.sql", initialSchemaSQL)
	writeMigration(t, dir, "003_broken.sql",
		"CREATE TABLE categories (id TEXT PRIMARY KEY);\nINSERT INTO no_such_table (id) VALUES (1);\n")
	writeMigration(t, dir, "004_never_reached.sql",
		"CREATE TABLE never_reached (id TEXT PRIMARY KEY);\n")

	runner, db := setupRunner(t, dir)

	_, err := runner.Run(context.Background())
	require.Error(t, err)

	var execErr *utils.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "003", execErr.Version)

	// 001 and 002 committed; 003 rolled back in full; 004 never attempted
	assert.Equal(t, []string{"001", "002"}, appliedVersions(t, db))
	assert.False(t, db.Migrator().HasTable("categories"))
	assert.False(t, db.Migrator().HasTable("never_reached"))
}

func TestRunResumesFromFirstPendingAfterFix(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_create_migrations_table.sql", trackingTableSQL)
	writeMigration(t, dir, "002_initial_schema.sql", initialSchemaSQL)
	writeMigration(t, dir, "003_broken.sql", "INSERT INTO no_such_table (id) VALUES (1);\n")

	runner, db := setupRunner(t, dir)
	ctx := context.Background()

	_, err := runner.Run(ctx)
	require.Error(t, err)

	// Operator fixes the migration file and re-runs
	writeMigration(t, dir, "003_broken.sql", "CREATE TABLE categories (id TEXT PRIMARY KEY);\n")

	applied, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, []string{"001", "002", "003"}, appliedVersions(t, db))
	assert.True(t, db.Migrator().HasTable("categories"))
}

func TestRunDiscoveryErrorAbortsBeforeDatabaseWrites(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_first.sql", "SELECT 1;")
	writeMigration(t, dir, "1_also_first.sql", "SELECT 1;")

	runner, db := setupRunner(t, dir)

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsDiscoveryError(err))

	// Not even the tracking table bootstrap ran
	assert.False(t, db.Migrator().HasTable(&models.SchemaMigration{}))
}

func TestRunEmptyDirectoryIsNoopSuccess(t *testing.T) {
	runner, db := setupRunner(t, t.TempDir())

	applied, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.Empty(t, appliedVersions(t, db))
}

func TestStatusListsAppliedAndPending(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_create_migrations_table.sql", trackingTableSQL)
	writeMigration(t, dir, "002_initial_schema.sql", initialSchemaSQL)

	runner, _ := setupRunner(t, dir)
	ctx := context.Background()

	status, err := runner.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Applied)
	require.Len(t, status.Pending, 2)
	assert.Equal(t, "001", status.Pending[0].Label)

	_, err = runner.Run(ctx)
	require.NoError(t, err)

	writeMigration(t, dir, "003_categories.sql", "CREATE TABLE categories (id TEXT PRIMARY KEY);\n")

	status, err = runner.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status.Applied, 2)
	assert.Equal(t, "001_create_migrations_table.sql", status.Applied[0].Name)
	require.Len(t, status.Pending, 1)
	assert.Equal(t, "003", status.Pending[0].Label)
}

func TestResetMakesEverythingPendingAgain(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_create_migrations_table.sql", trackingTableSQL)

	runner, db := setupRunner(t, dir)
	ctx := context.Background()

	_, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001"}, appliedVersions(t, db))

	removed, err := runner.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	status, err := runner.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Applied)
	require.Len(t, status.Pending, 1)
}
