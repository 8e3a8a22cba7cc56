package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/ksred/catalog-migrate/internal/migrations"
	"github.com/ksred/catalog-migrate/internal/models"
	"github.com/ksred/catalog-migrate/internal/utils"
)

// StateStore owns all access to the schema_migrations tracking table.
type StateStore struct {
	db *gorm.DB
}

// NewStateStore creates a state store on the given connection
func NewStateStore(db *gorm.DB) *StateStore {
	return &StateStore{db: db}
}

// EnsureTrackingTable creates schema_migrations when it does not exist yet.
// This is the bootstrap special case: it must work on a database no migration
// has ever touched, so it is a direct existence check rather than part of the
// pending-migration flow. The runner holds the advisory lock here, so two
// processes never race the creation.
func (s *StateStore) EnsureTrackingTable(ctx context.Context) error {
	migrator := s.db.WithContext(ctx).Migrator()
	if migrator.HasTable(&models.SchemaMigration{}) {
		return nil
	}
	if err := migrator.CreateTable(&models.SchemaMigration{}); err != nil {
		return fmt.Errorf("failed to create tracking table: %w", err)
	}
	return nil
}

// LoadApplied returns the set of applied versions keyed by numeric value.
// Reads run outside any migration transaction, so only committed rows are
// visible.
func (s *StateStore) LoadApplied(ctx context.Context) (map[int64]bool, error) {
	var versions []string
	if err := s.db.WithContext(ctx).Model(&models.SchemaMigration{}).Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("failed to load applied migrations: %w", err)
	}

	applied := make(map[int64]bool, len(versions))
	for _, v := range versions {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tracking table contains non-numeric version %q", v)
		}
		applied[n] = true
	}
	return applied, nil
}

// AppliedRecords returns every tracking row in application order
func (s *StateStore) AppliedRecords(ctx context.Context) ([]models.SchemaMigration, error) {
	var records []models.SchemaMigration
	if err := s.db.WithContext(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load migration records: %w", err)
	}
	return records, nil
}

// Record inserts the tracking row for file using the caller's transaction, so
// the schema change and its bookkeeping entry commit or roll back together.
func (s *StateStore) Record(tx *gorm.DB, file migrations.MigrationFile) error {
	record := &models.SchemaMigration{
		Version:   file.Label,
		Name:      file.Name,
		AppliedAt: time.Now().UTC(),
	}

	if err := tx.Create(record).Error; err != nil {
		if isUniqueViolation(err) {
			return utils.NewDuplicateVersionError(file.Label)
		}
		return fmt.Errorf("failed to record migration %s: %w", file.Label, err)
	}
	return nil
}

// Reset deletes every tracking row, returning the number removed. The domain
// schema itself is left untouched.
func (s *StateStore) Reset(ctx context.Context) (int64, error) {
	if !s.db.WithContext(ctx).Migrator().HasTable(&models.SchemaMigration{}) {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.SchemaMigration{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset migration tracking: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// isUniqueViolation reports whether err is a uniqueness violation on the
// version column, regardless of which driver produced it.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	// sqlite (tests) reports constraint failures by message only
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
