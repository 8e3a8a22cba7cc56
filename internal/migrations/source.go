// Package migrations loads versioned SQL change-units from disk and parses
// their text into executable statements.
package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ksred/catalog-migrate/internal/utils"
)

// MigrationFile is a single discovered migration. Version is the numeric
// value of the filename prefix and drives all ordering and diffing; Label
// preserves the prefix exactly as written so tracking rows match the files on
// disk. Values are immutable once discovered.
type MigrationFile struct {
	Version int64
	Label   string
	Name    string
	Body    string
}

// LoadDir scans dir for migration files named {version}_{description}.sql and
// returns them sorted ascending by numeric version. Non-SQL entries and
// subdirectories are ignored.
func LoadDir(dir string) ([]MigrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, utils.WrapDiscoveryError(dir, "cannot read migrations directory", err)
	}

	files := make([]MigrationFile, 0, len(entries))
	seen := make(map[int64]string)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		label, _, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			return nil, utils.WrapDiscoveryError(entry.Name(), "filename must look like {version}_{description}.sql", nil)
		}

		version, err := strconv.ParseInt(label, 10, 64)
		if err != nil {
			return nil, utils.WrapDiscoveryError(entry.Name(), fmt.Sprintf("version prefix %q is not numeric", label), nil)
		}

		if prev, dup := seen[version]; dup {
			return nil, utils.WrapDiscoveryError(entry.Name(), fmt.Sprintf("duplicate version %d (already used by %s)", version, prev), nil)
		}
		seen[version] = entry.Name()

		body, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, utils.WrapDiscoveryError(entry.Name(), "cannot read migration file", err)
		}

		files = append(files, MigrationFile{
			Version: version,
			Label:   label,
			Name:    entry.Name(),
			Body:    string(body),
		})
	}

	// Numeric comparison, so version 10 sorts after 9 regardless of how the
	// prefixes are zero-padded.
	sort.Slice(files, func(i, j int) bool {
		return files[i].Version < files[j].Version
	})

	return files, nil
}
