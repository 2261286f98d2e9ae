// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"testing"

	"mixflow/db"
	"mixflow/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open returns a fresh migrated SQLite database closed at test cleanup.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(sqlite.Open("file::memory:"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, db.AutoMigrateModels(gdb, model.All()...))
	return gdb
}
