// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"fmt"
	"testing"

	"example.com/backstage/services/fleet/internal/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

// Open returns a fresh, migrated database that is closed when the test ends
func Open(t *testing.T) database.DB {
	t.Helper()

	// A named shared-cache database lives as long as one connection is open;
	// a single connection keeps transactions and plain queries on the same handle.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.New().String())
	db, err := database.Open(sqlite.Open(dsn), nil)
	require.NoError(t, err)

	gormDB, err := db.DB()
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}
