package testutil

import (
	"testing"

	"dupx-go/internal/database"
	"dupx-go/internal/database/migrations"
	"dupx-go/internal/dupx"
)

// NewTestDatabase creates a new in-memory SQLite run history with migrations applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) dupx.RunHistory {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := migrations.MigrateUp(sqlDB); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	db := database.NewSQLiteDatabaseFromDB(sqlDB)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
