// Package psqltest opens throwaway sqlite databases with the production schema.
package psqltest

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"parley/parley/sources/psql"
)

// Open returns a migrated in-memory database private to t.
func Open(t testing.TB) *psql.Database {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := psql.NewSQLite(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}
