package db

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestSQLite opens a throwaway ledger store in t.TempDir(): the same
// hardened write/read pool pair the server uses, with the full schema
// migrated on the write pool. Cleanup is registered on t.
//
// Tests that don't need the read/write split can use writeDB for everything.
func OpenTestSQLite(t *testing.T) (writeDB, readDB *sql.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")

	writeDB, readDB, err := OpenSQLitePair(path, 4)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})

	if err := RunMigrations(writeDB); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return writeDB, readDB
}
