package database

import (
	"path/filepath"
	"testing"
)

func TestOpen_BothDrivers(t *testing.T) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "helion.db")
			db, err := Open(driver, path)
			if err != nil {
				t.Fatalf("Open(%s): %v", driver, err)
			}
			defer db.Close()

			if _, err := db.Exec(`CREATE TABLE t (v TEXT)`); err != nil {
				t.Fatalf("create table: %v", err)
			}
			var mode string
			if err := db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
				t.Fatalf("journal_mode: %v", err)
			}
			if mode != "wal" {
				t.Errorf("journal_mode = %q, want wal", mode)
			}
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("postgres", filepath.Join(t.TempDir(), "x.db")); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
