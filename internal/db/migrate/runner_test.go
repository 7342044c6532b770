package migrate

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"

	"classroom-lock/client/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	err := Run("", DirectionUp)
	if err == nil {
		t.Fatal("Run with empty DSN should return error")
	}
	if !strings.HasPrefix(err.Error(), "DATABASE_URL is not set") {
		t.Errorf("error = %q, want DATABASE_URL hint", err.Error())
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "invalid", "UP", "Down", "sideways"} {
		t.Run(direction, func(t *testing.T) {
			err := Run("postgres://localhost/test", direction)
			if err == nil {
				t.Fatalf("Run with direction %q should return error", direction)
			}
			if !strings.Contains(err.Error(), "direction must be up or down") {
				t.Errorf("error = %q, want direction error", err.Error())
			}
		})
	}
}

func TestRun_InvalidDSN(t *testing.T) {
	for _, dsn := range []string{"invalid-dsn", "://localhost/test", "postgres://localhost with spaces/test"} {
		if err := Run(dsn, DirectionUp); err == nil {
			t.Errorf("Run with invalid DSN %q should return error", dsn)
		}
	}
}

func TestVersion_EmptyDSN(t *testing.T) {
	if _, _, _, err := Version(""); err == nil {
		t.Fatal("Version with empty DSN should return error")
	}
}

func TestMigrationFS_ContainsLedgerSchema(t *testing.T) {
	entries, err := fs.ReadDir(db.MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var up, down bool
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			up = true
		case strings.HasSuffix(e.Name(), ".down.sql"):
			down = true
		}
	}
	if !up || !down {
		t.Errorf("migrations = %v, want up and down files", entries)
	}
	b, err := fs.ReadFile(db.MigrationFS, "migrations/000001_create_ledger_blobs.up.sql")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), "ledger_blobs") {
		t.Error("up migration does not create ledger_blobs")
	}
}

func TestErrNoChange(t *testing.T) {
	if ErrNoChange == nil {
		t.Fatal("ErrNoChange should not be nil")
	}
	if !errors.Is(ErrNoChange, ErrNoChange) {
		t.Error("ErrNoChange should be errors.Is compatible")
	}
}

// TestRun_UpDown runs only when TEST_DATABASE_URL points at a disposable database.
func TestRun_UpDown(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := Run(dsn, DirectionUp); err != nil {
		t.Fatalf("up: %v", err)
	}
	if err := Run(dsn, DirectionUp); err != nil {
		t.Fatalf("second up should be a no-op: %v", err)
	}
	v, dirty, ok, err := Version(dsn)
	if err != nil || !ok || dirty || v != 1 {
		t.Errorf("Version = %d, %v, %v, %v; want 1, false, true, nil", v, dirty, ok, err)
	}
}
