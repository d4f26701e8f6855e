package migrate

import (
	"context"
	"testing"

	"meteo-station/internal/db"
)

func TestRunIsIdempotent(t *testing.T) {
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	for i := range 2 {
		if err := Run(ctx, conn, nil); err != nil {
			t.Fatalf("Run() pass %d error = %v, want nil", i, err)
		}
	}

	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM " + tableName).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 2 {
		t.Fatalf("recorded migrations = %d, want 2", n)
	}

	for _, table := range []string{"prefs", "update_attempts"} {
		var name string
		err := conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestParseFilenames(t *testing.T) {
	pending, err := pendingMigrations(map[string]bool{"0001": true})
	if err != nil {
		t.Fatalf("pendingMigrations() error = %v", err)
	}
	if len(pending) != 1 || pending[0].version != "0002" || pending[0].name != "update_attempts" {
		t.Fatalf("pendingMigrations() = %+v, want only 0002_update_attempts", pending)
	}
}
