package store

import (
	"context"
	"path/filepath"
	"testing"

	"nft-sniper/internal/config"
)

func TestNewSQLite_InMemoryMigrate(t *testing.T) {
	s, err := NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Migrate(ctx, "test", `CREATE TABLE IF NOT EXISTS t (id TEXT PRIMARY KEY);`); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, `INSERT INTO t (id) VALUES ('a')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	var n int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM t`).Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
}

func TestNewSQLite_FileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sniper.db")
	s, err := NewSQLite(config.DatabaseConfig{Path: path, MaxOpenConns: 2, MaxIdleConns: 2})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	defer s.Close()

	if err := s.Migrate(context.Background(), "test", `SELECT 1;`, `BROKEN SQL`); err == nil {
		t.Fatalf("expected migrate error for invalid statement")
	}
}
