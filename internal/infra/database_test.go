package infra

import (
	"path/filepath"
	"testing"

	"data-upload-service/config"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"sqlite://:memory:", "sqlite"},
		{"sqlite:///var/lib/upload/keys.db", "sqlite"},
		{"user:pass@tcp(localhost:3306)/upload?parseTime=true", "mysql"},
	}
	for _, tt := range tests {
		if got := dialector(tt.dsn).Name(); got != tt.want {
			t.Errorf("dialector(%q) = %s, want %s", tt.dsn, got, tt.want)
		}
	}
}

func TestNewDB_SQLite(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "keys.db")

	db, err := NewDB(dsn, &config.Config{OtelEnabled: true})
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestCloseDB(t *testing.T) {
	db, err := NewDB("sqlite://"+filepath.Join(t.TempDir(), "keys.db"), nil)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	if err := CloseDB(db); err != nil {
		t.Fatalf("CloseDB failed: %v", err)
	}
	if err := db.Exec("SELECT 1").Error; err == nil {
		t.Error("expected query on closed database to fail")
	}
}
