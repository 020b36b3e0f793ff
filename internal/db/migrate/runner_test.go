package migrate

import (
	"io/fs"
	"os"
	"sort"
	"strings"
	"testing"

	"naija-nutri-hub/backend/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	err := Run("", "up")
	if err == nil {
		t.Fatal("Run with empty DSN should return error")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL is not set") {
		t.Errorf("error = %q, want DATABASE_URL hint", err)
	}
}

func TestRun_InvalidCommand(t *testing.T) {
	for _, cmd := range []string{"", "sideways", "+", "-0", "3", "+x"} {
		t.Run(cmd, func(t *testing.T) {
			err := Run("postgres://localhost/nutrihub", cmd)
			if err == nil || !strings.Contains(err.Error(), "command must be") {
				t.Errorf("Run(%q) = %v, want command error", cmd, err)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"up", 0},
		{"down", 0},
		{"+2", 2},
		{"-1", -1},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.in)
		if err != nil {
			t.Errorf("parseCommand(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseCommand(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestToPgx5URL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/db":   "pgx5://u:p@localhost:5432/db",
		"postgresql://u:p@localhost:5432/db": "pgx5://u:p@localhost:5432/db",
		"pgx5://localhost/db":                "pgx5://localhost/db",
	}
	for in, want := range tests {
		if got := toPgx5URL(in); got != want {
			t.Errorf("toPgx5URL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMigrationFS_PairsUpAndDown(t *testing.T) {
	entries, err := fs.ReadDir(db.MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	var names []string
	for n := range ups {
		names = append(names, n)
		if !downs[n] {
			t.Errorf("migration %s has no down file", n)
		}
	}
	sort.Strings(names)
	want := []string{"000001_create_users", "000002_create_password_reset_tokens"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("migrations = %v, want %v", names, want)
	}
}

func TestRun_UpAndVersion(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if err := Run(dsn, "up"); err != nil {
		t.Fatalf("Run up: %v", err)
	}
	st, err := Version(dsn)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if st.Version != 2 || st.Dirty {
		t.Errorf("status = %+v, want version 2 clean", st)
	}
}
