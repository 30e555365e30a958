package startup

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiscoverMigrations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"010_later.sql":         "SELECT 10;",
		"002_second.sql":        "SELECT 2;",
		"001_canonical.sql":     "SELECT 1;",
		"notes.txt":             "ignored",
		"draft_without_seq.sql": "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	migrations, err := DiscoverMigrations(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var names []string
	for _, m := range migrations {
		names = append(names, m.Filename)
	}
	if got := strings.Join(names, ","); got != "001_canonical.sql,002_second.sql,010_later.sql" {
		t.Errorf("unexpected order %s", got)
	}
	if migrations[0].Content != "SELECT 1;" {
		t.Errorf("unexpected content %q", migrations[0].Content)
	}
}

func TestShippedMigrationsDeclareNaturalKeys(t *testing.T) {
	migrations, err := DiscoverMigrations(filepath.Join("..", "migrations"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one shipped migration")
	}
	sql := migrations[0].Content
	for _, want := range []string{"UNIQUE (source, source_id)", "UNIQUE (event_id, attendee_id)"} {
		if !strings.Contains(sql, want) {
			t.Errorf("expected %q in %s", want, migrations[0].Filename)
		}
	}
}

func TestMigrationDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PORT", "5432")
	t.Setenv("POSTGRES_DB", "eventsync")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_SSLMODE", "")
	if got := MigrationDSN(); got != "host=db port=5432 dbname=eventsync user=u password=p sslmode=disable" {
		t.Errorf("unexpected dsn %q", got)
	}

	t.Setenv("DATABASE_URL", "postgres://x@y/z")
	if got := MigrationDSN(); got != "postgres://x@y/z" {
		t.Errorf("expected DATABASE_URL to win, got %q", got)
	}
}

func TestRunTasksOptionalFailureContinues(t *testing.T) {
	var ran []string
	tasks := []Task{
		{Name: "optional", Optional: true, Run: func() error { ran = append(ran, "optional"); return errors.New("boom") }},
		{Name: "required", Run: func() error { ran = append(ran, "required"); return nil }},
	}
	if err := runTasks(tasks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ran) != 2 {
		t.Errorf("expected both tasks to run, got %v", ran)
	}
}

func TestRunTasksStopsAtRequiredFailure(t *testing.T) {
	called := false
	tasks := []Task{
		{Name: "migrations", Run: func() error { return errors.New("connection refused") }},
		{Name: "after", Run: func() error { called = true; return nil }},
	}
	err := runTasks(tasks)
	if err == nil || !strings.Contains(err.Error(), `"migrations"`) {
		t.Errorf("expected wrapped task failure, got %v", err)
	}
	if called {
		t.Error("task after a required failure must not run")
	}
}
