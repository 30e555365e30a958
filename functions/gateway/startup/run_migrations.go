package startup

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const defaultMigrationsDir = "functions/gateway/migrations"

// Migration is one numbered .sql file, e.g. 001_canonical_events.sql.
type Migration struct {
	Sequence int
	Filename string
	Content  string
}

// InitMigrations applies every migration in POSTGRES_MIGRATIONS_DIR that is not yet
// recorded in schema_migrations.
func InitMigrations() error {
	migrationsDir := os.Getenv("POSTGRES_MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = defaultMigrationsDir
	}

	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		log.Printf("No migrations directory found at %s", migrationsDir)
		return nil
	}

	migrations, err := DiscoverMigrations(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to discover migrations: %w", err)
	}
	if len(migrations) == 0 {
		log.Println("No migration files found")
		return nil
	}

	db, err := ConnectToDatabase(MigrationDSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := runMigrations(db, migrations); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationDSN prefers DATABASE_URL and falls back to the POSTGRES_* variables.
func MigrationDSN() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	sslmode := os.Getenv("POSTGRES_SSLMODE")
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		os.Getenv("POSTGRES_HOST"), os.Getenv("POSTGRES_PORT"), os.Getenv("POSTGRES_DB"),
		os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD"), sslmode)
}

// DiscoverMigrations reads numbered .sql files sorted by sequence. Files without a
// numeric prefix are skipped.
func DiscoverMigrations(migrationsDir string) ([]Migration, error) {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		var sequence int
		prefix := strings.SplitN(file.Name(), "_", 2)[0]
		if _, err := fmt.Sscanf(prefix, "%d", &sequence); err != nil {
			log.Printf("WARN: skipping migration with invalid sequence number: %s", file.Name())
			continue
		}

		content, err := os.ReadFile(filepath.Join(migrationsDir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file.Name(), err)
		}

		migrations = append(migrations, Migration{
			Sequence: sequence,
			Filename: file.Name(),
			Content:  string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Sequence < migrations[j].Sequence
	})
	return migrations, nil
}

// ConnectToDatabase opens a lib/pq connection, retrying the ping while the database
// container starts.
func ConnectToDatabase(dsn string) (*sql.DB, error) {
	const maxRetries = 10
	const retryDelay = 2 * time.Second

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			return db, nil
		}
		log.Printf("Failed to ping database (attempt %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	db.Close()
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
}

func runMigrations(db *sql.DB, migrations []Migration) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	for _, migration := range migrations {
		var applied bool
		if err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename = $1)`, migration.Filename).Scan(&applied); err != nil {
			return fmt.Errorf("checking %s: %w", migration.Filename, err)
		}
		if applied {
			continue
		}

		log.Printf("Running migration: %s", migration.Filename)
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migration.Content); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %s: %w", migration.Filename, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, migration.Filename); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", migration.Filename, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", migration.Filename, err)
		}
	}
	return nil
}
