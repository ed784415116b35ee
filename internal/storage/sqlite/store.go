package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"starlight/internal/storage"
)

// writeChunkSize bounds how many rows share one transaction so batch imports
// never hold a long write lock on constrained devices.
const writeChunkSize = 10

const interChunkYield = 5 * time.Millisecond

// Store implements storage.Store on an embedded SQLite database.
type Store struct {
	db *sql.DB
}

func Bootstrap(dbPath string) (*Store, error) {
	database, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(database); err != nil {
		database.Close()
		return nil, err
	}

	return &Store{db: database}, nil
}

func Open(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}

	for _, pragma := range pragmas {
		if _, err := database.Exec(pragma); err != nil {
			database.Close()
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", pragma, err)
		}
	}

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return database, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// inChunkedTx runs apply over fixed-size chunks of [0, total), one
// transaction per chunk, yielding briefly between chunks.
func (s *Store) inChunkedTx(ctx context.Context, total int, apply func(tx *sql.Tx, start int, end int) error) error {
	for start := 0; start < total; start += writeChunkSize {
		end := start + writeChunkSize
		if end > total {
			end = total
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin batch tx: %w", err)
		}

		if err := apply(tx, start, end); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit batch tx: %w", err)
		}

		if end < total {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interChunkYield):
			}
		}
	}

	return nil
}

func intPointer(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}

	intValue := int(value.Int64)
	return &intValue
}

func int64Pointer(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}

	int64Value := value.Int64
	return &int64Value
}

func stringPointer(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}

	stringValue := value.String
	return &stringValue
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}

	return *value
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}

	return *value
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}

	return *value
}

var _ storage.Store = (*Store)(nil)
