// Package archive keeps analysed phase reports in a SQLite database so the
// upload server can hand them out again by id.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	phaseenergy "github.com/flight-assurance/phase-energy"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("report not found")

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Entry is one archived analysis.
type Entry struct {
	ID           string             `json:"id"`
	SourceName   string             `json:"source_name"`
	SourceSHA256 string             `json:"source_sha256"`
	CreatedAt    time.Time          `json:"created_at"`
	Report       phaseenergy.Report `json:"report"`
}

// SqliteStore is an Entry store backed by one SQLite file.
// The connection is opened and the schema created on first use.
type SqliteStore struct {
	dbPath string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// Open returns a store for dbPath. Use ":memory:" for a throwaway database.
func Open(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.dbErr = fmt.Errorf("opening database: %w", err)
			return
		}
		// :memory: databases are per connection.
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		s.db = db
	})
	return s.db, s.dbErr
}

// Save stores e and returns its id. A missing id or creation time is filled in.
func (s *SqliteStore) Save(ctx context.Context, e Entry) (id string, err error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(e.Report)
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}

	db, err := s.getDB()
	if err != nil {
		return "", err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackWithError(tx, &err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertReportSQL)
	if err != nil {
		return "", fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, e.ID, e.SourceName, e.SourceSHA256, e.CreatedAt.UTC().Format(time.RFC3339Nano), string(payload)); err != nil {
		return "", fmt.Errorf("inserting report: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("committing report: %w", err)
	}
	return e.ID, nil
}

// Get loads one entry by id.
func (s *SqliteStore) Get(ctx context.Context, id string) (*Entry, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	e, err := scanEntry(db.QueryRowContext(ctx, selectReportSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// List returns the newest entries first.
func (s *SqliteStore) List(ctx context.Context, limit int) (entries []*Entry, err error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, listReportsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}
	return entries, nil
}

// Close releases the database. It is safe to call more than once.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e         Entry
		createdAt string
		payload   string
	)
	if err := row.Scan(&e.ID, &e.SourceName, &e.SourceSHA256, &createdAt, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning report: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at for %s: %w", e.ID, err)
	}
	e.CreatedAt = t
	if err := json.Unmarshal([]byte(payload), &e.Report); err != nil {
		return nil, fmt.Errorf("decoding report %s: %w", e.ID, err)
	}
	return &e, nil
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) && *err == nil {
		*err = rErr
	}
}
