package entry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// timestampLayout is fixed-width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store defines the persistence operations for configuration entries.
type Store interface {
	// ExistsByUniqueID reports whether an entry with uniqueID exists.
	ExistsByUniqueID(ctx context.Context, uniqueID string) (bool, error)

	// Create persists a new entry.
	// Returns ErrEntryExists if the unique id is already taken.
	Create(ctx context.Context, req CreateRequest) (*Entry, error)

	// GetByID retrieves an entry by its row identifier.
	// Returns ErrEntryNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Entry, error)

	// GetByUniqueID retrieves an entry by its unique id.
	// Returns ErrEntryNotFound if it does not exist.
	GetByUniqueID(ctx context.Context, uniqueID string) (*Entry, error)

	// List returns every entry, oldest first.
	List(ctx context.Context) ([]Entry, error)

	// Delete removes an entry by ID.
	// Returns ErrEntryNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Store on the config_entries table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed entry store.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const selectColumns = `SELECT id, unique_id, domain, title, source, payload, created_at FROM config_entries`

// ExistsByUniqueID reports whether an entry with uniqueID exists.
func (r *SQLiteRepository) ExistsByUniqueID(ctx context.Context, uniqueID string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM config_entries WHERE unique_id = ?)`, uniqueID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking unique id: %w", err)
	}
	return exists == 1, nil
}

// Create persists a new entry.
func (r *SQLiteRepository) Create(ctx context.Context, req CreateRequest) (*Entry, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	payload := []byte("{}")
	if req.Payload != nil {
		var err error
		if payload, err = json.Marshal(req.Payload); err != nil {
			return nil, fmt.Errorf("marshalling payload: %w", err)
		}
	}

	e := &Entry{
		ID:        "ent-" + uuid.NewString(),
		UniqueID:  req.UniqueID,
		Domain:    req.Domain,
		Title:     req.Title,
		Source:    req.Source,
		Payload:   req.Payload.Clone(),
		CreatedAt: r.now().UTC(),
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config_entries (id, unique_id, domain, title, source, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UniqueID, e.Domain, e.Title, string(e.Source), string(payload),
		e.CreatedAt.Format(timestampLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrEntryExists, req.UniqueID)
		}
		return nil, fmt.Errorf("inserting entry: %w", err)
	}
	return e, nil
}

// GetByID retrieves an entry by its row identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Entry, error) {
	return r.getOne(ctx, selectColumns+` WHERE id = ?`, id)
}

// GetByUniqueID retrieves an entry by its unique id.
func (r *SQLiteRepository) GetByUniqueID(ctx context.Context, uniqueID string) (*Entry, error) {
	return r.getOne(ctx, selectColumns+` WHERE unique_id = ?`, uniqueID)
}

func (r *SQLiteRepository) getOne(ctx context.Context, query, arg string) (*Entry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("querying entry: %w", err)
	}
	return e, nil
}

// List returns every entry, oldest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// Delete removes an entry by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM config_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e         Entry
		source    string
		payload   string
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.UniqueID, &e.Domain, &e.Title, &source, &payload, &createdAt); err != nil {
		return nil, err
	}
	e.Source = Source(source)

	if e.Source == SourceDiscovery {
		var d tracker.Descriptor
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			return nil, fmt.Errorf("decoding payload of %s: %w", e.ID, err)
		}
		e.Payload = &d
	}

	t, err := time.Parse(timestampLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at of %s: %w", e.ID, err)
	}
	e.CreatedAt = t
	return &e, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
