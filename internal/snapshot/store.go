// Package snapshot persists local Burg coefficient fields in sqlite so the
// inverse filter can run in a later invocation.
package snapshot

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/localburg/internal/burg"
	"github.com/banshee-data/localburg/internal/grid"
	"github.com/banshee-data/localburg/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when no snapshot matches a lookup.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot describes one stored coefficient field.
type Snapshot struct {
	ID        string
	Name      string
	Shape     grid.Shape
	Order     int
	Sigma     float64
	Clipped   int
	NonFinite int
	CreatedAt time.Time

	// Field is nil in List results.
	Field *burg.CoefficientField
}

// Store is a sqlite-backed snapshot store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. Use ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// migrateUp runs all pending migrations up to the latest version.
func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// m is not closed: that would close the shared connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Save stores c under name and returns the new snapshot's ID.
func (s *Store) Save(ctx context.Context, name string, c *burg.CoefficientField, sigma float64) (string, error) {
	if err := c.Validate(); err != nil {
		return "", fmt.Errorf("refusing to store coefficients: %w", err)
	}
	blob, err := serializeField(c)
	if err != nil {
		return "", fmt.Errorf("failed to serialize coefficients: %w", err)
	}
	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coefficient_snapshots (
			snapshot_id, name, n1, n2, n3, filter_order, sigma,
			clipped, non_finite, coefficients_blob, created_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, c.Shape.N1, c.Shape.N2, c.Shape.N3, c.Order, sigma,
		c.Clipped, c.NonFinite, blob, s.now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return id, nil
}

const selectColumns = `snapshot_id, name, n1, n2, n3, filter_order, sigma,
	clipped, non_finite, created_unix_nanos`

// Load returns the snapshot with the given ID, including its field.
func (s *Store) Load(ctx context.Context, id string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+`, coefficients_blob
		FROM coefficient_snapshots WHERE snapshot_id = ?`, id)
	return scanFull(row, id)
}

// Latest returns the most recently saved snapshot for name.
func (s *Store) Latest(ctx context.Context, name string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+`, coefficients_blob
		FROM coefficient_snapshots WHERE name = ?
		ORDER BY created_unix_nanos DESC, rowid DESC LIMIT 1`, name)
	return scanFull(row, name)
}

// List returns the metadata of every snapshot for name, newest first.
func (s *Store) List(ctx context.Context, name string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+`
		FROM coefficient_snapshots WHERE name = ?
		ORDER BY created_unix_nanos DESC, rowid DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var sn Snapshot
		var created int64
		if err := rows.Scan(scanTargets(&sn, &created)...); err != nil {
			return nil, err
		}
		sn.CreatedAt = time.Unix(0, created)
		out = append(out, sn)
	}
	return out, rows.Err()
}

// Delete removes the snapshot with the given ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM coefficient_snapshots WHERE snapshot_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func scanFull(row *sql.Row, key string) (*Snapshot, error) {
	var sn Snapshot
	var created int64
	var blob []byte
	if err := row.Scan(append(scanTargets(&sn, &created), &blob)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	sn.CreatedAt = time.Unix(0, created)
	field, err := deserializeField(blob)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", sn.ID, err)
	}
	field.Clipped, field.NonFinite = sn.Clipped, sn.NonFinite
	sn.Field = field
	return &sn, nil
}

// scanTargets lists the destinations for selectColumns. CreatedAt is filled
// from created by the caller.
func scanTargets(sn *Snapshot, created *int64) []any {
	return []any{
		&sn.ID, &sn.Name, &sn.Shape.N1, &sn.Shape.N2, &sn.Shape.N3, &sn.Order, &sn.Sigma,
		&sn.Clipped, &sn.NonFinite, created,
	}
}
