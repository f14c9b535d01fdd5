// Package journal records applied channel setpoints in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Entry is one setpoint change.
type Entry struct {
	ID      int64
	Session string
	Device  int
	Channel int
	Param   string
	Old     float64
	New     float64
	Err     string // empty when the device accepted the value
	At      time.Time

	OldUnknown bool // Old could not be read before the write
}

// Journal is an open setpoint journal.
type Journal struct {
	db *sql.DB
}

// NewSession returns a fresh session id.
func NewSession() string { return uuid.NewString() }

// Open opens (creating if needed) the journal at path and applies pending
// migrations.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir journal dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	// m.Close would close db through the driver; leave it open
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Record stores e. A zero At is replaced by the current time.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
	INSERT INTO setpoints(session_id, device, channel, param, old_value, old_unknown, new_value, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Session, e.Device, e.Channel, e.Param, e.Old, e.OldUnknown, e.New, e.Err, e.At.UTC().Truncate(time.Millisecond))
	return err
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
	SELECT id, session_id, device, channel, param, old_value, old_unknown, new_value, error, created_at
	FROM setpoints ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Session, &e.Device, &e.Channel, &e.Param, &e.Old, &e.OldUnknown, &e.New, &e.Err, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error { return j.db.Close() }
