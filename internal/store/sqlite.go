package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/steam-trading-notice/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// RecordDelivery inserts one delivery row.
func (s *SQLiteStore) RecordDelivery(
	ctx context.Context,
	d model.Delivery,
) (model.Delivery, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	if d.Recipients == nil {
		d.Recipients = []string{}
	}

	recipients, err := json.Marshal(d.Recipients)
	if err != nil {
		return d, fmt.Errorf("marshaling recipients: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deliveries (
			id, kind, subject, recipients, status, error,
			screenshot_bytes, dump_bytes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, string(d.Kind), d.Subject, string(recipients),
		string(d.Status), d.Error,
		d.ScreenshotBytes, d.DumpBytes, d.CreatedAt.UTC(),
	)
	if err != nil {
		return d, fmt.Errorf("recording delivery: %w", err)
	}

	return d, nil
}

// RecentDeliveries returns up to limit deliveries, newest first.
func (s *SQLiteStore) RecentDeliveries(
	ctx context.Context,
	limit int,
) ([]model.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM deliveries ORDER BY created_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []model.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, rows.Err()
}

// LastSuccessful returns the newest sent delivery, or nil if none exists.
func (s *SQLiteStore) LastSuccessful(ctx context.Context) (*model.Delivery, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT * FROM deliveries WHERE status = ? ORDER BY created_at DESC, rowid DESC LIMIT 1",
		string(model.DeliveryStatusSent),
	)

	var r deliveryRow
	if err := row.StructScan(&r); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying last delivery: %w", err)
	}

	d, err := r.toModel()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// deliveryRow mirrors the deliveries table.
type deliveryRow struct {
	ID              string    `db:"id"`
	Kind            string    `db:"kind"`
	Subject         string    `db:"subject"`
	Recipients      string    `db:"recipients"`
	Status          string    `db:"status"`
	Error           string    `db:"error"`
	ScreenshotBytes int       `db:"screenshot_bytes"`
	DumpBytes       int       `db:"dump_bytes"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r deliveryRow) toModel() (model.Delivery, error) {
	var recipients []string
	if err := json.Unmarshal([]byte(r.Recipients), &recipients); err != nil {
		return model.Delivery{}, fmt.Errorf("decoding recipients of delivery %s: %w", r.ID, err)
	}

	return model.Delivery{
		ID:              r.ID,
		Kind:            model.DeliveryKind(r.Kind),
		Subject:         r.Subject,
		Recipients:      recipients,
		Status:          model.DeliveryStatus(r.Status),
		Error:           r.Error,
		ScreenshotBytes: r.ScreenshotBytes,
		DumpBytes:       r.DumpBytes,
		CreatedAt:       r.CreatedAt,
	}, nil
}

func scanDelivery(rows *sqlx.Rows) (model.Delivery, error) {
	var r deliveryRow
	if err := rows.StructScan(&r); err != nil {
		return model.Delivery{}, fmt.Errorf("scanning delivery: %w", err)
	}
	return r.toModel()
}
