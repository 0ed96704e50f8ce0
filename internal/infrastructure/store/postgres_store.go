package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/missing-persons/internal/domain/person"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

const Schema = `
CREATE TABLE IF NOT EXISTS missing_people (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	age           INTEGER NOT NULL CHECK (age BETWEEN 0 AND 120),
	last_seen     TEXT NOT NULL,
	description   TEXT NOT NULL,
	contact       TEXT NOT NULL,
	image_url     TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'found')),
	date_reported TIMESTAMPTZ NOT NULL DEFAULT now(),
	date_found    TIMESTAMPTZ,
	CHECK ((status = 'found') = (date_found IS NOT NULL))
);
CREATE INDEX IF NOT EXISTS missing_people_date_reported_idx ON missing_people (date_reported DESC);
`

const selectColumns = `id, name, age, last_seen, description, contact, image_url, status, date_reported, date_found`

// PostgresStore stores records in PostgreSQL and publishes every committed
// write to the change feed
type PostgresStore struct {
	db        *sql.DB
	publisher Publisher
}

func NewPostgresStore(db *sql.DB, publisher Publisher) *PostgresStore {
	return &PostgresStore{
		db:        db,
		publisher: publisher,
	}
}

// EnsureSchema creates the records table if it does not exist
func (ps *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, Schema)
	return err
}

// Query returns all records ordered by date_reported descending
func (ps *PostgresStore) Query(ctx context.Context) ([]person.Record, error) {
	rows, err := ps.db.QueryContext(ctx,
		`SELECT `+selectColumns+`
		 FROM missing_people
		 ORDER BY date_reported DESC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]person.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Insert stores a new record and publishes an inserted event
func (ps *PostgresStore) Insert(ctx context.Context, rec person.Record) (*person.Record, error) {
	id := uuid.New().String()

	row := ps.db.QueryRowContext(ctx,
		`INSERT INTO missing_people (id, name, age, last_seen, description, contact, image_url, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
		 RETURNING `+selectColumns,
		id,
		rec.Name,
		rec.Age,
		rec.LastSeen,
		rec.Description,
		rec.Contact,
		rec.ImageURL,
	)
	created, err := scanRecord(row)
	if err != nil {
		return nil, err
	}

	ps.publish(ctx, Inserted(created))
	return &created, nil
}

// UpdateStatus marks a record found. The WHERE clause makes the transition
// one-way; zero affected rows means either already found or missing.
func (ps *PostgresStore) UpdateStatus(ctx context.Context, id string) error {
	row := ps.db.QueryRowContext(ctx,
		`UPDATE missing_people
		 SET status = 'found', date_found = now()
		 WHERE id = $1 AND status = 'active'
		 RETURNING `+selectColumns,
		id,
	)
	updated, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := ps.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM missing_people WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return nil
	}
	if err != nil {
		return err
	}

	ps.publish(ctx, Updated(updated))
	return nil
}

// publish is best effort: the row is already committed, so a feed failure
// must not turn a successful write into an error
func (ps *PostgresStore) publish(ctx context.Context, ev ChangeEvent) {
	if ps.publisher == nil {
		return
	}
	if err := ps.publisher.Publish(ctx, ev.ID, ev); err != nil {
		logger.WithError(err).WithField("id", ev.ID).Warn("[PostgresStore] Failed to publish change event")
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (person.Record, error) {
	var (
		rec       person.Record
		status    string
		dateFound sql.NullTime
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Age,
		&rec.LastSeen,
		&rec.Description,
		&rec.Contact,
		&rec.ImageURL,
		&status,
		&rec.DateReported,
		&dateFound,
	); err != nil {
		return person.Record{}, err
	}
	rec.Status = person.Status(status)
	if dateFound.Valid {
		t := dateFound.Time
		rec.DateFound = &t
	}
	return rec, nil
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
