package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/core/telemetry"
)

// SQLiteStore persists hospital state in a SQLite database. Each row keeps
// the full record as JSON next to the indexed columns.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection serializes writers and keeps ":memory:" shared
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS hospitals (
        hospital_id TEXT PRIMARY KEY,
        status TEXT NOT NULL,
        updated_at INTEGER NOT NULL,
        payload TEXT NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Upsert inserts or replaces h after normalizing and validating it.
func (s *SQLiteStore) Upsert(ctx context.Context, h model.HospitalState) error {
	h.Normalize()
	if err := h.Validate(); err != nil {
		return err
	}
	if h.LastUpdated.IsZero() {
		h.LastUpdated = s.now()
	}
	return s.write(ctx, s.db, h)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) write(ctx context.Context, db execer, h model.HospitalState) error {
	payload, err := json.Marshal(h)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO hospitals (hospital_id, status, updated_at, payload)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(hospital_id) DO UPDATE SET
            status = excluded.status,
            updated_at = excluded.updated_at,
            payload = excluded.payload`,
		h.ID, string(h.Status), h.LastUpdated.UnixNano(), string(payload))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHospital(row rowScanner) (model.HospitalState, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		return model.HospitalState{}, err
	}
	var h model.HospitalState
	if err := json.Unmarshal([]byte(payload), &h); err != nil {
		return model.HospitalState{}, fmt.Errorf("decode hospital: %w", err)
	}
	return h, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (model.HospitalState, bool, error) {
	h, err := scanHospital(s.db.QueryRowContext(ctx, `SELECT payload FROM hospitals WHERE hospital_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.HospitalState{}, false, nil
	}
	if err != nil {
		return model.HospitalState{}, false, err
	}
	return h, true, nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]model.HospitalState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM hospitals ORDER BY hospital_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.HospitalState
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// ApplyPartialUpdate reads, merges and writes the record in one transaction.
func (s *SQLiteStore) ApplyPartialUpdate(ctx context.Context, id string, u model.HospitalUpdate) (model.HospitalState, error) {
	_, next, err := s.Modify(ctx, id, telemetry.Set(u))
	return next, err
}

// Modify runs fn against the stored record inside the write transaction.
func (s *SQLiteStore) Modify(ctx context.Context, id string, fn telemetry.Mutator) (model.HospitalState, model.HospitalState, error) {
	var zero model.HospitalState
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return zero, zero, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanHospital(tx.QueryRowContext(ctx, `SELECT payload FROM hospitals WHERE hospital_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return zero, zero, fmt.Errorf("%w: %s", telemetry.ErrNotFound, id)
	}
	if err != nil {
		return zero, zero, err
	}
	next, changed, err := telemetry.Merge(cur, fn, s.now())
	if err != nil {
		return cur, cur, err
	}
	if !changed {
		return cur, cur, nil
	}
	if err := s.write(ctx, tx, next); err != nil {
		return zero, zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, zero, err
	}
	return cur, next, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
