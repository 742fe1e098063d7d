// Package pgstore provides a PostgreSQL implementation of telemetry.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/core/telemetry"
)

var tracer = otel.Tracer("github.com/kilianp07/erbalance/infra/store/pgstore")

//go:embed schema.sql
var schema string

// Store persists hospital state in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New connects to PostgreSQL, applies the schema, and returns a ready Store.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{pool: pool, now: time.Now}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func scanHospital(row pgx.Row) (model.HospitalState, bool, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.HospitalState{}, false, nil
		}
		return model.HospitalState{}, false, fmt.Errorf("scan hospital: %w", err)
	}
	var h model.HospitalState
	if err := json.Unmarshal(payload, &h); err != nil {
		return model.HospitalState{}, false, fmt.Errorf("decode hospital: %w", err)
	}
	return h, true, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func upsert(ctx context.Context, db execer, h model.HospitalState) error {
	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode hospital: %w", err)
	}
	_, err = db.Exec(ctx, `INSERT INTO hospitals (hospital_id, hospital_name, status, updated_at, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (hospital_id) DO UPDATE SET
			hospital_name = EXCLUDED.hospital_name,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			payload = EXCLUDED.payload`,
		h.ID, h.Name, string(h.Status), h.LastUpdated, payload)
	if err != nil {
		return fmt.Errorf("upsert hospital %s: %w", h.ID, err)
	}
	return nil
}

// Get retrieves a hospital by ID.
func (s *Store) Get(ctx context.Context, id string) (model.HospitalState, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	h, ok, err := scanHospital(s.pool.QueryRow(ctx, `SELECT payload FROM hospitals WHERE hospital_id = $1`, id))
	if err != nil {
		return model.HospitalState{}, false, fail(span, err)
	}
	return h, ok, nil
}

// ListAll returns every hospital ordered by ID.
func (s *Store) ListAll(ctx context.Context) ([]model.HospitalState, error) {
	ctx, span := startSpan(ctx, "pgstore.ListAll", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT payload FROM hospitals ORDER BY hospital_id`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query hospitals: %w", err))
	}
	defer rows.Close()

	var out []model.HospitalState
	for rows.Next() {
		h, _, err := scanHospital(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

// Upsert inserts or replaces h after normalizing and validating it.
func (s *Store) Upsert(ctx context.Context, h model.HospitalState) error {
	ctx, span := startSpan(ctx, "pgstore.Upsert", "UPSERT")
	defer span.End()

	h.Normalize()
	if err := h.Validate(); err != nil {
		return fail(span, err)
	}
	if h.LastUpdated.IsZero() {
		h.LastUpdated = s.now()
	}
	if err := upsert(ctx, s.pool, h); err != nil {
		return fail(span, err)
	}
	return nil
}

// ApplyPartialUpdate locks the row, merges u and writes it back in one
// transaction.
func (s *Store) ApplyPartialUpdate(ctx context.Context, id string, u model.HospitalUpdate) (model.HospitalState, error) {
	_, next, err := s.Modify(ctx, id, telemetry.Set(u))
	return next, err
}

// Modify locks the row with SELECT ... FOR UPDATE and runs fn against it
// before writing the result in the same transaction.
func (s *Store) Modify(ctx context.Context, id string, fn telemetry.Mutator) (model.HospitalState, model.HospitalState, error) {
	ctx, span := startSpan(ctx, "pgstore.Modify", "UPDATE")
	defer span.End()
	var zero model.HospitalState

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return zero, zero, fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	cur, ok, err := scanHospital(tx.QueryRow(ctx, `SELECT payload FROM hospitals WHERE hospital_id = $1 FOR UPDATE`, id))
	if err != nil {
		return zero, zero, fail(span, err)
	}
	if !ok {
		return zero, zero, fail(span, fmt.Errorf("%w: %s", telemetry.ErrNotFound, id))
	}
	next, changed, err := telemetry.Merge(cur, fn, s.now())
	if err != nil {
		return cur, cur, fail(span, err)
	}
	if !changed {
		return cur, cur, nil
	}
	if err := upsert(ctx, tx, next); err != nil {
		return zero, zero, fail(span, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return zero, zero, fail(span, fmt.Errorf("commit: %w", err))
	}
	return cur, next, nil
}
