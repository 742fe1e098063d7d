// Package alerts provides persistent and outbound alert sinks.
package alerts

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/erbalance/core/alert"
)

// SQLiteLog stores alerts in a SQLite database and serves the alert feeds.
type SQLiteLog struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteLog opens or creates the database and ensures schema.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS alerts (
        alert_id TEXT PRIMARY KEY,
        hospital_id TEXT NOT NULL,
        message TEXT NOT NULL,
        severity TEXT NOT NULL,
        created_at INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS alerts_hospital_idx ON alerts (hospital_id, created_at);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteLog{db: db, now: time.Now}, nil
}

// Notify implements alert.Sink.
func (l *SQLiteLog) Notify(ctx context.Context, hospitalID, message string, severity alert.Severity) error {
	a := alert.New(hospitalID, message, severity, l.now())
	_, err := l.db.ExecContext(ctx, `INSERT INTO alerts (alert_id, hospital_id, message, severity, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.HospitalID, a.Message, string(a.Severity), a.CreatedAt.UnixNano())
	return err
}

// Recent implements alert.Reader.
func (l *SQLiteLog) Recent(ctx context.Context, limit int) ([]alert.Alert, error) {
	return l.query(ctx, `SELECT alert_id, hospital_id, message, severity, created_at
        FROM alerts ORDER BY created_at DESC, alert_id DESC LIMIT ?`, limitOrAll(limit))
}

// ByHospital implements alert.Reader.
func (l *SQLiteLog) ByHospital(ctx context.Context, hospitalID string, limit int) ([]alert.Alert, error) {
	return l.query(ctx, `SELECT alert_id, hospital_id, message, severity, created_at
        FROM alerts WHERE hospital_id = ? ORDER BY created_at DESC, alert_id DESC LIMIT ?`, hospitalID, limitOrAll(limit))
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (l *SQLiteLog) query(ctx context.Context, q string, args ...any) ([]alert.Alert, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	res := []alert.Alert{}
	for rows.Next() {
		var a alert.Alert
		var sev string
		var ts int64
		if err := rows.Scan(&a.ID, &a.HospitalID, &a.Message, &sev, &ts); err != nil {
			return nil, err
		}
		a.Severity = alert.Severity(sev)
		a.CreatedAt = time.Unix(0, ts).UTC()
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (l *SQLiteLog) Close() error { return l.db.Close() }
