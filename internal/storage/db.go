package storage

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"tonkilo/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL UNIQUE,
  stage TEXT NOT NULL,
  status TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  durationMs REAL NOT NULL,
  transcript TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_stage ON runs(stage);
`

	_, err := d.conn.Exec(schema)
	return err
}

// NewTraceID returns a random hex identifier for one ledger row.
func NewTraceID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (d *DB) InsertRun(traceID, stage, status string, counts map[string]int, durationMs float64, transcript string) error {
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`
INSERT INTO runs (traceId, stage, status, countsJson, durationMs, transcript)
VALUES (?, ?, ?, ?, ?, ?)
`, traceID, stage, status, string(countsJSON), durationMs, transcript)
	return err
}

func (d *DB) ListRuns(limit int) ([]internal.RunRow, error) {
	rows, err := d.conn.Query(`
SELECT id, traceId, stage, status, countsJson, durationMs, createdAt
FROM runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRow
	for rows.Next() {
		var row internal.RunRow
		var countsJSON string
		if err := rows.Scan(&row.ID, &row.TraceID, &row.Stage, &row.Status, &countsJSON, &row.DurationMs, &row.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(countsJSON), &row.Counts)
		out = append(out, row)
	}

	return out, rows.Err()
}

func (d *DB) GetRun(traceID string) (*internal.RunRow, error) {
	var row internal.RunRow
	var countsJSON string
	err := d.conn.QueryRow(`
SELECT id, traceId, stage, status, countsJson, durationMs, transcript, createdAt
FROM runs WHERE traceId = ?
`, traceID).Scan(&row.ID, &row.TraceID, &row.Stage, &row.Status, &countsJSON, &row.DurationMs, &row.Transcript, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(countsJSON), &row.Counts)
	return &row, nil
}
