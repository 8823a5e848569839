// Package store keeps a catalogue of saved archives in SQLite.
//
// Each record holds the archive bytes, the metadata read from the archive
// header and, for model archives, the per-stage fit summaries of the run that
// produced it. Records are identified by random UUIDs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/format"
	"github.com/arloliu/eelsfit/section"
)

const schema = `
CREATE TABLE IF NOT EXISTS archives (
	archive_id  TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	kind        INTEGER NOT NULL,
	nav_size    INTEGER NOT NULL,
	channels    INTEGER NOT NULL,
	components  INTEGER NOT NULL,
	checksum    INTEGER NOT NULL,
	labels_json TEXT,
	data        BLOB NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS archives_name ON archives(name);

CREATE TABLE IF NOT EXISTS fit_stages (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	archive_id    TEXT NOT NULL,
	position      INTEGER NOT NULL,
	stage         TEXT NOT NULL,
	converged     INTEGER NOT NULL,
	not_converged INTEGER NOT NULL,
	failed        INTEGER NOT NULL,
	skipped       INTEGER NOT NULL,
	total_cost    REAL NOT NULL,
	duration_ns   INTEGER NOT NULL,
	FOREIGN KEY (archive_id) REFERENCES archives(archive_id) ON DELETE CASCADE
);
`

// Record describes one catalogued archive. Data is only filled by Get.
type Record struct {
	ID         string
	Name       string
	Kind       format.ArchiveKind
	NavSize    int
	Channels   int
	Components int
	Checksum   uint64
	Labels     map[string]string
	CreatedAt  time.Time
	Stages     []StageSummary
	Data       []byte
}

// StageSummary is the outcome of one fit stage of the run that produced a
// model archive.
type StageSummary struct {
	Stage        string
	Converged    int
	NotConverged int
	Failed       int
	Skipped      int
	TotalCost    float64
	Duration     time.Duration
}

// Entry is what Put stores.
type Entry struct {
	Name   string
	Data   []byte
	Labels map[string]string
	Stages []StageSummary
}

// Store is a SQLite archive catalogue. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database at dbPath and creates the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put validates the archive header of e.Data and inserts a new record.
//
// Returns:
//   - errs.ErrInvalidName: e.Name is empty
//   - header errors from section.ParseHeader when e.Data is not an archive
func (s *Store) Put(ctx context.Context, e Entry) (Record, error) {
	if e.Name == "" {
		return Record{}, fmt.Errorf("%w: empty archive name", errs.ErrInvalidName)
	}
	h, err := section.ParseHeader(e.Data)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:         uuid.New().String(),
		Name:       e.Name,
		Kind:       h.Flag.Kind,
		NavSize:    int(h.NavSize),
		Channels:   int(h.Channels),
		Components: int(h.ComponentCount),
		Checksum:   h.Checksum,
		Labels:     e.Labels,
		CreatedAt:  time.Now().UTC(),
		Stages:     e.Stages,
	}

	var labels any
	if len(e.Labels) > 0 {
		b, err := json.Marshal(e.Labels)
		if err != nil {
			return Record{}, fmt.Errorf("marshal labels: %w", err)
		}
		labels = string(b)
	}

	checksum := int64(rec.Checksum) //nolint:gosec

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO archives (archive_id, name, kind, nav_size, channels, components, checksum, labels_json, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, int(rec.Kind), rec.NavSize, rec.Channels, rec.Components,
		checksum, labels, e.Data, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert archive: %w", err)
	}

	for i, st := range e.Stages {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO fit_stages (archive_id, position, stage, converged, not_converged, failed, skipped, total_cost, duration_ns)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, st.Stage, st.Converged, st.NotConverged, st.Failed, st.Skipped, st.TotalCost, int64(st.Duration),
		)
		if err != nil {
			return Record{}, fmt.Errorf("insert stage %q: %w", st.Stage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit: %w", err)
	}

	return rec, nil
}

// Get returns the record with the given id, archive bytes included.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT archive_id, name, kind, nav_size, channels, components, checksum, labels_json, created_at, data
		 FROM archives WHERE archive_id = ?`, id)

	rec, err := scanRecord(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", errs.ErrRecordNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get archive %s: %w", id, err)
	}

	rec.Stages, err = s.stages(ctx, id)
	if err != nil {
		return Record{}, err
	}

	return rec, nil
}

// Latest returns the most recent record stored under name.
func (s *Store) Latest(ctx context.Context, name string) (Record, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT archive_id FROM archives WHERE name = ? ORDER BY rowid DESC LIMIT 1`, name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: name %q", errs.ErrRecordNotFound, name)
	}
	if err != nil {
		return Record{}, fmt.Errorf("latest %q: %w", name, err)
	}

	return s.Get(ctx, id)
}

// List returns the records stored under name, oldest first, without archive
// bytes or stages. An empty name lists every record.
func (s *Store) List(ctx context.Context, name string) ([]Record, error) {
	query := `SELECT archive_id, name, kind, nav_size, channels, components, checksum, labels_json, created_at
		FROM archives`
	var args []any
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

// Delete removes the record with the given id and its stages.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// foreign_keys is a per-connection pragma, so stages are removed explicitly.
	if _, err := tx.ExecContext(ctx, `DELETE FROM fit_stages WHERE archive_id = ?`, id); err != nil {
		return fmt.Errorf("delete stages %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM archives WHERE archive_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete archive %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete archive %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", errs.ErrRecordNotFound, id)
	}

	return tx.Commit()
}

func (s *Store) stages(ctx context.Context, id string) ([]StageSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, converged, not_converged, failed, skipped, total_cost, duration_ns
		 FROM fit_stages WHERE archive_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()

	var out []StageSummary
	for rows.Next() {
		var st StageSummary
		var ns int64
		if err := rows.Scan(&st.Stage, &st.Converged, &st.NotConverged, &st.Failed, &st.Skipped, &st.TotalCost, &ns); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		st.Duration = time.Duration(ns)
		out = append(out, st)
	}

	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, withData bool) (Record, error) {
	var rec Record
	var kind int
	var checksum int64
	var labels sql.NullString
	var created string

	dest := []any{&rec.ID, &rec.Name, &kind, &rec.NavSize, &rec.Channels, &rec.Components, &checksum, &labels, &created}
	if withData {
		dest = append(dest, &rec.Data)
	}
	if err := row.Scan(dest...); err != nil {
		return Record{}, err
	}

	rec.Kind = format.ArchiveKind(kind) //nolint:gosec
	rec.Checksum = uint64(checksum)     //nolint:gosec
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if labels.Valid {
		if err := json.Unmarshal([]byte(labels.String), &rec.Labels); err != nil {
			return Record{}, fmt.Errorf("unmarshal labels: %w", err)
		}
	}

	return rec, nil
}
