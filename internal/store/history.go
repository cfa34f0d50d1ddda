// Package store keeps the run history of replays in sqlite: run outcomes,
// their healing trails and the healed versions they emitted.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/rahul/replay/internal/healing"
	"github.com/rahul/replay/internal/workflow"
)

// ErrNotFound is returned when a run or version does not exist.
var ErrNotFound = errors.New("not found")

type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps in-memory databases shared between calls.
	db.SetMaxOpenConns(1)

	queries := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			version TEXT NOT NULL,
			status TEXT NOT NULL,
			step_index INTEGER NOT NULL DEFAULT -1,
			error TEXT NOT NULL DEFAULT '',
			inputs TEXT NOT NULL DEFAULT '{}',
			outputs TEXT NOT NULL DEFAULT '{}',
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS healing_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			step_index INTEGER NOT NULL,
			failure TEXT NOT NULL,
			strategy TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS workflow_versions (
			workflow TEXT NOT NULL,
			version TEXT NOT NULL,
			origin TEXT NOT NULL DEFAULT '',
			document BLOB NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (workflow, version)
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("init history store: %w", err)
		}
	}

	return &HistoryStore{DB: db}, nil
}

func (h *HistoryStore) Close() error {
	return h.DB.Close()
}

// AddRun stores rec and its healing trail.
func (h *HistoryStore) AddRun(ctx context.Context, rec RunRecord) error {
	if rec.ID == "" {
		return errors.New("run record without id")
	}
	inputs, err := json.Marshal(nonNil(rec.Inputs))
	if err != nil {
		return err
	}
	outputs, err := json.Marshal(nonNil(rec.Outputs))
	if err != nil {
		return err
	}

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO runs (id, workflow, version, status, step_index, error, inputs, outputs, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, rec.ID, rec.Workflow, rec.Version, rec.Status, rec.StepIndex, rec.Error,
		string(inputs), string(outputs), rec.StartedAt.UTC(), rec.FinishedAt.UTC()); err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}

	query = `INSERT INTO healing_records (run_id, seq, step_index, failure, strategy, outcome, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`
	for i, r := range rec.Records {
		if _, err := tx.ExecContext(ctx, query, rec.ID, i, r.StepIndex, string(r.Failure), r.Strategy, string(r.Outcome), r.Detail); err != nil {
			return fmt.Errorf("insert healing record: %w", err)
		}
	}
	return tx.Commit()
}

func (h *HistoryStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `SELECT id, workflow, version, status, step_index, error, inputs, outputs, started_at, finished_at FROM runs WHERE id = ?`
	rec, err := scanRun(h.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rec.Records, err = h.HealingRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRuns returns the latest runs of workflow, newest first. An empty
// workflow lists every run.
func (h *HistoryStore) ListRuns(ctx context.Context, workflow string, limit int) ([]RunRecord, error) {
	query := `SELECT id, workflow, version, status, step_index, error, inputs, outputs, started_at, finished_at
		FROM runs WHERE (? = '' OR workflow = ?) ORDER BY started_at DESC, id LIMIT ?`
	rows, err := h.DB.QueryContext(ctx, query, workflow, workflow, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// HealingRecords returns the trail of a run in the order it was attempted.
func (h *HistoryStore) HealingRecords(ctx context.Context, runID string) ([]healing.Record, error) {
	query := `SELECT step_index, failure, strategy, outcome, detail FROM healing_records WHERE run_id = ? ORDER BY seq`
	rows, err := h.DB.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []healing.Record
	for rows.Next() {
		var r healing.Record
		var failure, outcome string
		if err := rows.Scan(&r.StepIndex, &failure, &r.Strategy, &outcome, &r.Detail); err != nil {
			return nil, err
		}
		r.Failure, r.Outcome = healing.Failure(failure), healing.Outcome(outcome)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveVersion stores def as a YAML document. Saving a version that already
// exists fails.
func (h *HistoryStore) SaveVersion(ctx context.Context, def *workflow.Definition) error {
	doc, err := workflow.Marshal(def, workflow.FormatYAML)
	if err != nil {
		return err
	}
	origin := ""
	if def.Provenance != nil {
		origin = string(def.Provenance.Origin)
	}
	query := `INSERT INTO workflow_versions (workflow, version, origin, document, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := h.DB.ExecContext(ctx, query, def.Name, def.Version, origin, doc, time.Now().UTC()); err != nil {
		return fmt.Errorf("save %s@%s: %w", def.Name, def.Version, err)
	}
	return nil
}

// GetVersion loads a stored version. An empty version selects the most
// recently saved one.
func (h *HistoryStore) GetVersion(ctx context.Context, name, version string) (*workflow.Definition, error) {
	query := `SELECT document FROM workflow_versions WHERE workflow = ? AND version = ?`
	args := []any{name, version}
	if version == "" {
		query = `SELECT document FROM workflow_versions WHERE workflow = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`
		args = args[:1]
	}
	var doc []byte
	err := h.DB.QueryRowContext(ctx, query, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s@%s: %w", name, version, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return workflow.Parse(doc, workflow.FormatYAML)
}

// ListVersions returns the stored versions of name, oldest first.
func (h *HistoryStore) ListVersions(ctx context.Context, name string) ([]VersionRecord, error) {
	query := `SELECT workflow, version, origin, document, created_at FROM workflow_versions WHERE workflow = ? ORDER BY created_at, rowid`
	rows, err := h.DB.QueryContext(ctx, query, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VersionRecord
	for rows.Next() {
		var v VersionRecord
		if err := rows.Scan(&v.Workflow, &v.Version, &v.Origin, &v.Document, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var (
		rec             RunRecord
		inputs, outputs string
	)
	if err := s.Scan(&rec.ID, &rec.Workflow, &rec.Version, &rec.Status, &rec.StepIndex, &rec.Error,
		&inputs, &outputs, &rec.StartedAt, &rec.FinishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(inputs), &rec.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs of run %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(outputs), &rec.Outputs); err != nil {
		return nil, fmt.Errorf("decode outputs of run %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
