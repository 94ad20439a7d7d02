//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of SalesETL.
//
// SalesETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SalesETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SalesETL. If not, see https://www.gnu.org/licenses/.

package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aaronlmathis/salesetl/dag"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS dag_runs (
	run_id       TEXT PRIMARY KEY,
	dag_id       TEXT NOT NULL,
	logical_date TEXT NOT NULL,
	status       TEXT NOT NULL,
	start_time   TEXT NOT NULL,
	end_time     TEXT,
	error        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS dag_runs_dag_start ON dag_runs (dag_id, start_time);
CREATE TABLE IF NOT EXISTS task_attempts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	dag_id     TEXT NOT NULL,
	task_id    TEXT NOT NULL,
	attempt    INTEGER NOT NULL,
	status     TEXT NOT NULL,
	start_time TEXT,
	end_time   TEXT,
	error      TEXT NOT NULL DEFAULT '',
	summary    TEXT
);
CREATE INDEX IF NOT EXISTS task_attempts_run ON task_attempts (run_id);
`

// SQLiteStore keeps run history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the run log at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, &RunLogError{Op: "open", Err: fmt.Errorf("sqlite path is required")}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &RunLogError{Op: "open", Err: err}
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, &RunLogError{Op: "migrate", Err: err}
	}
	return &SQLiteStore{db: db}, nil
}

// RecordRunStart implements dag.RunRecorder.
func (s *SQLiteStore) RecordRunStart(ctx context.Context, run dag.RunInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dag_runs (run_id, dag_id, logical_date, status, start_time) VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.DAGID, formatTime(run.LogicalDate), StatusRunning, formatTime(run.StartTime))
	if err != nil {
		return &RunLogError{Op: "record_run_start", Err: err}
	}
	return nil
}

// RecordAttempt implements dag.RunRecorder.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, attempt dag.AttemptInfo) error {
	var summary sql.NullString
	if len(attempt.Summary) > 0 {
		data, err := json.Marshal(attempt.Summary)
		if err != nil {
			return &RunLogError{Op: "record_attempt", Err: err}
		}
		summary = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_attempts (run_id, dag_id, task_id, attempt, status, start_time, end_time, error, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.RunID, attempt.DAGID, attempt.TaskID, attempt.Attempt, string(attempt.Status),
		nullTime(attempt.StartTime), nullTime(attempt.EndTime), attempt.Error, summary)
	if err != nil {
		return &RunLogError{Op: "record_attempt", Err: err}
	}
	return nil
}

// RecordRunEnd implements dag.RunRecorder.
func (s *SQLiteStore) RecordRunEnd(ctx context.Context, result *dag.DAGResult) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE dag_runs SET status = ?, end_time = ?, error = ? WHERE run_id = ?`,
		string(result.Status), formatTime(result.EndTime), errorText(result.Error), result.RunID)
	if err != nil {
		return &RunLogError{Op: "record_run_end", Err: err}
	}
	return nil
}

// ListRuns implements Store.
func (s *SQLiteStore) ListRuns(ctx context.Context, dagID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, dag_id, logical_date, status, start_time, end_time, error
		 FROM dag_runs WHERE dag_id = ? ORDER BY start_time DESC, run_id DESC LIMIT ?`, dagID, limit)
	if err != nil {
		return nil, &RunLogError{Op: "list_runs", Err: err}
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var logical, start string
		var end sql.NullString
		if err := rows.Scan(&run.RunID, &run.DAGID, &logical, &run.Status, &start, &end, &run.Error); err != nil {
			return nil, &RunLogError{Op: "list_runs", Err: err}
		}
		run.LogicalDate = parseTime(logical)
		run.StartTime = parseTime(start)
		run.EndTime = parseTime(end.String)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, &RunLogError{Op: "list_runs", Err: err}
	}
	return runs, nil
}

// Attempts implements Store.
func (s *SQLiteStore) Attempts(ctx context.Context, runID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, dag_id, task_id, attempt, status, start_time, end_time, error, summary
		 FROM task_attempts WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, &RunLogError{Op: "attempts", Err: err}
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var start, end, summary sql.NullString
		if err := rows.Scan(&a.RunID, &a.DAGID, &a.TaskID, &a.Attempt, &a.Status, &start, &end, &a.Error, &summary); err != nil {
			return nil, &RunLogError{Op: "attempts", Err: err}
		}
		a.StartTime = parseTime(start.String)
		a.EndTime = parseTime(end.String)
		if summary.Valid {
			if err := json.Unmarshal([]byte(summary.String), &a.Summary); err != nil {
				return nil, &RunLogError{Op: "attempts", Err: fmt.Errorf("decoding summary: %w", err)}
			}
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &RunLogError{Op: "attempts", Err: err}
	}
	return attempts, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
