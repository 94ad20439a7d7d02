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

// Package runlog records the history of DAG runs and task attempts, the way
// an orchestrator's metadata database does. Stores implement
// dag.RunRecorder so the executor can write to them directly.
package runlog

import (
	"context"
	"fmt"
	"time"

	"github.com/aaronlmathis/salesetl/config"
	"github.com/aaronlmathis/salesetl/dag"
)

// RunLogError provides structured error information for run log operations.
type RunLogError struct {
	Op  string
	Err error
}

func (e *RunLogError) Error() string {
	return fmt.Sprintf("runlog %s: %v", e.Op, e.Err)
}

func (e *RunLogError) Unwrap() error {
	return e.Err
}

// Run is one recorded DAG run.
type Run struct {
	RunID       string
	DAGID       string
	LogicalDate time.Time
	Status      string // running, success or failed
	StartTime   time.Time
	EndTime     time.Time
	Error       string
}

// Attempt is one recorded task attempt. Tasks that never ran because of
// their upstream are recorded with attempt 0.
type Attempt struct {
	RunID     string
	DAGID     string
	TaskID    string
	Attempt   int
	Status    string
	StartTime time.Time
	EndTime   time.Time
	Error     string
	Summary   map[string]interface{}
}

// StatusRunning marks a run that has started but not finished.
const StatusRunning = "running"

// Store persists and queries run history.
type Store interface {
	dag.RunRecorder
	// ListRuns returns the most recent runs of dagID, newest first.
	ListRuns(ctx context.Context, dagID string, limit int) ([]Run, error)
	// Attempts returns the attempts of a run in the order they were recorded.
	Attempts(ctx context.Context, runID string) ([]Attempt, error)
	Close() error
}

// Open returns the store selected by cfg. Kind "none" yields a store that
// discards everything.
func Open(ctx context.Context, cfg config.RunLogConfig) (Store, error) {
	switch cfg.Kind {
	case "", "none":
		return Discard{}, nil
	case "sqlite":
		store, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "mongo":
		store, err := OpenMongo(ctx, cfg.URI, cfg.Database, cfg.Collection)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, &RunLogError{Op: "open", Err: fmt.Errorf("unsupported run log kind %q", cfg.Kind)}
	}
}

// Discard is a Store that records nothing.
type Discard struct{}

func (Discard) RecordRunStart(context.Context, dag.RunInfo) error    { return nil }
func (Discard) RecordAttempt(context.Context, dag.AttemptInfo) error { return nil }
func (Discard) RecordRunEnd(context.Context, *dag.DAGResult) error   { return nil }
func (Discard) ListRuns(context.Context, string, int) ([]Run, error) { return nil, nil }
func (Discard) Attempts(context.Context, string) ([]Attempt, error)  { return nil, nil }
func (Discard) Close() error                                         { return nil }

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
