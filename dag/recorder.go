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

package dag

import (
	"context"
	"time"
)

// RunInfo identifies a DAG run when it starts.
type RunInfo struct {
	RunID       string
	DAGID       string
	LogicalDate time.Time
	StartTime   time.Time
}

// AttemptInfo describes one finished attempt of one task.
type AttemptInfo struct {
	RunID     string
	DAGID     string
	TaskID    string
	Attempt   int
	Status    TaskStatus
	StartTime time.Time
	EndTime   time.Time
	Error     string
	Summary   map[string]interface{}
}

// RunRecorder persists run history. Recorder failures are logged by the
// executor and never fail a run.
type RunRecorder interface {
	RecordRunStart(ctx context.Context, run RunInfo) error
	RecordAttempt(ctx context.Context, attempt AttemptInfo) error
	RecordRunEnd(ctx context.Context, result *DAGResult) error
}

type nopRecorder struct{}

func (nopRecorder) RecordRunStart(context.Context, RunInfo) error    { return nil }
func (nopRecorder) RecordAttempt(context.Context, AttemptInfo) error { return nil }
func (nopRecorder) RecordRunEnd(context.Context, *DAGResult) error   { return nil }
