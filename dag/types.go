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
	"time"

	"github.com/aaronlmathis/salesetl/dag/tasks"
)

// TaskStatus is the terminal state of a task within one run.
type TaskStatus string

const (
	StatusSuccess        TaskStatus = "success"
	StatusFailed         TaskStatus = "failed"
	StatusUpstreamFailed TaskStatus = "upstream_failed" // not run because a dependency failed
	StatusSkipped        TaskStatus = "skipped"         // not run because its trigger rule was not met
)

// RunStatus is the terminal state of a DAG run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// DAG represents a directed acyclic graph of tasks
type DAG struct {
	id           string
	name         string
	tasks        map[string]tasks.Task
	order        []string // insertion order, used to break ties deterministically
	dependencies map[string][]string
	metadata     DAGMetadata
}

// DAGMetadata contains DAG-level configuration
type DAGMetadata struct {
	Description    string
	Owner          string
	Tags           []string
	Schedule       string
	DefaultTimeout time.Duration
	DefaultRetries *tasks.RetryConfig
}
