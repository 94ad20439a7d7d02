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

// dag_builder.go - Fluent API for DAG construction
package dag

import (
	"errors"
	"fmt"
	"time"

	"github.com/aaronlmathis/salesetl/dag/tasks"
)

// DAGBuilder provides a fluent API for constructing DAGs
type DAGBuilder struct {
	dag  *DAG
	errs []error
}

// NewDAG creates a new DAG builder
func NewDAG(id, name string) *DAGBuilder {
	return &DAGBuilder{
		dag: &DAG{
			id:           id,
			name:         name,
			tasks:        make(map[string]tasks.Task),
			dependencies: make(map[string][]string),
			metadata: DAGMetadata{
				DefaultTimeout: 30 * time.Minute,
			},
		},
	}
}

// AddTask adds a task and records its dependencies.
func (db *DAGBuilder) AddTask(task tasks.Task) *DAGBuilder {
	id := task.ID()
	if id == "" {
		db.errs = append(db.errs, fmt.Errorf("task id must not be empty"))
		return db
	}
	if _, exists := db.dag.tasks[id]; exists {
		db.errs = append(db.errs, fmt.Errorf("task %s added twice", id))
		return db
	}

	db.dag.tasks[id] = task
	db.dag.order = append(db.dag.order, id)
	var deps []string
	seen := make(map[string]bool)
	for _, dep := range task.Dependencies() {
		if !seen[dep] {
			seen[dep] = true
			deps = append(deps, dep)
		}
	}
	if len(deps) > 0 {
		db.dag.dependencies[id] = deps
	}
	return db
}

// AddFuncTask adds a task that runs fn once its dependencies have succeeded.
func (db *DAGBuilder) AddFuncTask(id string, taskType tasks.TaskType, fn tasks.TaskFunc, dependencies []string, opts ...tasks.TaskOption) *DAGBuilder {
	return db.AddTask(tasks.NewFuncTask(id, taskType, fn, dependencies, opts...))
}

// WithDescription sets the DAG description
func (db *DAGBuilder) WithDescription(description string) *DAGBuilder {
	db.dag.metadata.Description = description
	return db
}

// WithOwner sets the DAG owner. Tasks without an owner inherit it.
func (db *DAGBuilder) WithOwner(owner string) *DAGBuilder {
	db.dag.metadata.Owner = owner
	return db
}

// WithTags sets the DAG tags
func (db *DAGBuilder) WithTags(tags ...string) *DAGBuilder {
	db.dag.metadata.Tags = append([]string(nil), tags...)
	return db
}

// WithSchedule records the cron expression the DAG runs on
func (db *DAGBuilder) WithSchedule(schedule string) *DAGBuilder {
	db.dag.metadata.Schedule = schedule
	return db
}

// WithDefaultTimeout sets the default timeout for all tasks
func (db *DAGBuilder) WithDefaultTimeout(timeout time.Duration) *DAGBuilder {
	db.dag.metadata.DefaultTimeout = timeout
	return db
}

// WithDefaultRetries sets the retry configuration used by tasks that have none
func (db *DAGBuilder) WithDefaultRetries(config *tasks.RetryConfig) *DAGBuilder {
	db.dag.metadata.DefaultRetries = config
	return db
}

// validateDAG checks for cycles and missing dependencies
func (db *DAGBuilder) validateDAG() error {
	errs := append([]error(nil), db.errs...)

	for _, taskID := range db.dag.order {
		for _, dep := range db.dag.dependencies[taskID] {
			if _, exists := db.dag.tasks[dep]; !exists {
				errs = append(errs, fmt.Errorf("task %s depends on non-existent task %s", taskID, dep))
			}
		}
	}

	if len(errs) == 0 && db.dag.hasCycle() {
		errs = append(errs, fmt.Errorf("DAG contains cycles"))
	}

	return errors.Join(errs...)
}

// applyDefaults pushes DAG-level settings down to tasks that do not set their own
func (db *DAGBuilder) applyDefaults() {
	meta := db.dag.metadata
	for _, task := range db.dag.tasks {
		tm := task.Metadata()
		if tm.RetryConfig == nil && meta.DefaultRetries != nil {
			task.SetRetryConfig(meta.DefaultRetries)
		}
		if tm.Timeout == 0 && meta.DefaultTimeout > 0 {
			task.SetTimeout(meta.DefaultTimeout)
		}
		if tm.Owner == "" && meta.Owner != "" {
			task.SetOwner(meta.Owner)
		}
		if tm.TriggerRule == "" {
			task.SetTriggerRule(tasks.TriggerRuleAllSuccess)
		}
	}
}

// Build validates and returns the constructed DAG
func (db *DAGBuilder) Build() (*DAG, error) {
	if err := db.validateDAG(); err != nil {
		return nil, fmt.Errorf("invalid DAG %s: %w", db.dag.id, err)
	}

	db.applyDefaults()
	return db.dag, nil
}
