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

package salesetl

import (
	"context"
	"errors"
	"fmt"

	"github.com/aaronlmathis/salesetl/dag"
	"github.com/aaronlmathis/salesetl/dag/tasks"
)

// Task ids of the sales DAG.
const (
	TaskExtract = "fetch_from_postgresql"
	TaskClean   = "data_cleaning"
	TaskLoad    = "post_to_elasticsearch"
)

// Handoff keys carrying artifact locations between tasks.
const (
	KeyRawDataPath   = "raw_data_path"
	KeyCleanDataPath = "clean_data_path"
)

// DAG builds the extract -> clean -> load DAG. Each task reads the location
// published by its upstream task, so a retried task always sees the
// artifact of the attempt that succeeded.
func (p *Pipeline) DAG() (*dag.DAG, error) {
	cfg := p.cfg.DAG
	retries := &tasks.RetryConfig{
		MaxRetries: cfg.MaxRetries(),
		Backoff:    cfg.RetryDelay,
		Strategy:   &tasks.FixedBackoff{FixedDelay: cfg.RetryDelay},
	}

	d, err := dag.NewDAG(cfg.ID, "Weekly sales ETL").
		WithDescription(cfg.Description).
		WithOwner(cfg.Owner).
		WithTags(cfg.Tags...).
		WithSchedule(cfg.Schedule).
		WithDefaultRetries(retries).
		AddFuncTask(TaskExtract, tasks.TaskTypeExtract, p.extractTask, nil,
			tasks.WithDescription("copy the source table to the raw CSV artifact")).
		AddFuncTask(TaskClean, tasks.TaskTypeClean, p.cleanTask, []string{TaskExtract},
			tasks.WithDescription("dedupe, normalize and fill the raw artifact")).
		AddFuncTask(TaskLoad, tasks.TaskTypeLoad, p.loadTask, []string{TaskClean},
			tasks.WithDescription("upsert cleaned records into the search index")).
		Build()
	if err != nil {
		return nil, err
	}
	if errs := d.ValidateDAGStructure(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid DAG %s: %w", d.GetID(), errors.Join(errs...))
	}
	return d, nil
}

func (p *Pipeline) extractTask(ctx context.Context, input tasks.TaskInput) (tasks.TaskOutput, error) {
	result, err := p.Extract(ctx)
	if err != nil {
		return tasks.TaskOutput{}, err
	}
	if err := input.Handoff.Publish(TaskExtract, KeyRawDataPath, result.Location); err != nil {
		return tasks.TaskOutput{}, err
	}
	return tasks.TaskOutput{Summary: map[string]interface{}{
		"location": result.Location,
		"rows":     result.Rows,
		"columns":  len(result.Columns),
	}}, nil
}

func (p *Pipeline) cleanTask(ctx context.Context, input tasks.TaskInput) (tasks.TaskOutput, error) {
	rawLocation, err := input.Handoff.Resolve(KeyRawDataPath, TaskExtract)
	if err != nil {
		return tasks.TaskOutput{}, fmt.Errorf("no raw artifact to clean: %w", err)
	}
	result, err := p.Clean(ctx, rawLocation)
	if err != nil {
		return tasks.TaskOutput{}, err
	}
	if err := input.Handoff.Publish(TaskClean, KeyCleanDataPath, result.Location); err != nil {
		return tasks.TaskOutput{}, err
	}
	summary := map[string]interface{}{
		"location": result.Location,
		"rows_in":  result.RowsIn,
		"rows_out": result.RowsOut,
	}
	if result.ParquetLocation != "" {
		summary["parquet_location"] = result.ParquetLocation
	}
	return tasks.TaskOutput{Summary: summary}, nil
}

func (p *Pipeline) loadTask(ctx context.Context, input tasks.TaskInput) (tasks.TaskOutput, error) {
	cleanLocation, err := input.Handoff.Resolve(KeyCleanDataPath, TaskClean)
	if err != nil {
		return tasks.TaskOutput{}, fmt.Errorf("no cleaned artifact to load: %w", err)
	}
	result, err := p.Load(ctx, cleanLocation)
	if err != nil {
		return tasks.TaskOutput{}, err
	}
	return tasks.TaskOutput{Summary: map[string]interface{}{
		"indexed":  result.Indexed,
		"failed":   result.Failed,
		"collided": result.Collided,
	}}, nil
}
