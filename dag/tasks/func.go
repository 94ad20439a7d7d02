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

// func.go - FuncTask implementation
package tasks

import (
	"context"
	"time"
)

// TaskFunc is the body of a FuncTask.
type TaskFunc func(ctx context.Context, input TaskInput) (TaskOutput, error)

// FuncTask wraps a plain function in the DAG framework
type FuncTask struct {
	id           string
	fn           TaskFunc
	dependencies []string
	metadata     TaskMetadata
}

func (ft *FuncTask) ID() string             { return ft.id }
func (ft *FuncTask) Dependencies() []string { return ft.dependencies }
func (ft *FuncTask) Metadata() TaskMetadata { return ft.metadata }

// Execute runs the wrapped function and fills in result timing.
func (ft *FuncTask) Execute(ctx context.Context, input TaskInput) (TaskOutput, error) {
	start := time.Now()

	select {
	case <-ctx.Done():
		return TaskOutput{}, ctx.Err()
	default:
	}

	output, err := ft.fn(ctx, input)

	if output.Metadata.StartTime.IsZero() {
		output.Metadata.StartTime = start
	}
	output.Metadata.EndTime = time.Now()
	output.Metadata.AttemptCount = input.Attempt
	output.Metadata.Success = err == nil
	output.Metadata.Error = err
	return output, err
}

func (ft *FuncTask) SetDescription(description string) {
	ft.metadata.Description = description
}

func (ft *FuncTask) SetTags(tags ...string) {
	ft.metadata.Tags = append(ft.metadata.Tags, tags...)
}

func (ft *FuncTask) SetOwner(owner string) {
	ft.metadata.Owner = owner
}

func (ft *FuncTask) SetCustomField(key string, value interface{}) {
	if ft.metadata.CustomFields == nil {
		ft.metadata.CustomFields = make(map[string]interface{})
	}
	ft.metadata.CustomFields[key] = value
}

func (ft *FuncTask) SetRetryConfig(config *RetryConfig) { ft.metadata.RetryConfig = config }
func (ft *FuncTask) SetTimeout(timeout time.Duration)   { ft.metadata.Timeout = timeout }
func (ft *FuncTask) SetTriggerRule(rule TriggerRule)    { ft.metadata.TriggerRule = rule }

// NewFuncTask creates a task that runs fn after dependencies.
func NewFuncTask(id string, taskType TaskType, fn TaskFunc, dependencies []string, options ...TaskOption) *FuncTask {
	task := &FuncTask{
		id:           id,
		fn:           fn,
		dependencies: append([]string(nil), dependencies...),
		metadata: TaskMetadata{
			Name:        id,
			TaskType:    taskType,
			TriggerRule: TriggerRuleAllSuccess,
		},
	}

	for _, opt := range options {
		opt(task)
	}

	return task
}
