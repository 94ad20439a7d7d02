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

// dag_executor.go - DAG execution engine with topological sort
package dag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aaronlmathis/salesetl/dag/tasks"
)

// DAGExecutor runs DAGs one task at a time in topological order, applying
// each task's retry configuration and trigger rule.
type DAGExecutor struct {
	retryBackoff tasks.BackoffStrategy
	logger       *slog.Logger
	recorder     RunRecorder
	newRunID     func() string
}

// DAGExecutorOption configures a DAGExecutor
type DAGExecutorOption func(*DAGExecutor)

// WithBackoffStrategy sets the backoff used when a task's retry config has no delay of its own
func WithBackoffStrategy(strategy tasks.BackoffStrategy) DAGExecutorOption {
	return func(de *DAGExecutor) {
		de.retryBackoff = strategy
	}
}

// WithLogger sets the executor logger
func WithLogger(logger *slog.Logger) DAGExecutorOption {
	return func(de *DAGExecutor) {
		de.logger = logger
	}
}

// WithRecorder sets where run history is persisted
func WithRecorder(recorder RunRecorder) DAGExecutorOption {
	return func(de *DAGExecutor) {
		if recorder != nil {
			de.recorder = recorder
		}
	}
}

// WithRunIDFunc overrides run id generation
func WithRunIDFunc(fn func() string) DAGExecutorOption {
	return func(de *DAGExecutor) {
		de.newRunID = fn
	}
}

// NewDAGExecutor creates a new DAG executor with options
func NewDAGExecutor(opts ...DAGExecutorOption) *DAGExecutor {
	de := &DAGExecutor{
		retryBackoff: &tasks.ExponentialBackoff{
			BaseDelay: time.Second,
			MaxDelay:  time.Minute,
		},
		logger:   slog.Default(),
		recorder: nopRecorder{},
		newRunID: newRunID,
	}

	for _, opt := range opts {
		opt(de)
	}

	return de
}

// newRunID returns a time-ordered UUID so run ids sort by start time.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// TaskResult is the outcome of one task within a run.
type TaskResult struct {
	TaskID    string
	Status    TaskStatus
	Attempts  int
	StartTime time.Time
	EndTime   time.Time
	Error     error
	Output    tasks.TaskOutput
}

// DAGResult contains the results of DAG execution
type DAGResult struct {
	RunID       string
	DAGID       string
	LogicalDate time.Time
	Status      RunStatus
	Success     bool
	StartTime   time.Time
	EndTime     time.Time
	Order       []string
	TaskResults map[string]TaskResult
	Handoff     map[string]string // "task/key" -> value published during the run
	Error       error
}

// Execute runs the DAG with the current time as its logical date.
func (de *DAGExecutor) Execute(ctx context.Context, dag *DAG) (*DAGResult, error) {
	return de.ExecuteAt(ctx, dag, time.Now())
}

// ExecuteAt runs the DAG for the given logical date. A task that exhausts
// its retries marks the run failed; tasks depending on it are marked
// upstream_failed and not executed.
func (de *DAGExecutor) ExecuteAt(ctx context.Context, dag *DAG, logicalDate time.Time) (*DAGResult, error) {
	order, err := dag.topologicalSort()
	if err != nil {
		return nil, fmt.Errorf("topological sort failed: %w", err)
	}

	result := &DAGResult{
		RunID:       de.newRunID(),
		DAGID:       dag.id,
		LogicalDate: logicalDate,
		StartTime:   time.Now(),
		Order:       order,
		TaskResults: make(map[string]TaskResult, len(order)),
	}
	logger := de.logger.With("dag_id", dag.id, "run_id", result.RunID)
	handoff := tasks.NewHandoff()

	if err := de.recorder.RecordRunStart(ctx, RunInfo{
		RunID:       result.RunID,
		DAGID:       dag.id,
		LogicalDate: logicalDate,
		StartTime:   result.StartTime,
	}); err != nil {
		logger.Warn("failed to record run start", "error", err)
	}
	logger.Info("DAG run started", "logical_date", logicalDate, "tasks", len(order))

	var firstErr error
	for _, taskID := range order {
		task := dag.tasks[taskID]

		if ctx.Err() != nil {
			result.TaskResults[taskID] = TaskResult{TaskID: taskID, Status: StatusSkipped, Error: ctx.Err()}
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			continue
		}

		if status, ok := de.shouldExecuteTask(result, task); !ok {
			result.TaskResults[taskID] = TaskResult{TaskID: taskID, Status: status}
			logger.Warn("task not executed", "task_id", taskID, "status", status)
			de.recordAttempt(ctx, logger, AttemptInfo{
				RunID:  result.RunID,
				DAGID:  dag.id,
				TaskID: taskID,
				Status: status,
			})
			continue
		}

		input := tasks.TaskInput{
			RunID:       result.RunID,
			DAGID:       dag.id,
			LogicalDate: logicalDate,
			Handoff:     handoff,
			Upstream:    de.upstreamResults(result, task),
		}
		taskResult := de.executeTaskWithRetry(ctx, logger, task, input)
		result.TaskResults[taskID] = taskResult

		if taskResult.Status == StatusFailed && firstErr == nil {
			firstErr = fmt.Errorf("task %s failed: %w", taskID, taskResult.Error)
		}
	}

	result.EndTime = time.Now()
	result.Handoff = handoff.Entries()
	result.Success = true
	for _, tr := range result.TaskResults {
		if tr.Status != StatusSuccess && tr.Status != StatusSkipped {
			result.Success = false
		}
	}
	if firstErr != nil {
		result.Success = false
		result.Error = fmt.Errorf("DAG execution failed: %w", firstErr)
	}
	result.Status = RunSuccess
	if !result.Success {
		result.Status = RunFailed
	}

	// record the end of the run even when ctx was cancelled
	if err := de.recorder.RecordRunEnd(context.WithoutCancel(ctx), result); err != nil {
		logger.Warn("failed to record run end", "error", err)
	}
	logger.Info("DAG run finished",
		"status", result.Status,
		"duration", result.EndTime.Sub(result.StartTime),
	)

	return result, result.Error
}

// executeTaskWithRetry executes a single task with retry logic
func (de *DAGExecutor) executeTaskWithRetry(ctx context.Context, logger *slog.Logger, task tasks.Task, input tasks.TaskInput) TaskResult {
	taskID := task.ID()
	metadata := task.Metadata()
	logger = logger.With("task_id", taskID)

	maxRetries := 0
	if metadata.RetryConfig != nil {
		maxRetries = metadata.RetryConfig.MaxRetries
	}

	result := TaskResult{TaskID: taskID, StartTime: time.Now()}
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		input.Attempt = attempt
		input.Handoff.Clear(taskID)

		attemptStart := time.Now()
		output, err := de.runAttempt(ctx, task, input, metadata.Timeout)
		result.Attempts = attempt
		result.Output = output
		result.Error = err

		info := AttemptInfo{
			RunID:     input.RunID,
			DAGID:     input.DAGID,
			TaskID:    taskID,
			Attempt:   attempt,
			Status:    StatusSuccess,
			StartTime: attemptStart,
			EndTime:   time.Now(),
			Summary:   output.Summary,
		}
		if err != nil {
			info.Status = StatusFailed
			info.Error = err.Error()
		}
		de.recordAttempt(ctx, logger, info)

		if err == nil {
			result.Status = StatusSuccess
			result.EndTime = time.Now()
			logger.Info("task succeeded", "attempt", attempt, "duration", info.EndTime.Sub(attemptStart))
			return result
		}

		if ctx.Err() != nil || attempt > maxRetries || !metadata.RetryConfig.ShouldRetry(err) {
			break
		}

		delay := metadata.RetryConfig.GetDelay(attempt - 1)
		if metadata.RetryConfig.Strategy == nil && delay == 0 {
			delay = de.retryBackoff.Delay(attempt - 1)
		}
		logger.Warn("task attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", maxRetries+1,
			"retry_in", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			result.Status = StatusFailed
			result.EndTime = time.Now()
			result.Error = fmt.Errorf("%w (retry abandoned: %v)", err, ctx.Err())
			logger.Error("task failed", "attempts", attempt, "error", result.Error)
			return result
		}
	}

	result.Status = StatusFailed
	result.EndTime = time.Now()
	logger.Error("task failed", "attempts", result.Attempts, "error", result.Error)
	return result
}

// runAttempt executes one attempt under the task timeout. A panic in the task
// is reported as an attempt failure.
func (de *DAGExecutor) runAttempt(ctx context.Context, task tasks.Task, input tasks.TaskInput, timeout time.Duration) (output tasks.TaskOutput, err error) {
	taskCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.ID(), r)
		}
	}()

	return task.Execute(taskCtx, input)
}

func (de *DAGExecutor) recordAttempt(ctx context.Context, logger *slog.Logger, info AttemptInfo) {
	if err := de.recorder.RecordAttempt(context.WithoutCancel(ctx), info); err != nil {
		logger.Warn("failed to record task attempt", "task_id", info.TaskID, "error", err)
	}
}

// shouldExecuteTask checks a task's trigger rule against its upstream
// outcomes. When the task must not run it returns the status to record.
func (de *DAGExecutor) shouldExecuteTask(result *DAGResult, task tasks.Task) (TaskStatus, bool) {
	dependencies := task.Dependencies()
	if len(dependencies) == 0 {
		return "", true
	}

	successCount := 0
	failureCount := 0
	for _, depID := range dependencies {
		switch result.TaskResults[depID].Status {
		case StatusSuccess:
			successCount++
		case StatusFailed, StatusUpstreamFailed:
			failureCount++
		}
	}

	notRun := StatusSkipped
	if failureCount > 0 {
		notRun = StatusUpstreamFailed
	}

	switch task.Metadata().TriggerRule {
	case tasks.TriggerRuleAllDone:
		return "", true
	case tasks.TriggerRuleAllFailed:
		return StatusSkipped, failureCount == len(dependencies)
	case tasks.TriggerRuleOneFailed:
		return StatusSkipped, failureCount > 0
	case tasks.TriggerRuleOneSuccess:
		return notRun, successCount > 0
	case tasks.TriggerRuleNoneFailedMin:
		return notRun, failureCount == 0 && successCount > 0
	default:
		return notRun, successCount == len(dependencies)
	}
}

func (de *DAGExecutor) upstreamResults(result *DAGResult, task tasks.Task) map[string]tasks.TaskResultMetadata {
	upstream := make(map[string]tasks.TaskResultMetadata)
	for _, depID := range task.Dependencies() {
		if tr, ok := result.TaskResults[depID]; ok {
			upstream[depID] = tr.Output.Metadata
		}
	}
	return upstream
}
