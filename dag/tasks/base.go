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

// base.go - Task interface and base types
package tasks

import (
	"context"
	"errors"
	"time"
)

// TaskType represents the type of task
type TaskType string

const (
	TaskTypeExtract TaskType = "extract"
	TaskTypeClean   TaskType = "clean"
	TaskTypeLoad    TaskType = "load"
	TaskTypeFunc    TaskType = "func"
)

// TriggerRule defines when a task should be triggered
type TriggerRule string

const (
	TriggerRuleAllSuccess    TriggerRule = "all_success"
	TriggerRuleAllFailed     TriggerRule = "all_failed"
	TriggerRuleAllDone       TriggerRule = "all_done"
	TriggerRuleOneSuccess    TriggerRule = "one_success"
	TriggerRuleOneFailed     TriggerRule = "one_failed"
	TriggerRuleNoneFailedMin TriggerRule = "none_failed_min_one_success"
)

// BackoffStrategy interface for advanced retry strategies
type BackoffStrategy interface {
	Delay(attempt int) time.Duration
}

// RetryConfig defines retry behavior for tasks
type RetryConfig struct {
	MaxRetries int
	Backoff    time.Duration   // Simple backoff duration
	Strategy   BackoffStrategy // Advanced backoff strategy (optional)
	RetryOn    []error         // Retry only errors matching one of these (errors.Is); empty retries all
}

// GetDelay returns the delay for a given attempt
func (rc *RetryConfig) GetDelay(attempt int) time.Duration {
	if rc.Strategy != nil {
		return rc.Strategy.Delay(attempt)
	}
	return rc.Backoff
}

// ShouldRetry reports whether err is eligible for another attempt.
func (rc *RetryConfig) ShouldRetry(err error) bool {
	if len(rc.RetryOn) == 0 {
		return true
	}
	for _, target := range rc.RetryOn {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ExponentialBackoff implements BackoffStrategy
type ExponentialBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (eb *ExponentialBackoff) Delay(attempt int) time.Duration {
	delay := eb.BaseDelay * time.Duration(1<<uint(attempt))
	if delay > eb.MaxDelay {
		delay = eb.MaxDelay
	}
	return delay
}

// FixedBackoff implements fixed delay backoff strategy
type FixedBackoff struct {
	FixedDelay time.Duration
}

func (fb *FixedBackoff) Delay(attempt int) time.Duration {
	return fb.FixedDelay
}

// NoBackoff implements no delay strategy
type NoBackoff struct{}

func (nb *NoBackoff) Delay(attempt int) time.Duration {
	return 0
}

// TaskMetadata holds metadata about a task
type TaskMetadata struct {
	Name         string
	Description  string
	TaskType     TaskType
	RetryConfig  *RetryConfig
	Timeout      time.Duration
	TriggerRule  TriggerRule
	Tags         []string
	Owner        string
	CustomFields map[string]interface{}
}

// TaskInput is what the executor hands a task for one attempt.
type TaskInput struct {
	RunID       string
	DAGID       string
	LogicalDate time.Time // scheduled time of the run
	Attempt     int       // 1-based
	Handoff     *Handoff
	Upstream    map[string]TaskResultMetadata
}

// TaskOutput represents output data from task execution
type TaskOutput struct {
	Summary  map[string]interface{} // task-specific counters for logs and the run log
	Metadata TaskResultMetadata
}

// TaskResultMetadata holds execution result metadata
type TaskResultMetadata struct {
	StartTime    time.Time
	EndTime      time.Time
	RecordsIn    int64
	RecordsOut   int64
	Success      bool
	Error        error
	AttemptCount int
}

// Task defines the interface that all tasks must implement
type Task interface {
	ID() string
	Dependencies() []string
	Execute(ctx context.Context, input TaskInput) (TaskOutput, error)
	Metadata() TaskMetadata
	SetRetryConfig(config *RetryConfig)
	SetTimeout(timeout time.Duration)
	SetTriggerRule(rule TriggerRule)
	SetDescription(description string)
	SetTags(tags ...string)
	SetOwner(owner string)
	SetCustomField(key string, value interface{})
}

// TaskOption is a functional option for configuring tasks
type TaskOption func(Task)

// WithRetries sets a fixed-delay retry configuration for a task
func WithRetries(maxRetries int, backoff time.Duration) TaskOption {
	return func(t Task) {
		t.SetRetryConfig(&RetryConfig{
			MaxRetries: maxRetries,
			Backoff:    backoff,
			Strategy:   &FixedBackoff{FixedDelay: backoff},
		})
	}
}

// WithTimeout sets the timeout for a task
func WithTimeout(timeout time.Duration) TaskOption {
	return func(t Task) {
		t.SetTimeout(timeout)
	}
}

// WithTriggerRule sets the trigger rule for a task
func WithTriggerRule(rule TriggerRule) TaskOption {
	return func(t Task) {
		t.SetTriggerRule(rule)
	}
}

// WithRetryConfig sets the retry configuration for a task
func WithRetryConfig(config *RetryConfig) TaskOption {
	return func(t Task) {
		t.SetRetryConfig(config)
	}
}

// WithDescription sets the description for a task
func WithDescription(description string) TaskOption {
	return func(t Task) {
		t.SetDescription(description)
	}
}

// WithTags adds tags to a task
func WithTags(tags ...string) TaskOption {
	return func(t Task) {
		t.SetTags(tags...)
	}
}

// WithOwner sets the owner for a task
func WithOwner(owner string) TaskOption {
	return func(t Task) {
		t.SetOwner(owner)
	}
}

// WithCustomField adds a custom field to a task
func WithCustomField(key string, value interface{}) TaskOption {
	return func(t Task) {
		t.SetCustomField(key, value)
	}
}
