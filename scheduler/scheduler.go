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

// Package scheduler triggers DAG runs on a cron schedule in a fixed timezone.
// Runs never overlap: a tick that fires while the previous run is still
// going is skipped. Missed ticks are not caught up.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is invoked once per tick with the scheduled (logical) time.
type Job func(ctx context.Context, scheduled time.Time)

// Scheduler wraps a cron runner for a single job.
type Scheduler struct {
	cron     *cron.Cron
	spec     string
	schedule cron.Schedule
	location *time.Location
	logger   *slog.Logger
	entryID  cron.EntryID

	mu  sync.Mutex
	ctx context.Context
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New parses spec (standard five-field cron) and prepares job to run on it
// in loc.
func New(spec string, loc *time.Location, job Job, options ...Option) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	s := &Scheduler{
		spec:     spec,
		schedule: schedule,
		location: loc,
		logger:   slog.Default(),
		ctx:      context.Background(),
	}
	for _, option := range options {
		option(s)
	}

	cronLogger := NewCronLogger(s.logger)
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	s.entryID, err = s.cron.AddFunc(spec, func() {
		scheduled := s.scheduledTime(time.Now())
		s.logger.Info("schedule fired", "schedule", s.spec, "scheduled", scheduled)
		job(s.runContext(), scheduled)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Spec returns the cron expression.
func (s *Scheduler) Spec() string { return s.spec }

// Location returns the timezone the schedule is evaluated in.
func (s *Scheduler) Location() *time.Location { return s.location }

// NextRuns returns the next n scheduled times after from.
func (s *Scheduler) NextRuns(from time.Time, n int) []time.Time {
	runs := make([]time.Time, 0, n)
	t := from.In(s.location)
	for i := 0; i < n; i++ {
		t = s.schedule.Next(t)
		if t.IsZero() {
			break
		}
		runs = append(runs, t)
	}
	return runs
}

// Run starts the scheduler and blocks until ctx is cancelled. It then waits
// for a running job to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	if next := s.NextRuns(time.Now(), 1); len(next) > 0 {
		s.logger.Info("scheduler started", "schedule", s.spec, "timezone", s.location.String(), "next_run", next[0])
	}

	<-ctx.Done()
	s.logger.Info("scheduler stopping, waiting for running job")
	<-s.cron.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// scheduledTime returns the tick the entry is running for, falling back to
// now truncated to the minute.
func (s *Scheduler) scheduledTime(now time.Time) time.Time {
	if entry := s.cron.Entry(s.entryID); entry.Valid() && !entry.Prev.IsZero() {
		return entry.Prev.In(s.location)
	}
	return now.In(s.location).Truncate(time.Minute)
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

// NewCronLogger returns a cron.Logger writing to logger. Routine cron
// chatter is logged at debug level.
func NewCronLogger(logger *slog.Logger) cron.Logger {
	return cronLogger{logger: logger.With("component", "cron")}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
