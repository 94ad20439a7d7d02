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

// Command salesetl runs the weekly sales ETL job on its cron schedule, or
// once with -run-now.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/aaronlmathis/salesetl"
	"github.com/aaronlmathis/salesetl/config"
	"github.com/aaronlmathis/salesetl/dag"
	"github.com/aaronlmathis/salesetl/runlog"
	"github.com/aaronlmathis/salesetl/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	runNow := flag.Bool("run-now", false, "run the DAG once immediately and exit")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "salesetl: -config is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *runNow); err != nil {
		fmt.Fprintf(os.Stderr, "salesetl: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, runNow bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	history, err := runlog.Open(ctx, cfg.RunLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := history.Close(); err != nil {
			logger.Warn("failed to close run log", "error", err)
		}
	}()

	pipeline, err := salesetl.NewPipeline(ctx, cfg, salesetl.WithLogger(logger))
	if err != nil {
		return err
	}
	d, err := pipeline.DAG()
	if err != nil {
		return err
	}
	executor := dag.NewDAGExecutor(
		dag.WithLogger(logger),
		dag.WithRecorder(history),
	)
	logger.Debug("dag loaded", "description", d.Describe())

	if runNow {
		_, err := executor.Execute(ctx, d)
		return err
	}

	loc, err := cfg.DAG.Location()
	if err != nil {
		return err
	}
	sched, err := scheduler.New(cfg.DAG.Schedule, loc, func(ctx context.Context, scheduled time.Time) {
		if _, err := executor.ExecuteAt(ctx, d, scheduled); err != nil {
			logger.Error("scheduled run failed", "logical_date", scheduled, "error", err)
		}
	}, scheduler.WithLogger(logger))
	if err != nil {
		return err
	}

	next := sched.NextRuns(time.Now(), 3)
	logger.Info("scheduler started",
		"dag_id", d.GetID(),
		"schedule", cfg.DAG.Schedule,
		"timezone", loc.String(),
		"next_runs", next,
	)

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("scheduler stopped")
	return nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}
	return slog.New(handler).With("service", "salesetl"), nil
}
