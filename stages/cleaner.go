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

package stages

import (
	"context"
	"log/slog"
	"time"

	"github.com/aaronlmathis/salesetl/artifacts"
	"github.com/aaronlmathis/salesetl/config"
	"github.com/aaronlmathis/salesetl/core"
	"github.com/aaronlmathis/salesetl/readers"
	"github.com/aaronlmathis/salesetl/transform"
	"github.com/aaronlmathis/salesetl/validators"
	"github.com/aaronlmathis/salesetl/writers"
)

// Cleaner reads the raw artifact, runs the cleaning steps, validates the
// result and writes the cleaned artifact. The raw artifact is never modified.
type Cleaner struct {
	store          artifacts.Store
	cleanName      string
	parquetName    string
	nullValues     []string
	numericColumns []string
	logger         *slog.Logger
}

// CleanerOption is a functional option for Cleaner.
type CleanerOption func(*Cleaner)

// WithCleanName sets the cleaned artifact name.
func WithCleanName(name string) CleanerOption {
	return func(c *Cleaner) { c.cleanName = name }
}

// WithParquetName enables a Parquet copy of the cleaned dataset under name.
func WithParquetName(name string) CleanerOption {
	return func(c *Cleaner) { c.parquetName = name }
}

// WithNullValues sets the tokens read as null from the raw artifact.
func WithNullValues(values ...string) CleanerOption {
	return func(c *Cleaner) { c.nullValues = append([]string(nil), values...) }
}

// WithNumericColumns overrides the numeric column set.
func WithNumericColumns(columns ...string) CleanerOption {
	return func(c *Cleaner) { c.numericColumns = append([]string(nil), columns...) }
}

// WithCleanerLogger sets the logger.
func WithCleanerLogger(logger *slog.Logger) CleanerOption {
	return func(c *Cleaner) { c.logger = logger }
}

// CleanResult describes the artifacts written by Clean.
type CleanResult struct {
	Location        string
	ParquetLocation string
	RowsIn          int
	RowsOut         int
	Stats           *transform.Stats
	Duration        time.Duration
}

// NewCleaner creates a cleaning stage over store.
func NewCleaner(store artifacts.Store, options ...CleanerOption) *Cleaner {
	c := &Cleaner{
		store:          store,
		cleanName:      config.DefaultCleanName,
		nullValues:     config.DefaultNullValues,
		numericColumns: config.DefaultNumericColumns,
		logger:         slog.Default(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Clean processes the raw artifact at rawLocation. An artifact that cannot be
// parsed as tabular data is a *core.MalformedInputError. Per-value coercion
// failures are never fatal.
func (c *Cleaner) Clean(ctx context.Context, rawLocation string) (*CleanResult, error) {
	start := time.Now()

	raw, err := c.readRaw(ctx, rawLocation)
	if err != nil {
		return nil, err
	}

	validator := validators.NewCleanedRecordsetValidator(c.numericColumns)
	cleaner := transform.NewCleaner(
		transform.WithNumericColumns(c.numericColumns...),
		transform.WithLogger(c.logger),
		transform.WithExtraSteps(validator.AsStep()),
	)

	cleaned, stats, err := cleaner.Clean(ctx, raw)
	if err != nil {
		return nil, &StageError{Stage: "clean", Op: "transform", Err: err}
	}

	result := &CleanResult{
		RowsIn:  raw.Len(),
		RowsOut: cleaned.Len(),
		Stats:   stats,
	}

	if result.Location, err = c.writeCSV(ctx, cleaned); err != nil {
		return nil, err
	}
	if c.parquetName != "" {
		if result.ParquetLocation, err = c.writeParquet(ctx, cleaned); err != nil {
			return nil, err
		}
	}

	result.Duration = time.Since(start)
	c.logger.Info("cleaned dataset",
		"rows_in", result.RowsIn,
		"rows_out", result.RowsOut,
		"location", result.Location,
		"duration", result.Duration,
	)
	return result, nil
}

func (c *Cleaner) readRaw(ctx context.Context, location string) (*core.Recordset, error) {
	r, err := c.store.Open(ctx, location)
	if err != nil {
		return nil, &StageError{Stage: "clean", Op: "open_artifact", Err: err}
	}

	reader, err := readers.NewCSVReader(r,
		readers.WithCSVNullValues(c.nullValues...),
		readers.WithCSVLocation(location),
	)
	if err != nil {
		r.Close()
		return nil, &StageError{Stage: "clean", Op: "read_artifact", Err: err}
	}
	defer reader.Close()

	rs, err := core.ReadAll(ctx, reader)
	if err != nil {
		return nil, &StageError{Stage: "clean", Op: "read_artifact", Err: err}
	}

	stats := reader.Stats()
	c.logger.Debug("read raw artifact",
		"location", location,
		"rows", stats.RecordsRead,
		"nulls", stats.NullValueCounts,
	)
	return rs, nil
}

func (c *Cleaner) writeCSV(ctx context.Context, rs *core.Recordset) (string, error) {
	w, location, err := c.store.Create(ctx, c.cleanName)
	if err != nil {
		return "", &StageError{Stage: "clean", Op: "create_artifact", Err: err}
	}

	writer, err := writers.NewCSVWriter(w, rs.Columns)
	if err != nil {
		artifacts.Discard(w)
		return "", &StageError{Stage: "clean", Op: "create_writer", Err: err}
	}
	if err := core.WriteAll(ctx, writer, rs); err != nil {
		artifacts.Discard(w)
		writer.Close()
		return "", &StageError{Stage: "clean", Op: "write_artifact", Err: err}
	}
	if err := writer.Close(); err != nil {
		return "", &StageError{Stage: "clean", Op: "close_artifact", Err: err}
	}
	return location, nil
}

func (c *Cleaner) writeParquet(ctx context.Context, rs *core.Recordset) (string, error) {
	w, location, err := c.store.Create(ctx, c.parquetName)
	if err != nil {
		return "", &StageError{Stage: "clean", Op: "create_parquet", Err: err}
	}

	writer, err := writers.NewParquetWriter(w, rs.Columns)
	if err != nil {
		artifacts.Discard(w)
		return "", &StageError{Stage: "clean", Op: "create_parquet", Err: err}
	}
	if err := core.WriteAll(ctx, writer, rs); err != nil {
		artifacts.Discard(w)
		writer.Close()
		return "", &StageError{Stage: "clean", Op: "write_parquet", Err: err}
	}
	if err := writer.Close(); err != nil {
		return "", &StageError{Stage: "clean", Op: "close_parquet", Err: err}
	}

	if stats := writer.Stats(); stats.TypeMismatches > 0 {
		c.logger.Warn("parquet copy stored mismatched values as null",
			"location", location,
			"mismatches", stats.TypeMismatches,
		)
	}
	return location, nil
}
