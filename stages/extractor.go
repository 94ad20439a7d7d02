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
	"github.com/aaronlmathis/salesetl/readers"
	"github.com/aaronlmathis/salesetl/writers"
)

// Extractor copies the full source table into the raw CSV artifact.
type Extractor struct {
	source        config.SourceConfig
	store         artifacts.Store
	rawName       string
	logger        *slog.Logger
	readerOptions []readers.DatabaseReaderOption
}

// ExtractorOption is a functional option for Extractor.
type ExtractorOption func(*Extractor)

// WithRawName sets the raw artifact name.
func WithRawName(name string) ExtractorOption {
	return func(e *Extractor) { e.rawName = name }
}

// WithExtractorLogger sets the logger.
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = logger }
}

// WithReaderOptions appends options applied after the source configuration.
func WithReaderOptions(options ...readers.DatabaseReaderOption) ExtractorOption {
	return func(e *Extractor) { e.readerOptions = append(e.readerOptions, options...) }
}

// ExtractResult describes the raw artifact written by Extract.
type ExtractResult struct {
	Location string
	Columns  []string
	Rows     int64
	Duration time.Duration
}

// NewExtractor creates an extractor for source writing into store.
func NewExtractor(source config.SourceConfig, store artifacts.Store, options ...ExtractorOption) *Extractor {
	e := &Extractor{
		source:  source,
		store:   store,
		rawName: config.DefaultRawName,
		logger:  slog.Default(),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Extract runs "SELECT * FROM <table>" and writes the result as CSV with a
// header row. An unreachable source is a *core.ConnectionError. A table with
// zero rows produces a header-only artifact.
func (e *Extractor) Extract(ctx context.Context) (*ExtractResult, error) {
	start := time.Now()

	options := append([]readers.DatabaseReaderOption{readers.WithSourceConfig(e.source)}, e.readerOptions...)
	reader, err := readers.NewDatabaseReader(ctx, options...)
	if err != nil {
		return nil, &StageError{Stage: "extract", Op: "connect", Err: err}
	}
	defer reader.Close()

	columns := reader.Columns()
	w, location, err := e.store.Create(ctx, e.rawName)
	if err != nil {
		return nil, &StageError{Stage: "extract", Op: "create_artifact", Err: err}
	}

	writer, err := writers.NewCSVWriter(w, columns)
	if err != nil {
		artifacts.Discard(w)
		return nil, &StageError{Stage: "extract", Op: "create_writer", Err: err}
	}

	rows, err := copyRecords(ctx, reader, writer)
	if err != nil {
		artifacts.Discard(w)
		writer.Close()
		return nil, &StageError{Stage: "extract", Op: "copy", Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &StageError{Stage: "extract", Op: "close_artifact", Err: err}
	}

	result := &ExtractResult{
		Location: location,
		Columns:  columns,
		Rows:     rows,
		Duration: time.Since(start),
	}
	e.logger.Info("extracted source table",
		"table", e.source.Table,
		"rows", result.Rows,
		"columns", len(columns),
		"location", location,
		"duration", result.Duration,
	)
	return result, nil
}
