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

package transform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaronlmathis/salesetl/core"
)

// Cleaner runs the cleaning steps in their fixed order: deduplicate,
// normalize column names, coerce temporal columns, coerce numeric columns,
// median fill, mode fill. A closing deduplication pass drops rows that only
// became identical through coercion and filling.
type Cleaner struct {
	numericColumns []string
	logger         *slog.Logger
	extraSteps     []core.Step
}

// CleanerOption is a functional option for Cleaner.
type CleanerOption func(*Cleaner)

// WithNumericColumns overrides the set of columns coerced to decimals.
func WithNumericColumns(columns ...string) CleanerOption {
	return func(c *Cleaner) { c.numericColumns = append([]string(nil), columns...) }
}

// WithLogger sets the logger used for the per-run coercion summary.
func WithLogger(logger *slog.Logger) CleanerOption {
	return func(c *Cleaner) { c.logger = logger }
}

// WithExtraSteps appends steps that run after the built-in ones.
func WithExtraSteps(steps ...core.Step) CleanerOption {
	return func(c *Cleaner) { c.extraSteps = append(c.extraSteps, steps...) }
}

// DefaultNumericColumns is the fixed numeric column set.
var DefaultNumericColumns = []string{
	"unit_price",
	"quantity",
	"tax_5pct",
	"sales",
	"cogs",
	"gross_margin_percentage",
	"gross_income",
	"rating",
}

// NewCleaner creates a cleaner.
func NewCleaner(options ...CleanerOption) *Cleaner {
	c := &Cleaner{
		numericColumns: DefaultNumericColumns,
		logger:         slog.Default(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// NumericColumns returns the columns treated as numeric.
func (c *Cleaner) NumericColumns() []string {
	return append([]string(nil), c.numericColumns...)
}

// Steps returns the ordered step list for one run, recording into stats.
func (c *Cleaner) Steps(stats *Stats) []core.Step {
	steps := []core.Step{
		Deduplicate(stats, c.numericColumns...),
		NormalizeColumns(stats),
		CoerceTemporal(stats),
		CoerceNumeric(c.numericColumns, stats),
		MedianFill(c.numericColumns, stats),
		ModeFill(stats),
		DeduplicateFilled(stats),
	}
	return append(steps, c.extraSteps...)
}

// Clean returns a cleaned copy of rs. rs itself is not modified. Bad values
// never fail a run; they are degraded to null and filled.
func (c *Cleaner) Clean(ctx context.Context, rs *core.Recordset) (*core.Recordset, *Stats, error) {
	stats := &Stats{InputRows: rs.Len()}
	current := rs

	for _, step := range c.Steps(stats) {
		select {
		case <-ctx.Done():
			return nil, stats, ctx.Err()
		default:
		}

		start := time.Now()
		next, err := step.Apply(ctx, current)
		if err != nil {
			return nil, stats, fmt.Errorf("clean step %s: %w", step.Name(), err)
		}
		current = next
		stats.addStepRows(step.Name(), current.Len())

		c.logger.Debug("cleaning step finished",
			slog.String("step", step.Name()),
			slog.Int("rows", current.Len()),
			slog.Duration("duration", time.Since(start)))
	}

	stats.OutputRows = current.Len()
	c.logSummary(stats)
	return current, stats, nil
}

func (c *Cleaner) logSummary(stats *Stats) {
	c.logger.Info("cleaning finished",
		slog.Int("input_rows", stats.InputRows),
		slog.Int("output_rows", stats.OutputRows),
		slog.Int("duplicates_removed", stats.DuplicatesRemoved),
		slog.Any("nulled", stats.Nulled),
		slog.Any("median_filled", stats.MedianFilled),
		slog.Any("mode_filled", stats.ModeFilled))

	for _, column := range stats.SkippedColumns() {
		c.logger.Warn("column has no non-null value, left unfilled", slog.String("column", column))
	}
}
