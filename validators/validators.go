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

// validators.go - Post-clean data quality validation
package validators

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aaronlmathis/salesetl/core"
)

// ColumnNamePattern is the shape every cleaned column name must have.
var ColumnNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidationError lists every invariant a cleaned recordset violates.
// It signals a defect in the cleaning steps, not bad input data.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("cleaned recordset failed validation: %s", strings.Join(e.Violations, "; "))
}

// CleanedRecordsetValidator checks the output guarantees of the cleaner:
// unique rows, normalized unique column names, and no nulls left in numeric
// columns that hold at least one valid value.
type CleanedRecordsetValidator struct {
	NumericColumns  []string // Columns that must be decimal and null-free
	RequiredColumns []string // Columns that must be present
	MaxViolations   int      // Stop collecting after this many (0 = 20)
}

// ValidatorOption is a functional option for CleanedRecordsetValidator.
type ValidatorOption func(*CleanedRecordsetValidator)

// WithRequiredColumns sets columns that must be present.
func WithRequiredColumns(columns ...string) ValidatorOption {
	return func(v *CleanedRecordsetValidator) {
		v.RequiredColumns = append([]string(nil), columns...)
	}
}

// WithMaxViolations caps how many violations are reported.
func WithMaxViolations(n int) ValidatorOption {
	return func(v *CleanedRecordsetValidator) { v.MaxViolations = n }
}

// NewCleanedRecordsetValidator creates a validator for the given numeric columns.
func NewCleanedRecordsetValidator(numericColumns []string, options ...ValidatorOption) *CleanedRecordsetValidator {
	v := &CleanedRecordsetValidator{NumericColumns: append([]string(nil), numericColumns...)}
	for _, option := range options {
		option(v)
	}
	if v.MaxViolations <= 0 {
		v.MaxViolations = 20
	}
	return v
}

// Validate returns a *ValidationError when rs breaks an invariant.
func (v *CleanedRecordsetValidator) Validate(ctx context.Context, rs *core.Recordset) error {
	var violations []string
	add := func(format string, args ...interface{}) bool {
		violations = append(violations, fmt.Sprintf(format, args...))
		return len(violations) < v.MaxViolations
	}

	v.validateColumns(rs, add)
	v.validateNumericColumns(rs, add)

	if err := ctx.Err(); err != nil {
		return err
	}

	seen := make(map[string]int, rs.Len())
	for i, record := range rs.Records {
		if len(record) != len(rs.Columns) {
			if !add("record %d has %d fields, want %d", i, len(record), len(rs.Columns)) {
				break
			}
			continue
		}
		key := record.Key()
		if first, dup := seen[key]; dup {
			if !add("record %d duplicates record %d", i, first) {
				break
			}
			continue
		}
		seen[key] = i
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func (v *CleanedRecordsetValidator) validateColumns(rs *core.Recordset, add func(string, ...interface{}) bool) {
	names := make(map[string]bool, len(rs.Columns))
	for _, column := range rs.Columns {
		if !ColumnNamePattern.MatchString(column) {
			add("column %q is not normalized", column)
		}
		if names[column] {
			add("column %q appears more than once", column)
		}
		names[column] = true
	}

	for _, required := range v.RequiredColumns {
		if !names[required] {
			add("required column %q is missing", required)
		}
	}
}

func (v *CleanedRecordsetValidator) validateNumericColumns(rs *core.Recordset, add func(string, ...interface{}) bool) {
	for _, column := range v.NumericColumns {
		i := rs.ColumnIndex(column)
		if i < 0 {
			continue
		}

		nulls := rs.NullCount(i)
		// a column without any valid value cannot be filled and is exempt
		if nulls > 0 && nulls < rs.Len() {
			add("numeric column %q still has %d nulls", column, nulls)
		}

		for r, record := range rs.Records {
			if value := record[i]; !value.IsNull() && value.Kind() != core.KindDecimal {
				add("numeric column %q has a %s value in record %d", column, value.Kind(), r)
				break
			}
		}
	}
}

// AsStep wraps the validator as a pass-through cleaning step.
func (v *CleanedRecordsetValidator) AsStep() core.Step {
	return core.StepFunc{StepName: "validate", Fn: func(ctx context.Context, rs *core.Recordset) (*core.Recordset, error) {
		if err := v.Validate(ctx, rs); err != nil {
			return nil, err
		}
		return rs, nil
	}}
}
