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
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/aaronlmathis/salesetl/core"
)

// Package transform provides the recordset-level cleaning steps of SalesETL.
//
// Every step is a core.Step: it receives a Recordset and returns a new one,
// leaving its input untouched. Steps record what they changed in a *Stats,
// which may be nil.

// Step names, in the order the cleaner runs them.
const (
	StepDeduplicate      = "deduplicate"
	StepNormalizeColumns = "normalize_columns"
	StepCoerceTemporal   = "coerce_temporal"
	StepCoerceNumeric    = "coerce_numeric"
	StepMedianFill       = "median_fill"
	StepModeFill         = "mode_fill"
	StepDeduplicateFinal = "deduplicate_filled"
)

// TimeLayout is the only accepted layout for the time column.
const TimeLayout = "15:04"

// Deduplicate creates a step that drops records identical to an earlier record
// across all columns. Null equals null. The first occurrence is kept and
// order is preserved. Cells of numericColumns (matched by normalized name)
// compare numerically when they parse, so "4" and "4.0" are the same value.
func Deduplicate(stats *Stats, numericColumns ...string) core.Step {
	return core.StepFunc{StepName: StepDeduplicate, Fn: func(ctx context.Context, rs *core.Recordset) (*core.Recordset, error) {
		return deduplicate(rs, stats, numericIndexes(rs.Columns, numericColumns)), nil
	}}
}

// DeduplicateFilled creates the closing step that removes rows which only
// became identical through coercion and filling. Statistics computed by the
// earlier steps are unaffected.
func DeduplicateFilled(stats *Stats) core.Step {
	return core.StepFunc{StepName: StepDeduplicateFinal, Fn: func(ctx context.Context, rs *core.Recordset) (*core.Recordset, error) {
		return deduplicate(rs, stats, nil), nil
	}}
}

func deduplicate(rs *core.Recordset, stats *Stats, numeric []int) *core.Recordset {
	out := core.NewRecordset(rs.Columns...)
	seen := make(map[string]struct{}, len(rs.Records))
	for _, record := range rs.Records {
		key := dedupeKey(record, numeric)
		if _, dup := seen[key]; dup {
			stats.addDuplicate()
			continue
		}
		seen[key] = struct{}{}
		out.Records = append(out.Records, record.Clone())
	}
	return out
}

// numericIndexes returns the positions of columns whose normalized name is
// one of numericColumns.
func numericIndexes(columns, numericColumns []string) []int {
	if len(numericColumns) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(numericColumns))
	for _, name := range numericColumns {
		wanted[NormalizeColumnName(name)] = struct{}{}
	}
	var idx []int
	for i, name := range columns {
		if _, ok := wanted[NormalizeColumnName(name)]; ok {
			idx = append(idx, i)
		}
	}
	return idx
}

// dedupeKey is the record key with text cells at the numeric positions
// replaced by their decimal value. The record itself is not modified.
func dedupeKey(record core.Record, numeric []int) string {
	if len(numeric) == 0 {
		return record.Key()
	}
	keyed := record.Clone()
	for _, i := range numeric {
		if i >= len(keyed) || keyed[i].Kind() != core.KindString {
			continue
		}
		if d, ok := core.ParseDecimal(keyed[i].String()); ok {
			keyed[i] = core.DecimalValue(d)
		}
	}
	return keyed.Key()
}

// NormalizeColumnName applies the identifier transform: trim, lowercase,
// spaces to underscores and "%" to "pct". Any other character outside
// [a-z0-9_] also becomes an underscore.
func NormalizeColumnName(name string) string {
	name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "%", "pct")

	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// NormalizeColumns creates a step that renames every column with
// NormalizeColumnName. A name that normalizes to nothing becomes column_<n>
// (1-based position) and later collisions get _2, _3, ... suffixes.
func NormalizeColumns(stats *Stats) core.Step {
	return core.StepFunc{StepName: StepNormalizeColumns, Fn: func(ctx context.Context, rs *core.Recordset) (*core.Recordset, error) {
		out := rs.Clone()
		out.Columns = NormalizeColumnNames(rs.Columns)
		for i, original := range rs.Columns {
			if original != out.Columns[i] {
				stats.addRename(original, out.Columns[i])
			}
		}
		return out, nil
	}}
}

// NormalizeColumnNames normalizes a header row, keeping names unique.
func NormalizeColumnNames(columns []string) []string {
	out := make([]string, len(columns))
	used := make(map[string]bool, len(columns))
	for i, column := range columns {
		name := NormalizeColumnName(column)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if used[name] {
			base := name
			for n := 2; used[name]; n++ {
				name = base + "_" + strconv.Itoa(n)
			}
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// CoerceTemporal creates a step that parses the "date" column as calendar
// dates and the "time" column as strict HH:MM times of day. Values that do
// not parse become null.
func CoerceTemporal(stats *Stats) core.Step {
	return core.StepFunc{StepName: StepCoerceTemporal, Fn: func(ctx context.Context, rs *core.Recordset) (*core.Recordset, error) {
		out := rs.Clone()

		if i := out.ColumnIndex("date"); i >= 0 {
			coerceColumn(out, i, stats, func(v core.Value) core.Value {
				if v.Kind() == core.KindDate {
					return v
				}
				if v.Kind() == core.KindString {
					if t, ok := core.ParseDate(v.String()); ok {
						return core.DateValue(t)
					}
				}
				return core.Null()
			})
		}

		if i := out.ColumnIndex("time"); i >= 0 {
			coerceColumn(out, i, stats, func(v core.Value) core.Value {
				if v.Kind() == core.KindTime {
					return v
				}
				if v.Kind() == core.KindString {
					if t, ok := core.ParseClock(v.String(), TimeLayout); ok {
						return core.TimeValue(t)
					}
				}
				return core.Null()
			})
		}

		return out, nil
	}}
}

// CoerceNumeric creates a step that parses the listed columns, where present,
// as decimals. NaN, infinities and anything else unparseable become null.
func CoerceNumeric(columns []string, stats *Stats) core.Step {
	return core.StepFunc{StepName: StepCoerceNumeric, Fn: func(ctx context.Context, rs *core.Recordset) (*core.Recordset, error) {
		out := rs.Clone()
		for _, column := range columns {
			i := out.ColumnIndex(column)
			if i < 0 {
				continue
			}
			coerceColumn(out, i, stats, func(v core.Value) core.Value {
				switch v.Kind() {
				case core.KindDecimal:
					return v
				case core.KindString:
					if d, ok := core.ParseDecimal(v.String()); ok {
						return core.DecimalValue(d)
					}
				}
				return core.Null()
			})
		}
		return out, nil
	}}
}

// coerceColumn rewrites column i in place on a recordset the caller owns,
// counting non-null values that were degraded to null.
func coerceColumn(rs *core.Recordset, i int, stats *Stats, fn func(core.Value) core.Value) {
	column := rs.Columns[i]
	for _, record := range rs.Records {
		before := record[i]
		if before.IsNull() {
			continue
		}
		after := fn(before)
		if after.IsNull() {
			stats.addNulled(column)
		}
		record[i] = after
	}
}

// medianContext computes medians with exact decimal arithmetic.
var medianContext = apd.BaseContext.WithPrecision(34)

// Median returns the median of the non-null decimal values, or nil when there
// are none. For an even count it is the mean of the two middle values.
func Median(values []core.Value) (*apd.Decimal, error) {
	nums := make([]*apd.Decimal, 0, len(values))
	for _, v := range values {
		if d := v.Decimal(); d != nil {
			nums = append(nums, d)
		}
	}
	if len(nums) == 0 {
		return nil, nil
	}

	sort.SliceStable(nums, func(a, b int) bool { return nums[a].Cmp(nums[b]) < 0 })

	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return new(apd.Decimal).Set(nums[mid]), nil
	}

	sum := new(apd.Decimal)
	if _, err := medianContext.Add(sum, nums[mid-1], nums[mid]); err != nil {
		return nil, err
	}
	result := new(apd.Decimal)
	if _, err := medianContext.Quo(result, sum, apd.New(2, 0)); err != nil {
		return nil, err
	}
	result.Reduce(result)
	return result, nil
}

// MedianFill creates a step that replaces nulls in each listed numeric column
// with the median of that column's non-null values. A column with no valid
// value is left alone.
func MedianFill(columns []string, stats *Stats) core.Step {
	return core.StepFunc{StepName: StepMedianFill, Fn: func(ctx context.Context, rs *core.Recordset) (*core.Recordset, error) {
		out := rs.Clone()
		for _, column := range columns {
			i := out.ColumnIndex(column)
			if i < 0 || out.NullCount(i) == 0 {
				continue
			}

			median, err := Median(out.Column(i))
			if err != nil {
				return nil, &StepError{Step: StepMedianFill, Column: column, Err: err}
			}
			if median == nil {
				stats.addSkipped(StepMedianFill, column)
				continue
			}

			fill := core.DecimalValue(median)
			for _, record := range out.Records {
				if record[i].IsNull() {
					record[i] = fill
					stats.addMedianFilled(column)
				}
			}
		}
		return out, nil
	}}
}

// Mode returns the most frequent non-null value. Ties go to the value seen
// first. ok is false when every value is null.
func Mode(values []core.Value) (mode core.Value, ok bool) {
	counts := make(map[string]int)
	first := make(map[string]int)
	order := make([]core.Value, 0)

	for _, v := range values {
		if v.IsNull() {
			continue
		}
		key := v.Key()
		if _, seen := first[key]; !seen {
			first[key] = len(order)
			order = append(order, v)
		}
		counts[key]++
	}
	if len(order) == 0 {
		return core.Null(), false
	}

	best := order[0]
	bestCount := counts[best.Key()]
	for _, v := range order[1:] {
		if c := counts[v.Key()]; c > bestCount {
			best, bestCount = v, c
		}
	}
	return best, true
}

// ModeFill creates a step that replaces the nulls of every column with that
// column's mode. Entirely-null columns are skipped, never an error.
func ModeFill(stats *Stats) core.Step {
	return core.StepFunc{StepName: StepModeFill, Fn: func(ctx context.Context, rs *core.Recordset) (*core.Recordset, error) {
		out := rs.Clone()
		for i, column := range out.Columns {
			if out.NullCount(i) == 0 {
				continue
			}

			mode, ok := Mode(out.Column(i))
			if !ok {
				stats.addSkipped(StepModeFill, column)
				continue
			}

			for _, record := range out.Records {
				if record[i].IsNull() {
					record[i] = mode
					stats.addModeFilled(column)
				}
			}
		}
		return out, nil
	}}
}
