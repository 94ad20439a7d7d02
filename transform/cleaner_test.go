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
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/salesetl/core"
)

var columnNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

func quietCleaner(options ...CleanerOption) *Cleaner {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return NewCleaner(append([]CleanerOption{WithLogger(logger)}, options...)...)
}

func TestCleaner_WorkedExamples(t *testing.T) {
	rs := recordset([]string{"Invoice ID", "Tax 5%", "Quantity", "Payment"},
		core.Record{str("INV001"), str("12.5"), str("3"), str("Cash")},
		core.Record{str("INV002"), str("7"), core.Null(), str("Cash")},
		core.Record{str("INV003"), str("1.5"), str("5"), str("Card")},
		core.Record{str("INV004"), str("2"), str("4"), core.Null()},
		core.Record{str("INV001"), str("12.5"), str("3"), str("Cash")},
	)

	out, stats, err := quietCleaner().Clean(context.Background(), rs)
	require.NoError(t, err)

	assert.Equal(t, []string{"invoice_id", "tax_5pct", "quantity", "payment"}, out.Columns)
	require.Equal(t, 4, out.Len(), "duplicate row removed")
	assert.Equal(t, []string{"INV001", "INV002", "INV003", "INV004"}, columnStrings(out, 0))

	assert.Equal(t, core.KindDecimal, out.Records[0][1].Kind())
	assert.Equal(t, "12.5", out.Records[0][1].String())

	// median of 3, 5, 4 is 4
	assert.Equal(t, "4", out.Records[1][2].String())
	assert.Equal(t, []string{"Cash", "Cash", "Card", "Cash"}, columnStrings(out, 3))

	assert.Equal(t, 5, stats.InputRows)
	assert.Equal(t, 4, stats.OutputRows)
	assert.Equal(t, 1, stats.DuplicatesRemoved)
	assert.Equal(t, "tax_5pct", stats.Renamed["Tax 5%"])
}

func TestCleaner_MedianExample(t *testing.T) {
	rs := recordset([]string{"quantity"},
		core.Record{str("3")},
		core.Record{core.Null()},
		core.Record{str("5")},
	)

	out, _, err := quietCleaner().Clean(context.Background(), rs)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4", "5"}, columnStrings(out, 0))
}

func TestCleaner_DeduplicatesBeforeFilling(t *testing.T) {
	// "4" and "4.0" are one quantity, so only one of them feeds the median
	rs := recordset([]string{"Quantity"},
		core.Record{str("4")},
		core.Record{str("4.0")},
		core.Record{core.Null()},
		core.Record{str("10")},
		core.Record{str("10")},
	)

	out, stats, err := quietCleaner().Clean(context.Background(), rs)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.StepRows[StepDeduplicate])
	assert.Equal(t, 1, stats.MedianFilled["quantity"])
	assert.Equal(t, []string{"4", "7", "10"}, columnStrings(out, 0))
	assert.Equal(t, 2, stats.DuplicatesRemoved)
}

func TestCleaner_EmptyRecordset(t *testing.T) {
	rs := core.NewRecordset("Invoice ID", "Rating")

	out, stats, err := quietCleaner().Clean(context.Background(), rs)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, []string{"invoice_id", "rating"}, out.Columns)
	assert.Empty(t, stats.SkippedColumns(), "nothing to fill")
}

func TestCleaner_LogsSkippedColumns(t *testing.T) {
	var logs bytes.Buffer
	cleaner := NewCleaner(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	rs := recordset([]string{"rating", "branch"},
		core.Record{str("bad"), str("A")},
		core.Record{core.Null(), str("B")},
	)

	out, stats, err := cleaner.Clean(context.Background(), rs)
	require.NoError(t, err)

	assert.Equal(t, 2, out.NullCount(0))
	assert.Equal(t, []string{"rating"}, stats.SkippedColumns())
	assert.Contains(t, logs.String(), "left unfilled")
	assert.Contains(t, logs.String(), "column=rating")
}

func TestCleaner_CustomNumericColumns(t *testing.T) {
	rs := recordset([]string{"Score", "Unit price"},
		core.Record{str("1"), str("x")},
		core.Record{core.Null(), str("2")},
		core.Record{str("3"), str("y")},
	)

	out, _, err := quietCleaner(WithNumericColumns("score")).Clean(context.Background(), rs)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, columnStrings(out, 0))
	assert.Equal(t, core.KindString, out.Records[1][1].Kind(), "unit_price is not numeric here")
}

func TestCleaner_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := quietCleaner().Clean(ctx, core.NewRecordset("a"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleaner_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	headers := []string{"Invoice ID", "Branch", "Unit price", "Quantity", "Tax 5%", "Date", "Time", "Payment", "Rating"}
	pick := func(options ...string) core.Value {
		i := rng.Intn(len(options) + 1)
		if i == len(options) {
			return core.Null()
		}
		return str(options[i])
	}

	for iteration := 0; iteration < 25; iteration++ {
		rs := core.NewRecordset(headers...)
		rows := rng.Intn(40)
		for r := 0; r < rows; r++ {
			rs.Append(
				pick(fmt.Sprintf("INV%03d", rng.Intn(20))),
				pick("A", "B", "C"),
				pick("74.69", "15.28", "oops", "NaN"),
				pick("1", "7", "10"),
				pick("26.1415", "3.82", ""),
				pick("1/5/2019", "2019-03-08", "bad"),
				pick("13:08", "10:29", "99:99"),
				pick("Cash", "Card", "Ewallet"),
				pick("9.1", "5.3"),
			)
		}

		out, _, err := quietCleaner().Clean(context.Background(), rs)
		require.NoError(t, err)

		seen := map[string]bool{}
		for _, record := range out.Records {
			key := record.Key()
			assert.False(t, seen[key], "no exact duplicates remain")
			seen[key] = true
		}

		for _, column := range out.Columns {
			assert.Regexp(t, columnNamePattern, column)
		}

		for _, column := range DefaultNumericColumns {
			i := out.ColumnIndex(column)
			if i < 0 {
				continue
			}
			hasValue := out.NullCount(i) < out.Len()
			if hasValue {
				assert.Zero(t, out.NullCount(i), "numeric column %s has nulls", column)
			}
		}
	}
}
