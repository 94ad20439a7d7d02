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

package readers

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/salesetl/core"
)

func newTestCSVReader(t *testing.T, data string, options ...ReaderOptionCSV) (*CSVReader, error) {
	t.Helper()
	return NewCSVReader(io.NopCloser(strings.NewReader(data)), options...)
}

func TestCSVReaderUntyped(t *testing.T) {
	reader, err := newTestCSVReader(t,
		"Invoice ID,Unit price,Rating\nINV001,74.69,NA\nINV002,,9.1\n",
		WithCSVNullValues("NA"),
	)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"Invoice ID", "Unit price", "Rating"}, reader.Columns())

	rs, err := core.ReadAll(context.Background(), reader)
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())

	assert.Equal(t, core.KindString, rs.Records[0][1].Kind(), "untyped read keeps text")
	assert.True(t, rs.Records[0][2].IsNull())
	assert.True(t, rs.Records[1][1].IsNull())

	stats := reader.Stats()
	assert.Equal(t, int64(2), stats.RecordsRead)
	assert.Equal(t, int64(1), stats.NullValueCounts["Rating"])
	assert.Equal(t, int64(1), stats.NullValueCounts["Unit price"])
}

func TestCSVReaderTyped(t *testing.T) {
	schema := core.Schema{
		"unit_price": core.ColumnDecimal,
		"date":       core.ColumnDate,
		"time":       core.ColumnTime,
	}
	reader, err := newTestCSVReader(t,
		"invoice_id,unit_price,date,time\nINV001,74.69,2019-01-05,13:08:00\nINV002,oops,2019-01-06,13:08\n",
		WithCSVSchema(schema),
	)
	require.NoError(t, err)

	rs, err := core.ReadAll(context.Background(), reader)
	require.NoError(t, err)

	first := rs.Records[0]
	assert.Equal(t, core.KindString, first[0].Kind())
	assert.Equal(t, core.KindDecimal, first[1].Kind())
	assert.Equal(t, core.KindDate, first[2].Kind())
	assert.Equal(t, core.KindTime, first[3].Kind())
	assert.Equal(t, "13:08:00", first[3].String())

	second := rs.Records[1]
	assert.Equal(t, core.KindString, second[1].Kind(), "unparseable value falls back to text")
	assert.Equal(t, "13:08:00", second[3].String())
	assert.Equal(t, int64(1), reader.Stats().TypeFallbacks["unit_price"])
}

func TestCSVReaderMalformed(t *testing.T) {
	_, err := newTestCSVReader(t, "", WithCSVLocation("raw.csv"))
	var malformed *core.MalformedInputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "read_headers", malformed.Op)
	assert.Equal(t, "raw.csv", malformed.Location)

	reader, err := newTestCSVReader(t, "a,b\n1,2\n3\n")
	require.NoError(t, err)
	_, err = core.ReadAll(context.Background(), reader)
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "read_record", malformed.Op)

	reader, err = newTestCSVReader(t, "a,b\n\"unterminated,2\n")
	require.NoError(t, err)
	_, err = core.ReadAll(context.Background(), reader)
	assert.ErrorAs(t, err, &malformed)
}

func TestCSVReaderHeaderOnly(t *testing.T) {
	reader, err := newTestCSVReader(t, "invoice_id,branch\n")
	require.NoError(t, err)

	rs, err := core.ReadAll(context.Background(), reader)
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
	assert.Equal(t, []string{"invoice_id", "branch"}, rs.Columns)
}

func TestCSVReaderQuotedFields(t *testing.T) {
	reader, err := newTestCSVReader(t, "name,note\n\"Smith, J\",\"said \"\"hi\"\"\"\n")
	require.NoError(t, err)

	record, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Smith, J", record[0].String())
	assert.Equal(t, `said "hi"`, record[1].String())
}

func TestCSVReaderStripsByteOrderMark(t *testing.T) {
	reader, err := newTestCSVReader(t, "\ufeffInvoice ID,Rating\nINV001,9.1\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"Invoice ID", "Rating"}, reader.Columns())

	record, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "INV001", record[0].String())
}
