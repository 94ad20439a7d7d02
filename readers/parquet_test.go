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
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/salesetl/core"
	"github.com/aaronlmathis/salesetl/writers"
)

func writeParquetFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clean.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)

	w, err := writers.NewParquetWriter(f, []string{"invoice_id", "rating", "date", "time"})
	require.NoError(t, err)

	d, _ := core.ParseDecimal("9.1")
	records := []core.Record{
		{core.StringValue("INV001"), core.DecimalValue(d), core.DateValue(time.Date(2019, 1, 5, 0, 0, 0, 0, time.UTC)), core.TimeValue(time.Date(0, 1, 1, 13, 8, 0, 0, time.UTC))},
		{core.StringValue("INV002"), core.Null(), core.DateValue(time.Date(2019, 3, 8, 0, 0, 0, 0, time.UTC)), core.TimeValue(time.Date(0, 1, 1, 10, 29, 0, 0, time.UTC))},
	}
	for _, record := range records {
		require.NoError(t, w.Write(context.Background(), record))
	}
	require.NoError(t, w.Close())
	return path
}

func TestParquetReader_DecodesValues(t *testing.T) {
	f, err := os.Open(writeParquetFixture(t))
	require.NoError(t, err)

	reader, err := NewParquetReader(f)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"invoice_id", "rating", "date", "time"}, reader.Columns())

	rs, err := core.ReadAll(context.Background(), reader)
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())

	first := rs.Records[0]
	assert.Equal(t, "INV001", first[0].String())
	assert.Equal(t, core.KindDecimal, first[1].Kind())
	assert.Equal(t, "9.1", first[1].String())
	assert.Equal(t, core.KindDate, first[2].Kind())
	assert.Equal(t, "2019-01-05", first[2].String())
	assert.Equal(t, core.KindTime, first[3].Kind())
	assert.Equal(t, "13:08:00", first[3].String())

	assert.True(t, rs.Records[1][1].IsNull())
	assert.Equal(t, int64(2), reader.Stats().RecordsRead)
	assert.Equal(t, int64(1), reader.Stats().NullValueCounts["rating"])
}

func TestParquetReader_Projection(t *testing.T) {
	data, err := os.ReadFile(writeParquetFixture(t))
	require.NoError(t, err)

	// a non-seekable input is buffered
	reader, err := NewParquetReader(io.NopCloser(strings.NewReader(string(data))), WithParquetColumns("time", "invoice_id"))
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"time", "invoice_id"}, reader.Columns())
	record, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "13:08:00", record[0].String())
	assert.Equal(t, "INV001", record[1].String())

	_, err = NewParquetReader(io.NopCloser(strings.NewReader(string(data))), WithParquetColumns("missing"))
	var parquetErr *ParquetReaderError
	require.ErrorAs(t, err, &parquetErr)
	assert.Equal(t, "column_projection", parquetErr.Op)
}

func TestParquetReader_Malformed(t *testing.T) {
	_, err := NewParquetReader(io.NopCloser(strings.NewReader("invoice_id\nINV001\n")), WithParquetLocation("clean.parquet"))

	var malformed *core.MalformedInputError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "clean.parquet", malformed.Location)
	assert.Equal(t, "open_parquet", malformed.Op)
}
