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

package writers

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/salesetl/core"
)

type bufferWriteCloser struct {
	bytes.Buffer
	closeCount int
}

func (b *bufferWriteCloser) Close() error {
	b.closeCount++
	return nil
}

func readParquet(t *testing.T, data []byte) arrow.Table {
	t.Helper()
	mem := memory.NewGoAllocator()
	table, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data),
		parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	require.NoError(t, err)
	return table
}

func TestParquetWriter_BasicFunctionality(t *testing.T) {
	out := &bufferWriteCloser{}
	columns := []string{"invoice_id", "unit_price", "date", "time", "rating"}
	writer, err := NewParquetWriter(out, columns, WithBatchSize(2))
	require.NoError(t, err)

	ctx := context.Background()
	day := time.Date(2019, 1, 5, 0, 0, 0, 0, time.UTC)
	clock := time.Date(0, 1, 1, 13, 8, 0, 0, time.UTC)

	for i, id := range []string{"INV001", "INV002", "INV003"} {
		rating := dec("9.1")
		if i == 1 {
			rating = core.Null()
		}
		require.NoError(t, writer.Write(ctx, core.Record{
			core.StringValue(id), dec("74.69"), core.DateValue(day), core.TimeValue(clock), rating,
		}))
	}
	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close(), "second Close is a no-op")
	assert.Equal(t, 1, out.closeCount, "output closed exactly once")

	schema := writer.Schema()
	require.NotNil(t, schema)
	assert.Equal(t, arrow.BinaryTypes.String.ID(), schema.Field(0).Type.ID())
	assert.Equal(t, arrow.FLOAT64, schema.Field(1).Type.ID())
	assert.Equal(t, arrow.DATE32, schema.Field(2).Type.ID())
	assert.Equal(t, arrow.TIME32, schema.Field(3).Type.ID())

	stats := writer.Stats()
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(2), stats.BatchesWritten)
	assert.Equal(t, int64(1), stats.NullValueCounts["rating"])

	table := readParquet(t, out.Bytes())
	defer table.Release()
	assert.Equal(t, int64(3), table.NumRows())
	assert.Equal(t, int64(5), table.NumCols())

	prices := table.Column(1).Data().Chunk(0).(*array.Float64)
	assert.InDelta(t, 74.69, prices.Value(0), 1e-9)
}

func TestParquetWriter_EmptyDataset(t *testing.T) {
	out := &bufferWriteCloser{}
	writer, err := NewParquetWriter(out, []string{"invoice_id", "branch"})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	table := readParquet(t, out.Bytes())
	defer table.Release()
	assert.Equal(t, int64(0), table.NumRows())
	assert.Equal(t, "branch", table.Schema().Field(1).Name)
}

func TestParquetWriter_ErrorHandling(t *testing.T) {
	_, err := NewParquetWriter(&bufferWriteCloser{}, nil)
	var pqErr *ParquetWriterError
	require.ErrorAs(t, err, &pqErr)
	assert.Equal(t, "validate", pqErr.Op)

	writer, err := NewParquetWriter(&bufferWriteCloser{}, []string{"a"})
	require.NoError(t, err)
	assert.Error(t, writer.Write(context.Background(), core.Record{core.Null(), core.Null()}))

	require.NoError(t, writer.Close())
	err = writer.Write(context.Background(), core.Record{core.Null()})
	require.ErrorAs(t, err, &pqErr)
	assert.Contains(t, pqErr.Error(), "closed")
}
