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
	"context"
	"encoding/csv"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/salesetl/core"
)

// Mock writer shared by the writer tests
type mockWriteCloser struct {
	*strings.Builder
	closed     bool
	closeCount int
	failWrite  bool
	failClose  bool
	mu         sync.Mutex
}

func (m *mockWriteCloser) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return 0, io.ErrUnexpectedEOF
	}
	return m.Builder.Write(p)
}

func (m *mockWriteCloser) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closeCount++
	if m.failClose {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (m *mockWriteCloser) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Builder.String()
}

func (m *mockWriteCloser) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func newMockWriteCloser() *mockWriteCloser {
	return &mockWriteCloser{Builder: &strings.Builder{}}
}

func dec(s string) core.Value {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return core.DecimalValue(d)
}

func TestCSVWriter_BasicFunctionality(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, []string{"invoice_id", "unit_price", "rating"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, writer.Write(ctx, core.Record{core.StringValue("INV001"), dec("74.69"), core.Null()}))
	require.NoError(t, writer.Write(ctx, core.Record{core.StringValue("INV002"), dec("15.28"), dec("9.6")}))
	require.NoError(t, writer.Close())

	records, err := csv.NewReader(strings.NewReader(mock.String())).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"invoice_id", "unit_price", "rating"},
		{"INV001", "74.69", ""},
		{"INV002", "15.28", "9.6"},
	}, records)

	assert.True(t, mock.IsClosed())
	assert.Equal(t, int64(1), writer.Stats().NullValueCounts["rating"])
}

func TestCSVWriter_HeaderOnly(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, []string{"invoice_id", "branch"})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	assert.Equal(t, "invoice_id,branch\n", mock.String())
}

func TestCSVWriter_PreservesColumnOrder(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, []string{"z", "a", "m"})
	require.NoError(t, err)
	require.NoError(t, writer.Write(context.Background(), core.Record{core.StringValue("1"), core.StringValue("2"), core.StringValue("3")}))
	require.NoError(t, writer.Close())

	assert.Equal(t, "z,a,m\n1,2,3\n", mock.String())
}

func TestCSVWriter_BatchedWrites(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, []string{"id"}, WithCSVBatchSize(2))
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, writer.Write(ctx, core.Record{core.StringValue(id)}))
	}

	assert.Equal(t, "id\n1\n2\n", mock.String(), "first batch flushed automatically")

	require.NoError(t, writer.Close())
	assert.Equal(t, "id\n1\n2\n3\n", mock.String())

	stats := writer.Stats()
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(2), stats.FlushCount)
}

func TestCSVWriter_QuotesSpecialCharacters(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, []string{"name", "note"})
	require.NoError(t, err)
	require.NoError(t, writer.Write(context.Background(), core.Record{core.StringValue("Smith, J"), core.StringValue(`said "hi"`)}))
	require.NoError(t, writer.Close())

	assert.Equal(t, "name,note\n\"Smith, J\",\"said \"\"hi\"\"\"\n", mock.String())
}

func TestCSVWriter_ErrorHandling(t *testing.T) {
	_, err := NewCSVWriter(newMockWriteCloser(), nil)
	assert.Error(t, err)

	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, []string{"a", "b"})
	require.NoError(t, err)

	err = writer.Write(context.Background(), core.Record{core.StringValue("1")})
	var csvErr *CSVWriterError
	require.ErrorAs(t, err, &csvErr)
	assert.Equal(t, "write", csvErr.Op)

	failing := newMockWriteCloser()
	failing.failWrite = true
	writer, err = NewCSVWriter(failing, []string{"a"})
	require.NoError(t, err)
	require.NoError(t, writer.Write(context.Background(), core.Record{core.StringValue("1")}))

	err = writer.Close()
	require.ErrorAs(t, err, &csvErr)
	assert.Equal(t, "flush", csvErr.Op)
	assert.True(t, failing.IsClosed(), "output is closed even when the flush fails")

	err = writer.Write(context.Background(), core.Record{core.StringValue("2")})
	assert.Error(t, err, "writer stays in error state")
}
