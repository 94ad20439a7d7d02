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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/salesetl/core"
)

// ParquetReaderError wraps Parquet read errors with the failing operation.
type ParquetReaderError struct {
	Op  string // Operation that failed (e.g., "open", "schema", "load_batch")
	Err error
}

func (e *ParquetReaderError) Error() string {
	return fmt.Sprintf("parquet reader %s: %v", e.Op, e.Err)
}

func (e *ParquetReaderError) Unwrap() error {
	return e.Err
}

// ParquetReaderStats holds statistics about a Parquet read.
type ParquetReaderStats struct {
	RecordsRead     int64
	BatchesRead     int64
	ReadDuration    time.Duration
	NullValueCounts map[string]int64
}

// ParquetReaderOptions configures the Parquet reader.
type ParquetReaderOptions struct {
	Columns  []string // optional projection, in output order
	Location string   // reported in *core.MalformedInputError
}

// ParquetReaderOption represents a configuration function.
type ParquetReaderOption func(*ParquetReaderOptions)

// WithParquetColumns projects the listed columns.
func WithParquetColumns(columns ...string) ParquetReaderOption {
	return func(opts *ParquetReaderOptions) { opts.Columns = append([]string(nil), columns...) }
}

// WithParquetLocation sets the artifact location used in error reports.
func WithParquetLocation(location string) ParquetReaderOption {
	return func(opts *ParquetReaderOptions) { opts.Location = location }
}

// ParquetReader implements core.DataSource for Parquet files written by
// writers.ParquetWriter. Float columns decode as decimals, date32 and
// timestamp columns as dates, time32 columns as times of day and strings as
// untyped text.
type ParquetReader struct {
	closer       io.Closer
	recordReader pqarrow.RecordReader
	columns      []string
	currentBatch arrow.Record
	batchIdx     int
	stats        ParquetReaderStats
	opts         ParquetReaderOptions
}

// NewParquetReader reads a Parquet artifact from r. Inputs that cannot seek
// are buffered in memory first. A file that is not valid Parquet is a
// *core.MalformedInputError.
func NewParquetReader(r io.ReadCloser, options ...ParquetReaderOption) (*ParquetReader, error) {
	var opts ParquetReaderOptions
	for _, option := range options {
		option(&opts)
	}

	source, ok := r.(parquet.ReaderAtSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			r.Close()
			return nil, &ParquetReaderError{Op: "open", Err: err}
		}
		source = bytes.NewReader(data)
	}

	malformed := func(op string, err error) error {
		r.Close()
		return &core.MalformedInputError{Location: opts.Location, Op: op, Err: err}
	}

	parquetReader, err := file.NewParquetReader(source)
	if err != nil {
		return nil, malformed("open_parquet", err)
	}
	arrowReader, err := pqarrow.NewFileReader(parquetReader, pqarrow.ArrowReadProperties{BatchSize: 1000}, memory.NewGoAllocator())
	if err != nil {
		return nil, malformed("open_parquet", err)
	}
	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, malformed("schema", err)
	}

	var indices []int
	columns := make([]string, 0, len(schema.Fields()))
	if len(opts.Columns) > 0 {
		for _, name := range opts.Columns {
			found := schema.FieldIndices(name)
			if len(found) == 0 {
				r.Close()
				return nil, &ParquetReaderError{Op: "column_projection", Err: fmt.Errorf("column %q not found in schema", name)}
			}
			indices = append(indices, found[0])
			columns = append(columns, name)
		}
	} else {
		for _, field := range schema.Fields() {
			columns = append(columns, field.Name)
		}
	}

	recordReader, err := arrowReader.GetRecordReader(context.Background(), indices, nil)
	if err != nil {
		return nil, malformed("record_reader", err)
	}

	return &ParquetReader{
		closer:       r,
		recordReader: recordReader,
		columns:      columns,
		stats:        ParquetReaderStats{NullValueCounts: make(map[string]int64)},
		opts:         opts,
	}, nil
}

// Columns implements core.DataSource.
func (p *ParquetReader) Columns() []string {
	return append([]string(nil), p.columns...)
}

// Read implements core.DataSource.
func (p *ParquetReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() { p.stats.ReadDuration += time.Since(start) }()

	if err := ctx.Err(); err != nil {
		return nil, &ParquetReaderError{Op: "read", Err: err}
	}

	for p.currentBatch == nil || p.batchIdx >= int(p.currentBatch.NumRows()) {
		if err := p.loadNextBatch(); err != nil {
			return nil, err
		}
	}

	record := make(core.Record, len(p.columns))
	for i := range p.columns {
		record[i] = p.decodeValue(p.currentBatch.Column(i), p.batchIdx, p.columns[i])
	}
	p.batchIdx++
	p.stats.RecordsRead++
	return record, nil
}

// Close releases the current batch and closes the input.
func (p *ParquetReader) Close() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}
	if p.recordReader != nil {
		p.recordReader.Release()
		p.recordReader = nil
	}
	if p.closer != nil {
		err := p.closer.Close()
		p.closer = nil
		return err
	}
	return nil
}

// Stats returns statistics about the read so far.
func (p *ParquetReader) Stats() ParquetReaderStats {
	return p.stats
}

func (p *ParquetReader) loadNextBatch() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}

	rec, err := p.recordReader.Read()
	if errors.Is(err, io.EOF) || (err == nil && rec == nil) {
		return io.EOF
	}
	if err != nil {
		return &core.MalformedInputError{Location: p.opts.Location, Op: "load_batch", Err: err}
	}

	// the record reader reuses its batch on the next Read
	rec.Retain()
	p.currentBatch = rec
	p.batchIdx = 0
	p.stats.BatchesRead++
	return nil
}

func (p *ParquetReader) decodeValue(col arrow.Array, row int, column string) core.Value {
	if col.IsNull(row) {
		p.stats.NullValueCounts[column]++
		return core.Null()
	}

	switch arr := col.(type) {
	case *array.Float64:
		return core.DecimalFromFloat64(arr.Value(row))
	case *array.Float32:
		return core.DecimalFromFloat64(float64(arr.Value(row)))
	case *array.Int64:
		return core.DecimalFromInt64(arr.Value(row))
	case *array.Int32:
		return core.DecimalFromInt64(int64(arr.Value(row)))
	case *array.String:
		return core.StringValue(arr.Value(row))
	case *array.Date32:
		return core.DateValue(arr.Value(row).ToTime())
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return core.DateValue(arr.Value(row).ToTime(unit).UTC())
	case *array.Time32:
		unit := arr.DataType().(*arrow.Time32Type).Unit
		return core.TimeValue(arr.Value(row).ToTime(unit))
	default:
		return core.StringValue(fmt.Sprintf("%v", col.GetOneForMarshal(row)))
	}
}
