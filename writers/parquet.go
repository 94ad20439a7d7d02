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
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/salesetl/core"
)

// Package writers provides implementations of core.DataSink for writing data to various destinations.
//
// This file implements the Parquet writer used for the optional columnar copy
// of the cleaned dataset. The Arrow schema is inferred from the kinds of the
// first buffered batch: decimals become float64, dates date32 (or microsecond
// timestamps when a clock part is present), times time32[s], and everything
// else utf8.

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "schema", "write_batch", "close_writer")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Number of records to buffer before writing
	Compression  compress.Compression // Compression algorithm
	RowGroupSize int64                // Maximum rows per row group
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	TypeMismatches  int64 // values written as null because their kind did not match the column
	NullValueCounts map[string]int64
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// ParquetWriter implements core.DataSink for Parquet output.
type ParquetWriter struct {
	sink         *onceCloser
	writer       *pqarrow.FileWriter
	schema       *arrow.Schema
	columns      []string
	builders     []array.Builder
	allocator    memory.Allocator
	recordBuffer []core.Record
	stats        WriterStats
	opts         *ParquetWriterOptions
	closed       bool
	errorState   bool
	mu           sync.Mutex
}

// NewParquetWriter creates a Parquet writer for the given columns on w.
func NewParquetWriter(w io.WriteCloser, columns []string, options ...WriterOption) (*ParquetWriter, error) {
	if len(columns) == 0 {
		return nil, &ParquetWriterError{Op: "validate", Err: fmt.Errorf("at least one column is required")}
	}

	opts := (&ParquetWriterOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	return &ParquetWriter{
		sink:         &onceCloser{w: w},
		columns:      append([]string(nil), columns...),
		allocator:    memory.NewGoAllocator(),
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		stats:        WriterStats{NullValueCounts: make(map[string]int64)},
		opts:         opts,
	}, nil
}

func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}

	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 10000
	}
	if result.Compression == 0 {
		result.Compression = compress.Codecs.Snappy
	}

	return result
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	statsCopy := p.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Schema returns the Arrow schema, or nil before the first flush.
func (p *ParquetWriter) Schema() *arrow.Schema {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.schema
}

// Write implements the core.DataSink interface.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if len(record) != len(p.columns) {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("record has %d fields, want %d", len(record), len(p.columns))}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			p.errorState = true
			return err
		}
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (p *ParquetWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.flushBatch(); err != nil {
		p.errorState = true
		return err
	}
	return nil
}

// Close flushes remaining records, writes the footer and closes the output.
// A writer that never received a record still produces a valid file.
func (p *ParquetWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.flushBatch(); err != nil {
		p.sink.Close()
		return err
	}
	if p.writer == nil {
		if err := p.initializeSchema(nil); err != nil {
			p.sink.Close()
			return err
		}
	}

	for _, builder := range p.builders {
		builder.Release()
	}
	p.builders = nil

	if err := p.writer.Close(); err != nil {
		p.sink.Close()
		return &ParquetWriterError{Op: "close_writer", Err: err}
	}
	p.writer = nil

	if err := p.sink.Close(); err != nil {
		return &ParquetWriterError{Op: "close_sink", Err: err}
	}
	return nil
}

// initializeSchema infers one Arrow type per column from the first non-null
// value in records. Columns without any value default to strings.
func (p *ParquetWriter) initializeSchema(records []core.Record) error {
	fields := make([]arrow.Field, len(p.columns))
	for i, name := range p.columns {
		dataType := arrow.DataType(arrow.BinaryTypes.String)
		for _, record := range records {
			if !record[i].IsNull() {
				dataType = arrowType(record[i])
				break
			}
		}
		fields[i] = arrow.Field{Name: name, Type: dataType, Nullable: true}
	}
	p.schema = arrow.NewSchema(fields, nil)

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(p.schema, p.sink, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return &ParquetWriterError{Op: "create_writer", Err: err}
	}
	p.writer = writer

	p.builders = make([]array.Builder, len(fields))
	for i, field := range fields {
		p.builders[i] = array.NewBuilder(p.allocator, field.Type)
	}
	return nil
}

func arrowType(v core.Value) arrow.DataType {
	switch v.Kind() {
	case core.KindDecimal:
		return arrow.PrimitiveTypes.Float64
	case core.KindDate:
		t := v.Time()
		if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0 {
			return arrow.FixedWidthTypes.Timestamp_us
		}
		return arrow.FixedWidthTypes.Date32
	case core.KindTime:
		return arrow.FixedWidthTypes.Time32s
	default:
		return arrow.BinaryTypes.String
	}
}

// flushBatch writes the buffered records as one Arrow record batch (must hold mutex).
func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 {
		return nil
	}
	start := time.Now()

	if p.writer == nil {
		if err := p.initializeSchema(p.recordBuffer); err != nil {
			return err
		}
	}

	for _, record := range p.recordBuffer {
		for i, value := range record {
			if value.IsNull() {
				p.builders[i].AppendNull()
				p.stats.NullValueCounts[p.columns[i]]++
				continue
			}
			if !appendValue(p.builders[i], value) {
				p.builders[i].AppendNull()
				p.stats.TypeMismatches++
			}
		}
	}

	arrays := make([]arrow.Array, len(p.builders))
	for i, builder := range p.builders {
		arrays[i] = builder.NewArray()
	}
	batch := array.NewRecord(p.schema, arrays, int64(len(p.recordBuffer)))
	for _, arr := range arrays {
		arr.Release()
	}
	defer batch.Release()

	if err := p.writer.Write(batch); err != nil {
		return &ParquetWriterError{Op: "write_batch", Err: err}
	}

	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	p.recordBuffer = p.recordBuffer[:0]
	return nil
}

// appendValue appends v to builder and reports whether the kinds matched.
func appendValue(builder array.Builder, v core.Value) bool {
	switch b := builder.(type) {
	case *array.Float64Builder:
		d := v.Decimal()
		if d == nil {
			return false
		}
		f, err := d.Float64()
		if err != nil {
			return false
		}
		b.Append(f)
	case *array.Date32Builder:
		if v.Kind() != core.KindDate {
			return false
		}
		b.Append(arrow.Date32FromTime(v.Time()))
	case *array.TimestampBuilder:
		if v.Kind() != core.KindDate {
			return false
		}
		b.Append(arrow.Timestamp(v.Time().UnixMicro()))
	case *array.Time32Builder:
		if v.Kind() != core.KindTime {
			return false
		}
		t := v.Time()
		b.Append(arrow.Time32(t.Hour()*3600 + t.Minute()*60 + t.Second()))
	case *array.StringBuilder:
		b.Append(v.String())
	default:
		return false
	}
	return true
}

// onceCloser lets the Parquet file writer and ParquetWriter.Close both close
// the output without closing it twice.
type onceCloser struct {
	w      io.WriteCloser
	closed bool
	err    error
}

func (o *onceCloser) Write(p []byte) (int, error) { return o.w.Write(p) }

func (o *onceCloser) Close() error {
	if o.closed {
		return o.err
	}
	o.closed = true
	o.err = o.w.Close()
	return o.err
}
