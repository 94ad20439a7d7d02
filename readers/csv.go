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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aaronlmathis/salesetl/core"
)

// CSVReaderStats holds statistics about the CSV reader's performance.
type CSVReaderStats struct {
	RecordsRead     int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
	TypeFallbacks   map[string]int64 // values kept as strings because they did not match the schema
}

// CSVReaderOptions configures the CSV reader.
type CSVReaderOptions struct {
	NullValues []string
	Schema     core.Schema
	Location   string
}

// ReaderOptionCSV allows functional customization of CSVReader.
type ReaderOptionCSV func(*CSVReaderOptions)

// WithCSVNullValues sets the field values read as null. The empty field is always null.
func WithCSVNullValues(values ...string) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.NullValues = append([]string(nil), values...) }
}

// WithCSVSchema enables typed decoding of the listed columns.
func WithCSVSchema(schema core.Schema) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Schema = schema }
}

// WithCSVLocation names the input in error messages.
func WithCSVLocation(location string) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Location = location }
}

// CSVReader implements core.DataSource for CSV files with a header row.
type CSVReader struct {
	reader  *csv.Reader
	headers []string
	types   []core.ColumnType
	nulls   map[string]struct{}
	closer  io.Closer
	stats   CSVReaderStats
	opts    CSVReaderOptions
}

// NewCSVReader creates a CSVReader and reads the header row. Input without a
// header row is a *core.MalformedInputError.
func NewCSVReader(r io.ReadCloser, options ...ReaderOptionCSV) (*CSVReader, error) {
	opts := CSVReaderOptions{Location: "csv"}
	for _, opt := range options {
		opt(&opts)
	}

	csvReader := csv.NewReader(r)
	csvReader.ReuseRecord = true

	nulls := map[string]struct{}{"": {}}
	for _, v := range opts.NullValues {
		nulls[v] = struct{}{}
	}

	reader := &CSVReader{
		reader: csvReader,
		nulls:  nulls,
		closer: r,
		opts:   opts,
		stats: CSVReaderStats{
			NullValueCounts: make(map[string]int64),
			TypeFallbacks:   make(map[string]int64),
		},
	}

	headers, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("no header row")
		}
		return nil, &core.MalformedInputError{Location: opts.Location, Op: "read_headers", Err: err}
	}
	reader.headers = append([]string(nil), headers...)
	reader.headers[0] = strings.TrimPrefix(reader.headers[0], "\ufeff")
	reader.types = make([]core.ColumnType, len(headers))
	for i, h := range reader.headers {
		reader.types[i] = opts.Schema.TypeOf(h)
	}

	return reader, nil
}

// Columns returns the header row.
func (c *CSVReader) Columns() []string {
	return append([]string(nil), c.headers...)
}

// Read implements the core.DataSource interface. A row whose field count
// differs from the header, or with broken quoting, is a *core.MalformedInputError.
func (c *CSVReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fields, err := c.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &core.MalformedInputError{Location: c.opts.Location, Op: "read_record", Err: err}
	}

	record := make(core.Record, len(fields))
	for i, field := range fields {
		record[i] = c.parseValue(i, field)
	}

	c.stats.RecordsRead++
	c.stats.LastReadTime = time.Now()
	c.stats.ReadDuration += time.Since(start)

	return record, nil
}

// Close implements the core.DataSource interface.
func (c *CSVReader) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Stats returns CSV reader performance stats.
func (c *CSVReader) Stats() CSVReaderStats {
	return c.stats
}

func (c *CSVReader) parseValue(i int, field string) core.Value {
	column := c.headers[i]
	if _, isNull := c.nulls[field]; isNull {
		c.stats.NullValueCounts[column]++
		return core.Null()
	}

	switch c.types[i] {
	case core.ColumnDecimal:
		if d, ok := core.ParseDecimal(field); ok {
			return core.DecimalValue(d)
		}
	case core.ColumnDate:
		if t, ok := core.ParseDate(field); ok {
			return core.DateValue(t)
		}
	case core.ColumnTime:
		if t, ok := core.ParseClock(field, core.ClockLayout, "15:04"); ok {
			return core.TimeValue(t)
		}
	default:
		return core.StringValue(field)
	}

	c.stats.TypeFallbacks[column]++
	return core.StringValue(field)
}
