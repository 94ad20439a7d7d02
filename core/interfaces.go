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

package core

import (
	"context"
	"errors"
	"io"
)

// Package core defines the core interfaces for SalesETL.
//
// This file contains the primary interfaces for data sources, sinks and
// recordset-level cleaning steps, plus helpers that drain a source or fill a sink.

// DataSource defines the interface for data extraction.
// Implementations stream records from a source (e.g., a database table or CSV file).
type DataSource interface {
	// Columns returns the column names, in source order.
	Columns() []string
	// Read returns the next record or io.EOF when no more records are available.
	Read(ctx context.Context) (Record, error)
	// Close releases any resources held by the data source.
	Close() error
}

// DataSink defines the interface for data loading.
// Implementations write records to a destination (e.g., CSV or Parquet).
type DataSink interface {
	// Write outputs a single record to the sink.
	Write(ctx context.Context, record Record) error
	// Flush ensures all buffered data is written to the sink.
	Flush() error
	// Close releases any resources held by the data sink.
	Close() error
}

// Step defines a whole-recordset transformation.
// Cleaning steps need column-wide context (duplicates, medians, modes), so they
// operate on a complete Recordset rather than record by record.
type Step interface {
	// Name identifies the step in logs and stats.
	Name() string
	// Apply returns the transformed recordset. Implementations must not modify rs.
	Apply(ctx context.Context, rs *Recordset) (*Recordset, error)
}

// ReadAll drains src into a new Recordset. It does not close src.
func ReadAll(ctx context.Context, src DataSource) (*Recordset, error) {
	rs := NewRecordset(src.Columns()...)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		record, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			return rs, nil
		}
		if err != nil {
			return nil, err
		}
		rs.Records = append(rs.Records, record)
	}
}

// WriteAll writes every record of rs to sink and flushes it. It does not close sink.
func WriteAll(ctx context.Context, sink DataSink, rs *Recordset) error {
	for _, record := range rs.Records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := sink.Write(ctx, record); err != nil {
			return err
		}
	}
	return sink.Flush()
}
