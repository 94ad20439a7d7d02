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
	"strconv"
	"strings"
)

// Package core defines the core types for SalesETL.
//
// SalesETL is a three-stage batch ETL job (extract, clean, load) layered as
// readers, writers, transform steps and a DAG of tasks.
//
// This file contains the record, recordset and schema types plus the step adapter.

// Record is one row of data, positionally aligned with its Recordset's columns.
type Record []Value

// Clone returns a copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	copy(out, r)
	return out
}

// Key returns a full-row equality key. Two records with the same key are exact
// duplicates across all columns (null equals null).
func (r Record) Key() string {
	var b strings.Builder
	for _, v := range r {
		k := v.Key()
		// length-prefix each cell so that separators inside values cannot collide
		b.WriteString(strconv.Itoa(len(k)))
		b.WriteByte(':')
		b.WriteString(k)
	}
	return b.String()
}

// Recordset is an ordered sequence of records sharing one column schema.
type Recordset struct {
	Columns []string
	Records []Record
}

// NewRecordset creates an empty recordset with the given columns.
func NewRecordset(columns ...string) *Recordset {
	return &Recordset{Columns: append([]string(nil), columns...)}
}

// Len returns the number of records.
func (rs *Recordset) Len() int { return len(rs.Records) }

// Append adds a record. Short records are padded with nulls.
func (rs *Recordset) Append(values ...Value) {
	rec := make(Record, len(rs.Columns))
	copy(rec, values)
	rs.Records = append(rs.Records, rec)
}

// ColumnIndex returns the position of the named column, or -1.
func (rs *Recordset) ColumnIndex(name string) int {
	for i, c := range rs.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (rs *Recordset) HasColumn(name string) bool { return rs.ColumnIndex(name) >= 0 }

// Column returns the values of column i in record order.
func (rs *Recordset) Column(i int) []Value {
	out := make([]Value, len(rs.Records))
	for r, rec := range rs.Records {
		out[r] = rec[i]
	}
	return out
}

// NullCount returns the number of nulls in column i.
func (rs *Recordset) NullCount(i int) int {
	n := 0
	for _, rec := range rs.Records {
		if rec[i].IsNull() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy. Stages hand clones downstream so that nothing is
// mutated after it has been passed on.
func (rs *Recordset) Clone() *Recordset {
	out := &Recordset{
		Columns: append([]string(nil), rs.Columns...),
		Records: make([]Record, len(rs.Records)),
	}
	for i, rec := range rs.Records {
		out.Records[i] = rec.Clone()
	}
	return out
}

// ColumnType declares how a flat-file column is decoded.
type ColumnType int

const (
	// ColumnString leaves values untyped.
	ColumnString ColumnType = iota
	// ColumnDecimal decodes values as decimals.
	ColumnDecimal
	// ColumnDate decodes values as calendar dates.
	ColumnDate
	// ColumnTime decodes values as times of day.
	ColumnTime
)

// Schema maps column names to declared types. Columns not listed are strings.
type Schema map[string]ColumnType

// TypeOf returns the declared type of a column.
func (s Schema) TypeOf(column string) ColumnType {
	if s == nil {
		return ColumnString
	}
	return s[column]
}

// StepFunc is a function adapter for the Step interface.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, rs *Recordset) (*Recordset, error)
}

// Name implements Step.
func (f StepFunc) Name() string { return f.StepName }

// Apply implements Step.
func (f StepFunc) Apply(ctx context.Context, rs *Recordset) (*Recordset, error) {
	return f.Fn(ctx, rs)
}
