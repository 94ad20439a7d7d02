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
	"bytes"
	"context"
	"encoding/json"
)

// Document is one record prepared for the search sink: its id plus the
// record's fields in column order.
type Document struct {
	ID      string
	Columns []string
	Values  []Value
}

// NewDocument builds a document from a record. Temporal values keep their
// canonical text form when marshalled.
func NewDocument(id string, columns []string, record Record) Document {
	return Document{ID: id, Columns: columns, Values: record}
}

// Get returns the value of the named field.
func (d Document) Get(field string) (Value, bool) {
	for i, c := range d.Columns {
		if c == field {
			return d.Values[i], true
		}
	}
	return Null(), false
}

// MarshalJSON renders the fields as a JSON object in column order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, column := range d.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(column)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		value, err := d.Values[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DocumentSink upserts documents into a search index.
type DocumentSink interface {
	// Ping checks that the sink is reachable.
	Ping(ctx context.Context) error
	// Index inserts or replaces the document under its id. A per-document
	// rejection is a *DocumentError; anything else aborts the load.
	Index(ctx context.Context, doc Document) error
	// Close releases any resources held by the sink.
	Close() error
}
