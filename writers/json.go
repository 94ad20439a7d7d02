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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/aaronlmathis/salesetl/core"
)

// JSONWriter implements core.DocumentSink by writing one bulk-style JSON line
// per document: {"_index":...,"_id":...,"_source":{...}}. It backs dry runs
// and offline inspection of what a load would index.
type JSONWriter struct {
	writer  *bufio.Writer
	closer  io.Closer
	index   string
	written int64
	mu      sync.Mutex
}

type jsonLine struct {
	Index  string        `json:"_index"`
	ID     string        `json:"_id"`
	Source core.Document `json:"_source"`
}

// NewJSONWriter creates a new JSON lines document writer for the given index name.
func NewJSONWriter(w io.WriteCloser, index string) *JSONWriter {
	return &JSONWriter{
		writer: bufio.NewWriter(w),
		closer: w,
		index:  index,
	}
}

// Ping implements core.DocumentSink. A local file is always reachable.
func (j *JSONWriter) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Index implements core.DocumentSink.
func (j *JSONWriter) Index(ctx context.Context, doc core.Document) error {
	if doc.ID == "" {
		return &core.DocumentError{ID: doc.ID, Err: core.ErrMissingDocumentID}
	}

	data, err := json.Marshal(jsonLine{Index: j.index, ID: doc.ID, Source: doc})
	if err != nil {
		return &core.DocumentError{ID: doc.ID, Err: fmt.Errorf("failed to marshal document to JSON: %w", err)}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.writer.Write(data); err != nil {
		return &core.SinkUnavailableError{Op: "write", Err: err}
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return &core.SinkUnavailableError{Op: "write", Err: err}
	}
	j.written++
	return nil
}

// Written returns the number of documents written.
func (j *JSONWriter) Written() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

// Close flushes buffered lines and closes the output.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	flushErr := j.writer.Flush()
	var closeErr error
	if j.closer != nil {
		closeErr = j.closer.Close()
		j.closer = nil
	}
	if flushErr != nil {
		return &core.SinkUnavailableError{Op: "flush", Err: flushErr}
	}
	return closeErr
}
