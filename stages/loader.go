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

package stages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aaronlmathis/salesetl/artifacts"
	"github.com/aaronlmathis/salesetl/config"
	"github.com/aaronlmathis/salesetl/core"
	"github.com/aaronlmathis/salesetl/readers"
)

// Loader upserts every record of the cleaned artifact into a document sink,
// keyed by the id field. Loading the same artifact twice leaves exactly one
// document per distinct id.
type Loader struct {
	store          artifacts.Store
	sink           core.DocumentSink
	idField        string
	numericColumns []string
	strategy       core.ErrorStrategy
	errorHandler   core.ErrorHandler
	logger         *slog.Logger
}

// LoaderOption is a functional option for Loader.
type LoaderOption func(*Loader)

// WithIDField sets the column used as document id.
func WithIDField(field string) LoaderOption {
	return func(l *Loader) { l.idField = field }
}

// WithLoaderNumericColumns sets the columns decoded as numbers.
func WithLoaderNumericColumns(columns ...string) LoaderOption {
	return func(l *Loader) { l.numericColumns = append([]string(nil), columns...) }
}

// WithErrorStrategy sets how per-document failures are handled.
func WithErrorStrategy(strategy core.ErrorStrategy) LoaderOption {
	return func(l *Loader) { l.strategy = strategy }
}

// WithErrorHandler sets a handler consulted for each per-document failure.
func WithErrorHandler(handler core.ErrorHandler) LoaderOption {
	return func(l *Loader) { l.errorHandler = handler }
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// LoadResult counts the outcome of one load.
type LoadResult struct {
	Indexed  int
	Failed   int
	Collided int     // records whose id was already indexed in this load
	Errors   []error // per-document errors, kept with CollectErrors
	Duration time.Duration
}

// NewLoader creates a loader reading from store and writing to sink. The
// caller owns sink and closes it.
func NewLoader(store artifacts.Store, sink core.DocumentSink, options ...LoaderOption) *Loader {
	l := &Loader{
		store:          store,
		sink:           sink,
		idField:        config.DefaultIDField,
		numericColumns: config.DefaultNumericColumns,
		strategy:       core.SkipErrors,
		logger:         slog.Default(),
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Schema returns the typed decoding used for the cleaned artifact.
func (l *Loader) Schema() core.Schema {
	schema := core.Schema{"date": core.ColumnDate, "time": core.ColumnTime}
	for _, column := range l.numericColumns {
		schema[column] = core.ColumnDecimal
	}
	return schema
}

// Load indexes the cleaned artifact at location. An unreachable sink is a
// *core.SinkUnavailableError and aborts the load. A failure for a single
// document is logged and counted; the remaining documents continue.
func (l *Loader) Load(ctx context.Context, location string) (*LoadResult, error) {
	start := time.Now()

	if err := l.sink.Ping(ctx); err != nil {
		return nil, &StageError{Stage: "load", Op: "ping", Err: err}
	}

	reader, err := l.openArtifact(ctx, location)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	columns := reader.Columns()
	idIndex := -1
	for i, column := range columns {
		if column == l.idField {
			idIndex = i
			break
		}
	}
	if idIndex < 0 {
		l.logger.Warn("id field missing from cleaned artifact, no document can be indexed",
			"id_field", l.idField,
			"location", location,
		)
	}

	result := &LoadResult{}
	seen := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		record, err := reader.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, &StageError{Stage: "load", Op: "read_artifact", Err: err}
		}

		id := documentID(record, idIndex)
		if id == "" {
			docErr := &core.DocumentError{ID: id, Err: core.ErrMissingDocumentID}
			if err := l.handleError(ctx, record, docErr, result); err != nil {
				return result, err
			}
			continue
		}

		if _, dup := seen[id]; dup {
			result.Collided++
			l.logger.Warn("document id repeated in cleaned dataset, last write wins",
				"id", id,
				"id_field", l.idField,
			)
		}
		seen[id] = struct{}{}

		if err := l.sink.Index(ctx, core.NewDocument(id, columns, record)); err != nil {
			if core.IsStageFatal(err) {
				return result, &StageError{Stage: "load", Op: "index", Err: err}
			}
			if err := l.handleError(ctx, record, err, result); err != nil {
				return result, err
			}
			continue
		}
		result.Indexed++
	}

	result.Duration = time.Since(start)
	l.logger.Info("loaded documents",
		"indexed", result.Indexed,
		"failed", result.Failed,
		"collided", result.Collided,
		"duration", result.Duration,
	)
	return result, nil
}

// openArtifact reads Parquet copies by extension and everything else as
// typed CSV.
func (l *Loader) openArtifact(ctx context.Context, location string) (core.DataSource, error) {
	r, err := l.store.Open(ctx, location)
	if err != nil {
		return nil, &StageError{Stage: "load", Op: "open_artifact", Err: err}
	}

	var reader core.DataSource
	if strings.EqualFold(path.Ext(location), ".parquet") {
		reader, err = readers.NewParquetReader(r, readers.WithParquetLocation(location))
	} else {
		reader, err = readers.NewCSVReader(r,
			readers.WithCSVSchema(l.Schema()),
			readers.WithCSVLocation(location),
		)
		if err != nil {
			r.Close()
		}
	}
	if err != nil {
		return nil, &StageError{Stage: "load", Op: "read_artifact", Err: err}
	}
	return reader, nil
}

// handleError applies the loader's error strategy to a per-document failure.
func (l *Loader) handleError(ctx context.Context, record core.Record, err error, result *LoadResult) error {
	result.Failed++
	l.logger.Warn("document not indexed", "error", err)

	switch l.strategy {
	case core.FailFast:
		return &StageError{Stage: "load", Op: "index", Err: err}
	case core.CollectErrors:
		result.Errors = append(result.Errors, err)
	}
	if l.errorHandler != nil {
		if herr := l.errorHandler.HandleError(ctx, record, err); herr != nil {
			return &StageError{Stage: "load", Op: "handle_error", Err: fmt.Errorf("%w (while handling %v)", herr, err)}
		}
	}
	return nil
}

func documentID(record core.Record, idIndex int) string {
	if idIndex < 0 || idIndex >= len(record) || record[idIndex].IsNull() {
		return ""
	}
	return strings.TrimSpace(record[idIndex].String())
}
