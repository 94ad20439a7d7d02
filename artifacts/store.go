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

package artifacts

import (
	"context"
	"fmt"
	"io"

	"github.com/aaronlmathis/salesetl/config"
)

// Package artifacts stores the intermediate flat files handed between stages.
//
// A stage creates an artifact by name and gets back its location, an opaque
// string that the next stage passes to Open. Locations are plain filesystem
// paths for FileStore and s3://bucket/key URIs for S3Store.

// StoreError wraps structured error information for artifact operations.
type StoreError struct {
	Op       string
	Location string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("artifact %s %s: %v", e.Op, e.Location, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Store creates and opens artifacts.
type Store interface {
	// Create returns a writer for the named artifact and the location it will
	// be readable at once the writer is closed successfully.
	Create(ctx context.Context, name string) (io.WriteCloser, string, error)
	// Open returns a reader for a location previously returned by Create.
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Discard abandons a writer returned by Create so that a partially written
// artifact is never published. Writers without an abort path are closed.
func Discard(w io.WriteCloser) error {
	if a, ok := w.(interface{ Abort() error }); ok {
		return a.Abort()
	}
	return w.Close()
}

// New builds the store selected by cfg.
func New(ctx context.Context, cfg config.ArtifactsConfig) (Store, error) {
	switch cfg.Kind {
	case "", "file":
		return NewFileStore(cfg.Dir), nil
	case "s3":
		store, err := NewS3Store(ctx,
			WithS3Bucket(cfg.Bucket),
			WithS3Prefix(cfg.Prefix),
			WithS3Region(cfg.Region),
			WithS3Endpoint(cfg.Endpoint),
			WithS3PathStyle(cfg.PathStyle),
		)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, &StoreError{Op: "new", Location: cfg.Kind, Err: fmt.Errorf("unsupported artifact store kind")}
	}
}
