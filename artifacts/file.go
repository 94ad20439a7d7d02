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
	"io"
	"os"
	"path/filepath"
)

// FileStore keeps artifacts in a directory on a filesystem shared by all stages.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the root directory.
func (f *FileStore) Dir() string { return f.dir }

// Create writes to a temporary file that is renamed into place on Close, so a
// reader never observes a partially written artifact.
func (f *FileStore) Create(ctx context.Context, name string) (io.WriteCloser, string, error) {
	location := filepath.Join(f.dir, name)
	if err := ctx.Err(); err != nil {
		return nil, location, &StoreError{Op: "create", Location: location, Err: err}
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, location, &StoreError{Op: "create", Location: location, Err: err}
	}

	tmp, err := os.CreateTemp(f.dir, "."+name+".*")
	if err != nil {
		return nil, location, &StoreError{Op: "create", Location: location, Err: err}
	}
	return &atomicFile{File: tmp, target: location}, location, nil
}

// Open opens a file location for reading.
func (f *FileStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "open", Location: location, Err: err}
	}
	file, err := os.Open(location)
	if err != nil {
		return nil, &StoreError{Op: "open", Location: location, Err: err}
	}
	return file, nil
}

type atomicFile struct {
	*os.File
	target string
	closed bool
}

func (a *atomicFile) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	tmpName := a.File.Name()
	if err := a.File.Close(); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "close", Location: a.target, Err: err}
	}
	if err := os.Rename(tmpName, a.target); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "rename", Location: a.target, Err: err}
	}
	return nil
}

// Abort removes the temporary file without publishing it.
func (a *atomicFile) Abort() error {
	if a.closed {
		return nil
	}
	a.closed = true

	tmpName := a.File.Name()
	a.File.Close()
	return os.Remove(tmpName)
}
