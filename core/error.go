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
	"fmt"
)

// Package core defines the error handling types for SalesETL.
//
// This file contains the stage error taxonomy, error handling strategies, and
// function adapters.

// ConnectionError reports that the relational source could not be reached.
// It is stage-fatal; the orchestrator retries the whole stage.
type ConnectionError struct {
	Target string // Host or DSN description, never including credentials
	Op     string // Operation that failed (e.g., "open", "ping")
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed during %s: %v", e.Target, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SinkUnavailableError reports that the search sink could not be reached.
// It aborts the whole load stage.
type SinkUnavailableError struct {
	Op  string
	Err error
}

func (e *SinkUnavailableError) Error() string {
	return fmt.Sprintf("sink unavailable during %s: %v", e.Op, e.Err)
}

func (e *SinkUnavailableError) Unwrap() error {
	return e.Err
}

// MalformedInputError reports that an intermediate artifact cannot be parsed as
// tabular data. Retrying without intervention will not make it succeed.
type MalformedInputError struct {
	Location string
	Op       string
	Err      error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input %s during %s: %v", e.Location, e.Op, e.Err)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// DocumentError reports a failure to index a single document. It never aborts
// the load stage on its own.
type DocumentError struct {
	ID  string
	Err error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %q: %v", e.ID, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// ErrMissingDocumentID is returned for records without a usable document id.
var ErrMissingDocumentID = errors.New("missing document id")

// IsStageFatal reports whether err must abort the current stage.
// Per-document failures are the only non-fatal class.
func IsStageFatal(err error) bool {
	if err == nil {
		return false
	}
	var docErr *DocumentError
	return !errors.As(err, &docErr)
}

// ErrorHandler defines how errors are handled during processing.
// Custom error handlers can be used to log, collect, or transform errors.
type ErrorHandler interface {
	// HandleError processes an error that occurred while handling a record.
	// Returning a non-nil error will stop the stage; returning nil will continue.
	HandleError(ctx context.Context, record Record, err error) error
}

// ErrorStrategy defines how to handle per-record errors in a stage.
type ErrorStrategy int

const (
	// FailFast stops processing on the first error encountered.
	FailFast ErrorStrategy = iota
	// SkipErrors continues processing, skipping failed records.
	SkipErrors
	// CollectErrors continues processing, collecting all errors for later inspection.
	CollectErrors
)

func (s ErrorStrategy) String() string {
	switch s {
	case FailFast:
		return "fail_fast"
	case SkipErrors:
		return "skip_errors"
	case CollectErrors:
		return "collect_errors"
	default:
		return "unknown"
	}
}

// ErrorHandlerFunc is a function adapter for the ErrorHandler interface.
// Allows ordinary functions to be used as error handlers.
type ErrorHandlerFunc func(ctx context.Context, record Record, err error) error

// HandleError implements the ErrorHandler interface for ErrorHandlerFunc.
func (f ErrorHandlerFunc) HandleError(ctx context.Context, record Record, err error) error {
	return f(ctx, record, err)
}
