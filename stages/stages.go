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

// Package stages implements the three SalesETL stages: Extractor, Cleaner
// and Loader. Each stage is independently invocable; stages share data only
// through artifact locations returned by the previous stage.
package stages

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aaronlmathis/salesetl/core"
)

// StageError wraps a stage-fatal error with the stage and operation it came from.
type StageError struct {
	Stage string
	Op    string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage %s: %v", e.Stage, e.Op, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// copyRecords streams every record of src into sink and flushes it.
func copyRecords(ctx context.Context, src core.DataSource, sink core.DataSink) (int64, error) {
	var n int64
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}

		record, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}
		if err := sink.Write(ctx, record); err != nil {
			return n, err
		}
		n++
	}
	return n, sink.Flush()
}
