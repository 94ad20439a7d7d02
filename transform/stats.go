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

package transform

import (
	"fmt"
	"sort"
)

// StepError wraps a failure inside a cleaning step.
type StepError struct {
	Step   string
	Column string
	Err    error
}

func (e *StepError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("transform %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("transform %s on column %s: %v", e.Step, e.Column, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Stats summarises what a cleaning run changed. The zero value is ready to use
// and a nil *Stats discards everything.
type Stats struct {
	InputRows         int
	OutputRows        int
	DuplicatesRemoved int
	Renamed           map[string]string   // original name -> normalized name
	Nulled            map[string]int      // values degraded to null by coercion
	MedianFilled      map[string]int      // nulls replaced by the median
	ModeFilled        map[string]int      // nulls replaced by the mode
	Skipped           map[string][]string // step -> columns left unfilled
	StepRows          map[string]int      // step -> rows after the step
}

func (s *Stats) addDuplicate() {
	if s == nil {
		return
	}
	s.DuplicatesRemoved++
}

func (s *Stats) addRename(from, to string) {
	if s == nil {
		return
	}
	if s.Renamed == nil {
		s.Renamed = make(map[string]string)
	}
	s.Renamed[from] = to
}

func (s *Stats) addNulled(column string) {
	if s == nil {
		return
	}
	if s.Nulled == nil {
		s.Nulled = make(map[string]int)
	}
	s.Nulled[column]++
}

func (s *Stats) addMedianFilled(column string) {
	if s == nil {
		return
	}
	if s.MedianFilled == nil {
		s.MedianFilled = make(map[string]int)
	}
	s.MedianFilled[column]++
}

func (s *Stats) addModeFilled(column string) {
	if s == nil {
		return
	}
	if s.ModeFilled == nil {
		s.ModeFilled = make(map[string]int)
	}
	s.ModeFilled[column]++
}

func (s *Stats) addSkipped(step, column string) {
	if s == nil {
		return
	}
	if s.Skipped == nil {
		s.Skipped = make(map[string][]string)
	}
	s.Skipped[step] = append(s.Skipped[step], column)
}

func (s *Stats) addStepRows(step string, rows int) {
	if s == nil {
		return
	}
	if s.StepRows == nil {
		s.StepRows = make(map[string]int)
	}
	s.StepRows[step] = rows
}

// SkippedColumns returns every column a fill step left untouched, sorted.
func (s *Stats) SkippedColumns() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, columns := range s.Skipped {
		for _, c := range columns {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}
