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

// handoff.go - Run-scoped key/value store for passing artifact locations
package tasks

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrHandoffNotFound is returned when no value was published under a key.
	ErrHandoffNotFound = errors.New("handoff value not found")
	// ErrAlreadyPublished is returned when a task publishes the same key twice.
	ErrAlreadyPublished = errors.New("handoff value already published")
)

type handoffKey struct {
	task string
	key  string
}

// Handoff is the per-run key/value store tasks use to pass small values,
// such as artifact locations, downstream. Each (task, key) pair is
// write-once within an attempt.
type Handoff struct {
	mu     sync.RWMutex
	values map[handoffKey]string
}

// NewHandoff creates an empty handoff store.
func NewHandoff() *Handoff {
	return &Handoff{values: make(map[handoffKey]string)}
}

// Publish stores value under key for task.
func (h *Handoff) Publish(task, key, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	k := handoffKey{task: task, key: key}
	if _, exists := h.values[k]; exists {
		return fmt.Errorf("%w: %s/%s", ErrAlreadyPublished, task, key)
	}
	h.values[k] = value
	return nil
}

// Resolve returns the value producingTask published under key.
func (h *Handoff) Resolve(key, producingTask string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	value, ok := h.values[handoffKey{task: producingTask, key: key}]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrHandoffNotFound, producingTask, key)
	}
	return value, nil
}

// Clear drops every value task has published. The executor calls it before
// each attempt so a retry starts from a clean slate.
func (h *Handoff) Clear(task string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for k := range h.values {
		if k.task == task {
			delete(h.values, k)
		}
	}
}

// Entries returns "task/key" -> value for every published value.
func (h *Handoff) Entries() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string, len(h.values))
	for k, v := range h.values {
		out[k.task+"/"+k.key] = v
	}
	return out
}

// Keys returns the sorted "task/key" names of every published value.
func (h *Handoff) Keys() []string {
	entries := h.Entries()
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
