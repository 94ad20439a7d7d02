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

package dag

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aaronlmathis/salesetl/dag/tasks"
)

// GetTasks returns all tasks in the DAG
func (d *DAG) GetTasks() map[string]tasks.Task {
	return d.tasks
}

// GetTask returns the task with the given id
func (d *DAG) GetTask(taskID string) (tasks.Task, bool) {
	task, ok := d.tasks[taskID]
	return task, ok
}

// GetDependencies returns the dependencies for a specific task
func (d *DAG) GetDependencies(taskID string) []string {
	if deps, exists := d.dependencies[taskID]; exists {
		return deps
	}
	return []string{}
}

// HasTask checks if a task exists in the DAG
func (d *DAG) HasTask(taskID string) bool {
	_, exists := d.tasks[taskID]
	return exists
}

// GetDownstreamTasks returns all tasks that depend on this task, in insertion order
func (d *DAG) GetDownstreamTasks(taskID string) []string {
	var downstream []string
	for _, id := range d.order {
		for _, dep := range d.dependencies[id] {
			if dep == taskID {
				downstream = append(downstream, id)
				break
			}
		}
	}
	return downstream
}

// GetMetadata returns the DAG's metadata
func (d *DAG) GetMetadata() DAGMetadata {
	return d.metadata
}

// GetID returns the DAG's unique identifier
func (d *DAG) GetID() string {
	return d.id
}

// GetName returns the DAG's name
func (d *DAG) GetName() string {
	return d.name
}

// GetDefaultTimeout returns the default timeout for tasks
func (d *DAG) GetDefaultTimeout() time.Duration {
	return d.metadata.DefaultTimeout
}

// Describe returns a human-readable DAG structure for logs
func (d *DAG) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "DAG: %s (%s)", d.name, d.id)
	if d.metadata.Description != "" {
		fmt.Fprintf(&b, " - %s", d.metadata.Description)
	}
	b.WriteByte('\n')
	if d.metadata.Schedule != "" {
		fmt.Fprintf(&b, "  Schedule: %s\n", d.metadata.Schedule)
	}
	if d.metadata.Owner != "" {
		fmt.Fprintf(&b, "  Owner: %s\n", d.metadata.Owner)
	}

	order := d.getExecutionOrderSafe()
	fmt.Fprintf(&b, "  Tasks: %d, max depth: %d\n", len(d.tasks), d.calculateMaxDepth())
	for _, id := range order {
		metadata := d.tasks[id].Metadata()
		fmt.Fprintf(&b, "  %s [%s]\n", id, metadata.TaskType)
		if deps := d.GetDependencies(id); len(deps) > 0 {
			fmt.Fprintf(&b, "    depends on: %v\n", deps)
		}
		if metadata.RetryConfig != nil {
			fmt.Fprintf(&b, "    retries: %d\n", metadata.RetryConfig.MaxRetries)
		}
	}
	return b.String()
}

// ValidateDAGStructure performs comprehensive DAG validation
func (d *DAG) ValidateDAGStructure() []error {
	var errs []error

	for _, taskID := range d.order {
		for _, dep := range d.dependencies[taskID] {
			if !d.HasTask(dep) {
				errs = append(errs, fmt.Errorf("task %s depends on non-existent task %s", taskID, dep))
			}
		}
	}

	// Check for orphaned tasks (no dependencies and no dependents)
	for _, taskID := range d.order {
		if len(d.GetDependencies(taskID)) == 0 && len(d.GetDownstreamTasks(taskID)) == 0 && len(d.tasks) > 1 {
			errs = append(errs, fmt.Errorf("task %s appears to be orphaned (no connections)", taskID))
		}
	}

	if d.hasCycle() {
		errs = append(errs, fmt.Errorf("DAG contains cycles"))
	}

	for _, taskID := range d.order {
		metadata := d.tasks[taskID].Metadata()
		if metadata.Timeout < 0 {
			errs = append(errs, fmt.Errorf("task %s has invalid negative timeout", taskID))
		}
		if metadata.RetryConfig != nil && metadata.RetryConfig.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("task %s has invalid negative retry count", taskID))
		}
	}

	return errs
}

// GetExecutionOrder returns tasks in topological execution order
func (d *DAG) GetExecutionOrder() ([]string, error) {
	return d.topologicalSort()
}

// getExecutionOrderSafe returns execution order or empty slice if cycles exist
func (d *DAG) getExecutionOrderSafe() []string {
	if order, err := d.GetExecutionOrder(); err == nil {
		return order
	}
	return []string{}
}

func (d *DAG) hasCycle() bool {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, taskID := range d.order {
		if !visited[taskID] {
			if d.dfsHasCycle(taskID, visited, recStack) {
				return true
			}
		}
	}
	return false
}

func (d *DAG) dfsHasCycle(taskID string, visited, recStack map[string]bool) bool {
	visited[taskID] = true
	recStack[taskID] = true

	for _, dep := range d.dependencies[taskID] {
		if !visited[dep] {
			if d.dfsHasCycle(dep, visited, recStack) {
				return true
			}
		} else if recStack[dep] {
			return true
		}
	}

	recStack[taskID] = false
	return false
}

func (d *DAG) calculateMaxDepth() int {
	depths := make(map[string]int)

	var calculateDepth func(taskID string) int
	calculateDepth = func(taskID string) int {
		if depth, exists := depths[taskID]; exists {
			return depth
		}

		maxDepth := 0
		for _, dep := range d.GetDependencies(taskID) {
			if depDepth := calculateDepth(dep); depDepth > maxDepth {
				maxDepth = depDepth
			}
		}

		depths[taskID] = maxDepth + 1
		return depths[taskID]
	}

	if d.hasCycle() {
		return 0
	}

	maxOverall := 0
	for _, taskID := range d.order {
		if depth := calculateDepth(taskID); depth > maxOverall {
			maxOverall = depth
		}
	}
	return maxOverall
}

// topologicalSort performs Kahn's algorithm. Ready tasks are taken in
// insertion order so the execution order is stable across runs.
func (d *DAG) topologicalSort() ([]string, error) {
	position := make(map[string]int, len(d.order))
	inDegree := make(map[string]int, len(d.order))
	for i, taskID := range d.order {
		position[taskID] = i
		inDegree[taskID] = len(d.dependencies[taskID])
	}

	var queue []string
	for _, taskID := range d.order {
		if inDegree[taskID] == 0 {
			queue = append(queue, taskID)
		}
	}

	var result []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		var ready []string
		for _, taskID := range d.GetDownstreamTasks(current) {
			inDegree[taskID]--
			if inDegree[taskID] == 0 {
				ready = append(ready, taskID)
			}
		}
		queue = append(queue, ready...)
		sort.SliceStable(queue, func(a, b int) bool { return position[queue[a]] < position[queue[b]] })
	}

	if len(result) != len(d.tasks) {
		return nil, fmt.Errorf("DAG contains cycles")
	}
	return result, nil
}
