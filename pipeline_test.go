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

package salesetl

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aaronlmathis/salesetl/artifacts"
	"github.com/aaronlmathis/salesetl/config"
	"github.com/aaronlmathis/salesetl/core"
	"github.com/aaronlmathis/salesetl/dag"
	"github.com/aaronlmathis/salesetl/dag/tasks"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	path := filepath.Join(dir, "source.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE table_m3 ("Invoice ID" TEXT, "Branch" TEXT, "Quantity" INTEGER, "Rating" TEXT)`)
	require.NoError(t, err)
	for _, row := range [][]interface{}{
		{"INV001", "A", 3, "9.1"},
		{"INV002", "B", nil, "NA"},
		{"INV003", "A", 5, "7.4"},
		{"INV001", "A", 3, "9.1"},
	} {
		_, err = db.Exec(`INSERT INTO table_m3 VALUES (?, ?, ?, ?)`, row...)
		require.NoError(t, err)
	}

	cfg := config.Default()
	cfg.Source = config.SourceConfig{Driver: "sqlite", Database: path, Table: "table_m3"}
	cfg.Artifacts.Dir = filepath.Join(dir, "artifacts")
	cfg.Sink.Kind = "jsonl"
	cfg.Sink.Output = filepath.Join(dir, "documents.jsonl")
	cfg.DAG.RetryDelay = time.Millisecond
	return cfg
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestPipeline_Execute(t *testing.T) {
	cfg := testConfig(t)
	p, err := NewPipeline(context.Background(), cfg, WithLogger(discardLogger()))
	require.NoError(t, err)

	result, err := p.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), result.Extract.Rows)
	assert.Equal(t, 4, result.Clean.RowsIn)
	assert.Equal(t, 3, result.Clean.RowsOut)
	assert.Equal(t, 3, result.Load.Indexed)
	assert.Zero(t, result.Load.Failed)

	lines := readLines(t, cfg.Sink.Output)
	require.Len(t, lines, 3)
	assert.JSONEq(t,
		`{"_index":"supermarket_sales","_id":"INV002","_source":{"invoice_id":"INV002","branch":"B","quantity":4,"rating":8.25}}`,
		lines[1])
}

func TestPipeline_ExecuteIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	sink := newRecordingSink()
	p, err := NewPipeline(context.Background(), cfg,
		WithLogger(discardLogger()),
		WithSinkFactory(func(context.Context) (core.DocumentSink, error) { return sink, nil }),
	)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := p.Execute(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, sink.docs, 3)
	assert.Equal(t, 2, sink.closed)
}

func TestPipeline_DAG(t *testing.T) {
	cfg := testConfig(t)
	p, err := NewPipeline(context.Background(), cfg, WithLogger(discardLogger()))
	require.NoError(t, err)

	d, err := p.DAG()
	require.NoError(t, err)

	order, err := d.GetExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{TaskExtract, TaskClean, TaskLoad}, order)

	for _, task := range d.GetTasks() {
		meta := task.Metadata()
		require.NotNil(t, meta.RetryConfig, task.ID())
		assert.Equal(t, 1, meta.RetryConfig.MaxRetries)
		assert.Equal(t, time.Millisecond, meta.RetryConfig.GetDelay(0))
		assert.Equal(t, config.DefaultOwner, meta.Owner)
	}
	assert.Equal(t, config.DefaultSchedule, d.GetMetadata().Schedule)

	result, err := dag.NewDAGExecutor(dag.WithLogger(discardLogger())).Execute(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, result.Success)

	store := artifacts.NewFileStore(cfg.Artifacts.Dir)
	assert.Equal(t, filepath.Join(store.Dir(), cfg.Artifacts.RawName), result.Handoff[TaskExtract+"/"+KeyRawDataPath])
	assert.Equal(t, filepath.Join(store.Dir(), cfg.Artifacts.CleanName), result.Handoff[TaskClean+"/"+KeyCleanDataPath])
	assert.Equal(t, 3, result.TaskResults[TaskLoad].Output.Summary["indexed"])
	assert.Len(t, readLines(t, cfg.Sink.Output), 3)
}

func TestPipeline_DAGRetriesThenFails(t *testing.T) {
	cfg := testConfig(t)
	opened := 0
	p, err := NewPipeline(context.Background(), cfg,
		WithLogger(discardLogger()),
		WithSinkFactory(func(context.Context) (core.DocumentSink, error) {
			opened++
			return nil, &core.SinkUnavailableError{Op: "ping", Err: errors.New("connection refused")}
		}),
	)
	require.NoError(t, err)

	d, err := p.DAG()
	require.NoError(t, err)

	result, err := dag.NewDAGExecutor(dag.WithLogger(discardLogger())).Execute(context.Background(), d)
	require.Error(t, err)
	assert.False(t, result.Success)

	var sinkErr *core.SinkUnavailableError
	assert.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, 2, opened)
	assert.Equal(t, dag.StatusSuccess, result.TaskResults[TaskClean].Status)
	assert.Equal(t, dag.StatusFailed, result.TaskResults[TaskLoad].Status)
	assert.Equal(t, 2, result.TaskResults[TaskLoad].Attempts)
}

func TestPipeline_CleanTaskWithoutUpstream(t *testing.T) {
	p, err := NewPipeline(context.Background(), testConfig(t), WithLogger(discardLogger()))
	require.NoError(t, err)

	_, err = p.cleanTask(context.Background(), tasks.TaskInput{Handoff: tasks.NewHandoff()})
	assert.ErrorIs(t, err, tasks.ErrHandoffNotFound)
}

func TestNewSinkFactory(t *testing.T) {
	_, err := NewSinkFactory(config.SinkConfig{Kind: "kafka"})(context.Background())
	assert.ErrorContains(t, err, `unsupported sink kind "kafka"`)

	sink, err := NewSinkFactory(config.SinkConfig{Kind: "elasticsearch", Index: "supermarket_sales"})(context.Background())
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	_, err = NewSinkFactory(config.SinkConfig{Kind: "jsonl", Output: filepath.Join(t.TempDir(), "missing", "out.jsonl")})(context.Background())
	var sinkErr *core.SinkUnavailableError
	assert.ErrorAs(t, err, &sinkErr)
}

type recordingSink struct {
	docs   map[string]core.Document
	closed int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{docs: make(map[string]core.Document)}
}

func (s *recordingSink) Ping(ctx context.Context) error { return nil }

func (s *recordingSink) Index(ctx context.Context, doc core.Document) error {
	s.docs[doc.ID] = doc
	return nil
}

func (s *recordingSink) Close() error {
	s.closed++
	return nil
}
