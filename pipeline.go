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

// Package salesetl wires the extract, clean and load stages into the weekly
// sales job.
//
// A Pipeline owns the artifact store and the stage configuration. It can run
// the three stages directly with Execute, or hand them to the DAG executor
// with DAG, in which case artifact locations travel through the run's
// handoff store:
//
//	p, err := salesetl.NewPipeline(ctx, cfg, salesetl.WithLogger(logger))
//	if err != nil { return err }
//	d, err := p.DAG()
//	if err != nil { return err }
//	result, err := dag.NewDAGExecutor(dag.WithLogger(logger)).Execute(ctx, d)
package salesetl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aaronlmathis/salesetl/artifacts"
	"github.com/aaronlmathis/salesetl/config"
	"github.com/aaronlmathis/salesetl/core"
	"github.com/aaronlmathis/salesetl/stages"
	"github.com/aaronlmathis/salesetl/writers"
)

// SinkFactory opens the document sink for one load attempt. The loader closes
// what it returns.
type SinkFactory func(ctx context.Context) (core.DocumentSink, error)

// Pipeline runs the three stages against one configuration.
type Pipeline struct {
	cfg       *config.Config
	store     artifacts.Store
	newSink   SinkFactory
	logger    *slog.Logger
	extractor *stages.Extractor
	cleaner   *stages.Cleaner
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used by the pipeline and its stages.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithStore replaces the artifact store built from the configuration.
func WithStore(store artifacts.Store) Option {
	return func(p *Pipeline) { p.store = store }
}

// WithSinkFactory replaces the sink built from the configuration.
func WithSinkFactory(factory SinkFactory) Option {
	return func(p *Pipeline) { p.newSink = factory }
}

// Result summarises a direct run of the three stages.
type Result struct {
	Extract  *stages.ExtractResult
	Clean    *stages.CleanResult
	Load     *stages.LoadResult
	Duration time.Duration
}

// NewPipeline creates a pipeline from cfg. The artifact store is created here
// unless one is supplied with WithStore.
func NewPipeline(ctx context.Context, cfg *config.Config, options ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	p := &Pipeline{cfg: cfg, logger: slog.Default()}
	for _, option := range options {
		option(p)
	}

	if p.store == nil {
		store, err := artifacts.New(ctx, cfg.Artifacts)
		if err != nil {
			return nil, fmt.Errorf("failed to create artifact store: %w", err)
		}
		p.store = store
	}
	if p.newSink == nil {
		p.newSink = NewSinkFactory(cfg.Sink)
	}

	p.extractor = stages.NewExtractor(cfg.Source, p.store,
		stages.WithRawName(cfg.Artifacts.RawName),
		stages.WithExtractorLogger(p.logger),
	)
	p.cleaner = stages.NewCleaner(p.store,
		stages.WithCleanName(cfg.Artifacts.CleanName),
		stages.WithParquetName(cfg.Artifacts.ParquetName),
		stages.WithNullValues(cfg.Cleaner.NullValues...),
		stages.WithNumericColumns(cfg.Cleaner.NumericColumns...),
		stages.WithCleanerLogger(p.logger),
	)
	return p, nil
}

// Config returns the configuration the pipeline was built from.
func (p *Pipeline) Config() *config.Config { return p.cfg }

// Extract copies the source table to the raw artifact.
func (p *Pipeline) Extract(ctx context.Context) (*stages.ExtractResult, error) {
	return p.extractor.Extract(ctx)
}

// Clean cleans the raw artifact at rawLocation.
func (p *Pipeline) Clean(ctx context.Context, rawLocation string) (*stages.CleanResult, error) {
	return p.cleaner.Clean(ctx, rawLocation)
}

// Load indexes the cleaned artifact at cleanLocation into a freshly opened sink.
func (p *Pipeline) Load(ctx context.Context, cleanLocation string) (result *stages.LoadResult, err error) {
	sink, err := p.newSink(ctx)
	if err != nil {
		return nil, &stages.StageError{Stage: "load", Op: "open_sink", Err: err}
	}
	defer func() {
		if closeErr := sink.Close(); closeErr != nil && err == nil {
			err = &stages.StageError{Stage: "load", Op: "close_sink", Err: closeErr}
		}
	}()

	loader := stages.NewLoader(p.store, sink,
		stages.WithIDField(p.cfg.Sink.IDField),
		stages.WithLoaderNumericColumns(p.cfg.Cleaner.NumericColumns...),
		stages.WithLoaderLogger(p.logger),
	)
	return loader.Load(ctx, cleanLocation)
}

// Execute runs extract, clean and load once, passing artifact locations
// directly. The first stage error stops the run.
func (p *Pipeline) Execute(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	extracted, err := p.Extract(ctx)
	if err != nil {
		return result, err
	}
	result.Extract = extracted

	cleaned, err := p.Clean(ctx, extracted.Location)
	if err != nil {
		return result, err
	}
	result.Clean = cleaned

	loaded, err := p.Load(ctx, cleaned.Location)
	if err != nil {
		return result, err
	}
	result.Load = loaded
	result.Duration = time.Since(start)

	p.logger.Info("pipeline finished",
		"rows_extracted", extracted.Rows,
		"rows_cleaned", cleaned.RowsOut,
		"documents_indexed", loaded.Indexed,
		"documents_failed", loaded.Failed,
		"duration", result.Duration,
	)
	return result, nil
}

// NewSinkFactory returns a factory for the sink kind named by cfg.
func NewSinkFactory(cfg config.SinkConfig) SinkFactory {
	return func(ctx context.Context) (core.DocumentSink, error) {
		switch cfg.Kind {
		case "elasticsearch", "":
			options := []writers.ElasticsearchOption{
				writers.WithElasticsearchAddresses(cfg.Addresses...),
				writers.WithElasticsearchIndex(cfg.Index),
				writers.WithElasticsearchTimeout(cfg.Timeout),
			}
			if cfg.Username != "" {
				options = append(options, writers.WithElasticsearchBasicAuth(cfg.Username, cfg.Password))
			}
			if cfg.APIKey != "" {
				options = append(options, writers.WithElasticsearchAPIKey(cfg.APIKey))
			}
			sink, err := writers.NewElasticsearchWriter(options...)
			if err != nil {
				return nil, err
			}
			return sink, nil
		case "jsonl":
			f, err := os.Create(cfg.Output)
			if err != nil {
				return nil, &core.SinkUnavailableError{Op: "create_output", Err: err}
			}
			return writers.NewJSONWriter(f, cfg.Index), nil
		default:
			return nil, fmt.Errorf("unsupported sink kind %q", cfg.Kind)
		}
	}
}
