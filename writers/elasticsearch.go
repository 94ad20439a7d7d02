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

package writers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/aaronlmathis/salesetl/core"
)

// Package writers: this file implements core.DocumentSink for Elasticsearch.
//
// Documents are upserted one by one with the index API under an explicit id,
// so re-running a load replaces documents instead of duplicating them. The
// client's own retries are disabled; retrying a failed load is the
// orchestrator's job.

// ElasticsearchWriterStats holds indexing statistics.
type ElasticsearchWriterStats struct {
	DocumentsIndexed int64
	DocumentsFailed  int64
	RequestDuration  time.Duration
	LastIndexTime    time.Time
}

// ElasticsearchWriterOptions configures the Elasticsearch sink.
type ElasticsearchWriterOptions struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
	Index     string
	Timeout   time.Duration // per request
	Refresh   string        // optional refresh policy: "", "true", "false" or "wait_for"
	Transport http.RoundTripper
}

// ElasticsearchOption is a functional option for ElasticsearchWriter.
type ElasticsearchOption func(*ElasticsearchWriterOptions)

func WithElasticsearchAddresses(addresses ...string) ElasticsearchOption {
	return func(o *ElasticsearchWriterOptions) { o.Addresses = append([]string(nil), addresses...) }
}

func WithElasticsearchBasicAuth(username, password string) ElasticsearchOption {
	return func(o *ElasticsearchWriterOptions) {
		o.Username = username
		o.Password = password
	}
}

func WithElasticsearchAPIKey(apiKey string) ElasticsearchOption {
	return func(o *ElasticsearchWriterOptions) { o.APIKey = apiKey }
}

func WithElasticsearchIndex(index string) ElasticsearchOption {
	return func(o *ElasticsearchWriterOptions) { o.Index = index }
}

func WithElasticsearchTimeout(timeout time.Duration) ElasticsearchOption {
	return func(o *ElasticsearchWriterOptions) { o.Timeout = timeout }
}

func WithElasticsearchRefresh(refresh string) ElasticsearchOption {
	return func(o *ElasticsearchWriterOptions) { o.Refresh = refresh }
}

// WithElasticsearchTransport overrides the HTTP transport.
func WithElasticsearchTransport(rt http.RoundTripper) ElasticsearchOption {
	return func(o *ElasticsearchWriterOptions) { o.Transport = rt }
}

// ElasticsearchWriter implements core.DocumentSink.
type ElasticsearchWriter struct {
	client *elasticsearch.Client
	opts   ElasticsearchWriterOptions
	stats  ElasticsearchWriterStats
	mu     sync.Mutex
}

// NewElasticsearchWriter creates the client. No request is made until Ping or Index.
func NewElasticsearchWriter(options ...ElasticsearchOption) (*ElasticsearchWriter, error) {
	opts := ElasticsearchWriterOptions{
		Addresses: []string{"http://localhost:9200"},
		Timeout:   30 * time.Second,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Index == "" {
		return nil, &core.SinkUnavailableError{Op: "validate", Err: fmt.Errorf("index is required")}
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    opts.Addresses,
		Username:     opts.Username,
		Password:     opts.Password,
		APIKey:       opts.APIKey,
		Transport:    opts.Transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, &core.SinkUnavailableError{Op: "new_client", Err: err}
	}

	return &ElasticsearchWriter{client: client, opts: opts}, nil
}

// IndexName returns the target index name.
func (e *ElasticsearchWriter) IndexName() string { return e.opts.Index }

// Ping checks that the cluster answers. Any failure is a *core.SinkUnavailableError.
func (e *ElasticsearchWriter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return &core.SinkUnavailableError{Op: "ping", Err: err}
	}
	defer drain(res.Body)

	if res.IsError() {
		return &core.SinkUnavailableError{Op: "ping", Err: fmt.Errorf("unexpected status %s", res.Status())}
	}
	return nil
}

// Index upserts doc under doc.ID. Transport failures abort the load with a
// *core.SinkUnavailableError; an error response from the cluster is a
// *core.DocumentError for this document only.
func (e *ElasticsearchWriter) Index(ctx context.Context, doc core.Document) error {
	start := time.Now()

	if doc.ID == "" {
		e.recordFailure(start)
		return &core.DocumentError{ID: doc.ID, Err: core.ErrMissingDocumentID}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		e.recordFailure(start)
		return &core.DocumentError{ID: doc.ID, Err: fmt.Errorf("encode: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	opts := []func(*esapi.IndexRequest){
		// the client joins the id into the request path verbatim
		e.client.Index.WithDocumentID(url.PathEscape(doc.ID)),
		e.client.Index.WithContext(ctx),
	}
	if e.opts.Refresh != "" {
		opts = append(opts, e.client.Index.WithRefresh(e.opts.Refresh))
	}

	res, err := e.client.Index(e.opts.Index, bytes.NewReader(body), opts...)
	if err != nil {
		e.recordFailure(start)
		return &core.SinkUnavailableError{Op: "index", Err: err}
	}
	defer drain(res.Body)

	if res.IsError() {
		e.recordFailure(start)
		return &core.DocumentError{ID: doc.ID, Err: fmt.Errorf("status %s: %s", res.Status(), errorReason(res.Body))}
	}

	e.mu.Lock()
	e.stats.DocumentsIndexed++
	e.stats.RequestDuration += time.Since(start)
	e.stats.LastIndexTime = time.Now()
	e.mu.Unlock()
	return nil
}

// Close implements core.DocumentSink. The client holds no resources beyond idle connections.
func (e *ElasticsearchWriter) Close() error { return nil }

// Stats returns indexing statistics.
func (e *ElasticsearchWriter) Stats() ElasticsearchWriterStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *ElasticsearchWriter) recordFailure(start time.Time) {
	e.mu.Lock()
	e.stats.DocumentsFailed++
	e.stats.RequestDuration += time.Since(start)
	e.mu.Unlock()
}

func errorReason(body io.Reader) string {
	var payload struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error.Reason == "" {
		return string(bytes.TrimSpace(data))
	}
	return payload.Error.Type + ": " + payload.Error.Reason
}

func drain(body io.ReadCloser) {
	if body == nil {
		return
	}
	io.Copy(io.Discard, body)
	body.Close()
}
