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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/salesetl/config"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested")
	store := NewFileStore(dir)

	w, location, err := store.Create(ctx, "sales_data_raw.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sales_data_raw.csv"), location)

	_, err = io.WriteString(w, "invoice_id\nINV001\n")
	require.NoError(t, err)

	_, statErr := os.Stat(location)
	assert.True(t, os.IsNotExist(statErr), "artifact must not be visible before Close")

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "second Close is a no-op")

	r, err := store.Open(ctx, location)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "invoice_id\nINV001\n", string(data))
}

func TestFileStoreDiscard(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	w, location, err := store.Create(context.Background(), "sales_data_clean.csv")
	require.NoError(t, err)
	_, err = io.WriteString(w, "partial")
	require.NoError(t, err)

	require.NoError(t, Discard(w))
	require.NoError(t, w.Close(), "Close after Discard is a no-op")

	_, statErr := os.Stat(location)
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file must be removed")
}

func TestFileStoreOpenMissing(t *testing.T) {
	store := NewFileStore(t.TempDir())
	_, err := store.Open(context.Background(), filepath.Join(store.Dir(), "missing.csv"))

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "open", storeErr.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseS3Location(t *testing.T) {
	bucket, key, err := ParseS3Location("s3://sales/etl/sales_data_raw.csv")
	require.NoError(t, err)
	assert.Equal(t, "sales", bucket)
	assert.Equal(t, "etl/sales_data_raw.csv", key)

	for _, bad := range []string{"/tmp/x.csv", "s3://bucket", "s3:///key", "s3://bucket/"} {
		_, _, err := ParseS3Location(bad)
		assert.Error(t, err, bad)
	}
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		io.WriteString(w, body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) object(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[path]
}

func TestS3StoreRoundTrip(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}}
	server := httptest.NewServer(fake)
	defer server.Close()

	ctx := context.Background()
	store, err := NewS3Store(ctx,
		WithS3Bucket("sales"),
		WithS3Prefix("weekly"),
		WithS3Region("ap-southeast-3"),
		WithS3Endpoint(server.URL),
		WithS3PathStyle(true),
		WithS3Credentials(aws.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}),
	)
	require.NoError(t, err)

	w, location, err := store.Create(ctx, "sales_data_clean.csv")
	require.NoError(t, err)
	assert.Equal(t, "s3://sales/weekly/sales_data_clean.csv", location)

	_, err = io.WriteString(w, "invoice_id\nINV001\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, "invoice_id\nINV001\n", fake.object("/sales/weekly/sales_data_clean.csv"))

	r, err := store.Open(ctx, location)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.True(t, strings.HasPrefix(string(data), "invoice_id"))

	_, err = store.Open(ctx, "s3://sales/weekly/missing.csv")
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "get_object", storeErr.Op)
}

func TestNewFromConfig(t *testing.T) {
	store, err := New(context.Background(), config.ArtifactsConfig{Kind: "file", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = New(context.Background(), config.ArtifactsConfig{Kind: "s3"})
	assert.Error(t, err, "s3 without bucket")

	_, err = New(context.Background(), config.ArtifactsConfig{Kind: "ftp"})
	assert.Error(t, err)
}
