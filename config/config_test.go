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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
source:
  database: airflow
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultSchedule, cfg.DAG.Schedule)
	assert.Equal(t, "Asia/Jakarta", cfg.DAG.Timezone)
	assert.Equal(t, 1, cfg.DAG.MaxRetries())
	assert.Equal(t, 5*time.Minute, cfg.DAG.RetryDelay)
	assert.Equal(t, "postgres", cfg.Source.Driver)
	assert.Equal(t, 5432, cfg.Source.Port)
	assert.Equal(t, "disable", cfg.Source.SSLMode)
	assert.Equal(t, "file", cfg.Artifacts.Kind)
	assert.Equal(t, DefaultRawName, cfg.Artifacts.RawName)
	assert.Equal(t, DefaultCleanName, cfg.Artifacts.CleanName)
	assert.Equal(t, DefaultNumericColumns, cfg.Cleaner.NumericColumns)
	assert.Contains(t, cfg.Cleaner.NullValues, "")
	assert.Equal(t, "supermarket_sales", cfg.Sink.Index)
	assert.Equal(t, "invoice_id", cfg.Sink.IDField)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Sink.Addresses)
	assert.Equal(t, "none", cfg.RunLog.Kind)
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("SALESETL_TEST_PASSWORD", "s3cret")

	cfg, err := Parse([]byte(`
dag:
  retries: 0
  retry_delay: 90s
source:
  driver: mysql
  database: sales
  password: ${SALESETL_TEST_PASSWORD}
`))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Source.Password)
	assert.Equal(t, 3306, cfg.Source.Port)
	assert.Equal(t, 0, cfg.DAG.MaxRetries(), "explicit zero retries is kept")
	assert.Equal(t, 90*time.Second, cfg.DAG.RetryDelay)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		message string
	}{
		{
			name:    "unknown driver",
			yaml:    "source: {driver: oracle, database: x}",
			message: `source.driver "oracle" is not supported`,
		},
		{
			name:    "s3 without bucket",
			yaml:    "source: {database: x}\nartifacts: {kind: s3}",
			message: "artifacts.bucket is required",
		},
		{
			name:    "jsonl without output",
			yaml:    "source: {database: x}\nsink: {kind: jsonl}",
			message: "sink.output is required",
		},
		{
			name:    "bad timezone",
			yaml:    "source: {database: x}\ndag: {timezone: Mars/Olympus}",
			message: "dag.timezone",
		},
		{
			name:    "same artifact names",
			yaml:    "source: {database: x}\nartifacts: {raw_name: a.csv, clean_name: a.csv}",
			message: "must differ",
		},
		{
			name:    "unknown field",
			yaml:    "source: {database: x, tabel: typo}",
			message: "field tabel not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)

			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salesetl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source:\n  driver: sqlite\n  database: sales.db\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Source.Driver)
	assert.Empty(t, cfg.Source.Host)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "read", cfgErr.Op)
}

func TestLoadExampleConfig(t *testing.T) {
	t.Setenv("SALESETL_DB_HOST", "db.internal")
	t.Setenv("SALESETL_DB_USER", "etl")
	t.Setenv("SALESETL_DB_PASSWORD", "secret")

	cfg, err := Load(filepath.Join("..", "salesetl.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Source.Host)
	assert.Equal(t, "secret", cfg.Source.Password)
	assert.Equal(t, 5*time.Minute, cfg.DAG.RetryDelay)
	assert.Equal(t, 1, cfg.DAG.MaxRetries())
	assert.Equal(t, "sales_data_clean.parquet", cfg.Artifacts.ParquetName)
	assert.Equal(t, "json", cfg.Log.Format)
}
