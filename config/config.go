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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Package config loads the SalesETL job configuration.
//
// Configuration is read from a YAML file. ${VAR} references are expanded from
// the environment before decoding so that credentials never need to live in
// the file itself. Every zero field is filled by withDefaults.

// ConfigError wraps structured error information for configuration loading.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Default values.
const (
	DefaultDAGID        = "sales_etl"
	DefaultOwner        = "data-engineering"
	DefaultSchedule     = "10,20,30 9 * * 6"
	DefaultTimezone     = "Asia/Jakarta"
	DefaultRetries      = 1
	DefaultRetryDelay   = 5 * time.Minute
	DefaultTable        = "table_m3"
	DefaultRawName      = "sales_data_raw.csv"
	DefaultCleanName    = "sales_data_clean.csv"
	DefaultIndex        = "supermarket_sales"
	DefaultIDField      = "invoice_id"
	DefaultArtifactsDir = "/tmp/salesetl"
)

// DefaultNumericColumns is the fixed set of columns coerced to decimals.
var DefaultNumericColumns = []string{
	"unit_price",
	"quantity",
	"tax_5pct",
	"sales",
	"cogs",
	"gross_margin_percentage",
	"gross_income",
	"rating",
}

// DefaultNullValues are the flat-file tokens read as null.
var DefaultNullValues = []string{
	"", "NA", "N/A", "n/a", "NaN", "nan", "-NaN", "null", "NULL", "None", "#N/A", "<NA>",
}

// Config is the complete job configuration.
type Config struct {
	DAG       DAGConfig       `yaml:"dag"`
	Source    SourceConfig    `yaml:"source"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Cleaner   CleanerConfig   `yaml:"cleaner"`
	Sink      SinkConfig      `yaml:"sink"`
	RunLog    RunLogConfig    `yaml:"runlog"`
	Log       LogConfig       `yaml:"log"`
}

// DAGConfig describes the scheduling surface of the job.
type DAGConfig struct {
	ID          string        `yaml:"id"`
	Description string        `yaml:"description"`
	Owner       string        `yaml:"owner"`
	Tags        []string      `yaml:"tags"`
	Schedule    string        `yaml:"schedule"`
	Timezone    string        `yaml:"timezone"`
	Retries     *int          `yaml:"retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// MaxRetries returns the configured retry count.
func (d DAGConfig) MaxRetries() int {
	if d.Retries == nil {
		return DefaultRetries
	}
	return *d.Retries
}

// Location loads the configured timezone.
func (d DAGConfig) Location() (*time.Location, error) {
	return time.LoadLocation(d.Timezone)
}

// SourceConfig describes the relational source table.
type SourceConfig struct {
	Driver         string        `yaml:"driver"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	Database       string        `yaml:"database"`
	SSLMode        string        `yaml:"sslmode"`
	Table          string        `yaml:"table"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`
}

// ArtifactsConfig describes where intermediate flat files live.
type ArtifactsConfig struct {
	Kind        string `yaml:"kind"` // file or s3
	Dir         string `yaml:"dir"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	PathStyle   bool   `yaml:"path_style"`
	RawName     string `yaml:"raw_name"`
	CleanName   string `yaml:"clean_name"`
	ParquetName string `yaml:"parquet_name"` // empty disables the Parquet copy
}

// CleanerConfig tunes the cleaning steps.
type CleanerConfig struct {
	NumericColumns []string `yaml:"numeric_columns"`
	NullValues     []string `yaml:"null_values"`
}

// SinkConfig describes the document-search sink.
type SinkConfig struct {
	Kind      string        `yaml:"kind"` // elasticsearch or jsonl
	Addresses []string      `yaml:"addresses"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	APIKey    string        `yaml:"api_key"`
	Index     string        `yaml:"index"`
	IDField   string        `yaml:"id_field"`
	Output    string        `yaml:"output"` // jsonl only
	Timeout   time.Duration `yaml:"timeout"`
}

// RunLogConfig selects where run history is recorded.
type RunLogConfig struct {
	Kind       string `yaml:"kind"` // none, sqlite or mongo
	Path       string `yaml:"path"`
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// Load reads, expands, decodes and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Op: "read", Err: err}
	}
	return Parse(data)
}

// Parse decodes YAML configuration data.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Op: "decode", Err: err}
	}

	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.withDefaults()
	return &cfg
}

func (c *Config) withDefaults() {
	if c.DAG.ID == "" {
		c.DAG.ID = DefaultDAGID
	}
	if c.DAG.Owner == "" {
		c.DAG.Owner = DefaultOwner
	}
	if c.DAG.Schedule == "" {
		c.DAG.Schedule = DefaultSchedule
	}
	if c.DAG.Timezone == "" {
		c.DAG.Timezone = DefaultTimezone
	}
	if c.DAG.Retries == nil {
		retries := DefaultRetries
		c.DAG.Retries = &retries
	}
	if c.DAG.RetryDelay == 0 {
		c.DAG.RetryDelay = DefaultRetryDelay
	}

	if c.Source.Driver == "" {
		c.Source.Driver = "postgres"
	}
	if c.Source.Port == 0 {
		switch c.Source.Driver {
		case "postgres":
			c.Source.Port = 5432
		case "mysql":
			c.Source.Port = 3306
		}
	}
	if c.Source.Host == "" && c.Source.Driver != "sqlite" {
		c.Source.Host = "localhost"
	}
	if c.Source.SSLMode == "" && c.Source.Driver == "postgres" {
		c.Source.SSLMode = "disable"
	}
	if c.Source.Table == "" {
		c.Source.Table = DefaultTable
	}
	if c.Source.ConnectTimeout == 0 {
		c.Source.ConnectTimeout = 30 * time.Second
	}
	if c.Source.QueryTimeout == 0 {
		c.Source.QueryTimeout = 10 * time.Minute
	}

	if c.Artifacts.Kind == "" {
		c.Artifacts.Kind = "file"
	}
	if c.Artifacts.Dir == "" && c.Artifacts.Kind == "file" {
		c.Artifacts.Dir = DefaultArtifactsDir
	}
	if c.Artifacts.RawName == "" {
		c.Artifacts.RawName = DefaultRawName
	}
	if c.Artifacts.CleanName == "" {
		c.Artifacts.CleanName = DefaultCleanName
	}

	if len(c.Cleaner.NumericColumns) == 0 {
		c.Cleaner.NumericColumns = append([]string(nil), DefaultNumericColumns...)
	}
	if c.Cleaner.NullValues == nil {
		c.Cleaner.NullValues = append([]string(nil), DefaultNullValues...)
	}

	if c.Sink.Kind == "" {
		c.Sink.Kind = "elasticsearch"
	}
	if len(c.Sink.Addresses) == 0 && c.Sink.Kind == "elasticsearch" {
		c.Sink.Addresses = []string{"http://localhost:9200"}
	}
	if c.Sink.Index == "" {
		c.Sink.Index = DefaultIndex
	}
	if c.Sink.IDField == "" {
		c.Sink.IDField = DefaultIDField
	}
	if c.Sink.Timeout == 0 {
		c.Sink.Timeout = 30 * time.Second
	}

	if c.RunLog.Kind == "" {
		c.RunLog.Kind = "none"
	}
	if c.RunLog.Database == "" {
		c.RunLog.Database = "salesetl"
	}
	if c.RunLog.Collection == "" {
		c.RunLog.Collection = "dag_runs"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.DAG.MaxRetries() < 0 {
		add("dag.retries must not be negative")
	}
	if c.DAG.RetryDelay < 0 {
		add("dag.retry_delay must not be negative")
	}
	if _, err := c.DAG.Location(); err != nil {
		add("dag.timezone: %v", err)
	}

	switch c.Source.Driver {
	case "postgres", "mysql":
		if c.Source.Database == "" {
			add("source.database is required for driver %s", c.Source.Driver)
		}
	case "sqlite":
		if c.Source.Database == "" {
			add("source.database (file path) is required for driver sqlite")
		}
	default:
		add("source.driver %q is not supported", c.Source.Driver)
	}

	switch c.Artifacts.Kind {
	case "file":
	case "s3":
		if c.Artifacts.Bucket == "" {
			add("artifacts.bucket is required for kind s3")
		}
	default:
		add("artifacts.kind %q is not supported", c.Artifacts.Kind)
	}
	if c.Artifacts.RawName == c.Artifacts.CleanName {
		add("artifacts.raw_name and artifacts.clean_name must differ")
	}

	switch c.Sink.Kind {
	case "elasticsearch":
	case "jsonl":
		if c.Sink.Output == "" {
			add("sink.output is required for kind jsonl")
		}
	default:
		add("sink.kind %q is not supported", c.Sink.Kind)
	}

	switch c.RunLog.Kind {
	case "none":
	case "sqlite":
		if c.RunLog.Path == "" {
			add("runlog.path is required for kind sqlite")
		}
	case "mongo":
		if c.RunLog.URI == "" {
			add("runlog.uri is required for kind mongo")
		}
	default:
		add("runlog.kind %q is not supported", c.RunLog.Kind)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		add("log.format %q is not supported", c.Log.Format)
	}

	if len(problems) > 0 {
		return &ConfigError{Op: "validate", Err: errors.New(strings.Join(problems, "; "))}
	}
	return nil
}
