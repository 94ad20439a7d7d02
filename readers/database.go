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

package readers

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"math"
	"net"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aaronlmathis/salesetl/config"
	"github.com/aaronlmathis/salesetl/core"
)

// Package readers provides implementations of core.DataSource for reading data from various sources.
//
// This file implements the relational table reader used by the extract stage.
// It runs an unconditional full-table scan and streams rows as core.Records,
// converting driver values into core.Values.

// DatabaseReaderError provides structured error information for database reader operations
type DatabaseReaderError struct {
	Op  string // Operation that failed (e.g., "query", "scan", "read")
	Err error  // Underlying error
}

func (e *DatabaseReaderError) Error() string {
	return fmt.Sprintf("database reader %s: %v", e.Op, e.Err)
}

func (e *DatabaseReaderError) Unwrap() error {
	return e.Err
}

// DatabaseReaderStats holds statistics about the database reader's performance
type DatabaseReaderStats struct {
	RecordsRead     int64
	QueryDuration   time.Duration
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
	ConnectionTime  time.Duration
}

// DatabaseReaderOptions configures the database reader
type DatabaseReaderOptions struct {
	Driver          string        // database/sql driver name: postgres, mysql or sqlite
	DSN             string        // Driver-specific connection string
	Target          string        // Credential-free description of the source, used in errors
	Table           string        // Table to scan, optionally schema-qualified
	ConnMaxLifetime time.Duration // Maximum connection lifetime
	MaxOpenConns    int           // Maximum open connections
	ConnectTimeout  time.Duration // Timeout for the initial ping
	QueryTimeout    time.Duration // Timeout for the whole scan
}

// DatabaseReaderOption represents a configuration function for DatabaseReaderOptions
type DatabaseReaderOption func(*DatabaseReaderOptions)

// WithDatabaseDriver sets the database/sql driver name.
func WithDatabaseDriver(driver string) DatabaseReaderOption {
	return func(opts *DatabaseReaderOptions) {
		opts.Driver = driver
	}
}

// WithDatabaseDSN sets the connection string and a credential-free target description.
func WithDatabaseDSN(dsn, target string) DatabaseReaderOption {
	return func(opts *DatabaseReaderOptions) {
		opts.DSN = dsn
		opts.Target = target
	}
}

// WithDatabaseTable sets the table to scan.
func WithDatabaseTable(table string) DatabaseReaderOption {
	return func(opts *DatabaseReaderOptions) {
		opts.Table = table
	}
}

// WithDatabaseConnectTimeout bounds the initial connection check.
func WithDatabaseConnectTimeout(timeout time.Duration) DatabaseReaderOption {
	return func(opts *DatabaseReaderOptions) {
		opts.ConnectTimeout = timeout
	}
}

// WithDatabaseQueryTimeout bounds the full scan.
func WithDatabaseQueryTimeout(timeout time.Duration) DatabaseReaderOption {
	return func(opts *DatabaseReaderOptions) {
		opts.QueryTimeout = timeout
	}
}

// WithDatabaseConnectionPool configures the connection pool.
func WithDatabaseConnectionPool(maxOpen int, lifetime time.Duration) DatabaseReaderOption {
	return func(opts *DatabaseReaderOptions) {
		opts.MaxOpenConns = maxOpen
		opts.ConnMaxLifetime = lifetime
	}
}

// WithSourceConfig applies a complete source configuration.
func WithSourceConfig(cfg config.SourceConfig) DatabaseReaderOption {
	return func(opts *DatabaseReaderOptions) {
		opts.Driver = cfg.Driver
		opts.DSN = BuildDSN(cfg)
		opts.Target = describeTarget(cfg)
		opts.Table = cfg.Table
		if cfg.ConnectTimeout > 0 {
			opts.ConnectTimeout = cfg.ConnectTimeout
		}
		if cfg.QueryTimeout > 0 {
			opts.QueryTimeout = cfg.QueryTimeout
		}
	}
}

// BuildDSN renders the driver-specific connection string for cfg.
func BuildDSN(cfg config.SourceConfig) string {
	switch cfg.Driver {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.DBName = cfg.Database
		mc.ParseTime = true
		mc.Timeout = cfg.ConnectTimeout
		return mc.FormatDSN()
	case "sqlite":
		return cfg.Database
	default:
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Path:   "/" + cfg.Database,
		}
		if cfg.User != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		}
		q := url.Values{}
		if cfg.SSLMode != "" {
			q.Set("sslmode", cfg.SSLMode)
		}
		if cfg.ConnectTimeout > 0 {
			q.Set("connect_timeout", strconv.Itoa(int(math.Ceil(cfg.ConnectTimeout.Seconds()))))
		}
		u.RawQuery = q.Encode()
		return u.String()
	}
}

func describeTarget(cfg config.SourceConfig) string {
	if cfg.Driver == "sqlite" {
		return "sqlite:" + cfg.Database
	}
	return fmt.Sprintf("%s://%s/%s", cfg.Driver, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), cfg.Database)
}

var identifierPart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// QuoteTable validates a (optionally schema-qualified) table name and quotes
// it for the given driver.
func QuoteTable(driver, table string) (string, error) {
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", table)
	}

	quote := `"`
	if driver == "mysql" {
		quote = "`"
	}

	quoted := make([]string, len(parts))
	for i, part := range parts {
		if !identifierPart.MatchString(part) || len(part) > 63 {
			return "", fmt.Errorf("invalid table name %q", table)
		}
		quoted[i] = quote + part + quote
	}
	return strings.Join(quoted, "."), nil
}

// DatabaseReader implements core.DataSource for a full scan of one relational table.
type DatabaseReader struct {
	mu          sync.Mutex
	db          *sql.DB
	rows        *sql.Rows
	cancel      context.CancelFunc
	columnNames []string
	columnTypes []*sql.ColumnType
	scanBuffer  []interface{}
	values      []interface{}
	stats       DatabaseReaderStats
	opts        *DatabaseReaderOptions
	isFinished  bool
}

// NewDatabaseReader connects to the source and starts the table scan.
// An unreachable source yields a *core.ConnectionError.
func NewDatabaseReader(ctx context.Context, options ...DatabaseReaderOption) (*DatabaseReader, error) {
	opts := (&DatabaseReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	if opts.Driver == "" {
		return nil, &DatabaseReaderError{Op: "validate", Err: fmt.Errorf("driver is required")}
	}
	if opts.DSN == "" {
		return nil, &DatabaseReaderError{Op: "validate", Err: fmt.Errorf("dsn is required")}
	}
	if opts.Target == "" {
		opts.Target = opts.Driver
	}
	table, err := QuoteTable(opts.Driver, opts.Table)
	if err != nil {
		return nil, &DatabaseReaderError{Op: "validate", Err: err}
	}

	startTime := time.Now()
	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, &core.ConnectionError{Target: opts.Target, Op: "open", Err: err}
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		db.Close()
		return nil, &core.ConnectionError{Target: opts.Target, Op: "ping", Err: err}
	}

	reader := &DatabaseReader{
		db:   db,
		opts: opts,
		stats: DatabaseReaderStats{
			NullValueCounts: make(map[string]int64),
			ConnectionTime:  time.Since(startTime),
		},
	}

	if err := reader.executeQuery(ctx, "SELECT * FROM "+table); err != nil {
		reader.Close()
		return nil, err
	}

	return reader, nil
}

func (opts *DatabaseReaderOptions) withDefaults() *DatabaseReaderOptions {
	result := &DatabaseReaderOptions{}
	if opts != nil {
		*result = *opts
	}

	if result.ConnectTimeout <= 0 {
		result.ConnectTimeout = 30 * time.Second
	}
	if result.QueryTimeout <= 0 {
		result.QueryTimeout = 10 * time.Minute
	}
	if result.ConnMaxLifetime <= 0 {
		result.ConnMaxLifetime = 5 * time.Minute
	}
	if result.MaxOpenConns <= 0 {
		result.MaxOpenConns = 2
	}

	return result
}

// executeQuery runs the scan. The query context lives until Close because
// cancelling it would also close the open result set.
func (d *DatabaseReader) executeQuery(ctx context.Context, query string) error {
	startTime := time.Now()

	queryCtx, cancel := context.WithTimeout(ctx, d.opts.QueryTimeout)
	d.cancel = cancel

	rows, err := d.db.QueryContext(queryCtx, query)
	if err != nil {
		return &DatabaseReaderError{Op: "query", Err: err}
	}
	d.rows = rows
	d.stats.QueryDuration = time.Since(startTime)

	columnNames, err := rows.Columns()
	if err != nil {
		return &DatabaseReaderError{Op: "columns", Err: err}
	}
	d.columnNames = columnNames

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return &DatabaseReaderError{Op: "column_types", Err: err}
	}
	d.columnTypes = columnTypes

	d.scanBuffer = make([]interface{}, len(columnNames))
	d.values = make([]interface{}, len(columnNames))
	for i := range d.scanBuffer {
		d.scanBuffer[i] = &d.values[i]
	}

	return nil
}

// Columns returns the column names in the order the source returned them.
func (d *DatabaseReader) Columns() []string {
	return append([]string(nil), d.columnNames...)
}

// Read implements the core.DataSource interface.
func (d *DatabaseReader) Read(ctx context.Context) (core.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	startTime := time.Now()
	defer func() {
		d.stats.ReadDuration += time.Since(startTime)
		d.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &DatabaseReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if d.db == nil {
		return nil, &DatabaseReaderError{Op: "read", Err: fmt.Errorf("reader is closed")}
	}
	if d.isFinished || d.rows == nil {
		return nil, io.EOF
	}

	if !d.rows.Next() {
		if err := d.rows.Err(); err != nil {
			return nil, &DatabaseReaderError{Op: "read", Err: err}
		}
		d.isFinished = true
		return nil, io.EOF
	}

	if err := d.rows.Scan(d.scanBuffer...); err != nil {
		return nil, &DatabaseReaderError{Op: "scan", Err: err}
	}

	record := d.convertRowToRecord()
	d.stats.RecordsRead++

	return record, nil
}

// Close releases the result set and the connection pool. Safe to call more than once.
func (d *DatabaseReader) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error

	if d.rows != nil {
		if err := d.rows.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing rows: %w", err))
		}
		d.rows = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
		d.db = nil
	}

	if len(errs) > 0 {
		return &DatabaseReaderError{Op: "close", Err: fmt.Errorf("multiple errors: %v", errs)}
	}
	return nil
}

// Stats returns a copy of the reader statistics.
func (d *DatabaseReader) Stats() DatabaseReaderStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	statsCopy := d.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(d.stats.NullValueCounts))
	for k, v := range d.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Schema returns the database type name of every column.
func (d *DatabaseReader) Schema() map[string]string {
	schema := make(map[string]string)
	for i, name := range d.columnNames {
		if i < len(d.columnTypes) {
			schema[name] = d.columnTypes[i].DatabaseTypeName()
		}
	}
	return schema
}

func (d *DatabaseReader) convertRowToRecord() core.Record {
	record := make(core.Record, len(d.columnNames))
	for i, columnName := range d.columnNames {
		value := ConvertSQLValue(d.values[i], d.columnTypes[i].DatabaseTypeName())
		if value.IsNull() {
			d.stats.NullValueCounts[columnName]++
		}
		record[i] = value
	}
	return record
}

var numericTypeNames = map[string]bool{
	"NUMERIC": true, "DECIMAL": true, "UNSIGNED DECIMAL": true,
	"INT": true, "INT2": true, "INT4": true, "INT8": true, "INTEGER": true,
	"BIGINT": true, "SMALLINT": true, "TINYINT": true, "MEDIUMINT": true,
	"FLOAT": true, "FLOAT4": true, "FLOAT8": true, "DOUBLE": true, "REAL": true,
	"UNSIGNED INT": true, "UNSIGNED BIGINT": true, "UNSIGNED SMALLINT": true, "UNSIGNED TINYINT": true,
}

// ConvertSQLValue converts a scanned driver value into a core.Value.
// dbType is the driver's DatabaseTypeName for the column.
func ConvertSQLValue(value interface{}, dbType string) core.Value {
	if value == nil {
		return core.Null()
	}

	// text and exact numerics arrive as bytes from several drivers
	if b, ok := value.([]byte); ok {
		if numericTypeNames[strings.ToUpper(dbType)] {
			if d, ok := core.ParseDecimal(string(b)); ok {
				return core.DecimalValue(d)
			}
		}
		return core.StringValue(string(b))
	}

	switch v := value.(type) {
	case string:
		if numericTypeNames[strings.ToUpper(dbType)] {
			if d, ok := core.ParseDecimal(v); ok {
				return core.DecimalValue(d)
			}
		}
		return core.StringValue(v)
	case int64:
		return core.DecimalFromInt64(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.Null()
		}
		return core.DecimalFromFloat64(v)
	case bool:
		return core.StringValue(strconv.FormatBool(v))
	case time.Time:
		return core.DateValue(v)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return core.DecimalFromInt64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		d, _ := core.ParseDecimal(strconv.FormatUint(rv.Uint(), 10))
		return core.DecimalValue(d)
	case reflect.Float32:
		return core.DecimalFromFloat64(rv.Float())
	default:
		return core.StringValue(fmt.Sprintf("%v", value))
	}
}
