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
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3StoreOptions configures the S3 artifact store.
type S3StoreOptions struct {
	Bucket         string          // S3 bucket name
	Prefix         string          // Key prefix for every artifact
	Region         string          // AWS region
	Profile        string          // AWS profile to use
	Credentials    aws.Credentials // Explicit credentials
	EndpointURL    string          // Custom S3 endpoint (for S3-compatible services)
	ForcePathStyle bool            // Use path-style addressing
}

// StoreOptionS3 represents a configuration function for S3Store.
type StoreOptionS3 func(*S3StoreOptions)

func WithS3Bucket(bucket string) StoreOptionS3 {
	return func(opts *S3StoreOptions) { opts.Bucket = bucket }
}

func WithS3Prefix(prefix string) StoreOptionS3 {
	return func(opts *S3StoreOptions) { opts.Prefix = prefix }
}

func WithS3Region(region string) StoreOptionS3 {
	return func(opts *S3StoreOptions) { opts.Region = region }
}

func WithS3Profile(profile string) StoreOptionS3 {
	return func(opts *S3StoreOptions) { opts.Profile = profile }
}

func WithS3Credentials(creds aws.Credentials) StoreOptionS3 {
	return func(opts *S3StoreOptions) { opts.Credentials = creds }
}

func WithS3Endpoint(endpoint string) StoreOptionS3 {
	return func(opts *S3StoreOptions) { opts.EndpointURL = endpoint }
}

func WithS3PathStyle(pathStyle bool) StoreOptionS3 {
	return func(opts *S3StoreOptions) { opts.ForcePathStyle = pathStyle }
}

// S3Store keeps artifacts as objects in an S3 bucket.
type S3Store struct {
	client *s3.Client
	opts   S3StoreOptions
}

// NewS3Store creates an S3 store.
func NewS3Store(ctx context.Context, options ...StoreOptionS3) (*S3Store, error) {
	var opts S3StoreOptions
	for _, option := range options {
		option(&opts)
	}

	if opts.Bucket == "" {
		return nil, &StoreError{Op: "validate_options", Location: "s3", Err: fmt.Errorf("bucket is required")}
	}

	cfg, err := createAWSConfig(ctx, opts)
	if err != nil {
		return nil, &StoreError{Op: "create_aws_config", Location: "s3://" + opts.Bucket, Err: err}
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
			// S3-compatible services commonly lack flexible checksum support.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	return &S3Store{client: client, opts: opts}, nil
}

func createAWSConfig(ctx context.Context, opts S3StoreOptions) (aws.Config, error) {
	configOpts := []func(*awsconfig.LoadOptions) error{}

	if opts.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}

	return cfg, nil
}

// Location returns the s3:// URI of the named artifact.
func (s *S3Store) Location(name string) string {
	return "s3://" + s.opts.Bucket + "/" + s.key(name)
}

func (s *S3Store) key(name string) string {
	if s.opts.Prefix == "" {
		return name
	}
	return path.Join(s.opts.Prefix, name)
}

// Create buffers the artifact in memory and uploads it on Close.
func (s *S3Store) Create(ctx context.Context, name string) (io.WriteCloser, string, error) {
	location := s.Location(name)
	if err := ctx.Err(); err != nil {
		return nil, location, &StoreError{Op: "create", Location: location, Err: err}
	}
	return &s3WriteCloser{
		ctx:      ctx,
		buf:      &bytes.Buffer{},
		client:   s.client,
		bucket:   s.opts.Bucket,
		key:      s.key(name),
		location: location,
	}, location, nil
}

// Open downloads the object behind an s3:// location.
func (s *S3Store) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return nil, &StoreError{Op: "open", Location: location, Err: err}
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &StoreError{Op: "get_object", Location: location, Err: err}
	}
	return out.Body, nil
}

// ParseS3Location splits an s3://bucket/key URI.
func ParseS3Location(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 location")
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 location needs a bucket and a key")
	}
	return bucket, key, nil
}

type s3WriteCloser struct {
	ctx      context.Context
	buf      *bytes.Buffer
	client   *s3.Client
	bucket   string
	key      string
	location string
	closed   bool
}

func (w *s3WriteCloser) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *s3WriteCloser) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.bucket),
		Key:           aws.String(w.key),
		Body:          bytes.NewReader(w.buf.Bytes()),
		ContentLength: aws.Int64(int64(w.buf.Len())),
		ContentType:   aws.String(contentType(w.key)),
	})
	if err != nil {
		return &StoreError{Op: "put_object", Location: w.location, Err: err}
	}
	return nil
}

// Abort drops the buffered content without uploading it.
func (w *s3WriteCloser) Abort() error {
	w.closed = true
	w.buf.Reset()
	return nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".csv":
		return "text/csv"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
