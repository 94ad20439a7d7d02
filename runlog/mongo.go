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

package runlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aaronlmathis/salesetl/dag"
)

// MongoStore keeps one document per run, with its attempts embedded.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type runDocument struct {
	RunID       string            `bson:"_id"`
	DAGID       string            `bson:"dag_id"`
	LogicalDate time.Time         `bson:"logical_date"`
	Status      string            `bson:"status"`
	StartTime   time.Time         `bson:"start_time"`
	EndTime     time.Time         `bson:"end_time,omitempty"`
	Error       string            `bson:"error,omitempty"`
	Attempts    []attemptDocument `bson:"attempts"`
}

type attemptDocument struct {
	TaskID    string                 `bson:"task_id"`
	Attempt   int                    `bson:"attempt"`
	Status    string                 `bson:"status"`
	StartTime time.Time              `bson:"start_time,omitempty"`
	EndTime   time.Time              `bson:"end_time,omitempty"`
	Error     string                 `bson:"error,omitempty"`
	Summary   map[string]interface{} `bson:"summary,omitempty"`
}

// OpenMongo connects to uri and verifies the connection.
func OpenMongo(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, &RunLogError{Op: "open", Err: fmt.Errorf("mongo uri is required")}
	}
	if database == "" || collection == "" {
		return nil, &RunLogError{Op: "open", Err: fmt.Errorf("database and collection are required")}
	}

	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, &RunLogError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, &RunLogError{Op: "ping", Err: err}
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "dag_id", Value: 1}, {Key: "start_time", Value: -1}},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, &RunLogError{Op: "create_index", Err: err}
	}

	return &MongoStore{client: client, collection: coll}, nil
}

// RecordRunStart implements dag.RunRecorder.
func (m *MongoStore) RecordRunStart(ctx context.Context, run dag.RunInfo) error {
	if _, err := m.collection.InsertOne(ctx, newRunDocument(run)); err != nil {
		return &RunLogError{Op: "record_run_start", Err: err}
	}
	return nil
}

// RecordAttempt implements dag.RunRecorder.
func (m *MongoStore) RecordAttempt(ctx context.Context, attempt dag.AttemptInfo) error {
	_, err := m.collection.UpdateByID(ctx, attempt.RunID, bson.M{
		"$push": bson.M{"attempts": newAttemptDocument(attempt)},
	})
	if err != nil {
		return &RunLogError{Op: "record_attempt", Err: err}
	}
	return nil
}

// RecordRunEnd implements dag.RunRecorder.
func (m *MongoStore) RecordRunEnd(ctx context.Context, result *dag.DAGResult) error {
	_, err := m.collection.UpdateByID(ctx, result.RunID, runEndUpdate(result))
	if err != nil {
		return &RunLogError{Op: "record_run_end", Err: err}
	}
	return nil
}

// ListRuns implements Store.
func (m *MongoStore) ListRuns(ctx context.Context, dagID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"attempts": 0})

	cursor, err := m.collection.Find(ctx, bson.M{"dag_id": dagID}, findOpts)
	if err != nil {
		return nil, &RunLogError{Op: "list_runs", Err: err}
	}
	defer cursor.Close(ctx)

	var runs []Run
	for cursor.Next(ctx) {
		var doc runDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, &RunLogError{Op: "list_runs", Err: err}
		}
		runs = append(runs, doc.run())
	}
	if err := cursor.Err(); err != nil {
		return nil, &RunLogError{Op: "list_runs", Err: err}
	}
	return runs, nil
}

// Attempts implements Store.
func (m *MongoStore) Attempts(ctx context.Context, runID string) ([]Attempt, error) {
	var doc runDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": runID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, &RunLogError{Op: "attempts", Err: err}
	}
	return doc.attempts(), nil
}

// Close disconnects the client.
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func newRunDocument(run dag.RunInfo) runDocument {
	return runDocument{
		RunID:       run.RunID,
		DAGID:       run.DAGID,
		LogicalDate: run.LogicalDate.UTC(),
		Status:      StatusRunning,
		StartTime:   run.StartTime.UTC(),
		Attempts:    []attemptDocument{},
	}
}

func newAttemptDocument(a dag.AttemptInfo) attemptDocument {
	doc := attemptDocument{
		TaskID:  a.TaskID,
		Attempt: a.Attempt,
		Status:  string(a.Status),
		Error:   a.Error,
		Summary: a.Summary,
	}
	if !a.StartTime.IsZero() {
		doc.StartTime = a.StartTime.UTC()
	}
	if !a.EndTime.IsZero() {
		doc.EndTime = a.EndTime.UTC()
	}
	return doc
}

func runEndUpdate(result *dag.DAGResult) bson.M {
	return bson.M{"$set": bson.M{
		"status":   string(result.Status),
		"end_time": result.EndTime.UTC(),
		"error":    errorText(result.Error),
	}}
}

func (d runDocument) run() Run {
	return Run{
		RunID:       d.RunID,
		DAGID:       d.DAGID,
		LogicalDate: d.LogicalDate,
		Status:      d.Status,
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		Error:       d.Error,
	}
}

func (d runDocument) attempts() []Attempt {
	out := make([]Attempt, 0, len(d.Attempts))
	for _, a := range d.Attempts {
		out = append(out, Attempt{
			RunID:     d.RunID,
			DAGID:     d.DAGID,
			TaskID:    a.TaskID,
			Attempt:   a.Attempt,
			Status:    a.Status,
			StartTime: a.StartTime,
			EndTime:   a.EndTime,
			Error:     a.Error,
			Summary:   a.Summary,
		})
	}
	return out
}
