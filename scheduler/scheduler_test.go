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

package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New("not a cron", time.UTC, func(context.Context, time.Time) {})
	assert.ErrorContains(t, err, `invalid schedule "not a cron"`)
}

func TestNextRuns_SaturdayMorningsInJakarta(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	s, err := New("10,20,30 9 * * 6", jakarta, func(context.Context, time.Time) {}, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, "10,20,30 9 * * 6", s.Spec())
	assert.Equal(t, jakarta, s.Location())

	// Friday 2024-05-31 12:00 UTC
	from := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	runs := s.NextRuns(from, 4)
	require.Len(t, runs, 4)

	want := []time.Time{
		time.Date(2024, 6, 1, 9, 10, 0, 0, jakarta),
		time.Date(2024, 6, 1, 9, 20, 0, 0, jakarta),
		time.Date(2024, 6, 1, 9, 30, 0, 0, jakarta),
		time.Date(2024, 6, 8, 9, 10, 0, 0, jakarta),
	}
	for i := range want {
		assert.True(t, want[i].Equal(runs[i]), "run %d: want %s, got %s", i, want[i], runs[i])
		assert.Equal(t, time.Saturday, runs[i].Weekday())
	}
	// 09:10 in Jakarta is 02:10 UTC
	assert.Equal(t, 2, runs[0].UTC().Hour())
}

func TestRun_FiresAndSkipsOverlap(t *testing.T) {
	started := make(chan time.Time, 10)
	release := make(chan struct{})

	s, err := New("* * * * *", time.UTC, func(ctx context.Context, scheduled time.Time) {
		started <- scheduled
		<-release
	}, WithLogger(quietLogger()))
	require.NoError(t, err)

	// Run the wrapped job directly twice; the second call overlaps the first.
	entry := s.cron.Entry(s.entryID)
	require.True(t, entry.Valid())

	done := make(chan struct{})
	go func() {
		entry.WrappedJob.Run()
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("job did not start")
	}

	entry.WrappedJob.Run()
	select {
	case <-started:
		t.Fatal("overlapping run must be skipped")
	default:
	}

	close(release)
	<-done
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, err := New("10,20,30 9 * * 6", time.UTC, func(context.Context, time.Time) {}, WithLogger(quietLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCronLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger.Info("skip", "now", "x")
	logger.Error(errors.New("boom"), "panic", "stack", "...")

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG msg=skip component=cron now=x")
	assert.Contains(t, out, "level=ERROR msg=panic component=cron error=boom stack=...")
}

func TestScheduledTimeFallback(t *testing.T) {
	s, err := New("* * * * *", time.UTC, func(context.Context, time.Time) {}, WithLogger(quietLogger()))
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 2, 10, 42, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 1, 2, 10, 0, 0, time.UTC), s.scheduledTime(now))
}
