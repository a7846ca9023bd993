/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
)

type fakeJobStore struct {
	inserted    []*dbclient.Job
	requeued    []int
	deadLetters []string
}

func (f *fakeJobStore) InsertJob(_ context.Context, job *dbclient.Job) error {
	f.inserted = append(f.inserted, job)
	return nil
}

func (f *fakeJobStore) AtomicLeaseNextJob(_ context.Context, _ string) (*dbclient.Job, error) {
	return nil, nil
}

func (f *fakeJobStore) UpdateJobProgress(_ context.Context, _, _ string, _ int, _ string) error {
	return nil
}

func (f *fakeJobStore) FinalizeJob(_ context.Context, _, _, _, _, _ string, _ float64) error {
	return nil
}

func (f *fakeJobStore) RequeueJob(_ context.Context, _ string, delaySeconds int, _ string) error {
	f.requeued = append(f.requeued, delaySeconds)
	return nil
}

func (f *fakeJobStore) DeadLetterJob(_ context.Context, job *dbclient.Job, reason string) error {
	f.deadLetters = append(f.deadLetters, job.JobId+":"+reason)
	return nil
}

func (f *fakeJobStore) RequestJobCancel(_ context.Context, _ string) error { return nil }

func (f *fakeJobStore) IsJobCancelRequested(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (f *fakeJobStore) GetJob(_ context.Context, _ string) (*dbclient.Job, error) {
	return nil, nil
}

func (f *fakeJobStore) GetQueueStats(_ context.Context) (*dbclient.QueueStats, error) {
	return &dbclient.QueueStats{}, nil
}

func newTestQueue(store jobStore) *Queue {
	return &Queue{store: store, maxRetries: 3, backoffCap: 30}
}

func TestBackoffDelaySeconds(t *testing.T) {
	tests := []struct {
		attempt int
		want    int
	}{
		{1, 2},
		{2, 4},
		{3, 8},
		{4, 16},
		{5, 30},
		{10, 30},
		{40, 30},
		{0, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BackoffDelaySeconds(tt.attempt, 30), "attempt %d", tt.attempt)
	}
}

func TestEnqueueDefaults(t *testing.T) {
	store := &fakeJobStore{}
	q := newTestQueue(store)

	job := &dbclient.Job{TenantId: "t1", FileFingerprint: "abc"}
	require.NoError(t, q.Enqueue(context.Background(), job))

	require.Len(t, store.inserted, 1)
	assert.Equal(t, common.JobStatusPending, job.Status)
	assert.Equal(t, common.JobPriorityNormal, job.Priority)
	assert.Equal(t, common.StageQueued, job.Stage.String)
	assert.NotEmpty(t, job.JobId)
}

func TestEnqueueRejectsUnknownPriority(t *testing.T) {
	q := newTestQueue(&fakeJobStore{})
	err := q.Enqueue(context.Background(), &dbclient.Job{Priority: "asap"})
	assert.True(t, commonerrors.IsBadRequest(err))
}

func TestFailRequeuesWithBackoff(t *testing.T) {
	store := &fakeJobStore{}
	q := newTestQueue(store)
	ctx := context.Background()

	for retry, wantDelay := range map[int]int{0: 2, 1: 4, 2: 8} {
		job := &dbclient.Job{JobId: "j", RetryCount: retry}
		require.NoError(t, q.Fail(ctx, job, "provider error"))
		assert.Contains(t, store.requeued, wantDelay)
	}
	assert.Empty(t, store.deadLetters)
}

func TestFailDeadLettersPastBudget(t *testing.T) {
	store := &fakeJobStore{}
	q := newTestQueue(store)

	job := &dbclient.Job{JobId: "j-exhausted", RetryCount: 3}
	require.NoError(t, q.Fail(context.Background(), job, "provider error"))

	assert.Empty(t, store.requeued)
	require.Len(t, store.deadLetters, 1)
	assert.Equal(t, "j-exhausted:provider error", store.deadLetters[0])
}

func TestFailTerminalSkipsRetry(t *testing.T) {
	store := &fakeJobStore{}
	q := newTestQueue(store)

	job := &dbclient.Job{JobId: "j-fatal", RetryCount: 0}
	require.NoError(t, q.FailTerminal(context.Background(), job, "unsupported format"))
	assert.Empty(t, store.requeued)
	assert.Len(t, store.deadLetters, 1)
}
