/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"context"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/utils"
)

// jobStore is the slice of the metadata store the queue drives.
type jobStore interface {
	InsertJob(ctx context.Context, job *dbclient.Job) error
	AtomicLeaseNextJob(ctx context.Context, workerId string) (*dbclient.Job, error)
	UpdateJobProgress(ctx context.Context, jobId, workerId string, progress int, stage string) error
	FinalizeJob(ctx context.Context, jobId, workerId, status, resultRef, errMsg string, processingSeconds float64) error
	RequeueJob(ctx context.Context, jobId string, delaySeconds int, reason string) error
	DeadLetterJob(ctx context.Context, job *dbclient.Job, reason string) error
	RequestJobCancel(ctx context.Context, jobId string) error
	IsJobCancelRequested(ctx context.Context, jobId string) (bool, error)
	GetJob(ctx context.Context, jobId string) (*dbclient.Job, error)
	GetQueueStats(ctx context.Context) (*dbclient.QueueStats, error)
}

// Queue layers lane semantics, retry back-off, and dead-lettering over the
// metadata store's atomic job operations.
type Queue struct {
	store      jobStore
	maxRetries int
	backoffCap int
}

func NewQueue(store jobStore) *Queue {
	return &Queue{
		store:      store,
		maxRetries: config.GetQueueMaxRetries(),
		backoffCap: config.GetQueueBackoffCapSecond(),
	}
}

// BackoffDelaySeconds is the requeue delay after the given number of
// completed attempts: doubling per attempt, capped.
func BackoffDelaySeconds(attempt, capSeconds int) int {
	if attempt < 1 {
		attempt = 1
	}
	// 2^attempt, guarding against shift overflow past the cap
	if attempt > 30 {
		return capSeconds
	}
	delay := 1 << attempt
	if delay > capSeconds {
		return capSeconds
	}
	return delay
}

// Enqueue validates and inserts a pending job, assigning a job id when the
// caller did not.
func (q *Queue) Enqueue(ctx context.Context, job *dbclient.Job) error {
	if job == nil {
		return commonerrors.NewBadRequest("the job is empty")
	}
	if job.Priority == "" {
		job.Priority = common.JobPriorityNormal
	}
	if !common.IsValidPriority(job.Priority) {
		return commonerrors.NewBadRequest("unknown priority " + job.Priority)
	}
	if job.JobId == "" {
		job.JobId = uuid.NewString()
	}
	job.Status = common.JobStatusPending
	job.Stage = dbutils.NullString(common.StageQueued)
	return q.store.InsertJob(ctx, job)
}

// Lease atomically claims the next runnable job for a worker, or returns
// nil when every lane is empty.
func (q *Queue) Lease(ctx context.Context, workerId string) (*dbclient.Job, error) {
	return q.store.AtomicLeaseNextJob(ctx, workerId)
}

// Progress records a clamped, monotonic progress update under the worker's
// lease.
func (q *Queue) Progress(ctx context.Context, jobId, workerId string, progress int, stage string) error {
	return q.store.UpdateJobProgress(ctx, jobId, workerId, progress, stage)
}

// Complete finalizes a job as completed with its result reference.
func (q *Queue) Complete(ctx context.Context, jobId, workerId, resultRef string, processingSeconds float64) error {
	return q.store.FinalizeJob(ctx, jobId, workerId, common.JobStatusCompleted, resultRef, "", processingSeconds)
}

// CancelFinalize finalizes a job as cancelled after the executor has
// observed the cancellation flag.
func (q *Queue) CancelFinalize(ctx context.Context, jobId, workerId, resultRef string, processingSeconds float64) error {
	return q.store.FinalizeJob(ctx, jobId, workerId, common.JobStatusCancelled, resultRef, "cancelled by request", processingSeconds)
}

// Fail re-enters a failed job: requeue with exponential back-off while the
// retry budget lasts, dead-letter once it is spent.
func (q *Queue) Fail(ctx context.Context, job *dbclient.Job, reason string) error {
	if job == nil {
		return commonerrors.NewBadRequest("the job is empty")
	}
	if job.RetryCount < q.maxRetries {
		delay := BackoffDelaySeconds(job.RetryCount+1, q.backoffCap)
		klog.Infof("requeueing job %s (attempt %d/%d) in %ds: %s",
			job.JobId, job.RetryCount+1, q.maxRetries, delay, reason)
		return q.store.RequeueJob(ctx, job.JobId, delay, reason)
	}
	klog.Warningf("dead-lettering job %s after %d attempts: %s", job.JobId, job.RetryCount, reason)
	return q.store.DeadLetterJob(ctx, job, reason)
}

// FailTerminal finalizes a job as failed with no retry, for errors that
// retrying cannot fix.
func (q *Queue) FailTerminal(ctx context.Context, job *dbclient.Job, reason string) error {
	if job == nil {
		return commonerrors.NewBadRequest("the job is empty")
	}
	return q.store.DeadLetterJob(ctx, job, reason)
}

// Cancel requests cancellation: pending jobs cancel immediately, leased
// jobs get their flag set for the executor to observe.
func (q *Queue) Cancel(ctx context.Context, jobId string) error {
	return q.store.RequestJobCancel(ctx, jobId)
}

// IsCancelRequested reports whether a leased job should stop.
func (q *Queue) IsCancelRequested(ctx context.Context, jobId string) (bool, error) {
	return q.store.IsJobCancelRequested(ctx, jobId)
}

// Get fetches one job by id.
func (q *Queue) Get(ctx context.Context, jobId string) (*dbclient.Job, error) {
	return q.store.GetJob(ctx, jobId)
}

// Stats reports lane depths and rolling outcome counters.
func (q *Queue) Stats(ctx context.Context) (*dbclient.QueueStats, error) {
	return q.store.GetQueueStats(ctx)
}
