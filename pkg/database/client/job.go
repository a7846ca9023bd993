/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	dbutils "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/utils"
)

const (
	TJob        = "jobs"
	TDeadLetter = "dead_letters"
	THeartbeat  = "worker_heartbeats"
)

var (
	insertJobFormat        = `INSERT INTO ` + TJob + ` (%s) VALUES (%s)`
	insertDeadLetterFormat = `INSERT INTO ` + TDeadLetter + ` (%s) VALUES (%s)`

	// The dequeue is one statement: pick the oldest pending job in the best
	// lane under FOR UPDATE SKIP LOCKED, flip it to processing with the
	// worker stamped, and return the row. Two workers can never lease the
	// same job.
	leaseNextJobCmd = fmt.Sprintf(`UPDATE %s
		SET status = '%s', worker_id = $1, start_time = NOW(), update_time = NOW()
		WHERE id = (
			SELECT id FROM %s
			WHERE status = '%s' AND (scheduled_time IS NULL OR scheduled_time <= NOW())
			ORDER BY CASE priority
				WHEN '%s' THEN 0
				WHEN '%s' THEN 1
				WHEN '%s' THEN 2
				ELSE 3 END,
				creation_time
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING *`,
		TJob, common.JobStatusProcessing, TJob, common.JobStatusPending,
		common.JobPriorityUrgent, common.JobPriorityHigh, common.JobPriorityNormal)

	// Progress updates are monotonic and only valid while the caller still
	// holds the lease.
	updateJobProgressCmd = fmt.Sprintf(`UPDATE %s
		SET progress = $3, stage = $4, update_time = NOW()
		WHERE job_id = $1 AND worker_id = $2 AND status = '%s' AND progress <= $3`,
		TJob, common.JobStatusProcessing)

	finalizeJobCmd = fmt.Sprintf(`UPDATE %s
		SET status = $3,
		    result_ref = NULLIF($4, ''),
		    error_message = NULLIF($5, ''),
		    processing_seconds = processing_seconds + $6,
		    progress = CASE WHEN $3 = '%s' THEN 100 ELSE progress END,
		    worker_id = NULL,
		    end_time = NOW(),
		    update_time = NOW()
		WHERE job_id = $1 AND worker_id = $2 AND status = '%s'`,
		TJob, common.JobStatusCompleted, common.JobStatusProcessing)

	requeueJobCmd = fmt.Sprintf(`UPDATE %s
		SET status = '%s',
		    worker_id = NULL,
		    retry_count = retry_count + 1,
		    scheduled_time = NOW() + ($2 * INTERVAL '1 second'),
		    error_message = $3,
		    stage = '%s',
		    progress = 0,
		    update_time = NOW()
		WHERE job_id = $1 AND status = '%s'`,
		TJob, common.JobStatusPending, common.StageQueued, common.JobStatusProcessing)

	extendJobTimeoutCmd = fmt.Sprintf(`UPDATE %s SET timeout_second = $2, update_time = NOW()
		WHERE job_id = $1`, TJob)

	cancelPendingJobCmd = fmt.Sprintf(`UPDATE %s
		SET status = '%s', cancel_requested = true, worker_id = NULL, end_time = NOW(), update_time = NOW()
		WHERE job_id = $1 AND status = '%s'`,
		TJob, common.JobStatusCancelled, common.JobStatusPending)

	cancelProcessingJobCmd = fmt.Sprintf(`UPDATE %s
		SET cancel_requested = true, update_time = NOW()
		WHERE job_id = $1 AND status = '%s'`,
		TJob, common.JobStatusProcessing)

	getJobCancelCmd = fmt.Sprintf(`SELECT cancel_requested FROM %s WHERE job_id = $1`, TJob)

	markJobFailedCmd = fmt.Sprintf(`UPDATE %s
		SET status = '%s', worker_id = NULL, error_message = $2, end_time = NOW(), update_time = NOW()
		WHERE job_id = $1`, TJob, common.JobStatusFailed)

	upsertHeartbeatCmd = fmt.Sprintf(`INSERT INTO %s (worker_id, hostname, active_job, last_seen_time)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NOW())
		ON CONFLICT (worker_id) DO UPDATE
		SET hostname = EXCLUDED.hostname, active_job = EXCLUDED.active_job, last_seen_time = NOW()`,
		THeartbeat)
)

// InsertJob inserts a new job row in pending state.
func (c *Client) InsertJob(ctx context.Context, job *Job) error {
	if job == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.NamedExecContext(ctx, generateCommand(*job, insertJobFormat, "id"), job)
	if err != nil {
		klog.ErrorS(err, "failed to insert job", "id", job.JobId)
		return commonerrors.NewStorageError(err.Error())
	}
	return nil
}

// AtomicLeaseNextJob leases the oldest pending job in the highest non-empty
// priority lane to workerId. Returns (nil, nil) when nothing is leasable.
func (c *Client) AtomicLeaseNextJob(ctx context.Context, workerId string) (*Job, error) {
	if workerId == "" {
		return nil, commonerrors.NewBadRequest("workerId is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	var job Job
	err = db.GetContext(ctx, &job, leaseNextJobCmd, workerId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		klog.ErrorS(err, "failed to lease next job", "worker", workerId)
		return nil, commonerrors.NewStorageError(err.Error())
	}
	return &job, nil
}

// UpdateJobProgress advances progress and stage for a leased job. Progress
// is clamped to [0,100]; updates from a worker that no longer holds the
// lease, or that would move progress backwards, are rejected.
func (c *Client) UpdateJobProgress(ctx context.Context, jobId, workerId string, progress int, stage string) error {
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx, updateJobProgressCmd, jobId, workerId, progress, stage)
	if err != nil {
		klog.ErrorS(err, "failed to update job progress", "id", jobId)
		return commonerrors.NewStorageError(err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return commonerrors.NewForbidden(
			fmt.Sprintf("worker %s no longer holds the lease on job %s", workerId, jobId))
	}
	return nil
}

// FinalizeJob moves a leased job to a terminal status in one commit,
// recording the result reference or the error message and releasing the
// lease.
func (c *Client) FinalizeJob(ctx context.Context, jobId, workerId, status, resultRef, errMsg string, processingSeconds float64) error {
	if !common.IsTerminalStatus(status) {
		return commonerrors.NewBadRequest(fmt.Sprintf("status %s is not terminal", status))
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx, finalizeJobCmd, jobId, workerId, status, resultRef, errMsg, processingSeconds)
	if err != nil {
		klog.ErrorS(err, "failed to finalize job", "id", jobId, "status", status)
		return commonerrors.NewStorageError(err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return commonerrors.NewForbidden(
			fmt.Sprintf("worker %s no longer holds the lease on job %s", workerId, jobId))
	}
	return nil
}

// RequeueJob returns a processing job to pending for a retry, clearing the
// lease and delaying the next lease by delaySeconds.
func (c *Client) RequeueJob(ctx context.Context, jobId string, delaySeconds int, reason string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx, requeueJobCmd, jobId, delaySeconds, reason)
	if err != nil {
		klog.ErrorS(err, "failed to requeue job", "id", jobId)
		return commonerrors.NewStorageError(err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return commonerrors.NewJobNotFound(jobId)
	}
	return nil
}

// DeadLetterJob terminally fails a job and records it in the dead-letter
// table within one transaction.
func (c *Client) DeadLetterJob(ctx context.Context, job *Job, reason string) error {
	if job == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx, markJobFailedCmd, job.JobId, reason); err != nil {
		klog.ErrorS(err, "failed to mark job failed", "id", job.JobId)
		return commonerrors.NewStorageError(err.Error())
	}
	letter := DeadLetter{
		JobId:        job.JobId,
		TenantId:     job.TenantId,
		Reason:       reason,
		RetryCount:   job.RetryCount,
		Payload:      job.Config,
		CreationTime: dbutils.NullTime(time.Now().UTC()),
	}
	if _, err = tx.NamedExecContext(ctx, generateCommand(letter, insertDeadLetterFormat, "id"), letter); err != nil {
		klog.ErrorS(err, "failed to insert dead letter", "id", job.JobId)
		return commonerrors.NewStorageError(err.Error())
	}
	if err = tx.Commit(); err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	return nil
}

// RequestJobCancel cancels a pending job outright or flags a processing job
// for cooperative cancellation.
func (c *Client) RequestJobCancel(ctx context.Context, jobId string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx, cancelPendingJobCmd, jobId)
	if err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}
	result, err = db.ExecContext(ctx, cancelProcessingJobCmd, jobId)
	if err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}
	job, err := c.GetJob(ctx, jobId)
	if err != nil {
		return err
	}
	return commonerrors.NewJobNotCancellable(jobId, job.Status)
}

// IsJobCancelRequested reports whether a cancellation has been requested for
// the job; the executor polls this at suspension points.
func (c *Client) IsJobCancelRequested(ctx context.Context, jobId string) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	var cancelled bool
	err = db.GetContext(ctx, &cancelled, getJobCancelCmd, jobId)
	if errors.Is(err, sql.ErrNoRows) {
		return false, commonerrors.NewJobNotFound(jobId)
	}
	if err != nil {
		return false, commonerrors.NewStorageError(err.Error())
	}
	return cancelled, nil
}

// ExtendJobTimeout persists an extended operation budget for the job.
func (c *Client) ExtendJobTimeout(ctx context.Context, jobId string, timeoutSecond int) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, extendJobTimeoutCmd, jobId, timeoutSecond)
	if err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	return nil
}

// GetJob retrieves a job by ID.
func (c *Client) GetJob(ctx context.Context, jobId string) (*Job, error) {
	if jobId == "" {
		return nil, commonerrors.NewBadRequest("jobId is empty")
	}
	dbTags := GetJobFieldTags()
	dbSql := sqrl.Eq{GetFieldTag(dbTags, "JobId"): jobId}
	jobs, err := c.SelectJobs(ctx, dbSql, nil, 1, 0)
	if err != nil {
		klog.ErrorS(err, "failed to select job", "sql", dbutils.CvtToSqlStr(dbSql))
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, commonerrors.NewJobNotFound(jobId)
	}
	return jobs[0], nil
}

// SelectJobs retrieves multiple job records.
func (c *Client) SelectJobs(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Job, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("*").From(TJob)
	if query != nil {
		builder = builder.Where(query)
	}
	for _, order := range orderBy {
		builder = builder.OrderBy(order)
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}
	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	var jobs []*Job
	if c.RequestTimeout > 0 {
		ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
		defer cancel()
		err = db.SelectContext(ctx2, &jobs, sqlStr, args...)
	} else {
		err = db.SelectContext(ctx, &jobs, sqlStr, args...)
	}
	if err != nil {
		return nil, commonerrors.NewStorageError(err.Error())
	}
	return jobs, nil
}

// CountJobs returns the total count of jobs matching the criteria.
func (c *Client) CountJobs(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("COUNT(*)").From(TJob)
	if query != nil {
		builder = builder.Where(query)
	}
	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	var cnt int
	err = db.GetContext(ctx, &cnt, sqlStr, args...)
	if err != nil {
		return 0, commonerrors.NewStorageError(err.Error())
	}
	return cnt, nil
}

// SelectStaleProcessingJobs returns processing jobs whose lease started
// before the cutoff; the reaper feeds them back through the retry logic.
func (c *Client) SelectStaleProcessingJobs(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	dbTags := GetJobFieldTags()
	dbSql := sqrl.And{
		sqrl.Eq{GetFieldTag(dbTags, "Status"): common.JobStatusProcessing},
		sqrl.Lt{GetFieldTag(dbTags, "StartTime"): cutoff},
	}
	return c.SelectJobs(ctx, dbSql, []string{GetFieldTag(dbTags, "StartTime") + " " + ASC}, 0, 0)
}

// QueueStats is the operator view of queue health.
type QueueStats struct {
	PendingByPriority map[string]int `json:"pendingByPriority"`
	Processing        int            `json:"processing"`
	DeadLetters       int            `json:"deadLetters"`
	CompletedLastHour int            `json:"completedLastHour"`
	FailedLastHour    int            `json:"failedLastHour"`
}

// GetQueueStats gathers per-lane depth and rolling terminal counters.
func (c *Client) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{PendingByPriority: make(map[string]int)}

	rows, err := db.QueryxContext(ctx,
		fmt.Sprintf(`SELECT priority, COUNT(*) FROM %s WHERE status = '%s' GROUP BY priority`,
			TJob, common.JobStatusPending))
	if err != nil {
		return nil, commonerrors.NewStorageError(err.Error())
	}
	defer rows.Close()
	for rows.Next() {
		var priority string
		var count int
		if err = rows.Scan(&priority, &count); err != nil {
			return nil, commonerrors.NewStorageError(err.Error())
		}
		stats.PendingByPriority[priority] = count
	}

	hourAgo := time.Now().UTC().Add(-time.Hour)
	dbTags := GetJobFieldTags()
	if stats.Processing, err = c.CountJobs(ctx,
		sqrl.Eq{GetFieldTag(dbTags, "Status"): common.JobStatusProcessing}); err != nil {
		return nil, err
	}
	if stats.CompletedLastHour, err = c.CountJobs(ctx, sqrl.And{
		sqrl.Eq{GetFieldTag(dbTags, "Status"): common.JobStatusCompleted},
		sqrl.GtOrEq{GetFieldTag(dbTags, "EndTime"): hourAgo},
	}); err != nil {
		return nil, err
	}
	if stats.FailedLastHour, err = c.CountJobs(ctx, sqrl.And{
		sqrl.Eq{GetFieldTag(dbTags, "Status"): common.JobStatusFailed},
		sqrl.GtOrEq{GetFieldTag(dbTags, "EndTime"): hourAgo},
	}); err != nil {
		return nil, err
	}
	err = db.GetContext(ctx, &stats.DeadLetters, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, TDeadLetter))
	if err != nil {
		return nil, commonerrors.NewStorageError(err.Error())
	}
	return stats, nil
}

// UpsertWorkerHeartbeat records worker liveness.
func (c *Client) UpsertWorkerHeartbeat(ctx context.Context, workerId, hostname, activeJob string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, upsertHeartbeatCmd, workerId, hostname, activeJob)
	if err != nil {
		klog.ErrorS(err, "failed to upsert worker heartbeat", "worker", workerId)
		return commonerrors.NewStorageError(err.Error())
	}
	return nil
}

// SelectDeadLetters lists dead-letter records, newest first.
func (c *Client) SelectDeadLetters(ctx context.Context, limit, offset int) ([]*DeadLetter, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	dbTags := GetDeadLetterFieldTags()
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("*").From(TDeadLetter).
		OrderBy(GetFieldTag(dbTags, "CreationTime") + " " + DESC)
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}
	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	var letters []*DeadLetter
	if err = db.SelectContext(ctx, &letters, sqlStr, args...); err != nil {
		return nil, commonerrors.NewStorageError(err.Error())
	}
	return letters, nil
}
