/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package recovery

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/trace"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/pipeline"
)

type executor interface {
	Execute(ctx context.Context, job *dbclient.Job) (*pipeline.Outcome, error)
}

type jobQueue interface {
	Complete(ctx context.Context, jobId, workerId, resultRef string, processingSeconds float64) error
	CancelFinalize(ctx context.Context, jobId, workerId, resultRef string, processingSeconds float64) error
	Fail(ctx context.Context, job *dbclient.Job, reason string) error
	FailTerminal(ctx context.Context, job *dbclient.Job, reason string) error
}

type leaseStore interface {
	ExtendJobTimeout(ctx context.Context, jobId string, timeoutSecond int) error
	SelectStaleProcessingJobs(ctx context.Context, cutoff time.Time) ([]*dbclient.Job, error)
}

const (
	warnFraction = 0.8

	// the salvage share below which a timed-out job is aborted instead of
	// returned partial
	salvageThreshold = 0.5
)

// Supervisor wraps executor invocations with timeout enforcement, outcome
// classification, and lease reaping.
type Supervisor struct {
	queue jobQueue
	store leaseStore
	exec  executor

	defaultTimeout time.Duration
	maxTimeout     time.Duration
	grace          time.Duration
	staleTimeout   time.Duration
}

func NewSupervisor(queue jobQueue, store leaseStore, exec executor) *Supervisor {
	return &Supervisor{
		queue:          queue,
		store:          store,
		exec:           exec,
		defaultTimeout: time.Duration(config.GetPipelineDefaultTimeoutSecond()) * time.Second,
		maxTimeout:     time.Duration(config.GetPipelineMaxTimeoutSecond()) * time.Second,
		grace:          time.Duration(config.GetPipelineGracePeriodSecond()) * time.Second,
		staleTimeout:   time.Duration(config.GetWorkerStaleTimeoutSecond()) * time.Second,
	}
}

type execResult struct {
	outcome *pipeline.Outcome
	err     error
}

// RunJob drives one leased job under its timeout budget and settles its
// terminal state.
func (s *Supervisor) RunJob(ctx context.Context, job *dbclient.Job) error {
	ctx, span := trace.StartSpan(ctx, "worker.run_job")
	defer trace.FinishSpan(span)
	trace.SetAttributes(ctx,
		attribute.String("job.id", job.JobId),
		attribute.String("job.tenant", job.TenantId),
		attribute.Int("job.attempt", job.RetryCount))

	timeout := s.budgetFor(job)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	warn := time.AfterFunc(time.Duration(warnFraction*float64(timeout)), func() {
		klog.Warningf("job %s has used 80%% of its %s budget", job.JobId, timeout)
	})
	defer warn.Stop()

	ch := make(chan execResult, 1)
	go func() {
		outcome, err := s.exec.Execute(runCtx, job)
		ch <- execResult{outcome, err}
	}()

	var res execResult
	select {
	case res = <-ch:
	case <-runCtx.Done():
		// budget spent: the executor has until the grace period to land
		// its salvage outcome
		select {
		case res = <-ch:
		case <-time.After(s.grace):
			klog.Warningf("job %s did not release within the grace period", job.JobId)
			res = execResult{nil, context.DeadlineExceeded}
		}
	}
	return s.settle(ctx, job, timeout, res)
}

func (s *Supervisor) budgetFor(job *dbclient.Job) time.Duration {
	timeout := time.Duration(job.TimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	if timeout > s.maxTimeout {
		timeout = s.maxTimeout
	}
	return timeout
}

// settle converts an execution result into the job's next state per the
// classification policy.
func (s *Supervisor) settle(ctx context.Context, job *dbclient.Job, timeout time.Duration, res execResult) error {
	workerId := job.WorkerId.String
	if res.err == nil {
		return s.queue.Complete(ctx, job.JobId, workerId, res.outcome.ResultRef, res.outcome.Duration.Seconds())
	}
	if errors.Is(res.err, pipeline.ErrCancelled) {
		resultRef := ""
		seconds := 0.0
		if res.outcome != nil {
			resultRef = res.outcome.ResultRef
			seconds = res.outcome.Duration.Seconds()
		}
		return s.queue.CancelFinalize(ctx, job.JobId, workerId, resultRef, seconds)
	}

	class := Classify(res.err)
	trace.RecordError(ctx, res.err)
	trace.SetAttributes(ctx, attribute.String("job.failure_class", string(class)))
	klog.ErrorS(res.err, "job execution failed",
		"job", job.JobId, "class", class, "severity", SeverityOf(class), "attempt", job.RetryCount)

	switch class {
	case ClassTimeout:
		return s.settleTimeout(ctx, job, timeout, res)
	case ClassFormat:
		return s.queue.FailTerminal(ctx, job, "unsupported or unreadable input")
	case ClassConnection, ClassProcess:
		return s.queue.Fail(ctx, job, string(class)+": "+res.err.Error())
	case ClassMemory:
		if res.outcome != nil && res.outcome.ResultRef != "" {
			return s.queue.Complete(ctx, job.JobId, workerId, res.outcome.ResultRef, res.outcome.Duration.Seconds())
		}
		return s.queue.FailTerminal(ctx, job, "out of memory")
	default:
		if job.RetryCount < 1 {
			return s.queue.Fail(ctx, job, res.err.Error())
		}
		return s.queue.FailTerminal(ctx, job, res.err.Error())
	}
}

func (s *Supervisor) settleTimeout(ctx context.Context, job *dbclient.Job, timeout time.Duration, res execResult) error {
	capSecond := int(s.maxTimeout / time.Second)
	prevSecond := int(timeout / time.Second)
	if prevSecond < capSecond {
		next := ExtendedTimeoutSecond(prevSecond, capSecond)
		if err := s.store.ExtendJobTimeout(ctx, job.JobId, next); err != nil {
			klog.ErrorS(err, "failed to extend job timeout", "job", job.JobId)
		} else {
			klog.Infof("extended job %s timeout %ds -> %ds", job.JobId, prevSecond, next)
		}
		return s.queue.Fail(ctx, job, "timed out")
	}
	if res.outcome != nil && res.outcome.Completeness >= salvageThreshold && res.outcome.ResultRef != "" {
		return s.queue.Complete(ctx, job.JobId, job.WorkerId.String, res.outcome.ResultRef, res.outcome.Duration.Seconds())
	}
	return s.queue.FailTerminal(ctx, job, "timed out at the maximum budget")
}

// ReapStaleLeases forcibly fails processing rows whose lease outlived the
// stale timeout, handing them back to the retry/dead-letter policy.
func (s *Supervisor) ReapStaleLeases(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.staleTimeout)
	jobs, err := s.store.SelectStaleProcessingJobs(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, job := range jobs {
		if err := s.queue.Fail(ctx, job, "stale lease"); err != nil {
			klog.ErrorS(err, "failed to reap stale lease", "job", job.JobId)
			continue
		}
		reaped++
	}
	if reaped > 0 {
		klog.Infof("reaped %d stale leases", reaped)
	}
	return reaped, nil
}
