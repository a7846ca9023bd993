/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package recovery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/utils"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/pipeline"
)

type fakeQueue struct {
	completed  []string
	cancelled  []string
	failed     []string
	terminated []string
}

func (f *fakeQueue) Complete(_ context.Context, jobId, _, resultRef string, _ float64) error {
	f.completed = append(f.completed, jobId+":"+resultRef)
	return nil
}

func (f *fakeQueue) CancelFinalize(_ context.Context, jobId, _, _ string, _ float64) error {
	f.cancelled = append(f.cancelled, jobId)
	return nil
}

func (f *fakeQueue) Fail(_ context.Context, job *dbclient.Job, reason string) error {
	f.failed = append(f.failed, job.JobId+":"+reason)
	return nil
}

func (f *fakeQueue) FailTerminal(_ context.Context, job *dbclient.Job, reason string) error {
	f.terminated = append(f.terminated, job.JobId+":"+reason)
	return nil
}

type fakeLeaseStore struct {
	extended map[string]int
	stale    []*dbclient.Job
}

func (f *fakeLeaseStore) ExtendJobTimeout(_ context.Context, jobId string, timeoutSecond int) error {
	if f.extended == nil {
		f.extended = map[string]int{}
	}
	f.extended[jobId] = timeoutSecond
	return nil
}

func (f *fakeLeaseStore) SelectStaleProcessingJobs(_ context.Context, _ time.Time) ([]*dbclient.Job, error) {
	return f.stale, nil
}

type fakeExec struct {
	outcome *pipeline.Outcome
	err     error
	delay   time.Duration
}

func (f *fakeExec) Execute(ctx context.Context, _ *dbclient.Job) (*pipeline.Outcome, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return f.outcome, ctx.Err()
		}
	}
	return f.outcome, f.err
}

func newTestSupervisor(q jobQueue, store leaseStore, exec executor) *Supervisor {
	return &Supervisor{
		queue:          q,
		store:          store,
		exec:           exec,
		defaultTimeout: 300 * time.Second,
		maxTimeout:     1200 * time.Second,
		grace:          100 * time.Millisecond,
		staleTimeout:   time.Hour,
	}
}

func testLeasedJob(timeoutSecond int) *dbclient.Job {
	return &dbclient.Job{
		JobId:         "j1",
		WorkerId:      dbutils.NullString("w1"),
		TimeoutSecond: timeoutSecond,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{context.DeadlineExceeded, ClassTimeout},
		{commonerrors.NewTimeout("slow"), ClassTimeout},
		{commonerrors.NewFormatUnsupported("bad magic"), ClassFormat},
		{commonerrors.NewBadRequest("bad config"), ClassFormat},
		{commonerrors.NewProviderUnavailable("refused"), ClassConnection},
		{fmt.Errorf("fork: cannot allocate memory"), ClassMemory},
		{commonerrors.NewProcessing("decompilation failed"), ClassProcess},
		{fmt.Errorf("signal: killed"), ClassProcess},
		{fmt.Errorf("something odd"), ClassGeneric},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "err %v", tt.err)
	}
}

func TestSeverityOf(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityOf(ClassMemory))
	assert.Equal(t, SeverityLow, SeverityOf(ClassFormat))
	assert.Equal(t, SeverityMedium, SeverityOf(ErrorClass("unmapped")))
}

func TestExtendedTimeoutSecond(t *testing.T) {
	assert.Equal(t, 450, ExtendedTimeoutSecond(300, 1200))
	assert.Equal(t, 675, ExtendedTimeoutSecond(450, 1200))
	assert.Equal(t, 1200, ExtendedTimeoutSecond(1000, 1200))
	assert.Equal(t, 1200, ExtendedTimeoutSecond(1200, 1200))
}

func TestRunJobCompletes(t *testing.T) {
	q := &fakeQueue{}
	s := newTestSupervisor(q, &fakeLeaseStore{}, &fakeExec{
		outcome: &pipeline.Outcome{ResultRef: "result:job:j1", Duration: time.Second, Completeness: 1},
	})

	require.NoError(t, s.RunJob(context.Background(), testLeasedJob(300)))
	assert.Equal(t, []string{"j1:result:job:j1"}, q.completed)
}

func TestRunJobCancelFinalizes(t *testing.T) {
	q := &fakeQueue{}
	s := newTestSupervisor(q, &fakeLeaseStore{}, &fakeExec{
		outcome: &pipeline.Outcome{ResultRef: "result:job:j1"},
		err:     pipeline.ErrCancelled,
	})

	require.NoError(t, s.RunJob(context.Background(), testLeasedJob(300)))
	assert.Equal(t, []string{"j1"}, q.cancelled)
}

func TestRunJobTimeoutExtendsAndRetries(t *testing.T) {
	q := &fakeQueue{}
	store := &fakeLeaseStore{}
	// executor blocks past the 1s budget and returns the context error
	s := newTestSupervisor(q, store, &fakeExec{delay: 5 * time.Second})

	job := testLeasedJob(1)
	require.NoError(t, s.RunJob(context.Background(), job))

	assert.Equal(t, 1, store.extended["j1"], "1s grows by half, floored at integer seconds")
	require.Len(t, q.failed, 1)
	assert.Contains(t, q.failed[0], "timed out")
}

func TestTimeoutAtCapReturnsPartial(t *testing.T) {
	q := &fakeQueue{}
	s := newTestSupervisor(q, &fakeLeaseStore{}, nil)

	job := testLeasedJob(1200)
	res := execResult{
		outcome: &pipeline.Outcome{ResultRef: "result:job:j1", Completeness: 0.7},
		err:     context.DeadlineExceeded,
	}
	require.NoError(t, s.settle(context.Background(), job, 1200*time.Second, res))
	assert.Len(t, q.completed, 1)
	assert.Empty(t, q.failed)
}

func TestTimeoutAtCapWithThinSalvageAborts(t *testing.T) {
	q := &fakeQueue{}
	s := newTestSupervisor(q, &fakeLeaseStore{}, nil)

	job := testLeasedJob(1200)
	res := execResult{
		outcome: &pipeline.Outcome{ResultRef: "result:job:j1", Completeness: 0.2},
		err:     context.DeadlineExceeded,
	}
	require.NoError(t, s.settle(context.Background(), job, 1200*time.Second, res))
	assert.Empty(t, q.completed)
	assert.Len(t, q.terminated, 1)
}

func TestFormatErrorNeverRetries(t *testing.T) {
	q := &fakeQueue{}
	s := newTestSupervisor(q, &fakeLeaseStore{}, &fakeExec{
		err: commonerrors.NewFormatUnsupported("bad magic"),
	})

	require.NoError(t, s.RunJob(context.Background(), testLeasedJob(300)))
	assert.Empty(t, q.failed)
	assert.Len(t, q.terminated, 1)
}

func TestConnectionErrorRetries(t *testing.T) {
	q := &fakeQueue{}
	s := newTestSupervisor(q, &fakeLeaseStore{}, &fakeExec{
		err: commonerrors.NewProviderUnavailable("refused"),
	})

	require.NoError(t, s.RunJob(context.Background(), testLeasedJob(300)))
	require.Len(t, q.failed, 1)
	assert.Contains(t, q.failed[0], "ConnectionError")
}

func TestGenericRetriesOnceThenAborts(t *testing.T) {
	q := &fakeQueue{}
	s := newTestSupervisor(q, &fakeLeaseStore{}, nil)
	ctx := context.Background()

	first := testLeasedJob(300)
	require.NoError(t, s.settle(ctx, first, time.Minute, execResult{err: fmt.Errorf("odd")}))
	assert.Len(t, q.failed, 1)

	second := testLeasedJob(300)
	second.RetryCount = 1
	require.NoError(t, s.settle(ctx, second, time.Minute, execResult{err: fmt.Errorf("odd")}))
	assert.Len(t, q.terminated, 1)
}

func TestMemoryErrorReturnsSalvage(t *testing.T) {
	q := &fakeQueue{}
	s := newTestSupervisor(q, &fakeLeaseStore{}, nil)
	ctx := context.Background()

	withSalvage := execResult{
		outcome: &pipeline.Outcome{ResultRef: "result:job:j1"},
		err:     fmt.Errorf("fork: cannot allocate memory"),
	}
	require.NoError(t, s.settle(ctx, testLeasedJob(300), time.Minute, withSalvage))
	assert.Len(t, q.completed, 1)

	withoutSalvage := execResult{err: fmt.Errorf("fork: cannot allocate memory")}
	require.NoError(t, s.settle(ctx, testLeasedJob(300), time.Minute, withoutSalvage))
	assert.Len(t, q.terminated, 1)
}

func TestReapStaleLeases(t *testing.T) {
	q := &fakeQueue{}
	store := &fakeLeaseStore{stale: []*dbclient.Job{
		{JobId: "old-1"}, {JobId: "old-2"},
	}}
	s := newTestSupervisor(q, store, nil)

	n, err := s.ReapStaleLeases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"old-1:stale lease", "old-2:stale lease"}, q.failed)
}
