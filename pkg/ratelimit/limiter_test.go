/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
)

type counterRow struct {
	identifier string
	window     string
	cost       int64
	createdAt  time.Time
}

type fakeStore struct {
	rows []counterRow
	err  error
}

func (f *fakeStore) InsertRateCounters(_ context.Context, identifier string, windows []string, cost int64) error {
	if f.err != nil {
		return f.err
	}
	for _, w := range windows {
		f.rows = append(f.rows, counterRow{identifier, w, cost, time.Now()})
	}
	return nil
}

func (f *fakeStore) SumRateCounters(_ context.Context, identifier, window string, since time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var sum int64
	for _, r := range f.rows {
		if r.identifier == identifier && r.window == window && r.createdAt.After(since) {
			sum += r.cost
		}
	}
	return sum, nil
}

func (f *fakeStore) OldestRateCounterTime(_ context.Context, identifier, window string, since time.Time) (time.Time, error) {
	if f.err != nil {
		return time.Time{}, f.err
	}
	var oldest time.Time
	for _, r := range f.rows {
		if r.identifier == identifier && r.window == window && r.createdAt.After(since) {
			if oldest.IsZero() || r.createdAt.Before(oldest) {
				oldest = r.createdAt
			}
		}
	}
	return oldest, nil
}

func (f *fakeStore) DeleteRateCountersBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []counterRow
	var dropped int64
	for _, r := range f.rows {
		if r.createdAt.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return dropped, nil
}

func (f *fakeStore) DeleteRateCountersForIdentifier(_ context.Context, identifier string) error {
	var kept []counterRow
	for _, r := range f.rows {
		if r.identifier != identifier {
			kept = append(kept, r)
		}
	}
	f.rows = kept
	return nil
}

func newTestLimiter(store counterStore) *Limiter {
	return &Limiter{
		store: store,
		tiers: config.GetRateLimitTiers(),
	}
}

func TestCheckAdmitsUnderLimit(t *testing.T) {
	store := &fakeStore{}
	l := newTestLimiter(store)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Check(ctx, "tenant:a", "basic", 1))
	}
	// three window counters per admitted request, no burst rows
	assert.Len(t, store.rows, 30)
}

func TestCheckBurstAbsorbsMinuteOverflow(t *testing.T) {
	store := &fakeStore{}
	l := newTestLimiter(store)
	ctx := context.Background()

	// basic: minute 10, burst 5
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Check(ctx, "tenant:b", "basic", 1))
	}
	for i := 0; i < 5; i++ {
		assert.NoError(t, l.Check(ctx, "tenant:b", "basic", 1), "burst request %d", i)
	}
	err := l.Check(ctx, "tenant:b", "basic", 1)
	assert.True(t, commonerrors.IsRateLimited(err))
}

func TestCheckRejectCarriesRetryAfter(t *testing.T) {
	store := &fakeStore{}
	l := newTestLimiter(store)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		require.NoError(t, l.Check(ctx, "tenant:c", "basic", 1))
	}
	err := l.Check(ctx, "tenant:c", "basic", 1)
	require.True(t, commonerrors.IsRateLimited(err))
	retryAfter := commonerrors.GetRetryAfter(err)
	assert.GreaterOrEqual(t, retryAfter, int32(1))
	assert.LessOrEqual(t, retryAfter, int32(61))
}

func TestCheckHourWindowNotBurstAbsorbed(t *testing.T) {
	store := &fakeStore{}
	l := newTestLimiter(store)
	ctx := context.Background()

	// fill the hour window without touching the recent minute
	old := time.Now().Add(-5 * time.Minute)
	for i := 0; i < 600; i++ {
		store.rows = append(store.rows, counterRow{"tenant:d", common.WindowHour, 1, old})
	}
	err := l.Check(ctx, "tenant:d", "basic", 1)
	assert.True(t, commonerrors.IsRateLimited(err))
}

func TestCheckFailsOpenOnStoreError(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("connection refused")}
	l := newTestLimiter(store)

	assert.NoError(t, l.Check(context.Background(), "tenant:e", "basic", 1))
}

func TestCheckUnknownTierFallsBack(t *testing.T) {
	store := &fakeStore{}
	l := newTestLimiter(store)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		require.NoError(t, l.Check(ctx, "tenant:f", "no-such-tier", 1))
	}
	err := l.Check(ctx, "tenant:f", "no-such-tier", 1)
	assert.True(t, commonerrors.IsRateLimited(err))
}

func TestStatusReportsRemaining(t *testing.T) {
	store := &fakeStore{}
	l := newTestLimiter(store)
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "tenant:g", "standard", 3))
	statuses, err := l.Status(ctx, "tenant:g", "standard")
	require.NoError(t, err)
	require.Len(t, statuses, 4)
	assert.Equal(t, common.WindowMinute, statuses[0].Window)
	assert.Equal(t, int64(3), statuses[0].Used)
	assert.Equal(t, int64(57), statuses[0].Remaining)
}

func TestResetClearsIdentifier(t *testing.T) {
	store := &fakeStore{}
	l := newTestLimiter(store)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		require.NoError(t, l.Check(ctx, "tenant:h", "basic", 1))
	}
	require.Error(t, l.Check(ctx, "tenant:h", "basic", 1))
	require.NoError(t, l.Reset(ctx, "tenant:h"))
	assert.NoError(t, l.Check(ctx, "tenant:h", "basic", 1))
}

func TestIdentifierBuilders(t *testing.T) {
	assert.Equal(t, "tenant:t1", TenantIdentifier("t1"))
	assert.Equal(t, "llm:req:t1:openai", LLMRequestIdentifier("t1", "openai"))
	assert.Equal(t, "llm:tok:t1:openai", LLMTokenIdentifier("t1", "openai"))
}
