/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
)

const (
	DefaultTier = "basic"
	LLMTier     = "llm"
)

var windowDurations = map[string]time.Duration{
	common.WindowMinute: time.Minute,
	common.WindowHour:   time.Hour,
	common.WindowDay:    24 * time.Hour,
	common.WindowBurst:  time.Minute,
}

// counterStore is the slice of the metadata store the limiter needs.
type counterStore interface {
	InsertRateCounters(ctx context.Context, identifier string, windows []string, cost int64) error
	SumRateCounters(ctx context.Context, identifier, window string, since time.Time) (int64, error)
	OldestRateCounterTime(ctx context.Context, identifier, window string, since time.Time) (time.Time, error)
	DeleteRateCountersBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteRateCountersForIdentifier(ctx context.Context, identifier string) error
}

// WindowStatus reports one window's consumption for an identifier.
type WindowStatus struct {
	Window    string `json:"window"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
}

// Limiter admits or rejects costed requests against the per-tier window
// limits. Counter state lives in the metadata store so all replicas see
// the same consumption.
type Limiter struct {
	store counterStore
	tiers map[string]config.RateLimitTier
}

func NewLimiter(store counterStore) *Limiter {
	return &Limiter{
		store: store,
		tiers: config.GetRateLimitTiers(),
	}
}

func (l *Limiter) tier(name string) config.RateLimitTier {
	if t, ok := l.tiers[name]; ok {
		return t
	}
	klog.Warningf("unknown rate limit tier %q, falling back to %s", name, DefaultTier)
	return l.tiers[DefaultTier]
}

func limitFor(t config.RateLimitTier, window string) int64 {
	switch window {
	case common.WindowMinute:
		return t.Minute
	case common.WindowHour:
		return t.Hour
	default:
		return t.Day
	}
}

// Check admits a request of the given cost for identifier under tierName,
// or returns a RateLimited error carrying a retry-after hint. Storage
// failures admit the request: availability wins over strict accounting.
func (l *Limiter) Check(ctx context.Context, identifier, tierName string, cost int64) error {
	if !config.IsRateLimitEnable() {
		return nil
	}
	t := l.tier(tierName)
	now := time.Now()
	burst := false

	for _, window := range []string{common.WindowMinute, common.WindowHour, common.WindowDay} {
		used, err := l.store.SumRateCounters(ctx, identifier, window, now.Add(-windowDurations[window]))
		if err != nil {
			klog.ErrorS(err, "rate counter lookup failed, admitting", "identifier", identifier, "window", window)
			return nil
		}
		if used+cost <= limitFor(t, window) {
			continue
		}
		if window != common.WindowMinute {
			return l.reject(ctx, identifier, window, now)
		}
		// the burst pool only absorbs minute-window overflow
		usedBurst, err := l.store.SumRateCounters(ctx, identifier, common.WindowBurst, now.Add(-windowDurations[common.WindowBurst]))
		if err != nil {
			klog.ErrorS(err, "burst counter lookup failed, admitting", "identifier", identifier)
			return nil
		}
		if usedBurst+cost > t.Burst {
			return l.reject(ctx, identifier, common.WindowMinute, now)
		}
		burst = true
	}

	windows := []string{common.WindowMinute, common.WindowHour, common.WindowDay}
	if burst {
		windows = append(windows, common.WindowBurst)
	}
	if err := l.store.InsertRateCounters(ctx, identifier, windows, cost); err != nil {
		klog.ErrorS(err, "failed to record rate counters, admitting", "identifier", identifier)
	}
	return nil
}

// reject computes the retry-after hint: the time until the oldest counter
// in the failing window ages out, floored at one second.
func (l *Limiter) reject(ctx context.Context, identifier, window string, now time.Time) error {
	retryAfter := time.Second
	dur := windowDurations[window]
	oldest, err := l.store.OldestRateCounterTime(ctx, identifier, window, now.Add(-dur))
	if err == nil && !oldest.IsZero() {
		if wait := oldest.Add(dur).Sub(now); wait > retryAfter {
			retryAfter = wait
		}
	}
	return commonerrors.NewRateLimited(
		fmt.Sprintf("the %s window limit is exhausted", window),
		int32((retryAfter+time.Second-1)/time.Second))
}

// Record unconditionally charges cost against an identifier's windows.
// Used for post-hoc accounting once actual usage is known.
func (l *Limiter) Record(ctx context.Context, identifier string, cost int64) error {
	if !config.IsRateLimitEnable() || cost <= 0 {
		return nil
	}
	return l.store.InsertRateCounters(ctx, identifier,
		[]string{common.WindowMinute, common.WindowHour, common.WindowDay}, cost)
}

// Status reports consumption across all three windows plus the burst pool.
func (l *Limiter) Status(ctx context.Context, identifier, tierName string) ([]WindowStatus, error) {
	t := l.tier(tierName)
	now := time.Now()
	statuses := make([]WindowStatus, 0, 4)
	for _, window := range []string{common.WindowMinute, common.WindowHour, common.WindowDay, common.WindowBurst} {
		used, err := l.store.SumRateCounters(ctx, identifier, window, now.Add(-windowDurations[window]))
		if err != nil {
			return nil, err
		}
		limit := t.Burst
		if window != common.WindowBurst {
			limit = limitFor(t, window)
		}
		remaining := limit - used
		if remaining < 0 {
			remaining = 0
		}
		statuses = append(statuses, WindowStatus{
			Window:    window,
			Used:      used,
			Limit:     limit,
			Remaining: remaining,
		})
	}
	return statuses, nil
}

// Reset clears every counter for an identifier.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	return l.store.DeleteRateCountersForIdentifier(ctx, identifier)
}

// CleanupExpired drops counters older than the day window; nothing ever
// reads them again.
func (l *Limiter) CleanupExpired(ctx context.Context) (int64, error) {
	return l.store.DeleteRateCountersBefore(ctx, time.Now().Add(-windowDurations[common.WindowDay]))
}

// TenantIdentifier keys API-surface limits per tenant.
func TenantIdentifier(tenantId string) string {
	return "tenant:" + tenantId
}

// LLMRequestIdentifier keys outbound request counts per tenant and provider.
func LLMRequestIdentifier(tenantId, provider string) string {
	return fmt.Sprintf("llm:req:%s:%s", tenantId, provider)
}

// LLMTokenIdentifier keys outbound token consumption per tenant and provider.
func LLMTokenIdentifier(tenantId, provider string) string {
	return fmt.Sprintf("llm:tok:%s:%s", tenantId, provider)
}
