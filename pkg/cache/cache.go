/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/blobstore"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/types"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
)

var ttlMultipliers = map[string]float64{
	common.AnalysisDepthBasic:         0.5,
	common.AnalysisDepthStandard:      1.0,
	common.AnalysisDepthComprehensive: 2.0,
	common.AnalysisDepthDeep:          3.0,
}

var cacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bin2nlp_cache_operations_total",
	Help: "Result cache operations by outcome.",
}, []string{"op"})

// index is the slice of the metadata store the cache reads and writes.
type index interface {
	UpsertCacheEntry(ctx context.Context, entry *dbclient.CacheEntry) error
	LookupCacheEntry(ctx context.Context, cacheKey string) (*dbclient.CacheEntry, error)
	TouchCacheEntry(ctx context.Context, cacheKey string) error
	DeleteCacheByKey(ctx context.Context, cacheKey string) ([]string, error)
	DeleteCacheByFile(ctx context.Context, fileFingerprint string) ([]string, error)
	DeleteCacheByTag(ctx context.Context, tag string) ([]string, error)
	DeleteExpiredCacheEntries(ctx context.Context) ([]string, error)
	CountCacheEntries(ctx context.Context) (int, error)
}

// Stats is a point-in-time snapshot of cache activity since process start.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Sets        int64 `json:"sets"`
	Deletes     int64 `json:"deletes"`
	Errors      int64 `json:"errors"`
	LiveEntries int   `json:"live_entries"`
}

// Cache memoizes completed result documents. The index rows live in the
// metadata store; the documents themselves live in the blob store under
// the cache key.
type Cache struct {
	index index
	blobs blobstore.Interface

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	errors  atomic.Int64
}

func NewCache(index index, blobs blobstore.Interface) *Cache {
	return &Cache{
		index: index,
		blobs: blobs,
	}
}

// Get returns the cached result document for a file/config pair, or nil on
// a miss. An entry written under a different schema version is invalidated
// and reported as a miss.
func (c *Cache) Get(ctx context.Context, fileFingerprint string, cfg *types.JobConfig) ([]byte, error) {
	if !config.IsCacheEnable() {
		return nil, nil
	}
	key := Key(fileFingerprint, cfg.ToMap())
	entry, err := c.index.LookupCacheEntry(ctx, key)
	if err != nil {
		c.errors.Add(1)
		cacheOps.WithLabelValues("error").Inc()
		klog.ErrorS(err, "cache lookup failed", "key", key)
		return nil, nil
	}
	if entry == nil {
		return c.miss(), nil
	}
	if entry.ExpireTime.Valid && time.Now().After(entry.ExpireTime.Time) {
		c.invalidateEntry(ctx, key)
		return c.miss(), nil
	}
	if entry.SchemaVersion != config.GetCacheSchemaVersion() {
		klog.Infof("invalidating cache entry %s: schema %s != %s",
			key, entry.SchemaVersion, config.GetCacheSchemaVersion())
		c.invalidateEntry(ctx, key)
		return c.miss(), nil
	}
	data, err := c.blobs.Get(entry.BlobRef)
	if err != nil {
		if !commonerrors.IsBlobNotFound(err) {
			c.errors.Add(1)
			cacheOps.WithLabelValues("error").Inc()
			klog.ErrorS(err, "cache blob read failed", "key", key)
		}
		c.invalidateEntry(ctx, key)
		return c.miss(), nil
	}
	if err = c.index.TouchCacheEntry(ctx, key); err != nil {
		klog.ErrorS(err, "failed to bump cache access counter", "key", key)
	}
	c.hits.Add(1)
	cacheOps.WithLabelValues("hit").Inc()
	return data, nil
}

// Set stores a result document for a file/config pair. The TTL scales with
// analysis depth; the entry is tagged for depth, provider, and extracted
// artifact classes.
func (c *Cache) Set(ctx context.Context, fileFingerprint string, cfg *types.JobConfig, doc []byte) error {
	if !config.IsCacheEnable() {
		return nil
	}
	key := Key(fileFingerprint, cfg.ToMap())
	ttl := c.ttlFor(cfg.AnalysisDepth)
	if err := c.blobs.Put(key, doc, ttl); err != nil {
		c.errors.Add(1)
		cacheOps.WithLabelValues("error").Inc()
		return err
	}
	now := time.Now().UTC()
	entry := &dbclient.CacheEntry{
		CacheKey:          key,
		FileFingerprint:   fileFingerprint,
		ConfigFingerprint: ConfigFingerprint(cfg.ToMap()),
		BlobRef:           key,
		SchemaVersion:     config.GetCacheSchemaVersion(),
		Tags:              tagsFor(cfg),
		CreationTime:      pq.NullTime{Time: now, Valid: true},
		ExpireTime:        pq.NullTime{Time: now.Add(ttl), Valid: true},
	}
	if err := c.index.UpsertCacheEntry(ctx, entry); err != nil {
		c.errors.Add(1)
		cacheOps.WithLabelValues("error").Inc()
		return err
	}
	c.sets.Add(1)
	cacheOps.WithLabelValues("set").Inc()
	return nil
}

// InvalidateByKey drops one entry and its blob.
func (c *Cache) InvalidateByKey(ctx context.Context, key string) (int, error) {
	refs, err := c.index.DeleteCacheByKey(ctx, key)
	return c.reclaim(refs, err)
}

// InvalidateByFile drops every entry derived from a file fingerprint.
func (c *Cache) InvalidateByFile(ctx context.Context, fileFingerprint string) (int, error) {
	refs, err := c.index.DeleteCacheByFile(ctx, fileFingerprint)
	return c.reclaim(refs, err)
}

// InvalidateByTag drops every entry carrying the tag.
func (c *Cache) InvalidateByTag(ctx context.Context, tag string) (int, error) {
	refs, err := c.index.DeleteCacheByTag(ctx, tag)
	return c.reclaim(refs, err)
}

// SweepExpired drops every expired entry and reclaims its blob.
func (c *Cache) SweepExpired(ctx context.Context) (int, error) {
	refs, err := c.index.DeleteExpiredCacheEntries(ctx)
	return c.reclaim(refs, err)
}

// Stats returns activity counters and the live entry count. The count is
// best-effort: an index failure leaves it at zero.
func (c *Cache) Stats(ctx context.Context) Stats {
	stats := Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
		Errors:  c.errors.Load(),
	}
	count, err := c.index.CountCacheEntries(ctx)
	if err != nil {
		klog.ErrorS(err, "failed to count cache entries")
		return stats
	}
	stats.LiveEntries = count
	return stats
}

func (c *Cache) ttlFor(depth string) time.Duration {
	base := time.Duration(config.GetCacheBaseTTLHour()) * time.Hour
	if m, ok := ttlMultipliers[depth]; ok {
		return time.Duration(float64(base) * m)
	}
	return base
}

func (c *Cache) miss() []byte {
	c.misses.Add(1)
	cacheOps.WithLabelValues("miss").Inc()
	return nil
}

func (c *Cache) invalidateEntry(ctx context.Context, key string) {
	if _, err := c.InvalidateByKey(ctx, key); err != nil {
		klog.ErrorS(err, "failed to invalidate cache entry", "key", key)
	}
}

func (c *Cache) reclaim(refs []string, err error) (int, error) {
	if err != nil {
		c.errors.Add(1)
		cacheOps.WithLabelValues("error").Inc()
		return 0, err
	}
	for _, ref := range refs {
		if err := c.blobs.Delete(ref); err != nil {
			klog.ErrorS(err, "failed to reclaim cache blob", "ref", ref)
		}
	}
	n := len(refs)
	c.deletes.Add(int64(n))
	cacheOps.WithLabelValues("delete").Add(float64(n))
	return n, nil
}

func tagsFor(cfg *types.JobConfig) pq.StringArray {
	tags := pq.StringArray{
		"depth:" + cfg.AnalysisDepth,
		"provider:" + cfg.Provider,
		"extract:functions",
	}
	switch cfg.TranslationDetail {
	case common.TranslationDetailStandard:
		tags = append(tags, "extract:imports")
	case common.TranslationDetailDetailed:
		tags = append(tags, "extract:imports", "extract:strings")
	}
	return tags
}
