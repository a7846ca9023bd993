/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/types"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
)

type fakeIndex struct {
	entries map[string]*dbclient.CacheEntry
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: map[string]*dbclient.CacheEntry{}}
}

func (f *fakeIndex) UpsertCacheEntry(_ context.Context, entry *dbclient.CacheEntry) error {
	f.entries[entry.CacheKey] = entry
	return nil
}

func (f *fakeIndex) LookupCacheEntry(_ context.Context, cacheKey string) (*dbclient.CacheEntry, error) {
	return f.entries[cacheKey], nil
}

func (f *fakeIndex) TouchCacheEntry(_ context.Context, cacheKey string) error {
	if e, ok := f.entries[cacheKey]; ok {
		e.AccessCount++
	}
	return nil
}

func (f *fakeIndex) DeleteCacheByKey(_ context.Context, cacheKey string) ([]string, error) {
	if e, ok := f.entries[cacheKey]; ok {
		delete(f.entries, cacheKey)
		return []string{e.BlobRef}, nil
	}
	return nil, nil
}

func (f *fakeIndex) DeleteCacheByFile(_ context.Context, fileFingerprint string) ([]string, error) {
	var refs []string
	for k, e := range f.entries {
		if e.FileFingerprint == fileFingerprint {
			refs = append(refs, e.BlobRef)
			delete(f.entries, k)
		}
	}
	return refs, nil
}

func (f *fakeIndex) DeleteCacheByTag(_ context.Context, tag string) ([]string, error) {
	var refs []string
	for k, e := range f.entries {
		for _, t := range e.Tags {
			if t == tag {
				refs = append(refs, e.BlobRef)
				delete(f.entries, k)
				break
			}
		}
	}
	return refs, nil
}

func (f *fakeIndex) DeleteExpiredCacheEntries(_ context.Context) ([]string, error) {
	var refs []string
	now := time.Now()
	for k, e := range f.entries {
		if e.ExpireTime.Valid && now.After(e.ExpireTime.Time) {
			refs = append(refs, e.BlobRef)
			delete(f.entries, k)
		}
	}
	return refs, nil
}

func (f *fakeIndex) CountCacheEntries(_ context.Context) (int, error) {
	return len(f.entries), nil
}

type fakeBlobs struct {
	data map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: map[string][]byte{}}
}

func (f *fakeBlobs) Put(key string, data []byte, _ time.Duration) error {
	f.data[key] = data
	return nil
}

func (f *fakeBlobs) Get(key string) ([]byte, error) {
	if d, ok := f.data[key]; ok {
		return d, nil
	}
	return nil, commonerrors.NewBlobNotFound(key)
}

func (f *fakeBlobs) Delete(key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeBlobs) List(prefix string) ([]string, error) {
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeBlobs) Sweep() (int, error) { return 0, nil }

func testConfig() *types.JobConfig {
	return &types.JobConfig{
		AnalysisDepth:     common.AnalysisDepthStandard,
		TranslationDetail: common.TranslationDetailStandard,
		Provider:          "openai",
	}
}

const testFp = "0123456789abcdef0123456789abcdef"

func TestKeyShape(t *testing.T) {
	key := Key(testFp, testConfig().ToMap())
	assert.True(t, strings.HasPrefix(key, "result:0123456789abcdef:"))
	assert.NotContains(t, key[len("result:"):], "result")
}

func TestKeyIgnoresUnrecognizedConfig(t *testing.T) {
	cfg := testConfig().ToMap()
	base := Key(testFp, cfg)
	cfg["some_future_flag"] = "true"
	assert.Equal(t, base, Key(testFp, cfg))

	cfg["provider"] = "anthropic"
	assert.NotEqual(t, base, Key(testFp, cfg))
}

func TestKeyLengthBoundFallsBackToHash(t *testing.T) {
	config.SetValue("cache.max_key_length", "20")
	defer config.SetValue("cache.max_key_length", "250")

	key := Key(testFp, testConfig().ToMap())
	assert.True(t, strings.HasPrefix(key, "result:hash:"))
}

func TestSetThenGet(t *testing.T) {
	c := NewCache(newFakeIndex(), newFakeBlobs())
	ctx := context.Background()
	cfg := testConfig()

	doc := []byte(`{"success":true}`)
	require.NoError(t, c.Set(ctx, testFp, cfg, doc))

	got, err := c.Get(ctx, testFp, cfg)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	stats := c.Stats(ctx)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 1, stats.LiveEntries)
}

func TestGetMiss(t *testing.T) {
	c := NewCache(newFakeIndex(), newFakeBlobs())
	got, err := c.Get(context.Background(), testFp, testConfig())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int64(1), c.Stats(context.Background()).Misses)
}

func TestSchemaVersionMismatchInvalidates(t *testing.T) {
	idx := newFakeIndex()
	blobs := newFakeBlobs()
	c := NewCache(idx, blobs)
	ctx := context.Background()
	cfg := testConfig()

	require.NoError(t, c.Set(ctx, testFp, cfg, []byte("doc")))
	for _, e := range idx.entries {
		e.SchemaVersion = "v0"
	}

	got, err := c.Get(ctx, testFp, cfg)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, idx.entries)
	assert.Empty(t, blobs.data)
}

func TestExpiredEntryIsMiss(t *testing.T) {
	idx := newFakeIndex()
	c := NewCache(idx, newFakeBlobs())
	ctx := context.Background()
	cfg := testConfig()

	require.NoError(t, c.Set(ctx, testFp, cfg, []byte("doc")))
	for _, e := range idx.entries {
		e.ExpireTime = pq.NullTime{Time: time.Now().Add(-time.Minute), Valid: true}
	}

	got, err := c.Get(ctx, testFp, cfg)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInvalidateByFileReclaimsBlobs(t *testing.T) {
	idx := newFakeIndex()
	blobs := newFakeBlobs()
	c := NewCache(idx, blobs)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, testFp, testConfig(), []byte("a")))
	other := testConfig()
	other.Provider = "anthropic"
	require.NoError(t, c.Set(ctx, testFp, other, []byte("b")))

	n, err := c.InvalidateByFile(ctx, testFp)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, blobs.data)
}

func TestInvalidateByTag(t *testing.T) {
	idx := newFakeIndex()
	c := NewCache(idx, newFakeBlobs())
	ctx := context.Background()

	deep := testConfig()
	deep.AnalysisDepth = common.AnalysisDepthDeep
	require.NoError(t, c.Set(ctx, testFp, testConfig(), []byte("a")))
	require.NoError(t, c.Set(ctx, "ffff0000ffff0000ffff", deep, []byte("b")))

	n, err := c.InvalidateByTag(ctx, "depth:deep")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, idx.entries, 1)
}

func TestTagsFollowDetailLevel(t *testing.T) {
	basic := testConfig()
	basic.TranslationDetail = common.TranslationDetailBasic
	assert.NotContains(t, tagsFor(basic), "extract:imports")

	detailed := testConfig()
	detailed.TranslationDetail = common.TranslationDetailDetailed
	assert.Contains(t, tagsFor(detailed), "extract:imports")
	assert.Contains(t, tagsFor(detailed), "extract:strings")
}

func TestTTLScalesWithDepth(t *testing.T) {
	c := NewCache(newFakeIndex(), newFakeBlobs())
	base := c.ttlFor(common.AnalysisDepthStandard)
	assert.Equal(t, base/2, c.ttlFor(common.AnalysisDepthBasic))
	assert.Equal(t, 2*base, c.ttlFor(common.AnalysisDepthComprehensive))
	assert.Equal(t, 3*base, c.ttlFor(common.AnalysisDepthDeep))
}
