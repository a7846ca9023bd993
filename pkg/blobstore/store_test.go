/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/utils/concurrent"
)

func newTestStore(t *testing.T) *Store {
	s, err := newStore(t.TempDir(), 256)
	require.NoError(t, err)
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	err := s.Put("upload:abc", []byte(`{"hello":"world"}`), time.Hour)
	require.NoError(t, err)

	data, err := s.Get("upload:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"hello":"world"}`, string(data))
}

func TestGetMissingKey(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("no-such-key")
	assert.True(t, commonerrors.IsBlobNotFound(err))
}

func TestExpiredBlobIsAbsent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put("short-lived", []byte("x"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := s.Get("short-lived")
	assert.True(t, commonerrors.IsBlobNotFound(err))
}

func TestShardedLayout(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put("layout-key", []byte("x"), time.Hour))

	dataPath, metaPath, _ := s.paths("layout-key")
	rel, err := filepath.Rel(s.basePath, dataPath)
	require.NoError(t, err)
	parts := strings.Split(rel, string(filepath.Separator))
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 2)
	assert.Len(t, parts[1], 2)
	assert.True(t, strings.HasPrefix(parts[2], parts[0]+parts[1]))

	_, err = os.Stat(metaPath)
	assert.NoError(t, err)
}

func TestKeyLengthBound(t *testing.T) {
	s, err := newStore(t.TempDir(), 10)
	require.NoError(t, err)

	err = s.Put(strings.Repeat("k", 11), []byte("x"), time.Hour)
	assert.True(t, commonerrors.IsBadRequest(err))

	_, err = s.Get(strings.Repeat("k", 11))
	assert.True(t, commonerrors.IsBadRequest(err))
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put("gone", []byte("x"), time.Hour))
	require.NoError(t, s.Delete("gone"))
	require.NoError(t, s.Delete("gone"))

	_, err := s.Get("gone")
	assert.True(t, commonerrors.IsBlobNotFound(err))
}

func TestListByPrefix(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put("result:aaa", []byte("1"), time.Hour))
	require.NoError(t, s.Put("result:bbb", []byte("2"), time.Hour))
	require.NoError(t, s.Put("upload:ccc", []byte("3"), time.Hour))

	keys, err := s.List("result:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"result:aaa", "result:bbb"}, keys)
}

func TestSweepReclaimsExpiredOnly(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put("old", []byte("x"), time.Millisecond))
	require.NoError(t, s.Put("fresh", []byte("y"), time.Hour))
	time.Sleep(5 * time.Millisecond)

	n, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, metaPath, _ := s.paths("old")
	_, err = os.Stat(metaPath)
	assert.True(t, os.IsNotExist(err))

	data, err := s.Get("fresh")
	require.NoError(t, err)
	assert.Equal(t, "y", string(data))
}

func TestSweepReclaimsManyExpired(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 16; i++ {
		require.NoError(t, s.Put(fmt.Sprintf("expired-%d", i), []byte("x"), time.Millisecond))
	}
	require.NoError(t, s.Put("fresh", []byte("y"), time.Hour))
	time.Sleep(5 * time.Millisecond)

	n, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	n, err = s.Sweep()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.Get("fresh")
	assert.NoError(t, err)
}

func TestConcurrentPutsSameKey(t *testing.T) {
	s := newTestStore(t)
	successes, err := concurrent.Exec(8, func() error {
		return s.Put("hot", []byte("payload"), time.Hour)
	})
	require.NoError(t, err)
	assert.Equal(t, 8, successes)

	data, err := s.Get("hot")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestStaleLockTakenOver(t *testing.T) {
	s := newTestStore(t)
	_, _, lockPath := s.paths("contested")
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0o750))
	require.NoError(t, os.WriteFile(lockPath, nil, 0o640))
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	assert.NoError(t, s.Put("contested", []byte("x"), time.Hour))
}
