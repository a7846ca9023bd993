/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/utils/concurrent"
)

const (
	dataSuffix = ".json"
	metaSuffix = ".meta"
	lockSuffix = ".lock"

	// a .lock older than this belongs to a dead writer and may be taken over
	lockStaleAge = 30 * time.Second

	lockAcquireTimeout = 5 * time.Second
	lockPollInterval   = 10 * time.Millisecond
)

// Meta sits beside every payload and is the sole authority on expiry:
// a payload without readable metadata is treated as absent.
type Meta struct {
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Key       string    `json:"original_key"`
}

type Interface interface {
	Put(key string, data []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	List(prefix string) ([]string, error)
	Sweep() (int, error)
}

// Store is a content-addressed key/value store over the local filesystem.
// Payloads live at <base>/<hh>/<hh>/<sha256(key)>.json with a sibling .meta.
type Store struct {
	basePath     string
	maxKeyLength int
}

var (
	store     *Store
	storeOnce sync.Once
	storeErr  error
)

// NewStore returns the process-wide blob store rooted at the configured
// base path.
func NewStore() (*Store, error) {
	storeOnce.Do(func() {
		store, storeErr = newStore(config.GetBlobBasePath(), config.GetBlobMaxKeyLength())
	})
	return store, storeErr
}

func newStore(basePath string, maxKeyLength int) (*Store, error) {
	if basePath == "" {
		return nil, fmt.Errorf("the blob base path is empty")
	}
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob base path %s: %v", basePath, err)
	}
	return &Store{
		basePath:     basePath,
		maxKeyLength: maxKeyLength,
	}, nil
}

// paths maps a key to its sharded data/meta/lock paths.
func (s *Store) paths(key string) (dataPath, metaPath, lockPath string) {
	sum := sha256.Sum256([]byte(key))
	hash := hex.EncodeToString(sum[:])
	dir := filepath.Join(s.basePath, hash[0:2], hash[2:4])
	base := filepath.Join(dir, hash)
	return base + dataSuffix, base + metaSuffix, base + lockSuffix
}

func (s *Store) checkKey(key string) error {
	if key == "" {
		return commonerrors.NewBadRequest("the blob key is empty")
	}
	if s.maxKeyLength > 0 && len(key) > s.maxKeyLength {
		return commonerrors.NewBadRequest(fmt.Sprintf("the blob key exceeds %d bytes", s.maxKeyLength))
	}
	return nil
}

// acquireLock takes the advisory per-key lock. Writers and deleters hold
// it; readers do not. A lock left behind by a dead process is taken over
// once it ages past lockStaleAge.
func (s *Store) acquireLock(lockPath string) (release func(), err error) {
	deadline := time.Now().Add(lockAcquireTimeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
		if err == nil {
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, commonerrors.NewStorageError(err.Error())
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > lockStaleAge {
			klog.Warningf("taking over stale blob lock %s", lockPath)
			_ = os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return nil, commonerrors.NewStorageError(fmt.Sprintf("timed out waiting for blob lock %s", lockPath))
		}
		time.Sleep(lockPollInterval)
	}
}

// Put stores a payload under key with the given ttl. The payload and its
// metadata are each written to a tempfile and renamed into place.
func (s *Store) Put(key string, data []byte, ttl time.Duration) error {
	if err := s.checkKey(key); err != nil {
		return err
	}
	dataPath, metaPath, lockPath := s.paths(key)
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	release, err := s.acquireLock(lockPath)
	if err != nil {
		return err
	}
	defer release()

	now := time.Now().UTC()
	meta := Meta{
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Key:       key,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	if err = writeFileAtomic(dataPath, data); err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	if err = writeFileAtomic(metaPath, metaBytes); err != nil {
		_ = os.Remove(dataPath)
		return commonerrors.NewStorageError(err.Error())
	}
	return nil
}

// Get returns the payload for key, or BlobNotFound when the key is absent
// or its metadata has expired. An expired pair is reclaimed in the
// background.
func (s *Store) Get(key string) ([]byte, error) {
	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	dataPath, metaPath, _ := s.paths(key)
	meta, err := readMeta(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, commonerrors.NewBlobNotFound(key)
		}
		return nil, commonerrors.NewStorageError(err.Error())
	}
	if time.Now().After(meta.ExpiresAt) {
		go func() {
			if err := s.Delete(key); err != nil {
				klog.ErrorS(err, "failed to reclaim expired blob", "key", key)
			}
		}()
		return nil, commonerrors.NewBlobNotFound(key)
	}
	data, err := os.ReadFile(dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, commonerrors.NewBlobNotFound(key)
		}
		return nil, commonerrors.NewStorageError(err.Error())
	}
	return data, nil
}

// Delete removes the payload/metadata pair for key. Deleting an absent
// key is not an error.
func (s *Store) Delete(key string) error {
	if err := s.checkKey(key); err != nil {
		return err
	}
	dataPath, metaPath, lockPath := s.paths(key)
	release, err := s.acquireLock(lockPath)
	if err != nil {
		return err
	}
	defer release()
	return removePair(dataPath, metaPath)
}

// List returns the original keys of all live blobs whose key starts with
// prefix.
func (s *Store) List(prefix string) ([]string, error) {
	var keys []string
	now := time.Now()
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return err
		}
		meta, err := readMeta(path)
		if err != nil {
			// a reader racing a writer can see a half-landed pair
			return nil
		}
		if now.After(meta.ExpiresAt) {
			return nil
		}
		if strings.HasPrefix(meta.Key, prefix) {
			keys = append(keys, meta.Key)
		}
		return nil
	})
	if err != nil {
		return nil, commonerrors.NewStorageError(err.Error())
	}
	return keys, nil
}

type expiredBlob struct {
	key  string
	base string
}

// Sweep walks the tree collecting expired pairs, then reclaims them
// concurrently. It returns the number of blobs removed; individual
// reclaim failures are logged, not fatal.
func (s *Store) Sweep() (int, error) {
	var expired []expiredBlob
	now := time.Now()
	walkErr := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return err
		}
		meta, err := readMeta(path)
		if err != nil {
			return nil
		}
		if !now.After(meta.ExpiresAt) {
			return nil
		}
		expired = append(expired, expiredBlob{key: meta.Key, base: strings.TrimSuffix(path, metaSuffix)})
		return nil
	})

	count := len(expired)
	if count == 0 {
		if walkErr != nil {
			return 0, commonerrors.NewStorageError(walkErr.Error())
		}
		return 0, nil
	}
	ch := make(chan expiredBlob, count)
	for _, blob := range expired {
		ch <- blob
	}
	reclaimed, _ := concurrent.Exec(count, func() error {
		blob := <-ch
		release, err := s.acquireLock(blob.base + lockSuffix)
		if err != nil {
			klog.ErrorS(err, "skipping locked expired blob", "key", blob.key)
			return err
		}
		defer release()
		if err = removePair(blob.base+dataSuffix, blob.base+metaSuffix); err != nil {
			klog.ErrorS(err, "failed to reclaim expired blob", "key", blob.key)
			return err
		}
		return nil
	})
	if walkErr != nil {
		return reclaimed, commonerrors.NewStorageError(walkErr.Error())
	}
	return reclaimed, nil
}

func readMeta(metaPath string) (*Meta, error) {
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err = json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

func removePair(dataPath, metaPath string) error {
	// metadata goes first so a crash mid-delete leaves an absent blob,
	// never a live one without a payload
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(dataPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
