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

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
)

const (
	TCacheEntry = "cache_entries"
)

var (
	insertCacheEntryFormat = `INSERT INTO ` + TCacheEntry + ` (%s) VALUES (%s)
		ON CONFLICT (cache_key) DO UPDATE
		SET blob_ref = EXCLUDED.blob_ref,
		    schema_version = EXCLUDED.schema_version,
		    tags = EXCLUDED.tags,
		    creation_time = EXCLUDED.creation_time,
		    expire_time = EXCLUDED.expire_time`

	getCacheEntryCmd = fmt.Sprintf(`SELECT * FROM %s WHERE cache_key = $1 LIMIT 1`, TCacheEntry)

	touchCacheEntryCmd = fmt.Sprintf(`UPDATE %s SET access_count = access_count + 1
		WHERE cache_key = $1`, TCacheEntry)

	deleteCacheByKeyCmd  = fmt.Sprintf(`DELETE FROM %s WHERE cache_key = $1 RETURNING blob_ref`, TCacheEntry)
	deleteCacheByFileCmd = fmt.Sprintf(`DELETE FROM %s WHERE file_fingerprint = $1 RETURNING blob_ref`, TCacheEntry)
	deleteCacheByTagCmd  = fmt.Sprintf(`DELETE FROM %s WHERE $1 = ANY(tags) RETURNING blob_ref`, TCacheEntry)
	deleteCacheExpired   = fmt.Sprintf(`DELETE FROM %s WHERE expire_time <= NOW() RETURNING blob_ref`, TCacheEntry)
)

// UpsertCacheEntry writes a cache index row, replacing any prior entry under
// the same key.
func (c *Client) UpsertCacheEntry(ctx context.Context, entry *CacheEntry) error {
	if entry == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.NamedExecContext(ctx, generateCommand(*entry, insertCacheEntryFormat, "id"), entry)
	if err != nil {
		klog.ErrorS(err, "failed to upsert cache entry", "key", entry.CacheKey)
		return commonerrors.NewStorageError(err.Error())
	}
	return nil
}

// LookupCacheEntry fetches the index row for a key, expired or not; the
// cache layer decides liveness. Returns (nil, nil) on miss.
func (c *Client) LookupCacheEntry(ctx context.Context, cacheKey string) (*CacheEntry, error) {
	if cacheKey == "" {
		return nil, commonerrors.NewBadRequest("cacheKey is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	var entry CacheEntry
	err = db.GetContext(ctx, &entry, getCacheEntryCmd, cacheKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, commonerrors.NewStorageError(err.Error())
	}
	return &entry, nil
}

// TouchCacheEntry bumps the access counter in place. Failures are not fatal
// for the read path.
func (c *Client) TouchCacheEntry(ctx context.Context, cacheKey string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, touchCacheEntryCmd, cacheKey); err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	return nil
}

// DeleteCacheByKey removes one entry and returns the blob references of the
// deleted rows so the caller can reclaim the documents.
func (c *Client) DeleteCacheByKey(ctx context.Context, cacheKey string) ([]string, error) {
	return c.deleteCacheReturning(ctx, deleteCacheByKeyCmd, cacheKey)
}

// DeleteCacheByFile removes every entry derived from the given file
// fingerprint.
func (c *Client) DeleteCacheByFile(ctx context.Context, fileFingerprint string) ([]string, error) {
	return c.deleteCacheReturning(ctx, deleteCacheByFileCmd, fileFingerprint)
}

// DeleteCacheByTag removes every entry carrying the tag.
func (c *Client) DeleteCacheByTag(ctx context.Context, tag string) ([]string, error) {
	return c.deleteCacheReturning(ctx, deleteCacheByTagCmd, tag)
}

// DeleteExpiredCacheEntries reclaims index rows whose expiry has passed.
func (c *Client) DeleteExpiredCacheEntries(ctx context.Context) ([]string, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	return collectBlobRefs(db.QueryContext(ctx, deleteCacheExpired))
}

func (c *Client) deleteCacheReturning(ctx context.Context, cmd, arg string) ([]string, error) {
	if arg == "" {
		return nil, commonerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	return collectBlobRefs(db.QueryContext(ctx, cmd, arg))
}

func collectBlobRefs(rows *sql.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, commonerrors.NewStorageError(err.Error())
	}
	defer rows.Close()
	var refs []string
	for rows.Next() {
		var ref string
		if err = rows.Scan(&ref); err != nil {
			return refs, commonerrors.NewStorageError(err.Error())
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// CountCacheEntries returns the number of live index rows.
func (c *Client) CountCacheEntries(ctx context.Context) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	var cnt int
	err = db.GetContext(ctx, &cnt,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE expire_time > NOW()`, TCacheEntry))
	if err != nil {
		return 0, commonerrors.NewStorageError(err.Error())
	}
	return cnt, nil
}

// SelectCacheEntries retrieves cache index rows for the admin surface.
func (c *Client) SelectCacheEntries(ctx context.Context, query sqrl.Sqlizer, limit, offset int) ([]*CacheEntry, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	dbTags := GetCacheEntryFieldTags()
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("*").From(TCacheEntry).
		OrderBy(GetFieldTag(dbTags, "CreationTime") + " " + DESC)
	if query != nil {
		builder = builder.Where(query)
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
	var entries []*CacheEntry
	if err = db.SelectContext(ctx, &entries, sqlStr, args...); err != nil {
		return nil, commonerrors.NewStorageError(err.Error())
	}
	return entries, nil
}
