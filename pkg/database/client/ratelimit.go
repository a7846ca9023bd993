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

	"k8s.io/klog/v2"

	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
)

const (
	TRateLimitCounter = "rate_limit_counters"
)

var (
	insertRateCounterCmd = fmt.Sprintf(`INSERT INTO %s (identifier, window_label, cost, creation_time)
		VALUES ($1, $2, $3, NOW())`, TRateLimitCounter)

	sumRateCountersCmd = fmt.Sprintf(`SELECT COALESCE(SUM(cost), 0) FROM %s
		WHERE identifier = $1 AND window_label = $2 AND creation_time > $3`, TRateLimitCounter)

	oldestRateCounterCmd = fmt.Sprintf(`SELECT MIN(creation_time) FROM %s
		WHERE identifier = $1 AND window_label = $2 AND creation_time > $3`, TRateLimitCounter)

	deleteRateCountersBeforeCmd = fmt.Sprintf(`DELETE FROM %s WHERE creation_time < $1`, TRateLimitCounter)

	deleteRateCountersForIdCmd = fmt.Sprintf(`DELETE FROM %s WHERE identifier = $1`, TRateLimitCounter)
)

// InsertRateCounters records admitted cost against each given window label
// for the identifier, all in one transaction.
func (c *Client) InsertRateCounters(ctx context.Context, identifier string, windows []string, cost int64) error {
	if identifier == "" || len(windows) == 0 {
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
	for _, window := range windows {
		if _, err = tx.ExecContext(ctx, insertRateCounterCmd, identifier, window, cost); err != nil {
			klog.ErrorS(err, "failed to insert rate counter", "identifier", identifier, "window", window)
			return commonerrors.NewStorageError(err.Error())
		}
	}
	if err = tx.Commit(); err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	return nil
}

// SumRateCounters returns the admitted cost for the identifier and window
// label since the given time.
func (c *Client) SumRateCounters(ctx context.Context, identifier, window string, since time.Time) (int64, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	var sum int64
	err = db.GetContext(ctx, &sum, sumRateCountersCmd, identifier, window, since)
	if err != nil {
		return 0, commonerrors.NewStorageError(err.Error())
	}
	return sum, nil
}

// OldestRateCounterTime returns the creation time of the oldest live counter
// in the window, used to compute retry-after. Returns the zero time when the
// window is empty.
func (c *Client) OldestRateCounterTime(ctx context.Context, identifier, window string, since time.Time) (time.Time, error) {
	db, err := c.getDB()
	if err != nil {
		return time.Time{}, err
	}
	var oldest sql.NullTime
	err = db.GetContext(ctx, &oldest, oldestRateCounterCmd, identifier, window, since)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, commonerrors.NewStorageError(err.Error())
	}
	if !oldest.Valid {
		return time.Time{}, nil
	}
	return oldest.Time, nil
}

// DeleteRateCountersBefore purges counters older than the cutoff; rows past
// the largest window carry no information.
func (c *Client) DeleteRateCountersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	result, err := db.ExecContext(ctx, deleteRateCountersBeforeCmd, cutoff)
	if err != nil {
		return 0, commonerrors.NewStorageError(err.Error())
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// DeleteRateCountersForIdentifier resets all accounting for one identifier.
func (c *Client) DeleteRateCountersForIdentifier(ctx context.Context, identifier string) error {
	if identifier == "" {
		return commonerrors.NewBadRequest("identifier is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, deleteRateCountersForIdCmd, identifier); err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	return nil
}
