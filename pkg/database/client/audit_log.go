/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
)

// InsertAuditLog appends one audit row through the gorm path. Audit writes
// are best-effort for callers: they log failures and move on.
func (c *Client) InsertAuditLog(ctx context.Context, entry *AuditLog) error {
	if entry == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	db, err := c.GetGormDB()
	if err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err = db.WithContext(ctx).Create(entry).Error; err != nil {
		klog.ErrorS(err, "failed to insert audit log", "action", entry.Action)
		return commonerrors.NewStorageError(err.Error())
	}
	return nil
}

// SelectAuditLogs lists a tenant's audit trail, newest first.
func (c *Client) SelectAuditLogs(ctx context.Context, tenantId string, limit, offset int) ([]*AuditLog, error) {
	db, err := c.GetGormDB()
	if err != nil {
		return nil, err
	}
	var logs []*AuditLog
	query := db.WithContext(ctx).Order("created_at desc")
	if tenantId != "" {
		query = query.Where("tenant_id = ?", tenantId)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err = query.Find(&logs).Error; err != nil {
		return nil, commonerrors.NewStorageError(err.Error())
	}
	return logs, nil
}
