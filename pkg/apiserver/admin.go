/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package apiserver

import (
	"github.com/gin-gonic/gin"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
)

// GetQueueStats handles queue depth inspection.
func (h *Handler) GetQueueStats(c *gin.Context) {
	handle(c, h.getQueueStats)
}

// GetRateLimitStatus handles per-identifier window inspection.
func (h *Handler) GetRateLimitStatus(c *gin.Context) {
	handle(c, h.getRateLimitStatus)
}

// ResetRateLimit handles clearing an identifier's counters.
func (h *Handler) ResetRateLimit(c *gin.Context) {
	handle(c, h.resetRateLimit)
}

// GetCacheStats handles cache counter inspection.
func (h *Handler) GetCacheStats(c *gin.Context) {
	handle(c, h.getCacheStats)
}

// InvalidateCache handles targeted cache invalidation.
func (h *Handler) InvalidateCache(c *gin.Context) {
	handle(c, h.invalidateCache)
}

// ListDeadLetters handles dead-letter inspection.
func (h *Handler) ListDeadLetters(c *gin.Context) {
	handle(c, h.listDeadLetters)
}

// ListAuditLogs handles audit trail inspection.
func (h *Handler) ListAuditLogs(c *gin.Context) {
	handle(c, h.listAuditLogs)
}

func (h *Handler) getQueueStats(c *gin.Context) (interface{}, error) {
	return h.queue.Stats(c.Request.Context())
}

func (h *Handler) getRateLimitStatus(c *gin.Context) (interface{}, error) {
	identifier := c.Query("identifier")
	if identifier == "" {
		return nil, commonerrors.NewBadRequest("the identifier query parameter is required")
	}
	tier := c.Query("tier")
	if tier == "" {
		tier = tierOf(c)
	}
	windows, err := h.limiter.Status(c.Request.Context(), identifier, tier)
	if err != nil {
		return nil, err
	}
	return gin.H{"identifier": identifier, "tier": tier, "windows": windows}, nil
}

func (h *Handler) resetRateLimit(c *gin.Context) (interface{}, error) {
	identifier := c.Query("identifier")
	if identifier == "" {
		return nil, commonerrors.NewBadRequest("the identifier query parameter is required")
	}
	if err := h.limiter.Reset(c.Request.Context(), identifier); err != nil {
		return nil, err
	}
	return gin.H{"identifier": identifier, "reset": true}, nil
}

func (h *Handler) getCacheStats(c *gin.Context) (interface{}, error) {
	return h.cache.Stats(c.Request.Context()), nil
}

// InvalidateCacheRequest targets entries by exact key, source file, or tag.
// Exactly one selector must be set.
type InvalidateCacheRequest struct {
	Key             string `json:"key"`
	FileFingerprint string `json:"file_fingerprint"`
	Tag             string `json:"tag"`
}

func (h *Handler) invalidateCache(c *gin.Context) (interface{}, error) {
	var req InvalidateCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, commonerrors.NewBadRequest(err.Error())
	}
	ctx := c.Request.Context()
	var (
		removed int
		err     error
	)
	switch {
	case req.Key != "" && req.FileFingerprint == "" && req.Tag == "":
		removed, err = h.cache.InvalidateByKey(ctx, req.Key)
	case req.FileFingerprint != "" && req.Key == "" && req.Tag == "":
		removed, err = h.cache.InvalidateByFile(ctx, req.FileFingerprint)
	case req.Tag != "" && req.Key == "" && req.FileFingerprint == "":
		removed, err = h.cache.InvalidateByTag(ctx, req.Tag)
	default:
		return nil, commonerrors.NewBadRequest(
			"exactly one of key, file_fingerprint, or tag must be set")
	}
	if err != nil {
		return nil, err
	}
	h.audit(c, common.AuditActionCacheInvalidate, req.Key+req.FileFingerprint+req.Tag)
	return gin.H{"removed": removed}, nil
}

func (h *Handler) listDeadLetters(c *gin.Context) (interface{}, error) {
	limit, offset := pagination(c)
	letters, err := h.db.SelectDeadLetters(c.Request.Context(), limit, offset)
	if err != nil {
		return nil, err
	}
	return gin.H{"items": letters}, nil
}

func (h *Handler) listAuditLogs(c *gin.Context) (interface{}, error) {
	tenant := c.Query("tenant_id")
	if tenant == "" {
		tenant = tenantOf(c)
	}
	limit, offset := pagination(c)
	logs, err := h.db.SelectAuditLogs(c.Request.Context(), tenant, limit, offset)
	if err != nil {
		return nil, err
	}
	return gin.H{"items": logs}, nil
}
