/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
)

// InitHttpHandlers builds the gin engine and registers every route.
func InitHttpHandlers(h *Handler, db *dbclient.Client) *gin.Engine {
	engine := gin.New()
	engine.Use(Logger(), Trace(), gin.Recovery())
	engine.NoRoute(func(c *gin.Context) {
		AbortWithApiError(c, commonerrors.NewNotFoundWithMessage(
			"the requested resource is not found"))
	})

	engine.GET("/healthz", func(c *gin.Context) {
		if err := db.Ping(c.Request.Context()); err != nil {
			c.String(http.StatusServiceUnavailable, "database unreachable")
			return
		}
		c.String(http.StatusOK, "ok")
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	root := engine.Group(common.RouterCustomRoot, Authorize(db))
	{
		root.POST("/jobs", h.SubmitJob)
		root.GET("/jobs", h.ListJobs)
		root.GET("/jobs/:id", h.GetJobStatus)
		root.DELETE("/jobs/:id", h.CancelJob)

		root.POST("/credentials", h.CreateCredential)
		root.GET("/credentials", h.ListCredentials)
		root.DELETE("/credentials/:id", h.DeleteCredential)
	}

	admin := root.Group("/admin", RequireAdmin())
	{
		admin.GET("/queue/stats", h.GetQueueStats)
		admin.GET("/ratelimit/status", h.GetRateLimitStatus)
		admin.POST("/ratelimit/reset", h.ResetRateLimit)
		admin.GET("/cache/stats", h.GetCacheStats)
		admin.POST("/cache/invalidate", h.InvalidateCache)
		admin.GET("/deadletters", h.ListDeadLetters)
		admin.GET("/auditlogs", h.ListAuditLogs)
	}

	return engine
}
