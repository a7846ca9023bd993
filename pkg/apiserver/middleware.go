/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package apiserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/trace"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
)

const (
	// tier assumed for callers when session tokens are disabled
	anonymousTier   = "standard"
	anonymousTenant = "default"

	adminTier = "enterprise"
)

// Trace opens a span per request. The span context rides the request so
// downstream store and pipeline calls become its children.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := trace.StartSpan(c.Request.Context(), c.Request.Method+" "+c.FullPath())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		trace.SetAttributes(ctx,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
			attribute.Int("http.status_code", c.Writer.Status()),
			attribute.String("tenant.id", tenantOf(c)),
		)
		if c.Writer.Status() >= http.StatusInternalServerError {
			trace.RecordError(ctx, fmt.Errorf("request failed with status %d", c.Writer.Status()))
		}
		trace.FinishSpan(span)
	}
}

// Authorize resolves the caller's tenant and tier. With session tokens
// enabled the bearer token (or API-key header) must resolve to a live
// session; otherwise the tenant comes from the request header with an
// anonymous default.
func Authorize(db *dbclient.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.IsUserTokenRequired() {
			tenant := c.GetHeader("X-Tenant-Id")
			if tenant == "" {
				tenant = anonymousTenant
			}
			c.Set(common.TenantIdContextKey, tenant)
			c.Set(common.UserTierContextKey, anonymousTier)
			c.Next()
			return
		}

		token := c.GetHeader(common.ApiKeyHeader)
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader(common.AuthorizationKey), "Bearer ")
		}
		session, err := db.GetUserToken(c.Request.Context(), token)
		if err != nil {
			AbortWithApiError(c, err)
			return
		}
		c.Set(common.TenantIdContextKey, session.UserId)
		c.Set(common.UserTierContextKey, session.Tier)
		c.Next()
	}
}

// RequireAdmin restricts a route group to the administrative tier. When
// session tokens are disabled the guard is a no-op: the deployment is
// assumed to be private.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.IsUserTokenRequired() {
			c.Next()
			return
		}
		if tier := c.GetString(common.UserTierContextKey); tier != adminTier {
			AbortWithApiError(c, commonerrors.NewForbidden("administrative access required"))
			return
		}
		c.Next()
	}
}

func tenantOf(c *gin.Context) string {
	return c.GetString(common.TenantIdContextKey)
}

func tierOf(c *gin.Context) string {
	return c.GetString(common.UserTierContextKey)
}
