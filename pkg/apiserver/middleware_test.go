/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package apiserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commontrace "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/trace"
)

func TestAuthorizeWithoutTokens(t *testing.T) {
	config.SetValue("user.token_required", "false")
	defer config.SetValue("user.token_required", "true")

	engine := gin.New()
	engine.Use(Authorize(nil))
	engine.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": tenantOf(c), "tier": tierOf(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Tenant-Id", "acme")
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "acme")
	assert.Contains(t, w.Body.String(), anonymousTier)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Contains(t, w.Body.String(), anonymousTenant)
}

func TestTraceMiddlewareStartsRequestSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)))
	defer otel.SetTracerProvider(prev)

	engine := gin.New()
	engine.Use(Trace())
	var traceId string
	engine.GET("/ping", func(c *gin.Context) {
		traceId = commontrace.GetTraceID(c.Request.Context())
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, traceId, "the handler should see the request span")

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /ping", spans[0].Name)
}

func TestRequireAdminBlocksLowerTiers(t *testing.T) {
	config.SetValue("user.token_required", "true")
	defer config.SetValue("user.token_required", "false")

	engine := gin.New()
	engine.GET("/admin", func(c *gin.Context) {
		c.Set(common.UserTierContextKey, "standard")
	}, RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireAdminAllowsEnterprise(t *testing.T) {
	config.SetValue("user.token_required", "true")
	defer config.SetValue("user.token_required", "false")

	engine := gin.New()
	engine.GET("/admin", func(c *gin.Context) {
		c.Set(common.UserTierContextKey, adminTier)
	}, RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
