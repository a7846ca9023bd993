/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package apiserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestConvertToErrResponse(t *testing.T) {
	rsp := convertToErrResponse(commonerrors.NewJobNotFound("j1"))
	assert.Equal(t, http.StatusNotFound, rsp.HttpCode)
	assert.Contains(t, rsp.ErrorMessage, "j1")

	rsp = convertToErrResponse(commonerrors.NewBadRequest("bad input"))
	assert.Equal(t, http.StatusBadRequest, rsp.HttpCode)

	rsp = convertToErrResponse(commonerrors.NewRateLimited("slow down", 30))
	assert.Equal(t, http.StatusTooManyRequests, rsp.HttpCode)

	rsp = convertToErrResponse(errors.New("something broke"))
	assert.Equal(t, http.StatusInternalServerError, rsp.HttpCode)

	rsp = convertToErrResponse(&ApiError{HttpCode: http.StatusTeapot, ErrorCode: "X", ErrorMessage: "teapot"})
	assert.Equal(t, http.StatusTeapot, rsp.HttpCode)
	assert.Equal(t, "teapot", rsp.ErrorMessage)
}

func TestAbortWithApiErrorSetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	AbortWithApiError(c, commonerrors.NewRateLimited("over quota", 17))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "17", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "errorCode")
}

func TestHandleRendersJSON(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	handle(c, func(c *gin.Context) (interface{}, error) {
		return gin.H{"ok": true}, nil
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestHandleRendersError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	handle(c, func(c *gin.Context) (interface{}, error) {
		return nil, commonerrors.NewForbidden("no")
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPaginationBounds(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=10&offset=20", nil)
	limit, offset := pagination(c)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 20, offset)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=9999&offset=-3", nil)
	limit, offset = pagination(c)
	assert.Equal(t, 50, limit)
	assert.Equal(t, 0, offset)
}

func TestIsValidProviderKind(t *testing.T) {
	assert.True(t, isValidProviderKind("openai"))
	assert.True(t, isValidProviderKind("ollama"))
	assert.False(t, isValidProviderKind("bedrock"))
}
