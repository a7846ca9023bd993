/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package apiserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/klog/v2"

	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
)

// ApiError is the unified error response body: HTTP code, error code, and
// error message.
type ApiError struct {
	HttpCode     int    `json:"-"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Error returns the error message string.
func (err *ApiError) Error() string {
	return err.ErrorMessage
}

// AbortWithApiError converts an error into the standardized error format
// and aborts the request with a JSON error response. Rate-limited errors
// additionally carry a Retry-After header.
func AbortWithApiError(c *gin.Context, err error) {
	_ = c.Error(err)
	if commonerrors.IsRateLimited(err) {
		if retryAfter := commonerrors.GetRetryAfter(err); retryAfter > 0 {
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
		}
	}
	rsp := convertToErrResponse(err)
	c.AbortWithStatusJSON(rsp.HttpCode, rsp)
}

func convertToErrResponse(err error) ApiError {
	var result *ApiError
	if errors.As(err, &result) {
		return *result
	}
	var statusErr *apierrors.StatusError
	if !errors.As(err, &statusErr) {
		switch {
		case apierrors.IsNotFound(err):
			statusErr = commonerrors.NewNotFoundWithMessage(err.Error())
		case apierrors.IsBadRequest(err), apierrors.IsInvalid(err):
			statusErr = commonerrors.NewBadRequest(err.Error())
		case apierrors.IsAlreadyExists(err):
			statusErr = commonerrors.NewAlreadyExist(err.Error())
		case apierrors.IsForbidden(err):
			statusErr = commonerrors.NewForbidden(err.Error())
		case apierrors.IsRequestEntityTooLargeError(err):
			statusErr = commonerrors.NewRequestEntityTooLargeError(err.Error())
		default:
			statusErr = commonerrors.NewInternalError(err.Error())
		}
	}
	return ApiError{
		HttpCode:     int(statusErr.Status().Code),
		ErrorCode:    string(statusErr.Status().Reason),
		ErrorMessage: statusErr.Error(),
	}
}

// Logger logs one line per request with method, path, status, and latency.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		klog.Infof("%s %s %d %s %s",
			c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}
