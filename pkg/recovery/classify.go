/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package recovery

import (
	"context"
	"errors"
	"strings"

	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
)

// ErrorClass buckets an execution failure for the retry policy.
type ErrorClass string

const (
	ClassTimeout    ErrorClass = "Timeout"
	ClassFormat     ErrorClass = "FormatError"
	ClassConnection ErrorClass = "ConnectionError"
	ClassMemory     ErrorClass = "MemoryError"
	ClassProcess    ErrorClass = "ProcessError"
	ClassGeneric    ErrorClass = "Generic"
)

// Severity grades a classified failure for diagnostics.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severities = map[ErrorClass]Severity{
	ClassTimeout:    SeverityMedium,
	ClassFormat:     SeverityLow,
	ClassConnection: SeverityMedium,
	ClassMemory:     SeverityCritical,
	ClassProcess:    SeverityHigh,
	ClassGeneric:    SeverityMedium,
}

// Classify maps an execution error onto the retry-policy classes.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassGeneric
	case errors.Is(err, context.DeadlineExceeded) || commonerrors.IsTimeout(err):
		return ClassTimeout
	case commonerrors.IsFormatUnsupported(err) || commonerrors.IsBadRequest(err):
		return ClassFormat
	case commonerrors.IsProviderUnavailable(err):
		return ClassConnection
	case isMemoryErr(err):
		return ClassMemory
	case isProcessErr(err):
		return ClassProcess
	default:
		return ClassGeneric
	}
}

// SeverityOf grades a class for per-job diagnostics.
func SeverityOf(class ErrorClass) Severity {
	if s, ok := severities[class]; ok {
		return s
	}
	return SeverityMedium
}

func isMemoryErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "out of memory") || strings.Contains(msg, "cannot allocate memory")
}

// the decompiler wrapper reports subprocess death as a processing error
func isProcessErr(err error) bool {
	if commonerrors.GetErrorCode(err) == commonerrors.Processing {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "signal:") || strings.Contains(msg, "exit status")
}

// ExtendedTimeoutSecond grows a timed-out job's budget by half, capped.
func ExtendedTimeoutSecond(prev, capSecond int) int {
	next := prev + prev/2
	if next > capSecond {
		return capSecond
	}
	return next
}
