/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const Bin2nlpPrefix = "Bin2nlp."

/*
   5-digit Error Code Convention: [xx][yyy]
   [xx] Business ID (00–99), used to distinguish errors from different business interfaces.
   00: General errors
   01: Job/pipeline errors
   02: Rate-limit errors
   03: Storage errors
   04: Provider/credential errors
   [yyy] Error code range (000–999)
*/

// public: 00xxx
const (
	InternalError         = Bin2nlpPrefix + "00001"
	BadRequest            = Bin2nlpPrefix + "00002"
	Forbidden             = Bin2nlpPrefix + "00003"
	AlreadyExist          = Bin2nlpPrefix + "00004"
	NotFound              = Bin2nlpPrefix + "00005"
	RequestEntityTooLarge = Bin2nlpPrefix + "00006"
	NotImplemented        = Bin2nlpPrefix + "00007"
	Unauthorized          = Bin2nlpPrefix + "00008"
)

// job/pipeline: 01xxx
const (
	JobNotFound       = Bin2nlpPrefix + "01001"
	JobNotCancellable = Bin2nlpPrefix + "01002"
	Processing        = Bin2nlpPrefix + "01003"
	Timeout           = Bin2nlpPrefix + "01004"
	FormatUnsupported = Bin2nlpPrefix + "01005"
)

// ratelimit: 02xxx
const (
	RateLimited = Bin2nlpPrefix + "02001"
)

// storage: 03xxx
const (
	StorageError = Bin2nlpPrefix + "03001"
	BlobNotFound = Bin2nlpPrefix + "03002"
)

// provider/credential: 04xxx
const (
	CredentialUnavailable = Bin2nlpPrefix + "04001"
	ProviderUnavailable   = Bin2nlpPrefix + "04002"
)

// IsBin2nlp returns true if the specified error carries one of our reasons.
func IsBin2nlp(err error) bool {
	if err == nil {
		return false
	}
	return strings.HasPrefix(string(apierrors.ReasonForError(err)), Bin2nlpPrefix)
}

func IsBadRequest(err error) bool {
	return apierrors.ReasonForError(err) == BadRequest
}

func IsInternal(err error) bool {
	return apierrors.ReasonForError(err) == InternalError
}

func IsNotFound(err error) bool {
	reason := apierrors.ReasonForError(err)
	return reason == NotFound || reason == JobNotFound || reason == BlobNotFound
}

func IsBlobNotFound(err error) bool {
	return apierrors.ReasonForError(err) == BlobNotFound
}

func IsRateLimited(err error) bool {
	return apierrors.ReasonForError(err) == RateLimited
}

func IsTimeout(err error) bool {
	return apierrors.ReasonForError(err) == Timeout
}

func IsFormatUnsupported(err error) bool {
	return apierrors.ReasonForError(err) == FormatUnsupported
}

func IsStorage(err error) bool {
	return apierrors.ReasonForError(err) == StorageError
}

func IsCredentialUnavailable(err error) bool {
	return apierrors.ReasonForError(err) == CredentialUnavailable
}

func IsProviderUnavailable(err error) bool {
	return apierrors.ReasonForError(err) == ProviderUnavailable
}

func IgnoreFound(err error) error {
	if err == nil || IsNotFound(err) {
		return nil
	}
	return err
}

func GetErrorCode(err error) string {
	if err == nil || !IsBin2nlp(err) {
		return ""
	}
	return string(apierrors.ReasonForError(err))
}

// GetRetryAfter returns the retry-after hint carried by a RateLimited error,
// or 0 when absent.
func GetRetryAfter(err error) int32 {
	var statusErr *apierrors.StatusError
	if !stderrors.As(err, &statusErr) {
		return 0
	}
	details := statusErr.Status().Details
	if details == nil {
		return 0
	}
	return details.RetryAfterSeconds
}

func NewBadRequest(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusBadRequest,
		Reason:  BadRequest,
		Message: fmt.Sprintf("Bad request. %s", message),
	}}
}

func NewInternalError(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusInternalServerError,
		Reason:  InternalError,
		Message: fmt.Sprintf("Internal error. %s", message),
	}}
}

func NewAlreadyExist(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusConflict,
		Reason:  AlreadyExist,
		Message: message,
	}}
}

func NewForbidden(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusForbidden,
		Reason:  Forbidden,
		Message: message,
	}}
}

func NewNotFoundWithMessage(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusNotFound,
		Reason:  NotFound,
		Message: message,
	}}
}

func NewJobNotFound(jobId string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status: metav1.StatusFailure,
		Code:   http.StatusNotFound,
		Reason: JobNotFound,
		Details: &metav1.StatusDetails{
			Kind: "Job",
			Name: jobId,
		},
		Message: fmt.Sprintf("job %s not found.", jobId),
	}}
}

func NewJobNotCancellable(jobId, status string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusConflict,
		Reason:  JobNotCancellable,
		Message: fmt.Sprintf("job %s is %s and cannot be cancelled", jobId, status),
	}}
}

func NewRequestEntityTooLargeError(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusRequestEntityTooLarge,
		Reason:  RequestEntityTooLarge,
		Message: fmt.Sprintf("Request entity is too large: %s", message),
	}}
}

func NewUnauthorized(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusUnauthorized,
		Reason:  Unauthorized,
		Message: message,
	}}
}

func NewNotImplemented(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusNotImplemented,
		Reason:  NotImplemented,
		Message: message,
	}}
}

// NewRateLimited reports an over-limit rejection. retryAfter is the number
// of seconds until the failing window frees capacity, at least 1.
func NewRateLimited(message string, retryAfter int32) *apierrors.StatusError {
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status: metav1.StatusFailure,
		Code:   http.StatusTooManyRequests,
		Reason: RateLimited,
		Details: &metav1.StatusDetails{
			RetryAfterSeconds: retryAfter,
		},
		Message: message,
	}}
}

func NewProcessing(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusInternalServerError,
		Reason:  Processing,
		Message: message,
	}}
}

func NewTimeout(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusGatewayTimeout,
		Reason:  Timeout,
		Message: message,
	}}
}

func NewFormatUnsupported(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusUnprocessableEntity,
		Reason:  FormatUnsupported,
		Message: message,
	}}
}

func NewStorageError(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusInternalServerError,
		Reason:  StorageError,
		Message: message,
	}}
}

func NewBlobNotFound(key string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusNotFound,
		Reason:  BlobNotFound,
		Message: fmt.Sprintf("blob %s not found.", key),
	}}
}

func NewCredentialUnavailable(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusInternalServerError,
		Reason:  CredentialUnavailable,
		Message: message,
	}}
}

func NewProviderUnavailable(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusBadGateway,
		Reason:  ProviderUnavailable,
		Message: message,
	}}
}
