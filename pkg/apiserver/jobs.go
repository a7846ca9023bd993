/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package apiserver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/types"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/utils"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/ratelimit"
	utiljson "github.com/AMD-AIG-AIMA/bin2nlp/pkg/utils/json"
)

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	JobId  string `json:"job_id"`
	Status string `json:"status"`
	Cached bool   `json:"cached,omitempty"`
}

// StatusResponse reports a job's current state; Result is attached once
// the job has completed.
type StatusResponse struct {
	JobId         string          `json:"job_id"`
	Status        string          `json:"status"`
	Priority      string          `json:"priority"`
	Progress      int             `json:"progress"`
	Stage         string          `json:"stage,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	RetryCount    int             `json:"retry_count"`
	CorrelationId string          `json:"correlation_id,omitempty"`
	CreationTime  string          `json:"creation_time,omitempty"`
	StartTime     string          `json:"start_time,omitempty"`
	EndTime       string          `json:"end_time,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// SubmitJob handles binary submission.
func (h *Handler) SubmitJob(c *gin.Context) {
	handle(c, h.submitJob)
}

// GetJobStatus handles job status lookup.
func (h *Handler) GetJobStatus(c *gin.Context) {
	handle(c, h.getJobStatus)
}

// CancelJob handles cancellation requests.
func (h *Handler) CancelJob(c *gin.Context) {
	handle(c, h.cancelJob)
}

// ListJobs handles listing the caller's jobs.
func (h *Handler) ListJobs(c *gin.Context) {
	handle(c, h.listJobs)
}

func (h *Handler) submitJob(c *gin.Context) (interface{}, error) {
	ctx := c.Request.Context()
	tenant := tenantOf(c)

	if err := h.limiter.Check(ctx, ratelimit.TenantIdentifier(tenant), tierOf(c), 1); err != nil {
		return nil, err
	}
	maxSize := config.GetMaxFileSize()
	if c.Request.ContentLength > maxSize {
		return nil, commonerrors.NewRequestEntityTooLargeError(
			fmt.Sprintf("the file exceeds the %d byte limit", maxSize))
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		return nil, commonerrors.NewBadRequest("a binary file upload is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, commonerrors.NewInternalError("failed to read the uploaded file")
	}
	if int64(len(data)) > maxSize {
		return nil, commonerrors.NewRequestEntityTooLargeError(
			fmt.Sprintf("the file exceeds the %d byte limit", maxSize))
	}
	if len(data) == 0 {
		return nil, commonerrors.NewBadRequest("the uploaded file is empty")
	}

	cfg, err := h.buildJobConfig(c, tenant)
	if err != nil {
		return nil, err
	}
	priority := c.PostForm("priority")
	if priority == "" {
		priority = common.JobPriorityNormal
	}
	if !common.IsValidPriority(priority) {
		return nil, commonerrors.NewBadRequest("unknown priority " + priority)
	}
	timeoutSecond := config.GetPipelineDefaultTimeoutSecond()
	if v := c.PostForm("timeout_second"); v != "" {
		if timeoutSecond, err = strconv.Atoi(v); err != nil || timeoutSecond <= 0 {
			return nil, commonerrors.NewBadRequest("timeout_second must be a positive integer")
		}
		if max := config.GetPipelineMaxTimeoutSecond(); timeoutSecond > max {
			timeoutSecond = max
		}
	}

	sum := sha256.Sum256(data)
	fingerprint := hex.EncodeToString(sum[:])
	blobRef := "upload:" + fingerprint
	ttl := time.Duration(config.GetBlobTTLHour()) * time.Hour
	if err = h.blobs.Put(blobRef, data, ttl); err != nil {
		return nil, err
	}

	job := &dbclient.Job{
		JobId:           uuid.NewString(),
		TenantId:        tenant,
		Priority:        priority,
		FileFingerprint: fingerprint,
		BlobRef:         blobRef,
		FileName:        header.Filename,
		Config:          dbutils.NullString(string(utiljson.MarshalSilently(cfg))),
		TimeoutSecond:   timeoutSecond,
		CallbackURL:     dbutils.NullString(c.PostForm("callback_url")),
		CorrelationId:   dbutils.NullString(c.PostForm("correlation_id")),
	}

	// an identical prior run short-circuits the pipeline entirely
	if doc, _ := h.cache.Get(ctx, fingerprint, cfg); doc != nil {
		if err = h.insertCachedJob(c, job, doc); err != nil {
			return nil, err
		}
		h.audit(c, common.AuditActionSubmit, job.JobId)
		return SubmitResponse{JobId: job.JobId, Status: common.JobStatusCompleted, Cached: true}, nil
	}

	if err = h.queue.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	h.audit(c, common.AuditActionSubmit, job.JobId)
	c.Status(http.StatusAccepted)
	return SubmitResponse{JobId: job.JobId, Status: common.JobStatusPending}, nil
}

// buildJobConfig assembles the translation configuration from the form.
// An inline API key is vaulted as a tenant credential before the job row
// ever sees it.
func (h *Handler) buildJobConfig(c *gin.Context, tenant string) (*types.JobConfig, error) {
	cfg := &types.JobConfig{
		AnalysisDepth:     c.PostForm("analysis_depth"),
		TranslationDetail: c.PostForm("translation_detail"),
		Provider:          c.PostForm("provider_id"),
		Model:             c.PostForm("provider_model"),
		CredentialId:      c.PostForm("credential_id"),
	}
	cfg.Normalize(config.GetDefaultProvider())
	if err := cfg.Validate(); err != nil {
		return nil, commonerrors.NewBadRequest(err.Error())
	}

	if apiKey := c.PostForm("provider_api_key"); apiKey != "" && cfg.CredentialId == "" {
		encrypted, err := h.vault.Encrypt([]byte(apiKey))
		if err != nil {
			return nil, err
		}
		cred := &dbclient.ProviderCredential{
			CredentialId: uuid.NewString(),
			TenantId:     tenant,
			Name:         "inline-" + time.Now().UTC().Format("20060102150405"),
			Kind:         providerKindOf(cfg.Provider),
			EncryptedKey: encrypted,
			Endpoint:     dbutils.NullString(c.PostForm("provider_endpoint")),
			IsActive:     true,
		}
		if err = h.db.InsertProviderCredential(c.Request.Context(), cred); err != nil {
			return nil, err
		}
		cfg.CredentialId = cred.CredentialId
	}
	return cfg, nil
}

func providerKindOf(providerName string) string {
	for _, p := range config.GetProviders() {
		if p.Name == providerName {
			return p.Kind
		}
	}
	return common.ProviderKindOpenAI
}

// insertCachedJob materializes a completed job row backed by the cached
// result document.
func (h *Handler) insertCachedJob(c *gin.Context, job *dbclient.Job, doc []byte) error {
	resultRef := "result:job:" + job.JobId
	if err := h.blobs.Put(resultRef, doc, 7*24*time.Hour); err != nil {
		return err
	}
	job.Status = common.JobStatusCompleted
	job.Progress = 100
	job.Stage = dbutils.NullString(common.StageFinalization)
	job.ResultRef = dbutils.NullString(resultRef)
	return h.db.InsertJob(c.Request.Context(), job)
}

func (h *Handler) getJobStatus(c *gin.Context) (interface{}, error) {
	job, err := h.ownedJob(c)
	if err != nil {
		return nil, err
	}
	rsp := &StatusResponse{
		JobId:         job.JobId,
		Status:        job.Status,
		Priority:      job.Priority,
		Progress:      job.Progress,
		Stage:         job.Stage.String,
		ErrorMessage:  job.ErrorMessage.String,
		RetryCount:    job.RetryCount,
		CorrelationId: job.CorrelationId.String,
		CreationTime:  dbutils.ParseNullTimeToString(job.CreationTime),
		StartTime:     dbutils.ParseNullTimeToString(job.StartTime),
		EndTime:       dbutils.ParseNullTimeToString(job.EndTime),
	}
	if job.Status == common.JobStatusCompleted && job.ResultRef.Valid {
		doc, err := h.blobs.Get(job.ResultRef.String)
		if err != nil {
			klog.ErrorS(err, "result document unavailable", "job", job.JobId)
		} else {
			rsp.Result = doc
		}
	}
	return rsp, nil
}

func (h *Handler) cancelJob(c *gin.Context) (interface{}, error) {
	job, err := h.ownedJob(c)
	if err != nil {
		return nil, err
	}
	if err = h.queue.Cancel(c.Request.Context(), job.JobId); err != nil {
		return nil, err
	}
	h.audit(c, common.AuditActionCancel, job.JobId)
	return gin.H{"job_id": job.JobId, "cancel_requested": true}, nil
}

func (h *Handler) listJobs(c *gin.Context) (interface{}, error) {
	tenant := tenantOf(c)
	query := sqrl.And{sqrl.Eq{"tenant_id": tenant}}
	if status := c.Query("status"); status != "" {
		query = append(query, sqrl.Eq{"status": status})
	}
	limit, offset := pagination(c)
	jobs, err := h.db.SelectJobs(c.Request.Context(), query,
		[]string{"creation_time " + dbclient.DESC}, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]*StatusResponse, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, &StatusResponse{
			JobId:         job.JobId,
			Status:        job.Status,
			Priority:      job.Priority,
			Progress:      job.Progress,
			Stage:         job.Stage.String,
			ErrorMessage:  job.ErrorMessage.String,
			RetryCount:    job.RetryCount,
			CorrelationId: job.CorrelationId.String,
			CreationTime:  dbutils.ParseNullTimeToString(job.CreationTime),
			EndTime:       dbutils.ParseNullTimeToString(job.EndTime),
		})
	}
	total, err := h.db.CountJobs(c.Request.Context(), query)
	if err != nil {
		return nil, err
	}
	return gin.H{"total": total, "items": items}, nil
}

// ownedJob fetches the path job and enforces tenant ownership. Foreign
// jobs read as absent.
func (h *Handler) ownedJob(c *gin.Context) (*dbclient.Job, error) {
	jobId := c.Param("id")
	job, err := h.db.GetJob(c.Request.Context(), jobId)
	if err != nil {
		return nil, err
	}
	if job == nil || job.TenantId != tenantOf(c) {
		return nil, commonerrors.NewJobNotFound(jobId)
	}
	return job, nil
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// audit appends a best-effort audit row for a write operation.
func (h *Handler) audit(c *gin.Context, action, resourceId string) {
	entry := &dbclient.AuditLog{
		TenantId: tenantOf(c),
		Action:   action,
		Resource: resourceId,
		Detail:   "from " + c.ClientIP(),
	}
	if err := h.db.InsertAuditLog(c.Request.Context(), entry); err != nil {
		klog.ErrorS(err, "failed to record audit entry", "action", action)
	}
}
