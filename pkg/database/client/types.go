/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	DESC = "desc"
	ASC  = "asc"
)

// Job is one unit of translation work. The lease is carried on the row
// itself: a processing job always has a worker id and a start time.
type Job struct {
	Id                int64          `db:"id"`
	JobId             string         `db:"job_id"`
	TenantId          string         `db:"tenant_id"`
	Status            string         `db:"status"`
	Priority          string         `db:"priority"`
	FileFingerprint   string         `db:"file_fingerprint"`
	BlobRef           string         `db:"blob_ref"`
	FileName          string         `db:"file_name"`
	Config            sql.NullString `db:"config"`
	Progress          int            `db:"progress"`
	Stage             sql.NullString `db:"stage"`
	WorkerId          sql.NullString `db:"worker_id"`
	ResultRef         sql.NullString `db:"result_ref"`
	ErrorMessage      sql.NullString `db:"error_message"`
	CancelRequested   bool           `db:"cancel_requested"`
	RetryCount        int            `db:"retry_count"`
	TimeoutSecond     int            `db:"timeout_second"`
	ProcessingSeconds float64        `db:"processing_seconds"`
	CallbackURL       sql.NullString `db:"callback_url"`
	CorrelationId     sql.NullString `db:"correlation_id"`
	Metadata          sql.NullString `db:"metadata"`
	CreationTime      pq.NullTime    `db:"creation_time"`
	ScheduledTime     pq.NullTime    `db:"scheduled_time"`
	StartTime         pq.NullTime    `db:"start_time"`
	UpdateTime        pq.NullTime    `db:"update_time"`
	EndTime           pq.NullTime    `db:"end_time"`
}

// GetJobFieldTags returns the JobFieldTags value.
func GetJobFieldTags() map[string]string {
	j := Job{}
	return getFieldTags(j)
}

// CacheEntry indexes a materialized prior result by its derived key.
type CacheEntry struct {
	Id                int64          `db:"id"`
	CacheKey          string         `db:"cache_key"`
	FileFingerprint   string         `db:"file_fingerprint"`
	ConfigFingerprint string         `db:"config_fingerprint"`
	BlobRef           string         `db:"blob_ref"`
	SchemaVersion     string         `db:"schema_version"`
	Tags              pq.StringArray `db:"tags"`
	AccessCount       int64          `db:"access_count"`
	CreationTime      pq.NullTime    `db:"creation_time"`
	ExpireTime        pq.NullTime    `db:"expire_time"`
}

// GetCacheEntryFieldTags returns the CacheEntryFieldTags value.
func GetCacheEntryFieldTags() map[string]string {
	e := CacheEntry{}
	return getFieldTags(e)
}

// RateLimitCounter is one admitted-cost record. Window usage is the sum of
// rows younger than the window size.
type RateLimitCounter struct {
	Id           int64       `db:"id"`
	Identifier   string      `db:"identifier"`
	WindowLabel  string      `db:"window_label"`
	Cost         int64       `db:"cost"`
	CreationTime pq.NullTime `db:"creation_time"`
}

// GetRateLimitCounterFieldTags returns the RateLimitCounterFieldTags value.
func GetRateLimitCounterFieldTags() map[string]string {
	r := RateLimitCounter{}
	return getFieldTags(r)
}

// DeadLetter is a job that exhausted its retry budget, retained for operator
// inspection.
type DeadLetter struct {
	Id           int64          `db:"id"`
	JobId        string         `db:"job_id"`
	TenantId     string         `db:"tenant_id"`
	Reason       string         `db:"reason"`
	RetryCount   int            `db:"retry_count"`
	Payload      sql.NullString `db:"payload"`
	CreationTime pq.NullTime    `db:"creation_time"`
}

// GetDeadLetterFieldTags returns the DeadLetterFieldTags value.
func GetDeadLetterFieldTags() map[string]string {
	d := DeadLetter{}
	return getFieldTags(d)
}

// ProviderCredential is a tenant-scoped LLM credential. The key is sealed by
// the vault before it reaches this row.
type ProviderCredential struct {
	Id           int64          `db:"id"`
	CredentialId string         `db:"credential_id"`
	TenantId     string         `db:"tenant_id"`
	Name         string         `db:"name"`
	Kind         string         `db:"kind"`
	EncryptedKey string         `db:"encrypted_key"`
	Endpoint     sql.NullString `db:"endpoint"`
	Config       sql.NullString `db:"config"`
	IsActive     bool           `db:"is_active"`
	IsDeleted    bool           `db:"is_deleted"`
	CreationTime pq.NullTime    `db:"creation_time"`
	UpdateTime   pq.NullTime    `db:"update_time"`
}

// GetProviderCredentialFieldTags returns the ProviderCredentialFieldTags value.
func GetProviderCredentialFieldTags() map[string]string {
	p := ProviderCredential{}
	return getFieldTags(p)
}

type UserToken struct {
	UserId       string `db:"user_id"`
	SessionId    string `db:"session_id"`
	Token        string `db:"token"`
	Tier         string `db:"tier"`
	CreationTime int64  `db:"creation_time"`
	ExpireTime   int64  `db:"expire_time"`
}

// GetUserTokenFieldTags returns the UserTokenFieldTags value.
func GetUserTokenFieldTags() map[string]string {
	token := UserToken{}
	return getFieldTags(token)
}

// WorkerHeartbeat tracks liveness of each worker process.
type WorkerHeartbeat struct {
	WorkerId     string         `db:"worker_id"`
	Hostname     sql.NullString `db:"hostname"`
	ActiveJob    sql.NullString `db:"active_job"`
	LastSeenTime pq.NullTime    `db:"last_seen_time"`
}

// GetWorkerHeartbeatFieldTags returns the WorkerHeartbeatFieldTags value.
func GetWorkerHeartbeatFieldTags() map[string]string {
	w := WorkerHeartbeat{}
	return getFieldTags(w)
}

// AuditLog records control-plane mutations; written through the gorm path.
type AuditLog struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TenantId  string    `gorm:"column:tenant_id"`
	Action    string    `gorm:"column:action"`
	Resource  string    `gorm:"column:resource"`
	Detail    string    `gorm:"column:detail"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides gorm's singular naming for the audit table.
func (AuditLog) TableName() string {
	return "audit_logs"
}

// getFieldTags retrieves FieldTags for internal use.
func getFieldTags(obj interface{}) map[string]string {
	result := make(map[string]string)
	t := reflect.TypeOf(obj)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		result[strings.ToLower(field.Name)] = field.Tag.Get("db")
	}
	return result
}

// generateCommand generates SQL command string using reflection
// Iterates through struct fields and builds column and value lists
// Skips fields with specified ignoreTag
// Returns formatted SQL command with columns and values
func generateCommand(obj interface{}, format, ignoreTag string) string {
	t := reflect.TypeOf(obj)
	columns := make([]string, 0, t.NumField())
	values := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("db")
		if tag == ignoreTag {
			continue
		}
		columns = append(columns, tag)
		values = append(values, fmt.Sprintf(":%s", tag))
	}
	cmd := fmt.Sprintf(format, strings.Join(columns, ", "), strings.Join(values, ", "))
	return cmd
}

// GetFieldTag returns the FieldTag value.
func GetFieldTag(tags map[string]string, name string) string {
	name = strings.ToLower(name)
	return tags[name]
}
