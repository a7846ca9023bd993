/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package common

const (
	DefaultVersion     = "v1"
	RouterCustomRoot   = "api/" + DefaultVersion
	AuthorizationKey   = "Authorization"
	ApiKeyHeader       = "X-Api-Key"
	TenantIdContextKey = "tenantId"
	UserTierContextKey = "userTier"

	// Job statuses
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"

	// Job priorities, in dequeue order.
	JobPriorityUrgent = "urgent"
	JobPriorityHigh   = "high"
	JobPriorityNormal = "normal"
	JobPriorityLow    = "low"

	// Analysis depths
	AnalysisDepthBasic         = "basic"
	AnalysisDepthStandard      = "standard"
	AnalysisDepthComprehensive = "comprehensive"
	AnalysisDepthDeep          = "deep"

	// Translation detail levels
	TranslationDetailBasic    = "basic"
	TranslationDetailStandard = "standard"
	TranslationDetailDetailed = "detailed"

	// Pipeline stage labels
	StageQueued        = "queued"
	StageDecompilation = "decompilation"
	StageTranslation   = "translation"
	StageFinalization  = "finalization"

	// Provider kinds
	ProviderKindOpenAI    = "openai"
	ProviderKindAnthropic = "anthropic"
	ProviderKindGemini    = "gemini"
	ProviderKindOllama    = "ollama"

	// Rate-limit window labels
	WindowMinute = "minute"
	WindowHour   = "hour"
	WindowDay    = "day"
	WindowBurst  = "burst"

	// Audit actions
	AuditActionSubmit           = "job.submit"
	AuditActionCancel           = "job.cancel"
	AuditActionCredentialCreate = "credential.create"
	AuditActionCredentialDelete = "credential.delete"
	AuditActionCacheInvalidate  = "cache.invalidate"
)

// PriorityRank orders lanes for dequeue; lower rank leases first.
var PriorityRank = map[string]int{
	JobPriorityUrgent: 0,
	JobPriorityHigh:   1,
	JobPriorityNormal: 2,
	JobPriorityLow:    3,
}

// IsValidPriority reports whether p names a queue lane.
func IsValidPriority(p string) bool {
	_, ok := PriorityRank[p]
	return ok
}

// IsValidAnalysisDepth reports whether d is a recognized analysis depth.
func IsValidAnalysisDepth(d string) bool {
	switch d {
	case AnalysisDepthBasic, AnalysisDepthStandard, AnalysisDepthComprehensive, AnalysisDepthDeep:
		return true
	}
	return false
}

// IsValidTranslationDetail reports whether d is a recognized detail level.
func IsValidTranslationDetail(d string) bool {
	switch d {
	case TranslationDetailBasic, TranslationDetailStandard, TranslationDetailDetailed:
		return true
	}
	return false
}

// IsTerminalStatus reports whether a job in status s will not run again.
func IsTerminalStatus(s string) bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}
