/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package apiserver

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/utils"
)

// CreateCredentialRequest carries a provider key to be sealed and stored.
type CreateCredentialRequest struct {
	Name     string `json:"name" binding:"required"`
	Kind     string `json:"kind" binding:"required"`
	ApiKey   string `json:"api_key" binding:"required"`
	Endpoint string `json:"endpoint"`
}

// CredentialResponse never includes key material.
type CredentialResponse struct {
	CredentialId string `json:"credential_id"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Endpoint     string `json:"endpoint,omitempty"`
	IsActive     bool   `json:"is_active"`
	CreationTime string `json:"creation_time,omitempty"`
}

// CreateCredential handles credential registration.
func (h *Handler) CreateCredential(c *gin.Context) {
	handle(c, h.createCredential)
}

// ListCredentials handles listing the caller's credentials.
func (h *Handler) ListCredentials(c *gin.Context) {
	handle(c, h.listCredentials)
}

// DeleteCredential handles credential revocation.
func (h *Handler) DeleteCredential(c *gin.Context) {
	handle(c, h.deleteCredential)
}

func (h *Handler) createCredential(c *gin.Context) (interface{}, error) {
	var req CreateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, commonerrors.NewBadRequest(err.Error())
	}
	if !isValidProviderKind(req.Kind) {
		return nil, commonerrors.NewBadRequest("unknown provider kind " + req.Kind)
	}
	encrypted, err := h.vault.Encrypt([]byte(req.ApiKey))
	if err != nil {
		return nil, err
	}
	cred := &dbclient.ProviderCredential{
		CredentialId: uuid.NewString(),
		TenantId:     tenantOf(c),
		Name:         req.Name,
		Kind:         req.Kind,
		EncryptedKey: encrypted,
		Endpoint:     dbutils.NullString(req.Endpoint),
		IsActive:     true,
	}
	if err = h.db.InsertProviderCredential(c.Request.Context(), cred); err != nil {
		return nil, err
	}
	h.audit(c, common.AuditActionCredentialCreate, cred.CredentialId)
	return toCredentialResponse(cred), nil
}

func (h *Handler) listCredentials(c *gin.Context) (interface{}, error) {
	creds, err := h.db.ListTenantCredentials(c.Request.Context(), tenantOf(c))
	if err != nil {
		return nil, err
	}
	items := make([]*CredentialResponse, 0, len(creds))
	for _, cred := range creds {
		items = append(items, toCredentialResponse(cred))
	}
	return gin.H{"items": items}, nil
}

func (h *Handler) deleteCredential(c *gin.Context) (interface{}, error) {
	credentialId := c.Param("id")
	if err := h.db.DeleteProviderCredential(c.Request.Context(), tenantOf(c), credentialId); err != nil {
		return nil, err
	}
	h.audit(c, common.AuditActionCredentialDelete, credentialId)
	return gin.H{"credential_id": credentialId, "deleted": true}, nil
}

func toCredentialResponse(cred *dbclient.ProviderCredential) *CredentialResponse {
	return &CredentialResponse{
		CredentialId: cred.CredentialId,
		Name:         cred.Name,
		Kind:         cred.Kind,
		Endpoint:     cred.Endpoint.String,
		IsActive:     cred.IsActive,
		CreationTime: dbutils.ParseNullTimeToString(cred.CreationTime),
	}
}

func isValidProviderKind(kind string) bool {
	switch kind {
	case common.ProviderKindOpenAI, common.ProviderKindAnthropic,
		common.ProviderKindGemini, common.ProviderKindOllama:
		return true
	}
	return false
}
