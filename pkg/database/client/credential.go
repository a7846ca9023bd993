/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
)

const (
	TProviderCredential = "provider_credentials"
)

var (
	insertProviderCredentialFormat = `INSERT INTO ` + TProviderCredential + ` (%s) VALUES (%s)`

	deleteProviderCredentialCmd = fmt.Sprintf(`UPDATE %s
		SET is_deleted = true, is_active = false, update_time = NOW()
		WHERE tenant_id = $1 AND credential_id = $2 AND is_deleted = false`, TProviderCredential)
)

// InsertProviderCredential stores a sealed credential row.
func (c *Client) InsertProviderCredential(ctx context.Context, cred *ProviderCredential) error {
	if cred == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.NamedExecContext(ctx, generateCommand(*cred, insertProviderCredentialFormat, "id"), cred)
	if err != nil {
		klog.ErrorS(err, "failed to insert provider credential", "id", cred.CredentialId)
		return commonerrors.NewStorageError(err.Error())
	}
	return nil
}

// GetProviderCredential fetches one live credential scoped to the tenant.
func (c *Client) GetProviderCredential(ctx context.Context, tenantId, credentialId string) (*ProviderCredential, error) {
	if tenantId == "" || credentialId == "" {
		return nil, commonerrors.NewBadRequest("tenantId or credentialId is empty")
	}
	dbTags := GetProviderCredentialFieldTags()
	dbSql := sqrl.And{
		sqrl.Eq{GetFieldTag(dbTags, "TenantId"): tenantId},
		sqrl.Eq{GetFieldTag(dbTags, "CredentialId"): credentialId},
		sqrl.Eq{GetFieldTag(dbTags, "IsDeleted"): false},
	}
	creds, err := c.SelectProviderCredentials(ctx, dbSql, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, commonerrors.NewNotFoundWithMessage(
			fmt.Sprintf("credential %s not found", credentialId))
	}
	return creds[0], nil
}

// SelectProviderCredentials retrieves credential rows.
func (c *Client) SelectProviderCredentials(ctx context.Context, query sqrl.Sqlizer, limit, offset int) ([]*ProviderCredential, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	dbTags := GetProviderCredentialFieldTags()
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("*").From(TProviderCredential).
		OrderBy(GetFieldTag(dbTags, "CreationTime") + " " + DESC)
	if query != nil {
		builder = builder.Where(query)
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}
	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	var creds []*ProviderCredential
	if err = db.SelectContext(ctx, &creds, sqlStr, args...); err != nil {
		return nil, commonerrors.NewStorageError(err.Error())
	}
	return creds, nil
}

// ListTenantCredentials lists a tenant's live credentials.
func (c *Client) ListTenantCredentials(ctx context.Context, tenantId string) ([]*ProviderCredential, error) {
	if tenantId == "" {
		return nil, commonerrors.NewBadRequest("tenantId is empty")
	}
	dbTags := GetProviderCredentialFieldTags()
	dbSql := sqrl.And{
		sqrl.Eq{GetFieldTag(dbTags, "TenantId"): tenantId},
		sqrl.Eq{GetFieldTag(dbTags, "IsDeleted"): false},
	}
	return c.SelectProviderCredentials(ctx, dbSql, 0, 0)
}

// DeleteProviderCredential soft-deletes a tenant's credential.
func (c *Client) DeleteProviderCredential(ctx context.Context, tenantId, credentialId string) error {
	if tenantId == "" || credentialId == "" {
		return commonerrors.NewBadRequest("tenantId or credentialId is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx, deleteProviderCredentialCmd, tenantId, credentialId)
	if err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return commonerrors.NewNotFoundWithMessage(
			fmt.Sprintf("credential %s not found", credentialId))
	}
	return nil
}
