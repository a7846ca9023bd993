/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
)

const (
	TUserToken = "user_tokens"
)

var (
	insertUserTokenFormat = `INSERT INTO ` + TUserToken + ` (%s) VALUES (%s)`

	getUserTokenCmd = fmt.Sprintf(`SELECT * FROM %s WHERE token = $1 LIMIT 1`, TUserToken)

	deleteUserTokenCmd = fmt.Sprintf(`DELETE FROM %s WHERE token = $1`, TUserToken)

	deleteExpiredTokensCmd = fmt.Sprintf(`DELETE FROM %s WHERE expire_time > 0 AND expire_time < $1`, TUserToken)
)

// InsertUserToken stores a session token row.
func (c *Client) InsertUserToken(ctx context.Context, token *UserToken) error {
	if token == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.NamedExecContext(ctx, generateCommand(*token, insertUserTokenFormat, ""), token)
	if err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	return nil
}

// GetUserToken resolves a presented token, rejecting expired sessions.
func (c *Client) GetUserToken(ctx context.Context, token string) (*UserToken, error) {
	if token == "" {
		return nil, commonerrors.NewUnauthorized("token is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	var row UserToken
	err = db.GetContext(ctx, &row, getUserTokenCmd, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonerrors.NewUnauthorized("token is invalid")
	}
	if err != nil {
		return nil, commonerrors.NewStorageError(err.Error())
	}
	if row.ExpireTime > 0 && row.ExpireTime < time.Now().Unix() {
		return nil, commonerrors.NewUnauthorized("token is expired")
	}
	return &row, nil
}

// DeleteUserToken revokes a session.
func (c *Client) DeleteUserToken(ctx context.Context, token string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, deleteUserTokenCmd, token); err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	return nil
}

// DeleteExpiredTokens purges sessions past their expiry.
func (c *Client) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	result, err := db.ExecContext(ctx, deleteExpiredTokensCmd, time.Now().Unix())
	if err != nil {
		return 0, commonerrors.NewStorageError(err.Error())
	}
	n, _ := result.RowsAffected()
	return n, nil
}
