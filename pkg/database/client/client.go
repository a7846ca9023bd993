/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"

	commonconfig "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/utils"
)

var (
	once     sync.Once
	instance *Client
)

// Client manages both sqlx and gorm connections to the metadata store. The
// hot paths (jobs, counters, cache index) go through sqlx; the low-rate
// tables (audit log) go through gorm.
type Client struct {
	db   *sqlx.DB
	gorm *gorm.DB
	*utils.DBConfig
}

// NewClient creates the singleton database client. Configuration comes from
// the mounted db secret; initialization happens only once even if called
// multiple times.
func NewClient() *Client {
	once.Do(func() {
		cfg := &utils.DBConfig{
			DBName:         commonconfig.GetDBName(),
			Username:       commonconfig.GetDBUser(),
			Password:       commonconfig.GetDBPassword(),
			Host:           commonconfig.GetDBHost(),
			Port:           commonconfig.GetDBPort(),
			SSLMode:        commonconfig.GetDBSslMode(),
			MaxOpenConns:   commonconfig.GetDBMaxOpenConns(),
			MaxIdleConns:   commonconfig.GetDBMaxIdleConns(),
			MaxLifetime:    time.Duration(commonconfig.GetDBMaxLifetimeSecond()) * time.Second,
			MaxIdleTime:    time.Duration(commonconfig.GetDBMaxIdleTimeSecond()) * time.Second,
			ConnectTimeout: commonconfig.GetDBConnectTimeoutSecond(),
			RequestTimeout: time.Duration(commonconfig.GetDBRequestTimeoutSecond()) * time.Second,
		}
		if err := checkParams(cfg); err != nil {
			klog.ErrorS(err, "failed to check db params")
			return
		}
		db, err := utils.Connect(cfg, utils.PgDriver)
		if err != nil {
			klog.Errorf("%s", err.Error())
			return
		}
		if err = db.Ping(); err != nil {
			klog.ErrorS(err, "failed to ping db")
			return
		}
		gormDb, err := utils.ConnectGorm(cfg)
		if err != nil {
			klog.ErrorS(err, "failed to init gorm connection")
			return
		}
		instance = &Client{db: db, DBConfig: cfg, gorm: gormDb}
		klog.Infof("init db-client successfully! conn-timeout: %d(s), request-timeout: %d(s)",
			cfg.ConnectTimeout, commonconfig.GetDBRequestTimeoutSecond())
	})
	return instance
}

// Close performs the Close operation.
func (c *Client) Close() {
	err := c.db.Close()
	if err != nil {
		klog.ErrorS(err, "failed to close db connection")
	}
}

// Ping verifies the database is reachable; used by the health endpoints.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	return c.db.PingContext(ctx)
}

// getDB retrieves DB for internal use.
func (c *Client) getDB() (*sqlx.DB, error) {
	if c == nil || c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	return c.db.Unsafe(), nil
}

// GetGormDB retrieves the gorm connection.
func (c *Client) GetGormDB() (*gorm.DB, error) {
	if c == nil || c.gorm == nil {
		return nil, commonerrors.NewInternalError("The gorm client has not been initialized")
	}
	return c.gorm, nil
}

// checkParams checks Params and returns the result.
func checkParams(cfg *utils.DBConfig) error {
	var errs []error
	if cfg.DBName == "" {
		errs = append(errs, fmt.Errorf("dbname not found"))
	}
	if cfg.Username == "" {
		errs = append(errs, fmt.Errorf("username not found"))
	}
	if cfg.Password == "" {
		errs = append(errs, fmt.Errorf("password not found"))
	}
	if cfg.Host == "" {
		errs = append(errs, fmt.Errorf("host not found"))
	}
	if cfg.SSLMode == "" {
		errs = append(errs, fmt.Errorf("ssl_mode not found"))
	}
	if cfg.Port == 0 {
		errs = append(errs, fmt.Errorf("port not found"))
	}
	return utilerrors.NewAggregate(errs)
}
