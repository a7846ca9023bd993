/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/blobstore"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/cache"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commoncrypto "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/crypto"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/queue"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/ratelimit"
)

// Server hosts the HTTP API on the configured port.
type Server struct {
	db     *dbclient.Client
	server *http.Server
}

// NewServer wires the storage, queue, cache, and rate-limit components
// behind the HTTP routes.
func NewServer() (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	db := dbclient.NewClient()
	blobs, err := blobstore.NewStore()
	if err != nil {
		return nil, err
	}
	handler := NewHandler(
		db,
		queue.NewQueue(db),
		blobs,
		cache.NewCache(db, blobs),
		ratelimit.NewLimiter(db),
		commoncrypto.NewCrypto(),
	)
	engine := InitHttpHandlers(handler, db)
	return &Server{
		db: db,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", config.GetServerPort()),
			Handler: engine,
		},
	}, nil
}

// Run blocks serving requests until the listener fails or Stop is called.
func (s *Server) Run() error {
	klog.Infof("api server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests and closes the database pool.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.db.Close()
	return nil
}
