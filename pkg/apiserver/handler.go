/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/blobstore"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/cache"
	commoncrypto "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/crypto"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/queue"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/ratelimit"
)

const jsonContentType = "application/json"

// Handler carries the core components every route needs.
type Handler struct {
	db      *dbclient.Client
	queue   *queue.Queue
	blobs   *blobstore.Store
	cache   *cache.Cache
	limiter *ratelimit.Limiter
	vault   *commoncrypto.Crypto
}

func NewHandler(db *dbclient.Client, q *queue.Queue, blobs *blobstore.Store,
	resultCache *cache.Cache, limiter *ratelimit.Limiter, vault *commoncrypto.Crypto) *Handler {
	return &Handler{
		db:      db,
		queue:   q,
		blobs:   blobs,
		cache:   resultCache,
		limiter: limiter,
		vault:   vault,
	}
}

type handleFunc func(*gin.Context) (interface{}, error)

// handle executes the handler function and processes the response/error.
func handle(c *gin.Context, fn handleFunc) {
	response, err := fn(c)
	if err != nil {
		AbortWithApiError(c, err)
		return
	}
	code := http.StatusOK
	if c.Writer.Status() > 0 {
		code = c.Writer.Status()
	}
	switch responseType := response.(type) {
	case []byte:
		c.Data(code, jsonContentType, responseType)
	case string:
		c.Data(code, jsonContentType, []byte(responseType))
	default:
		c.JSON(code, responseType)
	}
}
