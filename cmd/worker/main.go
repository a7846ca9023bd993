/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/blobstore"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/cache"
	commonconfig "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commoncrypto "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/crypto"
	commonklog "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/klog"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/options"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/trace"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/pipeline"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/queue"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/ratelimit"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/recovery"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/worker"
)

func main() {
	opts := &options.Options{}
	if err := opts.InitFlags(); err != nil {
		klog.ErrorS(err, "failed to parse flags")
		os.Exit(1)
	}
	if err := commonklog.Init(opts.LogfilePath, opts.LogFileSize); err != nil {
		klog.ErrorS(err, "failed to init logs")
		os.Exit(1)
	}
	if err := commonconfig.LoadConfig(opts.Config); err != nil {
		klog.ErrorS(err, "failed to load config", "path", opts.Config)
		os.Exit(1)
	}
	if commonconfig.IsTracingEnable() {
		if err := trace.InitTracer("bin2nlp-worker"); err != nil {
			klog.Warningf("Failed to init tracer: %v", err)
		}
		defer func() { _ = trace.CloseTracer() }()
	}

	db := dbclient.NewClient()
	blobs, err := blobstore.NewStore()
	if err != nil {
		klog.ErrorS(err, "failed to init blob store")
		os.Exit(1)
	}
	jobQueue := queue.NewQueue(db)
	limiter := ratelimit.NewLimiter(db)
	resultCache := cache.NewCache(db, blobs)
	executor := pipeline.NewExecutor(jobQueue, blobs, resultCache, limiter, db, commoncrypto.NewCrypto())
	supervisor := recovery.NewSupervisor(jobQueue, db, executor)
	manager := worker.NewManager(db, jobQueue, supervisor, resultCache, blobs, limiter, opts.WorkerID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := manager.ServeHealth(ctx); err != nil {
			klog.ErrorS(err, "health endpoint exited")
		}
	}()
	if err = manager.Start(ctx); err != nil {
		klog.ErrorS(err, "failed to start worker manager")
		os.Exit(1)
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stopCh
	klog.Infof("received signal %s, shutting down", sig)
	cancel()
	manager.Stop()
	db.Close()
}
