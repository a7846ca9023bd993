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

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/apiserver"
	commonconfig "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commonklog "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/klog"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/options"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/trace"
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
		if err := trace.InitTracer("bin2nlp-apiserver"); err != nil {
			klog.Warningf("Failed to init tracer: %v", err)
		}
		defer func() { _ = trace.CloseTracer() }()
	}

	server, err := apiserver.NewServer()
	if err != nil {
		klog.ErrorS(err, "failed to create server")
		os.Exit(1)
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-stopCh
		klog.Infof("received signal %s, shutting down", sig)
		if err := server.Stop(context.Background()); err != nil {
			klog.ErrorS(err, "failed to stop server cleanly")
		}
	}()

	if err = server.Run(); err != nil {
		klog.ErrorS(err, "server exited with error")
		os.Exit(1)
	}
}
