/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	utiljson "github.com/AMD-AIG-AIMA/bin2nlp/pkg/utils/json"
)

// exit code contract with the decompiler binary
const (
	exitCodeUnsupportedFormat = 2
)

// depthDials maps analysis depth to the collaborator's own depth dial.
var depthDials = map[string]string{
	common.AnalysisDepthBasic:         "shallow",
	common.AnalysisDepthStandard:      "default",
	common.AnalysisDepthComprehensive: "full",
	common.AnalysisDepthDeep:          "full",
}

// Decompiler runs the external analysis collaborator against a binary on
// disk.
type Decompiler interface {
	Run(ctx context.Context, binaryPath, depth string) (*Decompilation, error)
}

type execDecompiler struct {
	binary  string
	timeout time.Duration
}

func NewDecompiler() Decompiler {
	return &execDecompiler{
		binary:  config.GetDecompilerBinary(),
		timeout: time.Duration(config.GetDecompilerTimeoutSecond()) * time.Second,
	}
}

// DepthDial translates an analysis depth into the collaborator's dial.
func DepthDial(depth string) string {
	if dial, ok := depthDials[depth]; ok {
		return dial
	}
	return "default"
}

// Run invokes the collaborator as a subprocess and parses its JSON output.
// Raw collaborator output stays in logs; callers only ever see classified
// errors.
func (d *execDecompiler) Run(ctx context.Context, binaryPath, depth string) (*Decompilation, error) {
	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, d.binary,
		"--input", binaryPath,
		"--depth", DepthDial(depth),
		"--format", "json")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, commonerrors.NewTimeout("decompilation timed out")
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == exitCodeUnsupportedFormat {
			klog.Infof("decompiler rejected %s: %s", binaryPath, stderr.String())
			return nil, commonerrors.NewFormatUnsupported("the file format is not supported")
		}
		klog.ErrorS(err, "decompiler failed", "path", binaryPath, "stderr", stderr.String())
		return nil, commonerrors.NewProcessing("decompilation failed")
	}

	var dec Decompilation
	if err = utiljson.Unmarshal(stdout.Bytes(), &dec); err != nil {
		klog.ErrorS(err, "unparseable decompiler output", "path", binaryPath)
		return nil, commonerrors.NewProcessing("decompilation produced an unreadable document")
	}
	if dec.Id == "" {
		dec.Id = uuid.NewString()
	}
	return &dec, nil
}
