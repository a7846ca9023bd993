/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetJobFieldTags(t *testing.T) {
	tags := GetJobFieldTags()
	assert.Equal(t, "job_id", GetFieldTag(tags, "JobId"))
	assert.Equal(t, "file_fingerprint", GetFieldTag(tags, "FileFingerprint"))
	assert.Equal(t, "scheduled_time", GetFieldTag(tags, "ScheduledTime"))
	assert.Equal(t, "worker_id", GetFieldTag(tags, "WorkerId"))
}

func TestGenerateCommand(t *testing.T) {
	cmd := generateCommand(RateLimitCounter{}, `INSERT INTO t (%s) VALUES (%s)`, "id")
	assert.NotContains(t, cmd, "(id,")
	assert.Contains(t, cmd, "identifier")
	assert.Contains(t, cmd, ":identifier")
	assert.Contains(t, cmd, "window_label")
	assert.Contains(t, cmd, ":cost")
}

func TestGenerateCommandColumnOrder(t *testing.T) {
	cmd := generateCommand(UserToken{}, `INSERT INTO t (%s) VALUES (%s)`, "")
	cols := strings.SplitN(cmd, " VALUES ", 2)
	assert.Len(t, cols, 2)
	// named-exec binds by tag, but column and value lists must still pair up
	assert.Equal(t,
		strings.Count(cols[0], ","), strings.Count(cols[1], ","))
}

func TestLeaseCmdShape(t *testing.T) {
	assert.Contains(t, leaseNextJobCmd, "FOR UPDATE SKIP LOCKED")
	assert.Contains(t, leaseNextJobCmd, "LIMIT 1")
	assert.Contains(t, leaseNextJobCmd, "RETURNING *")
	// urgent must rank ahead of the other lanes
	assert.Less(t,
		strings.Index(leaseNextJobCmd, "'urgent' THEN 0"),
		strings.Index(leaseNextJobCmd, "'high' THEN 1"))
}
