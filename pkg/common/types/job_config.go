/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package types

import (
	"fmt"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
)

// JobConfig is the translation configuration carried in a job row's config
// column. Zero-valued fields are filled with defaults by Normalize.
type JobConfig struct {
	AnalysisDepth     string `json:"analysis_depth"`
	TranslationDetail string `json:"translation_detail"`
	Provider          string `json:"provider"`
	Model             string `json:"model,omitempty"`
	CredentialId      string `json:"credential_id,omitempty"`
}

// Normalize fills defaults in place.
func (c *JobConfig) Normalize(defaultProvider string) {
	if c.AnalysisDepth == "" {
		c.AnalysisDepth = common.AnalysisDepthStandard
	}
	if c.TranslationDetail == "" {
		c.TranslationDetail = common.TranslationDetailStandard
	}
	if c.Provider == "" {
		c.Provider = defaultProvider
	}
}

// Validate rejects unknown enum values.
func (c *JobConfig) Validate() error {
	if !common.IsValidAnalysisDepth(c.AnalysisDepth) {
		return fmt.Errorf("unknown analysis depth %q", c.AnalysisDepth)
	}
	if !common.IsValidTranslationDetail(c.TranslationDetail) {
		return fmt.Errorf("unknown translation detail %q", c.TranslationDetail)
	}
	return nil
}

// ToMap flattens the configuration for cache-key fingerprinting. Only
// fields that change the produced result are included.
func (c *JobConfig) ToMap() map[string]string {
	m := map[string]string{
		"analysis_depth":     c.AnalysisDepth,
		"translation_detail": c.TranslationDetail,
		"provider":           c.Provider,
	}
	if c.Model != "" {
		m["model"] = c.Model
	}
	return m
}
