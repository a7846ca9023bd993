/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
)

const (
	keyPrefix     = "result:"
	hashKeyPrefix = "result:hash:"

	fingerprintTruncate = 16
)

// recognizedConfigKeys is the closed set of configuration keys that perturb
// the cache key. Anything else a caller passes is ignored so that additive
// config fields never invalidate existing entries.
var recognizedConfigKeys = map[string]struct{}{
	"analysis_depth":     {},
	"translation_detail": {},
	"provider":           {},
	"model":              {},
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ConfigFingerprint hashes the recognized subset of cfg in sorted key order.
func ConfigFingerprint(cfg map[string]string) string {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		if _, ok := recognizedConfigKeys[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, cfg[k])
	}
	return hashHex(b.String())[:32]
}

// Key composes the cache key for a file fingerprint and configuration.
// A composed key over the length bound collapses to its hash form.
func Key(fileFingerprint string, cfg map[string]string) string {
	fp := fileFingerprint
	if len(fp) > fingerprintTruncate {
		fp = fp[:fingerprintTruncate]
	}
	key := keyPrefix + fp + ":" + ConfigFingerprint(cfg)
	if max := config.GetCacheMaxKeyLength(); max > 0 && len(key) > max {
		return hashKeyPrefix + hashHex(key)
	}
	return key
}
