/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package crypto

import (
	cryptorand "crypto/rand"
	"fmt"
	"sync"

	"k8s.io/klog/v2"

	commonconfig "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/utils/crypto"
)

// Crypto is the credential vault. Provider API keys pass through here on the
// way to and from the credential rows; plaintext never leaves its callers.
type Crypto struct {
	key []byte
}

var (
	once     sync.Once
	instance *Crypto
)

// AESKeyLen is the vault key length (32 bytes for AES-256).
const AESKeyLen = 32

// NewCrypto creates and returns the vault singleton. The key comes from
// configuration; when missing or malformed an ephemeral key is generated so
// the process stays usable, at the cost of losing stored credentials across
// restarts.
func NewCrypto() *Crypto {
	once.Do(func() {
		var key []byte
		if commonconfig.IsCryptoEnable() {
			configured := commonconfig.GetCryptoKey()
			switch {
			case configured == "":
				klog.Warning("vault key is not configured, generating an ephemeral key; " +
					"stored credentials will not survive a restart")
				key = ephemeralKey()
			case len(configured) != AESKeyLen:
				klog.Warningf("vault key length is %d, expected %d; generating an ephemeral key",
					len(configured), AESKeyLen)
				key = ephemeralKey()
			default:
				key = []byte(configured)
			}
		}
		instance = &Crypto{key: key}
	})
	return instance
}

func ephemeralKey() []byte {
	key := make([]byte, AESKeyLen)
	if _, err := cryptorand.Read(key); err != nil {
		klog.ErrorS(err, "failed to generate ephemeral vault key")
		return nil
	}
	return key
}

// Encrypt seals a plaintext credential. Returns the plaintext unchanged when
// crypto is disabled.
func (c *Crypto) Encrypt(plainText []byte) (string, error) {
	if !commonconfig.IsCryptoEnable() {
		return string(plainText), nil
	}
	if len(c.key) == 0 {
		return "", fmt.Errorf("vault key is unavailable")
	}
	return crypto.Encrypt(plainText, c.key)
}

// Decrypt opens a sealed credential. Failures are terminal for the caller:
// the ciphertext is corrupt or the key has changed, so retrying cannot help.
func (c *Crypto) Decrypt(ciphertext string) (string, error) {
	if !commonconfig.IsCryptoEnable() {
		return ciphertext, nil
	}
	if len(c.key) == 0 {
		return "", commonerrors.NewCredentialUnavailable("vault key is unavailable")
	}
	data, err := crypto.Decrypt(ciphertext, c.key)
	if err != nil {
		return "", commonerrors.NewCredentialUnavailable(fmt.Sprintf("failed to decrypt credential: %v", err))
	}
	if len(data) == 0 {
		return "", commonerrors.NewCredentialUnavailable("decrypted credential is empty")
	}
	return string(data), nil
}
