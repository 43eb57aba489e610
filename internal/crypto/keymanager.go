// Package crypto loads the hot-wallet key and signs typed data and
// transactions with it.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyFileVersion = 1
	kdfIterations  = 480_000
	kdfSaltLen     = 16
)

// keyFile is the on-disk JSON format of an encrypted wallet key. Byte
// fields are base64 encoded by encoding/json.
type keyFile struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// KeyConfig names where the wallet key comes from. A raw key wins over an
// encrypted file.
type KeyConfig struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// walletGCM derives an AES-256-GCM cipher from password and salt.
func walletGCM(password string, salt []byte) (cipher.AEAD, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, kdfIterations, 32, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: key cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// parseKeyHex validates a 32-byte hex key, with or without 0x.
func parseKeyHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: private key is not hex: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("crypto: private key must be 32 bytes, got %d", len(b))
	}
	return b, nil
}

// EncryptKey seals a hex private key under password (PBKDF2-SHA256 then
// AES-256-GCM) and returns the key file JSON.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	key, err := parseKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}
	kf := keyFile{Version: keyFileVersion, Salt: make([]byte, kdfSaltLen)}
	if _, err := rand.Read(kf.Salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := walletGCM(password, kf.Salt)
	if err != nil {
		return nil, err
	}
	kf.Nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(kf.Nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	kf.Ciphertext = gcm.Seal(nil, kf.Nonce, key, nil)
	return json.MarshalIndent(kf, "", "  ")
}

// DecryptKey opens key file JSON produced by EncryptKey and returns the
// private key as hex without a 0x prefix.
func DecryptKey(data []byte, password string) (string, error) {
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("crypto: key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return "", fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	}
	gcm, err := walletGCM(password, kf.Salt)
	if err != nil {
		return "", err
	}
	if len(kf.Nonce) != gcm.NonceSize() {
		return "", errors.New("crypto: key file nonce has the wrong size")
	}
	plain, err := gcm.Open(nil, kf.Nonce, kf.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: wrong password or corrupt key file: %w", err)
	}
	return hex.EncodeToString(plain), nil
}

// LoadKey returns the configured private key as hex.
func LoadKey(cfg KeyConfig) (string, error) {
	switch {
	case cfg.RawPrivateKey != "":
		key, err := parseKeyHex(cfg.RawPrivateKey)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(key), nil
	case cfg.EncryptedKeyPath != "":
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read key file: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	default:
		return "", errors.New("crypto: no wallet key configured")
	}
}

// LoadSigner resolves the configured key and builds a Signer for chainID.
func LoadSigner(cfg KeyConfig, chainID int64) (*Signer, error) {
	key, err := LoadKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewSigner(key, chainID)
}
