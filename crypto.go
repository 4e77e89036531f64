package main

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const payloadAlgorithm = "aes-256-gcm"

const gcmTagSize = 16

// EncryptedPayload is the at-rest form of a credential. A JSON value is only
// recognized as this shape when all five fields are present, Encrypted is
// literally true and the remaining four are strings; anything else (including
// a bare string) is treated as not-yet-encrypted.
type EncryptedPayload struct {
	Encrypted  bool   `json:"encrypted"`
	Algorithm  string `json:"algorithm"`
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
	Ciphertext string `json:"ciphertext"`
}

// UnmarshalJSON validates the payload shape at parse time, so a mapping file
// with a plaintext or malformed password field fails loudly instead of being
// carried along as garbage.
func (p *EncryptedPayload) UnmarshalJSON(data []byte) error {
	type rawPayload struct {
		Encrypted  *bool   `json:"encrypted"`
		Algorithm  *string `json:"algorithm"`
		IV         *string `json:"iv"`
		Tag        *string `json:"tag"`
		Ciphertext *string `json:"ciphertext"`
	}
	var raw rawPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return encryptionError("password field is not an encrypted payload object", err)
	}
	if raw.Encrypted == nil || !*raw.Encrypted ||
		raw.Algorithm == nil || raw.IV == nil || raw.Tag == nil || raw.Ciphertext == nil {
		return encryptionError("password field is missing encrypted payload markers", nil)
	}
	p.Encrypted = true
	p.Algorithm = *raw.Algorithm
	p.IV = *raw.IV
	p.Tag = *raw.Tag
	p.Ciphertext = *raw.Ciphertext
	return nil
}

// encryptString seals plaintext under key with AES-256-GCM. A fresh random IV
// is drawn per call, so two encryptions of the same plaintext never match.
func encryptString(plaintext string, key []byte) (*EncryptedPayload, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, encryptionError("initialize cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, encryptionError("initialize GCM", err)
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, encryptionError("generate IV", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	return &EncryptedPayload{
		Encrypted:  true,
		Algorithm:  payloadAlgorithm,
		IV:         base64.StdEncoding.EncodeToString(iv),
		Tag:        base64.StdEncoding.EncodeToString(tag),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// decryptPayload reverses encryptString. A wrong key or tampered ciphertext
// fails GCM authentication and surfaces as an encryption error; it never
// returns corrupted plaintext.
func decryptPayload(p *EncryptedPayload, key []byte) (string, error) {
	if p == nil || !p.Encrypted {
		return "", encryptionError("value is not an encrypted payload", nil)
	}
	if p.Algorithm != payloadAlgorithm {
		return "", encryptionError(fmt.Sprintf("unsupported algorithm %q", p.Algorithm), nil)
	}

	iv, err := base64.StdEncoding.DecodeString(p.IV)
	if err != nil {
		return "", encryptionError("decode IV", err)
	}
	tag, err := base64.StdEncoding.DecodeString(p.Tag)
	if err != nil {
		return "", encryptionError("decode tag", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(p.Ciphertext)
	if err != nil {
		return "", encryptionError("decode ciphertext", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", encryptionError("initialize cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", encryptionError("initialize GCM", err)
	}
	if len(iv) != gcm.NonceSize() {
		return "", encryptionError("invalid IV length", nil)
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", encryptionError("decryption failed (wrong key or tampered payload)", err)
	}
	return string(plaintext), nil
}

// loadOrCreateKey returns the 32-byte master key stored at path, generating
// and persisting a fresh one (0600) on first use.
func loadOrCreateKey(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		key, decErr := base64.StdEncoding.DecodeString(string(data))
		if decErr != nil || len(key) != 32 {
			return nil, encryptionError(fmt.Sprintf("key file %s is corrupt", path), decErr)
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, encryptionError(fmt.Sprintf("read key file %s", path), err)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, encryptionError("generate key", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, encryptionError("create key directory", err)
	}
	if err := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(key)), 0o600); err != nil {
		return nil, encryptionError(fmt.Sprintf("write key file %s", path), err)
	}
	return key, nil
}
