// Package cryptoenv implements the v2/v1 AES-GCM envelope used to
// encrypt app env vars and per-user secrets at rest.
//
// v2: base64( salt(16) || iv(12) || ciphertext ). Key is derived fresh
// per record via PBKDF2-HMAC-SHA256 over the master key and that
// record's salt.
//
// v1 (legacy): base64( iv(12) || ciphertext ), key derived with the
// fixed global salt below. Decrypt always tries v2 first and falls back
// to v1 on authentication failure — this dual path is permanent until a
// migration epoch retires v1 ciphertext, per spec.md §4.11.
package cryptoenv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize       = 16
	nonceSize      = 12
	keySize        = 32 // 256-bit
	pbkdf2Iters    = 100_000
	legacyV1Salt   = "ultralight-env-vars-salt"
)

// Version identifies which envelope format a ciphertext decrypted as.
type Version int

const (
	VersionUnknown Version = iota
	V1
	V2
)

// Envelope derives keys from a single master key and encrypts/decrypts
// the v2/v1 blob format.
type Envelope struct {
	masterKey []byte
}

// New builds an Envelope. masterKey must be non-empty; callers MUST NOT
// pass an insecure default (see config.Validate).
func New(masterKey string) (*Envelope, error) {
	if masterKey == "" {
		return nil, errors.New("cryptoenv: master key must not be empty")
	}
	return &Envelope{masterKey: []byte(masterKey)}, nil
}

func deriveKey(masterKey, salt []byte) []byte {
	return pbkdf2.Key(masterKey, salt, pbkdf2Iters, keySize, sha256.New)
}

// Encrypt produces a fresh v2 blob: base64(salt||iv||ciphertext). An
// empty plaintext yields an empty string rather than a blob.
func (e *Envelope) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("cryptoenv: generate salt: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cryptoenv: generate nonce: %w", err)
	}

	gcm, err := newGCM(deriveKey(e.masterKey, salt))
	if err != nil {
		return "", err
	}

	ct := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	buf := make([]byte, 0, len(salt)+len(nonce)+len(ct))
	buf = append(buf, salt...)
	buf = append(buf, nonce...)
	buf = append(buf, ct...)

	return base64.StdEncoding.EncodeToString(buf), nil
}

// Decrypt attempts v2 first (per-record salt prefix) and falls back to
// v1 (fixed legacy salt) on authentication failure, per spec.md §4.11.
func (e *Envelope) Decrypt(blob string) (string, Version, error) {
	if blob == "" {
		return "", VersionUnknown, nil
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", VersionUnknown, fmt.Errorf("cryptoenv: invalid base64: %w", err)
	}

	if pt, ok := e.tryDecryptV2(raw); ok {
		return pt, V2, nil
	}

	if pt, ok := e.tryDecryptV1(raw); ok {
		return pt, V1, nil
	}

	return "", VersionUnknown, errors.New("cryptoenv: decryption failed under both v2 and v1")
}

func (e *Envelope) tryDecryptV2(raw []byte) (string, bool) {
	if len(raw) < saltSize+nonceSize {
		return "", false
	}

	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+nonceSize]
	ct := raw[saltSize+nonceSize:]

	gcm, err := newGCM(deriveKey(e.masterKey, salt))
	if err != nil {
		return "", false
	}

	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", false
	}

	return string(pt), true
}

func (e *Envelope) tryDecryptV1(raw []byte) (string, bool) {
	if len(raw) < nonceSize {
		return "", false
	}

	nonce := raw[:nonceSize]
	ct := raw[nonceSize:]

	gcm, err := newGCM(deriveKey(e.masterKey, []byte(legacyV1Salt)))
	if err != nil {
		return "", false
	}

	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", false
	}

	return string(pt), true
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoenv: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptoenv: gcm: %w", err)
	}
	return gcm, nil
}
