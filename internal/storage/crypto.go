package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/bcrypt"
)

// encryptedPrefix marks values produced by EncryptSecret so that blobs
// written before an encryption key was configured still load.
const encryptedPrefix = "enc:"

// DeriveKey turns an arbitrary passphrase into a 32-byte AES-256 key.
func DeriveKey(passphrase string) []byte {
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:]
}

// EncryptSecret encrypts a provider token or license key with AES-256-GCM.
// The result is "enc:" followed by hex-encoded nonce+ciphertext.
func EncryptSecret(secret string, key []byte) (string, error) {
	if len(key) != 32 {
		return "", ErrInvalidKey
	}

	// Safe because key size is already validated.
	block, _ := aes.NewCipher(key) //nolint:errcheck
	gcm, _ := cipher.NewGCM(block) //nolint:errcheck

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(secret), nil)
	return encryptedPrefix + hex.EncodeToString(sealed), nil
}

// DecryptSecret reverses EncryptSecret. Values without the "enc:" prefix
// are returned unchanged.
func DecryptSecret(value string, key []byte) (string, error) {
	if len(value) < len(encryptedPrefix) || value[:len(encryptedPrefix)] != encryptedPrefix {
		return value, nil
	}
	if len(key) != 32 {
		return "", ErrInvalidKey
	}

	sealed, err := hex.DecodeString(value[len(encryptedPrefix):])
	if err != nil {
		return "", ErrDecryption
	}

	block, _ := aes.NewCipher(key) //nolint:errcheck
	gcm, _ := cipher.NewGCM(block) //nolint:errcheck

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return "", ErrDecryption
	}

	plaintext, err := gcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}

// HashKey creates a bcrypt hash of an access token.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyKey checks if a key matches a bcrypt hash.
func VerifyKey(key, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}
