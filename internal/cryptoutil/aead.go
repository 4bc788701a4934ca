// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/dbvault/dbmanager/internal/dberrors"
)

const (
	saltSize   = 16
	nonceSize  = 12
	keySize    = 32
	pbkdf2Iter = 100_000
)

// deriveKey derives a 256-bit AES key from password and salt using
// PBKDF2-SHA256, matching spec §4.4 step 6 exactly.
func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iter, keySize, sha256.New)
}

// EncryptFile reads the file at plainPath, encrypts it with
// AES-256-GCM under a key derived from password, and writes
// salt‖nonce‖ciphertext‖tag to encPath. It does not remove plainPath;
// the pipeline is responsible for that once the encrypted file is
// confirmed on disk.
func EncryptFile(plainPath, encPath, password string) error {
	plaintext, err := os.ReadFile(plainPath)
	if err != nil {
		return fmt.Errorf("read plaintext %s: %w", plainPath, err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return err
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	if err := os.WriteFile(encPath, out, 0o600); err != nil {
		return fmt.Errorf("write encrypted file %s: %w", encPath, err)
	}
	return nil
}

// DecryptFile reads salt‖nonce‖ciphertext from encPath, decrypts it with
// the key derived from password, and writes the plaintext to outPath.
// Returns dberrors.IntegrityFailure on any authentication failure (a
// tampered or corrupted ciphertext), per spec §8's AEAD round-trip
// property.
func DecryptFile(encPath, outPath, password string) error {
	data, err := os.ReadFile(encPath)
	if err != nil {
		return fmt.Errorf("read encrypted file %s: %w", encPath, err)
	}
	if len(data) < saltSize+nonceSize {
		return dberrors.IntegrityFailuref("encrypted file %s is shorter than the salt+nonce header", encPath)
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	ciphertext := data[saltSize+nonceSize:]

	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return dberrors.IntegrityFailuref("decryption of %s failed: authentication tag mismatch", encPath)
	}

	if err := os.WriteFile(outPath, plaintext, 0o600); err != nil {
		return fmt.Errorf("write decrypted file %s: %w", outPath, err)
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM mode: %w", err)
	}
	return gcm, nil
}
