package kms

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/heirvault/escrow-backend/interfaces"
)

// cekSize is the length of a per-item content encryption key.
const cekSize = 32

// EncryptedItem is one vault item sealed under its own content encryption
// key. Ciphertext and WrappedCEK both carry their GCM nonce as a prefix.
// Decryption requires the vault master key; tampering with either field
// fails the authentication tag check.
type EncryptedItem struct {
	Ciphertext []byte `json:"ciphertext"`
	WrappedCEK []byte `json:"wrapped_cek"`
}

// ContentKeyManager generates a fresh random CEK per stored item, seals item
// payloads under the CEK and wraps the CEK under the vault master key. One
// CEK never encrypts more than one item, so nonce reuse per key is ruled out
// by construction on the item layer; the wrap layer uses a fresh nonce per
// wrap.
type ContentKeyManager struct {
	vmk *VaultMasterKey
}

// NewContentKeyManager creates a manager bound to the session's master key.
func NewContentKeyManager(vmk *VaultMasterKey) (*ContentKeyManager, error) {
	if vmk == nil || len(vmk.rawKey) != MasterKeySize {
		return nil, fmt.Errorf("%w: missing or wiped master key", interfaces.ErrInvalidInput)
	}
	return &ContentKeyManager{vmk: vmk}, nil
}

// EncryptItem seals the item payload under a fresh CEK and wraps the CEK
// under the master key.
func (m *ContentKeyManager) EncryptItem(plaintext []byte) (*EncryptedItem, error) {
	cek := make([]byte, cekSize)
	if _, err := io.ReadFull(rand.Reader, cek); err != nil {
		return nil, fmt.Errorf("failed to generate content key: %w", err)
	}
	defer wipeBytes(cek)

	ciphertext, err := sealGCM(cek, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt item: %w", err)
	}

	wrapped, err := sealGCM(m.vmk.rawKey, cek)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap content key: %w", err)
	}

	return &EncryptedItem{Ciphertext: ciphertext, WrappedCEK: wrapped}, nil
}

// DecryptItem unwraps the CEK under the master key and opens the item
// payload. Any tampering with ciphertext or wrapped key surfaces as
// interfaces.ErrDecryptionFailure; corrupted plaintext is never returned
// silently.
func (m *ContentKeyManager) DecryptItem(item *EncryptedItem) ([]byte, error) {
	cek, err := openGCM(m.vmk.rawKey, item.WrappedCEK)
	if err != nil {
		return nil, fmt.Errorf("%w: content key unwrap: %v", interfaces.ErrDecryptionFailure, err)
	}
	defer wipeBytes(cek)

	plaintext, err := openGCM(cek, item.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: item payload: %v", interfaces.ErrDecryptionFailure, err)
	}
	return plaintext, nil
}

// sealGCM encrypts with AES-256-GCM under a fresh random nonce, returning
// nonce||ciphertext.
func sealGCM(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return append(nonce, aead.Seal(nil, nonce, plaintext, nil)...), nil
}

// openGCM reverses sealGCM.
func openGCM(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(data) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	return aead.Open(nil, data[:aead.NonceSize()], data[aead.NonceSize():], nil)
}
