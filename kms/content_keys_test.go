package kms

import (
	"testing"

	"github.com/heirvault/escrow-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterKey(t *testing.T) *VaultMasterKey {
	t.Helper()
	vmk, err := DeriveMasterKey("correct horse battery staple", nil)
	require.NoError(t, err)
	return vmk
}

func TestEncryptDecryptItem(t *testing.T) {
	manager, err := NewContentKeyManager(testMasterKey(t))
	require.NoError(t, err)

	plaintext := []byte("ssh private key, crypto seed phrase, estate documents")
	item, err := manager.EncryptItem(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, item.Ciphertext)

	decrypted, err := manager.DecryptItem(item)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptItemFreshCEKPerItem(t *testing.T) {
	manager, err := NewContentKeyManager(testMasterKey(t))
	require.NoError(t, err)

	a, err := manager.EncryptItem([]byte("same content"))
	require.NoError(t, err)
	b, err := manager.EncryptItem([]byte("same content"))
	require.NoError(t, err)

	// Identical plaintexts must not produce related ciphertexts or wraps.
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
	assert.NotEqual(t, a.WrappedCEK, b.WrappedCEK)
}

func TestDecryptItemTamperDetection(t *testing.T) {
	manager, err := NewContentKeyManager(testMasterKey(t))
	require.NoError(t, err)

	item, err := manager.EncryptItem([]byte("payload"))
	require.NoError(t, err)

	tampered := &EncryptedItem{
		Ciphertext: append([]byte(nil), item.Ciphertext...),
		WrappedCEK: item.WrappedCEK,
	}
	tampered.Ciphertext[len(tampered.Ciphertext)-1] ^= 0x01
	_, err = manager.DecryptItem(tampered)
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure)

	tampered = &EncryptedItem{
		Ciphertext: item.Ciphertext,
		WrappedCEK: append([]byte(nil), item.WrappedCEK...),
	}
	tampered.WrappedCEK[len(tampered.WrappedCEK)-1] ^= 0x01
	_, err = manager.DecryptItem(tampered)
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure)
}

func TestDecryptItemWrongMasterKey(t *testing.T) {
	manager, err := NewContentKeyManager(testMasterKey(t))
	require.NoError(t, err)

	item, err := manager.EncryptItem([]byte("payload"))
	require.NoError(t, err)

	other, err := NewContentKeyManager(testMasterKey(t))
	require.NoError(t, err)

	_, err = other.DecryptItem(item)
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure)
}

func TestNewContentKeyManagerRequiresKey(t *testing.T) {
	_, err := NewContentKeyManager(nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidInput)

	vmk := testMasterKey(t)
	vmk.Zero()
	_, err = NewContentKeyManager(vmk)
	assert.ErrorIs(t, err, interfaces.ErrInvalidInput)
}
