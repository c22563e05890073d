package kms

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/heirvault/escrow-backend/interfaces"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for master key derivation. Memory-hard on purpose:
// an offline brute force against a stolen salt must pay 64 MiB per guess.
const (
	kdfTime    = 3
	kdfMemory  = 64 * 1024
	kdfThreads = 4

	// MasterKeySize is the length of the derived vault master key.
	MasterKeySize = 32

	// SaltSize is the length of a freshly generated derivation salt.
	SaltSize = 16
)

// VaultMasterKey is the symmetric root of a user's vault. It exists only in
// the memory of the owner's session; the raw bytes are exposed solely to feed
// the secret sharing engine and must be wiped with Zero on logout.
type VaultMasterKey struct {
	rawKey []byte
	salt   []byte
}

// DeriveMasterKey derives the vault master key from a passphrase with
// Argon2id. A nil salt generates a fresh random one; the salt is not secret
// and must be persisted for future restores.
//
// Derivation is deterministic for identical (passphrase, salt). A wrong
// passphrase does not fail here. It yields a key that fails to decrypt
// anything downstream, detectable only through an AEAD open error.
func DeriveMasterKey(passphrase string, salt []byte) (*VaultMasterKey, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty passphrase", interfaces.ErrInvalidInput)
	}

	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
	}
	if len(salt) < SaltSize {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes", interfaces.ErrInvalidInput, SaltSize)
	}

	raw := argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, MasterKeySize)

	return &VaultMasterKey{
		rawKey: raw,
		salt:   append([]byte(nil), salt...),
	}, nil
}

// MasterKeyFromBytes reconstitutes a master key from raw bytes, typically
// after Shamir recombination. The raw slice is copied.
func MasterKeyFromBytes(raw, salt []byte) (*VaultMasterKey, error) {
	if len(raw) != MasterKeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d", interfaces.ErrInvalidInput, MasterKeySize, len(raw))
	}
	return &VaultMasterKey{
		rawKey: append([]byte(nil), raw...),
		salt:   append([]byte(nil), salt...),
	}, nil
}

// RawKey returns the raw key bytes for splitting. Callers must not retain
// the slice beyond the immediate operation.
func (k *VaultMasterKey) RawKey() []byte { return k.rawKey }

// Salt returns the derivation salt.
func (k *VaultMasterKey) Salt() []byte { return k.salt }

// Equal compares two master keys in constant time.
func (k *VaultMasterKey) Equal(other *VaultMasterKey) bool {
	if other == nil {
		return false
	}
	return subtle.ConstantTimeCompare(k.rawKey, other.rawKey) == 1
}

// Zero wipes the key material. The key is unusable afterwards.
func (k *VaultMasterKey) Zero() {
	wipeBytes(k.rawKey)
	k.rawKey = nil
}

func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
