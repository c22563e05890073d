package keystore

import "context"

// Domain separates custody boundaries inside a keystore. Owner material
// (the vault master key salt, recovery metadata) and trustee material (a
// trustee's private key) must never share a storage namespace, even on the
// same device.
type Domain string

const (
	// DomainOwner holds the vault owner's key material.
	DomainOwner Domain = "owner"
	// DomainTrustee holds a trustee's key material. Storing a trustee
	// private key on the owner's device is a testing convenience and must
	// go through this domain so the boundary stays visible.
	DomainTrustee Domain = "trustee"
)

// SecureKeystore is an injectable store for private key material with an
// explicit lifecycle. Implementations encrypt at rest; nothing is readable
// before Unlock, and Wipe destroys both the stored material and the
// in-memory unlock key.
type SecureKeystore interface {
	// Init prepares the keystore (directories, salt). Idempotent.
	Init(ctx context.Context) error

	// Unlock derives the at-rest encryption key from the passphrase.
	Unlock(passphrase string) error

	// IsUnlocked reports whether key material is currently accessible.
	IsUnlocked() bool

	// StoreKey persists key material under a domain and identifier.
	StoreKey(ctx context.Context, domain Domain, id string, key []byte) error

	// LoadKey retrieves key material. Returns ErrKeystoreLocked before
	// Unlock and ErrDecryptionFailure when unlocked with a wrong passphrase.
	LoadKey(ctx context.Context, domain Domain, id string) ([]byte, error)

	// DeleteKey removes one stored entry.
	DeleteKey(ctx context.Context, domain Domain, id string) error

	// Wipe destroys all stored material and locks the keystore.
	Wipe(ctx context.Context) error
}
