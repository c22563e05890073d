package interfaces

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ContentID is the 32-byte SHA-256 hash identifying stored content.
type ContentID [32]byte

// NewContentIDFromHex parses a content ID from its hex representation.
func NewContentIDFromHex(source string) (ContentID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentID{}, errors.New("invalid content ID length: hex string must be 64 characters")
	}
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid hex format: %w", err)
	}
	var id ContentID
	copy(id[:], raw)
	return id, nil
}

// ComputeID calculates the content ID of data.
func ComputeID(data []byte) ContentID {
	return ContentID(sha256.Sum256(data))
}

// String returns the hex representation.
func (id ContentID) String() string { return hex.EncodeToString(id[:]) }

// Bytes returns the raw 32-byte hash.
func (id ContentID) Bytes() []byte { return id[:] }

// ContentType distinguishes the kinds of escrow artifacts a backend stores.
// Everything stored through this interface is already encrypted; backends
// only ever see ciphertext.
type ContentType int

const (
	// RecoveryKitType is a serialized, password-protected recovery kit bundle.
	RecoveryKitType ContentType = iota
	// EncryptedShareType is a trustee's envelope-encrypted Shamir share.
	EncryptedShareType
)

// StorageBackendLocation is a URI describing a storage backend, e.g.
// file:///var/lib/escrow or s3://bucket/kits/?region=eu-west-1.
type StorageBackendLocation string

// KitStorage persists recovery kits and encrypted shares. Implementations
// are content-addressed: Store returns the SHA-256 of the data and Fetch
// retrieves by that hash.
type KitStorage interface {
	// Fetch retrieves data by content ID. Returns ErrContentNotFound if the
	// backend does not hold the content.
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)

	// Store persists data and returns its content ID.
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)

	// Available reports whether the backend is currently reachable.
	Available(ctx context.Context) bool

	// Name returns a short identifier for logs.
	Name() string

	// LocationURI returns the URI this backend was created from.
	LocationURI() string
}
