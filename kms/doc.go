// Package kms manages the symmetric key hierarchy of a vault.
//
// # Master Key
//
// The vault master key (VMK) is derived from the owner's passphrase with
// Argon2id, a memory-hard KDF, over a persisted non-secret salt. The VMK
// lives only in the memory of the owner's session and must be wiped with
// Zero on logout; it is never written to persistent storage in plaintext.
// Its raw bytes exist transiently to feed the shamir package when a plan is
// created or a recovery kit generated.
//
// # Content Keys
//
// Every stored item gets its own random content encryption key (CEK). The
// item payload is sealed with AES-256-GCM under the CEK, and the CEK is
// wrapped with AES-256-GCM under the VMK, each with a fresh random nonce.
// Losing the VMK therefore only requires re-wrapping CEKs, not re-encrypting
// item payloads, and any tampering fails the authentication tag loudly.
//
// A passphrase typo is not detectable at derivation time. The derived key is
// simply wrong and the first DecryptItem returns ErrDecryptionFailure.
package kms
