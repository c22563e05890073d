// Package interfaces defines core interfaces and types for the inheritance
// escrow system, separating contract definitions from implementations.
//
// # Plan Persistence
//
// PlanAPI: The plan persistence contract. The cryptographic core consumes it;
// the external vault/inheritance API provides it. The reference store in the
// plan package implements the same contract for tests and self-hosting.
// Approval bookkeeping is explicitly the implementation's responsibility:
// concurrent approvals must be merged atomically on the persistence side, and
// client-side approval counts are advisory only.
//
// # Storage
//
// KitStorage: Content-addressed storage for recovery kits and encrypted
// shares across multiple backend types (file, S3, IPFS, Vault). Only
// ciphertext ever reaches a backend.
//
// # Core Types
//
//   - InheritancePlan, Trustee, Beneficiary: the plan data model
//   - PlanStatus: lifecycle states with transition validation
//   - EncryptedShare: a Shamir share envelope-encrypted for one trustee
//   - ContentID: 32-byte SHA-256 hash for content addressing
//
// # Errors
//
// The sentinel errors in this package form the failure taxonomy of the whole
// core. Precondition errors (ErrInvalidConfig, ErrQuorumNotMet, ...) are
// raised before any crypto or network call; ErrDecryptionFailure is
// deliberately ambiguous about its cause.
package interfaces
