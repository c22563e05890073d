package interfaces

import "errors"

// Sentinel errors shared across the escrow core. Configuration and
// precondition failures are detected locally, before any crypto or network
// call; cryptographic failures are surfaced as-is and never retried.
var (
	// ErrInvalidConfig indicates a bad k/n combination or malformed plan input.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates an empty passphrase or empty secret.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidThreshold indicates a reconstruction threshold below 2.
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrTooManyShares indicates a share count above the trustee cap.
	ErrTooManyShares = errors.New("too many shares")

	// ErrInsufficientShares indicates fewer shares than required were supplied.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrShareMismatch indicates shares that do not belong to the same secret,
	// detected via the per-share commitment.
	ErrShareMismatch = errors.New("share commitment mismatch")

	// ErrKeyImport indicates a malformed PEM key.
	ErrKeyImport = errors.New("key import failed")

	// ErrDecryptionFailure indicates an authentication failure during
	// decryption. The cause is ambiguous: wrong key, corrupted ciphertext and
	// tampered IV are indistinguishable without extra integrity metadata.
	ErrDecryptionFailure = errors.New("decryption failed")

	// ErrQuorumNotMet rejects a trigger before enough trustees approved.
	ErrQuorumNotMet = errors.New("approval quorum not met")

	// ErrWaitingPeriodNotElapsed rejects a trigger before the mandatory delay
	// since plan creation has passed.
	ErrWaitingPeriodNotElapsed = errors.New("waiting period not elapsed")

	// ErrInvalidTransition rejects a state change the lifecycle does not
	// permit. The plan remains in its prior status.
	ErrInvalidTransition = errors.New("invalid plan state transition")

	// ErrPlanNotFound indicates an unknown plan ID.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrTrusteeNotFound indicates an unknown trustee ID for the plan.
	ErrTrusteeNotFound = errors.New("trustee not found")

	// ErrKeystoreLocked indicates a keystore operation before Unlock.
	ErrKeystoreLocked = errors.New("keystore is locked")

	// ErrContentNotFound indicates missing content in a storage backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable indicates an unreachable storage backend.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrContentMismatch indicates fetched content whose hash does not match
	// the requested content ID.
	ErrContentMismatch = errors.New("content hash mismatch")

	// ErrInvalidLocationURI indicates a malformed storage backend URI.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)
