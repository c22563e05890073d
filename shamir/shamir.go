package shamir

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/heirvault/escrow-backend/interfaces"
)

// Share is one point of a split secret. Index is the x-coordinate (1..n,
// never 0, since x=0 would leak the secret directly). Every share of a split
// carries the threshold and a SHA-256 commitment of the original secret, so
// a combiner can detect mismatched or corrupted share sets before handing
// back a wrong reconstruction.
type Share struct {
	Index      int      `json:"index"`
	Threshold  int      `json:"threshold"`
	Commitment [32]byte `json:"commitment"`
	Data       []byte   `json:"data"`
}

// Split divides a secret into n shares with reconstruction threshold k.
//
// Each byte of the secret is the constant term of an independent random
// polynomial of degree k-1 over GF(2^8); share i holds the polynomial
// evaluations at x=i. Any k shares reconstruct the secret exactly; k-1
// shares are information-theoretically independent of it.
func Split(secret []byte, k, n int) ([]Share, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", interfaces.ErrInvalidInput)
	}
	if k < interfaces.MinThreshold {
		return nil, fmt.Errorf("%w: threshold %d, minimum is %d", interfaces.ErrInvalidThreshold, k, interfaces.MinThreshold)
	}
	if n < k {
		return nil, fmt.Errorf("%w: %d shares cannot satisfy threshold %d", interfaces.ErrInvalidConfig, n, k)
	}
	if n > interfaces.MaxTrustees {
		return nil, fmt.Errorf("%w: %d shares exceeds the cap of %d", interfaces.ErrTooManyShares, n, interfaces.MaxTrustees)
	}

	commitment := sha256.Sum256(secret)

	shares := make([]Share, n)
	for i := range shares {
		shares[i] = Share{
			Index:      i + 1,
			Threshold:  k,
			Commitment: commitment,
			Data:       make([]byte, len(secret)),
		}
	}

	coeffs := make([]byte, k-1)
	for pos, b := range secret {
		if _, err := rand.Read(coeffs); err != nil {
			return nil, fmt.Errorf("failed to draw polynomial coefficients: %w", err)
		}
		for i := range shares {
			shares[i].Data[pos] = evalPoly(b, coeffs, byte(shares[i].Index))
		}
	}

	return shares, nil
}

// Combine reconstructs the secret from k or more shares of the same split
// via Lagrange interpolation at x=0. Shares from different secrets, corrupted
// shares and under-threshold sets are all rejected; the commitment check is
// what turns "plausible-looking wrong answer" into a hard error.
func Combine(shares []Share) ([]byte, error) {
	if len(shares) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 shares, got %d", interfaces.ErrInsufficientShares, len(shares))
	}

	threshold := shares[0].Threshold
	commitment := shares[0].Commitment
	secretLen := len(shares[0].Data)

	seen := make(map[int]bool, len(shares))
	for _, s := range shares {
		if s.Index < 1 || s.Index > interfaces.MaxTrustees {
			return nil, fmt.Errorf("%w: share index %d out of range", interfaces.ErrInvalidInput, s.Index)
		}
		if seen[s.Index] {
			return nil, fmt.Errorf("%w: duplicate share index %d", interfaces.ErrInvalidInput, s.Index)
		}
		seen[s.Index] = true
		if s.Threshold != threshold {
			return nil, fmt.Errorf("%w: share %d carries threshold %d, expected %d", interfaces.ErrShareMismatch, s.Index, s.Threshold, threshold)
		}
		if s.Commitment != commitment {
			return nil, fmt.Errorf("%w: share %d belongs to a different secret", interfaces.ErrShareMismatch, s.Index)
		}
		if len(s.Data) != secretLen {
			return nil, fmt.Errorf("%w: share %d has %d bytes, expected %d", interfaces.ErrShareMismatch, s.Index, len(s.Data), secretLen)
		}
	}

	if len(shares) < threshold {
		return nil, fmt.Errorf("%w: got %d shares, threshold is %d", interfaces.ErrInsufficientShares, len(shares), threshold)
	}

	// Interpolation only needs exactly threshold points.
	points := shares[:threshold]

	secret := make([]byte, secretLen)
	for pos := range secret {
		secret[pos] = interpolateAtZero(points, pos)
	}

	if sha256.Sum256(secret) != commitment {
		wipe(secret)
		return nil, fmt.Errorf("%w: reconstructed secret fails commitment check", interfaces.ErrShareMismatch)
	}

	return secret, nil
}

// Equal reports whether two shares are identical, including their data.
func (s Share) Equal(other Share) bool {
	return s.Index == other.Index &&
		s.Threshold == other.Threshold &&
		s.Commitment == other.Commitment &&
		bytes.Equal(s.Data, other.Data)
}

func wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
