package shamir

import (
	"crypto/rand"
	"testing"

	"github.com/heirvault/escrow-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSecret(t *testing.T, size int) []byte {
	t.Helper()
	secret := make([]byte, size)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	return secret
}

func TestSplitValidation(t *testing.T) {
	secret := randomSecret(t, 32)

	_, err := Split(nil, 2, 3)
	assert.ErrorIs(t, err, interfaces.ErrInvalidInput, "empty secret")

	_, err = Split(secret, 1, 3)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold, "threshold below 2")

	_, err = Split(secret, 4, 3)
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig, "n below k")

	_, err = Split(secret, 2, 11)
	assert.ErrorIs(t, err, interfaces.ErrTooManyShares, "n above trustee cap")
}

func TestSplitCombineRoundTrip(t *testing.T) {
	// Property 1: exact round trip for every valid (k, n) pair and several
	// secret lengths, combining an arbitrary k-subset.
	for _, size := range []int{1, 16, 32, 33, 257} {
		secret := randomSecret(t, size)
		for n := 2; n <= interfaces.MaxTrustees; n++ {
			for k := 2; k <= n; k++ {
				shares, err := Split(secret, k, n)
				require.NoError(t, err, "split k=%d n=%d", k, n)
				require.Len(t, shares, n)

				// Use the last k shares rather than the first k, so the
				// subset exercises non-trivial x-coordinates.
				got, err := Combine(shares[n-k:])
				require.NoError(t, err, "combine k=%d n=%d", k, n)
				assert.Equal(t, secret, got, "k=%d n=%d size=%d", k, n, size)
			}
		}
	}
}

func TestCombineUnderThreshold(t *testing.T) {
	// Property 2: k-1 shares must not reconstruct the secret.
	secret := randomSecret(t, 32)
	shares, err := Split(secret, 3, 5)
	require.NoError(t, err)

	_, err = Combine(shares[:2])
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)

	// A single share is rejected outright.
	_, err = Combine(shares[:1])
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)
}

func TestCombineTwoOfThreeScenario(t *testing.T) {
	// Concrete scenario from the escrow flow: 32-byte master key, k=2, n=3,
	// combine shares 1 and 3.
	secret := randomSecret(t, 32)
	shares, err := Split(secret, 2, 3)
	require.NoError(t, err)

	got, err := Combine([]Share{shares[0], shares[2]})
	require.NoError(t, err)
	assert.Equal(t, secret, got)

	_, err = Combine([]Share{shares[1]})
	assert.Error(t, err, "a single share must not reconstruct")
}

func TestCombineMismatchedShares(t *testing.T) {
	secretA := randomSecret(t, 32)
	secretB := randomSecret(t, 32)

	sharesA, err := Split(secretA, 2, 3)
	require.NoError(t, err)
	sharesB, err := Split(secretB, 2, 3)
	require.NoError(t, err)

	// Shares of different secrets are detected by the commitment.
	_, err = Combine([]Share{sharesA[0], sharesB[1]})
	assert.ErrorIs(t, err, interfaces.ErrShareMismatch)

	// Corrupted share data fails the reconstruction commitment check.
	corrupted := []Share{sharesA[0], sharesA[1]}
	corrupted[1].Data = append([]byte(nil), corrupted[1].Data...)
	corrupted[1].Data[0] ^= 0xff
	_, err = Combine(corrupted)
	assert.ErrorIs(t, err, interfaces.ErrShareMismatch)

	// Duplicate indexes are rejected.
	_, err = Combine([]Share{sharesA[0], sharesA[0]})
	assert.ErrorIs(t, err, interfaces.ErrInvalidInput)
}

func TestShareMarshalRoundTrip(t *testing.T) {
	secret := randomSecret(t, 32)
	shares, err := Split(secret, 2, 3)
	require.NoError(t, err)

	blob, err := shares[1].MarshalBinary()
	require.NoError(t, err)

	var parsed Share
	require.NoError(t, parsed.UnmarshalBinary(blob))
	assert.True(t, shares[1].Equal(parsed))

	// Truncated blobs are rejected.
	var bad Share
	assert.Error(t, bad.UnmarshalBinary(blob[:10]))
	assert.Error(t, bad.UnmarshalBinary(blob[:len(blob)-1]))
}
