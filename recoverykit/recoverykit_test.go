package recoverykit

import (
	"testing"

	"github.com/heirvault/escrow-backend/interfaces"
	"github.com/heirvault/escrow-backend/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKit(t *testing.T, cfg Config) (*Kit, *kms.VaultMasterKey) {
	t.Helper()

	vmk, err := kms.DeriveMasterKey("vault passphrase", nil)
	require.NoError(t, err)

	svc, err := NewService(cfg)
	require.NoError(t, err)

	kit, err := svc.Generate(vmk, "user-1", "owner@example.com", "recovery passphrase")
	require.NoError(t, err)
	return kit, vmk
}

func TestServiceConfigValidation(t *testing.T) {
	_, err := NewService(Config{Threshold: 1, Shares: 3})
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold)

	_, err = NewService(Config{Threshold: 4, Shares: 3})
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)

	_, err = NewService(Config{Threshold: 3, Shares: 11})
	assert.ErrorIs(t, err, interfaces.ErrTooManyShares)

	svc, err := NewService(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, svc.threshold)
	assert.Equal(t, DefaultShares, svc.shares)
}

func TestGenerateDefaultTemplate(t *testing.T) {
	kit, _ := newTestKit(t, Config{})

	assert.Equal(t, "user-1", kit.UserID)
	assert.Equal(t, KitVersion, kit.Version)
	assert.NotEmpty(t, kit.Salt)
	assert.NotEmpty(t, kit.Instructions)
	require.Len(t, kit.VaultMasterKeyShares, DefaultShares)

	// Every share wrap uses its own salt and nonce.
	seen := make(map[string]bool)
	for i, ws := range kit.VaultMasterKeyShares {
		assert.Equal(t, i+1, ws.Index)
		assert.False(t, seen[ws.EncryptedShare], "duplicate wrapped share")
		seen[ws.EncryptedShare] = true
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	kit, vmk := newTestKit(t, Config{})

	// Threshold-many shares suffice, any subset.
	restored, err := Restore(kit, []int{2, 4, 5}, "recovery passphrase")
	require.NoError(t, err)
	assert.True(t, restored.Equal(vmk))

	// All shares work too.
	restored, err = Restore(kit, nil, "recovery passphrase")
	require.NoError(t, err)
	assert.True(t, restored.Equal(vmk))
}

func TestRestoreRejectsTooFewShares(t *testing.T) {
	kit, _ := newTestKit(t, Config{})

	_, err := Restore(kit, []int{1}, "recovery passphrase")
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)

	// Two shares pass the selection gate but fall below the 3-of-5 split
	// threshold.
	_, err = Restore(kit, []int{1, 2}, "recovery passphrase")
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)
}

func TestRestoreWrongPassphrase(t *testing.T) {
	kit, _ := newTestKit(t, Config{})

	_, err := Restore(kit, []int{1, 2, 3}, "not the passphrase")
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure)
}

func TestRestoreUnknownIndex(t *testing.T) {
	kit, _ := newTestKit(t, Config{})

	_, err := Restore(kit, []int{1, 2, 9}, "recovery passphrase")
	assert.ErrorIs(t, err, interfaces.ErrInvalidInput)
}

func TestKitMarshalRoundTrip(t *testing.T) {
	kit, vmk := newTestKit(t, Config{Threshold: 2, Shares: 3})

	data, err := kit.Marshal()
	require.NoError(t, err)

	parsed, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, kit.UserID, parsed.UserID)
	require.Len(t, parsed.VaultMasterKeyShares, 3)

	restored, err := Restore(parsed, []int{1, 3}, "recovery passphrase")
	require.NoError(t, err)
	assert.True(t, restored.Equal(vmk))

	_, err = Unmarshal([]byte("{not json"))
	assert.ErrorIs(t, err, interfaces.ErrInvalidInput)
}
