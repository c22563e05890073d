package plan

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/heirvault/escrow-backend/cryptoutils"
	"github.com/heirvault/escrow-backend/interfaces"
	"github.com/heirvault/escrow-backend/kms"
	"github.com/heirvault/escrow-backend/shamir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLRequest(t *testing.T, k, n int) (interfaces.CreatePlanRequest, map[string]*cryptoutils.TrusteeKeyPair, *kms.VaultMasterKey) {
	t.Helper()

	vmk, err := kms.DeriveMasterKey("sql test passphrase", nil)
	require.NoError(t, err)

	shares, err := shamir.Split(vmk.RawKey(), k, n)
	require.NoError(t, err)

	req := interfaces.CreatePlanRequest{
		Name:              "sql plan",
		OwnerID:           "owner-1",
		KThreshold:        k,
		WaitingPeriodDays: 30,
		Beneficiaries: []interfaces.BeneficiarySpec{
			{Email: "heir@example.com", Name: "Heir", Relationship: "child"},
		},
		VaultItemIDs: []string{"item-1"},
	}
	keys := make(map[string]*cryptoutils.TrusteeKeyPair, n)
	for i := 0; i < n; i++ {
		email := string(rune('a'+i)) + "@example.com"
		kp, err := cryptoutils.GenerateTrusteeKeyPair()
		require.NoError(t, err)
		keys[email] = kp

		blob, err := shares[i].MarshalBinary()
		require.NoError(t, err)
		enc, err := cryptoutils.EncryptShare(blob, kp.PublicKeyPEM, email, shares[i].Index)
		require.NoError(t, err)

		req.Trustees = append(req.Trustees, interfaces.TrusteeSpec{
			Email: email, Name: "Trustee", PublicKeyPEM: []byte(kp.PublicKeyPEM),
		})
		req.ShamirShares = append(req.ShamirShares, enc)
	}
	return req, keys, vmk
}

func newTestSQLStore(t *testing.T) (*SQLStore, *time.Time) {
	t.Helper()

	store, err := NewSQLStore(filepath.Join(t.TempDir(), "plans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	return store, &now
}

func TestSQLStoreCreateAndLoad(t *testing.T) {
	store, _ := newTestSQLStore(t)
	ctx := context.Background()

	req, _, _ := newSQLRequest(t, 2, 3)
	created, err := store.CreatePlan(ctx, req)
	require.NoError(t, err)

	view, err := store.GetPlanStatus(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, view.Plan.ID)
	assert.Equal(t, interfaces.StatusActive, view.Plan.Status)
	assert.Equal(t, 2, view.Plan.KThreshold)
	assert.Len(t, view.Trustees, 3)
	assert.Len(t, view.Beneficiaries, 1)
	assert.Equal(t, []string{"item-1"}, view.Items)
	assert.Equal(t, interfaces.ApprovalProgress{Approved: 0, Total: 3, CanTrigger: false}, view.Progress)

	// Encrypted share material survives the round trip byte for byte.
	for i, tr := range view.Trustees {
		assert.Equal(t, created.Trustees[i].EncryptedShare, tr.EncryptedShare)
	}

	_, err = store.GetPlanStatus(ctx, interfaces.NewPlanID())
	assert.ErrorIs(t, err, interfaces.ErrPlanNotFound)
}

func TestSQLStoreApprovalIdempotence(t *testing.T) {
	store, _ := newTestSQLStore(t)
	ctx := context.Background()

	req, _, _ := newSQLRequest(t, 2, 3)
	created, err := store.CreatePlan(ctx, req)
	require.NoError(t, err)

	tr := created.Trustees[0]
	require.NoError(t, store.ApprovePlan(ctx, created.ID, tr.ID))
	require.NoError(t, store.ApprovePlan(ctx, created.ID, tr.ID))

	view, err := store.GetPlanStatus(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Progress.Approved)
	require.NotNil(t, view.Trustees[0].ApprovedAt)

	err = store.ApprovePlan(ctx, created.ID, interfaces.NewTrusteeID())
	assert.ErrorIs(t, err, interfaces.ErrTrusteeNotFound)
}

func TestSQLStoreTriggerGating(t *testing.T) {
	store, now := newTestSQLStore(t)
	ctx := context.Background()

	req, _, _ := newSQLRequest(t, 2, 3)
	created, err := store.CreatePlan(ctx, req)
	require.NoError(t, err)

	trigger := interfaces.TriggerRequest{Reason: "owner unreachable"}

	err = store.TriggerInheritance(ctx, created.ID, trigger)
	assert.ErrorIs(t, err, interfaces.ErrQuorumNotMet)

	require.NoError(t, store.ApprovePlan(ctx, created.ID, created.Trustees[0].ID))
	require.NoError(t, store.ApprovePlan(ctx, created.ID, created.Trustees[1].ID))

	err = store.TriggerInheritance(ctx, created.ID, trigger)
	assert.ErrorIs(t, err, interfaces.ErrWaitingPeriodNotElapsed)

	_, err = store.GetTrusteeShares(ctx, created.ID)
	assert.ErrorIs(t, err, interfaces.ErrInvalidTransition)

	*now = now.AddDate(0, 0, 31)
	require.NoError(t, store.TriggerInheritance(ctx, created.ID, trigger))

	shares, err := store.GetTrusteeShares(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, shares, 3)

	// Triggered plans cannot be re-triggered, cancelled, or deleted.
	err = store.TriggerInheritance(ctx, created.ID, trigger)
	assert.ErrorIs(t, err, interfaces.ErrInvalidTransition)
	err = store.CancelPlan(ctx, created.ID)
	assert.ErrorIs(t, err, interfaces.ErrInvalidTransition)
	err = store.DeletePlan(ctx, created.ID)
	assert.ErrorIs(t, err, interfaces.ErrInvalidTransition)

	require.NoError(t, store.CompletePlan(ctx, created.ID))
	view, err := store.GetPlanStatus(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusCompleted, view.Plan.Status)
	require.NotNil(t, view.Plan.CompletedAt)
}

func TestSQLStoreWaitingPeriodBoundary(t *testing.T) {
	store, now := newTestSQLStore(t)
	ctx := context.Background()

	req, _, _ := newSQLRequest(t, 2, 3)
	created, err := store.CreatePlan(ctx, req)
	require.NoError(t, err)

	require.NoError(t, store.ApprovePlan(ctx, created.ID, created.Trustees[0].ID))
	require.NoError(t, store.ApprovePlan(ctx, created.ID, created.Trustees[1].ID))

	trigger := interfaces.TriggerRequest{Reason: "owner unreachable"}
	deadline := created.CreatedAt.AddDate(0, 0, req.WaitingPeriodDays)

	// Quorum alone is not enough, even deep into the waiting period.
	*now = created.CreatedAt.AddDate(0, 0, 5)
	err = store.TriggerInheritance(ctx, created.ID, trigger)
	assert.ErrorIs(t, err, interfaces.ErrWaitingPeriodNotElapsed)

	*now = deadline.Add(-time.Second)
	err = store.TriggerInheritance(ctx, created.ID, trigger)
	assert.ErrorIs(t, err, interfaces.ErrWaitingPeriodNotElapsed)

	// The rejections above leave the stored state untouched.
	view, err := store.GetPlanStatus(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusActive, view.Plan.Status)
	assert.Nil(t, view.Plan.TriggeredAt)

	// The deadline itself is inclusive.
	*now = deadline
	require.NoError(t, store.TriggerInheritance(ctx, created.ID, trigger))
}

func TestSQLStoreUpdateResetsApprovals(t *testing.T) {
	store, _ := newTestSQLStore(t)
	ctx := context.Background()

	req, _, _ := newSQLRequest(t, 2, 3)
	created, err := store.CreatePlan(ctx, req)
	require.NoError(t, err)
	require.NoError(t, store.ApprovePlan(ctx, created.ID, created.Trustees[0].ID))

	req2, _, _ := newSQLRequest(t, 3, 4)
	updated, err := store.UpdatePlan(ctx, created.ID, req2)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt.Unix(), updated.CreatedAt.Unix())
	assert.Equal(t, 3, updated.KThreshold)
	assert.Len(t, updated.Trustees, 4)

	view, err := store.GetPlanStatus(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Progress.Approved)
}

func TestSQLStoreDeleteAndCancel(t *testing.T) {
	store, _ := newTestSQLStore(t)
	ctx := context.Background()

	req, _, _ := newSQLRequest(t, 2, 2)
	created, err := store.CreatePlan(ctx, req)
	require.NoError(t, err)

	require.NoError(t, store.CancelPlan(ctx, created.ID))
	require.NoError(t, store.DeletePlan(ctx, created.ID))

	_, err = store.GetPlanStatus(ctx, created.ID)
	assert.ErrorIs(t, err, interfaces.ErrPlanNotFound)
}

func TestSQLStoreSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "plans.db")
	ctx := context.Background()

	store, err := NewSQLStore(dbPath)
	require.NoError(t, err)
	req, _, _ := newSQLRequest(t, 2, 3)
	created, err := store.CreatePlan(ctx, req)
	require.NoError(t, err)
	require.NoError(t, store.ApprovePlan(ctx, created.ID, created.Trustees[0].ID))
	require.NoError(t, store.Close())

	reopened, err := NewSQLStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	view, err := reopened.GetPlanStatus(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Progress.Approved)
	assert.Len(t, view.Trustees, 3)
}
