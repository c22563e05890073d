package clients

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heirvault/escrow-backend/api/planhandler"
	"github.com/heirvault/escrow-backend/interfaces"
	"github.com/heirvault/escrow-backend/plan"
)

type clientFixture struct {
	client *PlanClient
	now    time.Time
}

func newClientFixture(t *testing.T) *clientFixture {
	t.Helper()

	f := &clientFixture{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}

	store := plan.NewMemStore()
	store.SetClock(func() time.Time { return f.now })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	planhandler.NewHandler(store, log).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	f.client = NewPlanClient(srv.URL)
	return f
}

func clientPlanRequest(k, n, waitDays int) interfaces.CreatePlanRequest {
	req := interfaces.CreatePlanRequest{
		Name:              "estate plan",
		OwnerID:           "owner-1",
		KThreshold:        k,
		WaitingPeriodDays: waitDays,
	}
	for i := 1; i <= n; i++ {
		email := fmt.Sprintf("trustee%d@example.com", i)
		req.Trustees = append(req.Trustees, interfaces.TrusteeSpec{
			Email: email,
			Name:  fmt.Sprintf("Trustee %d", i),
		})
		req.ShamirShares = append(req.ShamirShares, interfaces.EncryptedShare{
			EncryptedData: []byte(fmt.Sprintf("ciphertext-%d", i)),
			IV:            []byte("nonce-bytes!"),
			TrusteeEmail:  email,
			ShareIndex:    i,
		})
	}
	return req
}

func TestPlanClientLifecycle(t *testing.T) {
	f := newClientFixture(t)
	ctx := context.Background()

	created, err := f.client.CreatePlan(ctx, clientPlanRequest(2, 3, 30))
	require.NoError(t, err)
	require.Len(t, created.Trustees, 3)

	plans, err := f.client.ListPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 1)

	// Sentinel errors survive the HTTP round trip.
	err = f.client.TriggerInheritance(ctx, created.ID, interfaces.TriggerRequest{Reason: "owner deceased"})
	require.ErrorIs(t, err, interfaces.ErrQuorumNotMet)

	require.NoError(t, f.client.ApprovePlan(ctx, created.ID, created.Trustees[0].ID))
	require.NoError(t, f.client.ApprovePlan(ctx, created.ID, created.Trustees[1].ID))
	require.NoError(t, f.client.ApprovePlan(ctx, created.ID, created.Trustees[1].ID))

	err = f.client.TriggerInheritance(ctx, created.ID, interfaces.TriggerRequest{Reason: "owner deceased"})
	require.ErrorIs(t, err, interfaces.ErrWaitingPeriodNotElapsed)

	view, err := f.client.GetPlanStatus(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusReady, view.Plan.EffectiveStatus())
	assert.Equal(t, 2, view.Progress.Approved)

	f.now = f.now.AddDate(0, 0, 31)
	require.NoError(t, f.client.TriggerInheritance(ctx, created.ID, interfaces.TriggerRequest{Reason: "owner deceased"}))

	shares, err := f.client.GetTrusteeShares(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, shares, 3)
	assert.Equal(t, []byte("ciphertext-2"), shares[1].EncryptedData)
	assert.Equal(t, "trustee2@example.com", shares[1].TrusteeEmail)

	require.NoError(t, f.client.CompletePlan(ctx, created.ID))
	view, err = f.client.GetPlanStatus(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusCompleted, view.Plan.Status)
}

func TestPlanClientNotFound(t *testing.T) {
	f := newClientFixture(t)
	ctx := context.Background()

	_, err := f.client.GetPlanStatus(ctx, interfaces.PlanID("no-such-plan"))
	assert.ErrorIs(t, err, interfaces.ErrPlanNotFound)

	err = f.client.DeletePlan(ctx, interfaces.PlanID("no-such-plan"))
	assert.ErrorIs(t, err, interfaces.ErrPlanNotFound)
}

func TestPlanClientUpdateAndCancel(t *testing.T) {
	f := newClientFixture(t)
	ctx := context.Background()

	created, err := f.client.CreatePlan(ctx, clientPlanRequest(2, 3, 30))
	require.NoError(t, err)

	updated, err := f.client.UpdatePlan(ctx, created.ID, clientPlanRequest(2, 2, 30))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Len(t, updated.Trustees, 2)

	require.NoError(t, f.client.CancelPlan(ctx, created.ID))

	err = f.client.CancelPlan(ctx, created.ID)
	assert.ErrorIs(t, err, interfaces.ErrInvalidTransition)

	require.NoError(t, f.client.DeletePlan(ctx, created.ID))
}
