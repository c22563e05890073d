package planhandler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heirvault/escrow-backend/api"
	"github.com/heirvault/escrow-backend/interfaces"
	"github.com/heirvault/escrow-backend/plan"
)

type handlerFixture struct {
	router chi.Router
	store  *plan.MemStore
	now    time.Time
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		store: plan.NewMemStore(),
		now:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.store.SetClock(func() time.Time { return f.now })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.router = chi.NewRouter()
	NewHandler(f.store, log).RegisterRoutes(f.router)
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func testPlanRequest(k, n, waitDays int) interfaces.CreatePlanRequest {
	req := interfaces.CreatePlanRequest{
		Name:              "estate plan",
		OwnerID:           "owner-1",
		KThreshold:        k,
		WaitingPeriodDays: waitDays,
		VaultItemIDs:      []string{"item-1"},
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

func (f *handlerFixture) createPlan(t *testing.T, k, n, waitDays int) *interfaces.InheritancePlan {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/plans", testPlanRequest(k, n, waitDays))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created interfaces.InheritancePlan
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	return &created
}

func TestHandleCreatePlan(t *testing.T) {
	f := newHandlerFixture(t)

	created := f.createPlan(t, 2, 3, 30)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, interfaces.StatusActive, created.Status)
	assert.Len(t, created.Trustees, 3)

	rec := f.do(t, http.MethodGet, "/api/plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var plans []*interfaces.InheritancePlan
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&plans))
	assert.Len(t, plans, 1)
}

func TestHandleCreatePlanRejectsBadInput(t *testing.T) {
	f := newHandlerFixture(t)

	req := testPlanRequest(1, 3, 30)
	rec := f.do(t, http.MethodPost, "/api/plans", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid threshold")

	rec = f.do(t, http.MethodPost, "/api/plans", "not a plan")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePlanStatus(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createPlan(t, 2, 3, 30)

	rec := f.do(t, http.MethodGet, "/api/plans/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view interfaces.PlanStatusView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, interfaces.StatusActive, view.Plan.Status)
	assert.Equal(t, 0, view.Progress.Approved)
	assert.Equal(t, 3, view.Progress.Total)
	assert.False(t, view.Progress.CanTrigger)

	rec = f.do(t, http.MethodGet, "/api/plans/no-such-plan", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleApproveAndTrigger(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createPlan(t, 2, 3, 30)
	planPath := "/api/plans/" + created.ID.String()

	// Trigger before any approvals is a conflict.
	rec := f.do(t, http.MethodPost, planPath+"/trigger", interfaces.TriggerRequest{Reason: "owner deceased"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "quorum")

	rec = f.do(t, http.MethodPost, planPath+"/approvals/"+created.Trustees[0].ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodPost, planPath+"/approvals/"+created.Trustees[1].ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, planPath+"/approvals/no-such-trustee", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Quorum met but waiting period still running.
	rec = f.do(t, http.MethodPost, planPath+"/trigger", interfaces.TriggerRequest{Reason: "owner deceased"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "waiting period")

	f.now = f.now.AddDate(0, 0, 31)
	rec = f.do(t, http.MethodPost, planPath+"/trigger", interfaces.TriggerRequest{Reason: "owner deceased"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, planPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view interfaces.PlanStatusView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, interfaces.StatusTriggered, view.Plan.Status)
}

func TestHandleTriggerRequiresReason(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createPlan(t, 2, 2, 0)

	rec := f.do(t, http.MethodPost, "/api/plans/"+created.ID.String()+"/trigger", interfaces.TriggerRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTrusteeShares(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createPlan(t, 2, 3, 0)
	planPath := "/api/plans/" + created.ID.String()

	// Shares are withheld until the plan triggers.
	rec := f.do(t, http.MethodGet, planPath+"/shares", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	for _, tr := range created.Trustees[:2] {
		rec = f.do(t, http.MethodPost, planPath+"/approvals/"+tr.ID.String(), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
	rec = f.do(t, http.MethodPost, planPath+"/trigger", interfaces.TriggerRequest{Reason: "owner deceased"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, planPath+"/shares", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var wire []api.TrusteeShareResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&wire))
	require.Len(t, wire, 3)

	share, err := wire[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext-1"), share.EncryptedData)
	assert.Equal(t, "trustee1@example.com", share.TrusteeEmail)
}

func TestHandleCancelAndDelete(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createPlan(t, 2, 2, 0)
	planPath := "/api/plans/" + created.ID.String()

	rec := f.do(t, http.MethodPost, planPath+"/cancel", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Cancelled plans cannot be cancelled again but may be deleted.
	rec = f.do(t, http.MethodPost, planPath+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodDelete, planPath, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, planPath, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleUpdatePlan(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createPlan(t, 2, 3, 30)
	planPath := "/api/plans/" + created.ID.String()

	rec := f.do(t, http.MethodPost, planPath+"/approvals/"+created.Trustees[0].ID.String(), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPut, planPath, testPlanRequest(2, 2, 30))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated interfaces.InheritancePlan
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, created.ID, updated.ID)
	assert.Len(t, updated.Trustees, 2)
	assert.Equal(t, 0, updated.ApprovedCount())
}
