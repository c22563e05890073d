package planhandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/heirvault/escrow-backend/api"
	"github.com/heirvault/escrow-backend/interfaces"
)

// Handler processes HTTP requests for the inheritance plan service. It is a
// thin JSON layer over a PlanAPI store; all lifecycle gating (quorum, waiting
// period, status transitions) lives in the store, so the handler only maps
// inputs and errors onto the wire.
//
// The handler never sees plaintext share material. Shares arrive encrypted
// per trustee at plan creation and leave encrypted after a trigger.
type Handler struct {
	store interfaces.PlanAPI
	log   *slog.Logger
}

// NewHandler creates a new HTTP request handler backed by the given store.
func NewHandler(store interfaces.PlanAPI, log *slog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/plans", h.HandleCreatePlan)
	r.Get("/api/plans", h.HandleListPlans)
	r.Get("/api/plans/{plan_id}", h.HandlePlanStatus)
	r.Put("/api/plans/{plan_id}", h.HandleUpdatePlan)
	r.Delete("/api/plans/{plan_id}", h.HandleDeletePlan)
	r.Post("/api/plans/{plan_id}/approvals/{trustee_id}", h.HandleApprove)
	r.Post("/api/plans/{plan_id}/trigger", h.HandleTrigger)
	r.Post("/api/plans/{plan_id}/complete", h.HandleComplete)
	r.Post("/api/plans/{plan_id}/cancel", h.HandleCancel)
	r.Get("/api/plans/{plan_id}/shares", h.HandleTrusteeShares)
}

// statusForError maps store errors onto HTTP status codes. Lifecycle
// rejections are conflicts: the request was well-formed but the plan's
// current state does not permit it.
func statusForError(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrPlanNotFound),
		errors.Is(err, interfaces.ErrTrusteeNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrQuorumNotMet),
		errors.Is(err, interfaces.ErrWaitingPeriodNotElapsed),
		errors.Is(err, interfaces.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrInvalidInput),
		errors.Is(err, interfaces.ErrInvalidThreshold),
		errors.Is(err, interfaces.ErrTooManyShares),
		errors.Is(err, interfaces.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HandleCreatePlan persists a new plan in active status.
//
// URL format: POST /api/plans
// Request body: JSON-encoded CreatePlanRequest with per-trustee encrypted
// shares already attached.
//
// Response: JSON-encoded InheritancePlan with assigned plan and trustee IDs.
func (h *Handler) HandleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req interfaces.CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("invalid plan request: %w", err).Error(), http.StatusBadRequest)
		return
	}

	plan, err := h.store.CreatePlan(r.Context(), req)
	if err != nil {
		http.Error(w, fmt.Errorf("could not create plan: %w", err).Error(), statusForError(err))
		return
	}

	h.log.Info("plan created", "planID", plan.ID, "threshold", plan.KThreshold, "trustees", plan.NTotal)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(plan); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleListPlans returns all plans visible to the caller.
//
// URL format: GET /api/plans
func (h *Handler) HandleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.store.ListPlans(r.Context())
	if err != nil {
		http.Error(w, fmt.Errorf("could not list plans: %w", err).Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(plans); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandlePlanStatus returns the plan with derived approval progress. The
// returned status may read "ready" even though the stored status is still
// active; readiness is computed on every read.
//
// URL format: GET /api/plans/{plan_id}
func (h *Handler) HandlePlanStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.store.GetPlanStatus(r.Context(), interfaces.PlanID(r.PathValue("plan_id")))
	if err != nil {
		http.Error(w, fmt.Errorf("could not fetch plan: %w", err).Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleApprove records a trustee approval. Approving twice is a no-op and
// still returns success.
//
// URL format: POST /api/plans/{plan_id}/approvals/{trustee_id}
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	planID := interfaces.PlanID(r.PathValue("plan_id"))
	trusteeID := interfaces.TrusteeID(r.PathValue("trustee_id"))

	if err := h.store.ApprovePlan(r.Context(), planID, trusteeID); err != nil {
		http.Error(w, fmt.Errorf("could not record approval: %w", err).Error(), statusForError(err))
		return
	}

	h.log.Info("trustee approval recorded", "planID", planID, "trusteeID", trusteeID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleTrigger attempts the active to triggered transition. The request must
// carry a non-empty audit reason. EmergencyOverride waives the waiting period
// but never the approval quorum. A rejected trigger leaves the plan untouched.
//
// URL format: POST /api/plans/{plan_id}/trigger
// Request body: JSON-encoded TriggerRequest.
func (h *Handler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	planID := interfaces.PlanID(r.PathValue("plan_id"))

	var req interfaces.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("invalid trigger request: %w", err).Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.TriggerInheritance(r.Context(), planID, req); err != nil {
		http.Error(w, fmt.Errorf("could not trigger plan: %w", err).Error(), statusForError(err))
		return
	}

	h.log.Warn("inheritance triggered", "planID", planID, "reason", req.Reason, "override", req.EmergencyOverride)
	w.WriteHeader(http.StatusNoContent)
}

// HandleComplete marks a triggered plan completed.
//
// URL format: POST /api/plans/{plan_id}/complete
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	planID := interfaces.PlanID(r.PathValue("plan_id"))
	if err := h.store.CompletePlan(r.Context(), planID); err != nil {
		http.Error(w, fmt.Errorf("could not complete plan: %w", err).Error(), statusForError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCancel cancels an active plan.
//
// URL format: POST /api/plans/{plan_id}/cancel
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	planID := interfaces.PlanID(r.PathValue("plan_id"))
	if err := h.store.CancelPlan(r.Context(), planID); err != nil {
		http.Error(w, fmt.Errorf("could not cancel plan: %w", err).Error(), statusForError(err))
		return
	}
	h.log.Info("plan cancelled", "planID", planID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleTrusteeShares returns the encrypted shares of a triggered plan so
// trustees can decrypt their parts and beneficiaries can reconstruct the
// master key. The store rejects the request for any other status.
//
// URL format: GET /api/plans/{plan_id}/shares
// Response: JSON array of base64-encoded encrypted shares.
func (h *Handler) HandleTrusteeShares(w http.ResponseWriter, r *http.Request) {
	planID := interfaces.PlanID(r.PathValue("plan_id"))

	shares, err := h.store.GetTrusteeShares(r.Context(), planID)
	if err != nil {
		http.Error(w, fmt.Errorf("could not fetch shares: %w", err).Error(), statusForError(err))
		return
	}

	resp := make([]api.TrusteeShareResponse, 0, len(shares))
	for _, s := range shares {
		resp = append(resp, api.NewTrusteeShareResponse(s))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleUpdatePlan replaces an active plan's configuration. The caller must
// supply a full request with freshly re-split and re-encrypted shares; all
// prior approvals are discarded.
//
// URL format: PUT /api/plans/{plan_id}
// Request body: JSON-encoded CreatePlanRequest.
func (h *Handler) HandleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	planID := interfaces.PlanID(r.PathValue("plan_id"))

	var req interfaces.CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("invalid plan request: %w", err).Error(), http.StatusBadRequest)
		return
	}

	plan, err := h.store.UpdatePlan(r.Context(), planID, req)
	if err != nil {
		http.Error(w, fmt.Errorf("could not update plan: %w", err).Error(), statusForError(err))
		return
	}

	h.log.Info("plan updated", "planID", planID, "threshold", plan.KThreshold, "trustees", plan.NTotal)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(plan); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleDeletePlan removes an active or cancelled plan.
//
// URL format: DELETE /api/plans/{plan_id}
func (h *Handler) HandleDeletePlan(w http.ResponseWriter, r *http.Request) {
	planID := interfaces.PlanID(r.PathValue("plan_id"))
	if err := h.store.DeletePlan(r.Context(), planID); err != nil {
		http.Error(w, fmt.Errorf("could not delete plan: %w", err).Error(), statusForError(err))
		return
	}
	h.log.Info("plan deleted", "planID", planID)
	w.WriteHeader(http.StatusNoContent)
}
