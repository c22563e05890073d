package plan

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/heirvault/escrow-backend/interfaces"
)

// newPlanFromRequest validates a create/update request and materializes the
// plan record. Shares are paired to trustees positionally; the share metadata
// must agree with the trustee it is destined for.
func newPlanFromRequest(req interfaces.CreatePlanRequest, now time.Time) (*interfaces.InheritancePlan, error) {
	n := len(req.Trustees)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: plan name is required", interfaces.ErrInvalidInput)
	}
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", interfaces.ErrInvalidInput)
	}
	if req.KThreshold < interfaces.MinThreshold {
		return nil, fmt.Errorf("%w: threshold %d below minimum %d", interfaces.ErrInvalidThreshold, req.KThreshold, interfaces.MinThreshold)
	}
	if n > interfaces.MaxTrustees {
		return nil, fmt.Errorf("%w: %d trustees exceeds cap of %d", interfaces.ErrTooManyShares, n, interfaces.MaxTrustees)
	}
	if n < req.KThreshold {
		return nil, fmt.Errorf("%w: %d trustees below threshold %d", interfaces.ErrInvalidConfig, n, req.KThreshold)
	}
	if req.WaitingPeriodDays < 0 {
		return nil, fmt.Errorf("%w: negative waiting period", interfaces.ErrInvalidConfig)
	}
	if len(req.ShamirShares) != n {
		return nil, fmt.Errorf("%w: %d shares for %d trustees", interfaces.ErrInvalidConfig, len(req.ShamirShares), n)
	}

	id := interfaces.NewPlanID()
	p := &interfaces.InheritancePlan{
		ID:                id,
		OwnerID:           req.OwnerID,
		Name:              req.Name,
		KThreshold:        req.KThreshold,
		NTotal:            n,
		WaitingPeriodDays: req.WaitingPeriodDays,
		Status:            interfaces.StatusActive,
		Items:             append([]string(nil), req.VaultItemIDs...),
		CreatedAt:         now,
	}

	for i, spec := range req.Trustees {
		if _, err := mail.ParseAddress(spec.Email); err != nil {
			return nil, fmt.Errorf("%w: trustee email %q: %v", interfaces.ErrInvalidConfig, spec.Email, err)
		}
		share := req.ShamirShares[i]
		if err := share.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidConfig, err)
		}
		if share.TrusteeEmail != spec.Email {
			return nil, fmt.Errorf("%w: share %d addressed to %q, trustee is %q", interfaces.ErrInvalidConfig, i, share.TrusteeEmail, spec.Email)
		}
		p.Trustees = append(p.Trustees, interfaces.Trustee{
			ID:             interfaces.NewTrusteeID(),
			PlanID:         id,
			Email:          spec.Email,
			Name:           spec.Name,
			ShareIndex:     share.ShareIndex,
			EncryptedShare: share,
		})
	}

	for _, spec := range req.Beneficiaries {
		if _, err := mail.ParseAddress(spec.Email); err != nil {
			return nil, fmt.Errorf("%w: beneficiary email %q: %v", interfaces.ErrInvalidConfig, spec.Email, err)
		}
		p.Beneficiaries = append(p.Beneficiaries, interfaces.Beneficiary{
			ID:           interfaces.NewTrusteeID().String(),
			PlanID:       id,
			Email:        spec.Email,
			Name:         spec.Name,
			Relationship: spec.Relationship,
		})
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// checkTrigger applies the trigger gates against an in-memory plan snapshot.
// Order matters: inert states first, then quorum, then the waiting period.
func checkTrigger(p *interfaces.InheritancePlan, req interfaces.TriggerRequest, now time.Time) error {
	if req.Reason == "" {
		return fmt.Errorf("%w: trigger reason is required", interfaces.ErrInvalidInput)
	}
	if p.Status != interfaces.StatusActive {
		return fmt.Errorf("%w: cannot trigger plan in status %q", interfaces.ErrInvalidTransition, p.Status)
	}
	if got := p.ApprovedCount(); got < p.KThreshold {
		return fmt.Errorf("%w: %d of %d approvals", interfaces.ErrQuorumNotMet, got, p.KThreshold)
	}
	if !req.EmergencyOverride && !p.WaitingPeriodOver(now) {
		deadline := p.CreatedAt.AddDate(0, 0, p.WaitingPeriodDays)
		return fmt.Errorf("%w: until %s", interfaces.ErrWaitingPeriodNotElapsed, deadline.UTC().Format(time.RFC3339))
	}
	return nil
}

func statusView(p *interfaces.InheritancePlan, now time.Time) *interfaces.PlanStatusView {
	view := *p
	view.Status = p.EffectiveStatus()
	return &interfaces.PlanStatusView{
		Plan:          &view,
		Trustees:      view.Trustees,
		Beneficiaries: view.Beneficiaries,
		Items:         view.Items,
		Progress: interfaces.ApprovalProgress{
			Approved:   p.ApprovedCount(),
			Total:      p.NTotal,
			CanTrigger: p.CanTrigger(now),
		},
	}
}
