package plan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heirvault/escrow-backend/interfaces"
)

// MemStore is an in-memory PlanAPI implementation for tests and single-node
// deployments. All lifecycle gating lives here so it behaves exactly like the
// SQL-backed store.
type MemStore struct {
	mu    sync.Mutex
	plans map[interfaces.PlanID]*interfaces.InheritancePlan
	now   interfaces.Clock
}

// NewMemStore creates an empty in-memory plan store.
func NewMemStore() *MemStore {
	return &MemStore{
		plans: make(map[interfaces.PlanID]*interfaces.InheritancePlan),
		now:   time.Now,
	}
}

// SetClock overrides the wall clock. Test hook.
func (m *MemStore) SetClock(now interfaces.Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// CreatePlan validates the request and stores a new active plan.
func (m *MemStore) CreatePlan(ctx context.Context, req interfaces.CreatePlanRequest) (*interfaces.InheritancePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := newPlanFromRequest(req, m.now())
	if err != nil {
		return nil, err
	}
	m.plans[p.ID] = p
	return clonePlan(p), nil
}

// ListPlans returns all stored plans.
func (m *MemStore) ListPlans(ctx context.Context) ([]*interfaces.InheritancePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*interfaces.InheritancePlan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, clonePlan(p))
	}
	return out, nil
}

// GetPlanStatus returns the plan with derived approval progress.
func (m *MemStore) GetPlanStatus(ctx context.Context, id interfaces.PlanID) (*interfaces.PlanStatusView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return statusView(clonePlan(p), m.now()), nil
}

// ApprovePlan records a trustee approval. Approving twice is a no-op.
func (m *MemStore) ApprovePlan(ctx context.Context, id interfaces.PlanID, trusteeID interfaces.TrusteeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(id)
	if err != nil {
		return err
	}
	if p.Status != interfaces.StatusActive {
		return fmt.Errorf("%w: cannot approve plan in status %q", interfaces.ErrInvalidTransition, p.Status)
	}

	for i := range p.Trustees {
		if p.Trustees[i].ID != trusteeID {
			continue
		}
		if p.Trustees[i].HasApproved {
			return nil
		}
		now := m.now()
		p.Trustees[i].HasApproved = true
		p.Trustees[i].ApprovedAt = &now
		return nil
	}
	return fmt.Errorf("%w: %s", interfaces.ErrTrusteeNotFound, trusteeID)
}

// TriggerInheritance transitions the plan to triggered once the approval
// quorum and waiting period allow it. Rejections leave the plan untouched.
func (m *MemStore) TriggerInheritance(ctx context.Context, id interfaces.PlanID, req interfaces.TriggerRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(id)
	if err != nil {
		return err
	}
	now := m.now()
	if err := checkTrigger(p, req, now); err != nil {
		return err
	}

	p.Status = interfaces.StatusTriggered
	p.TriggerReason = req.Reason
	p.TriggeredAt = &now
	return nil
}

// CompletePlan marks a triggered plan completed.
func (m *MemStore) CompletePlan(ctx context.Context, id interfaces.PlanID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(id)
	if err != nil {
		return err
	}
	if !p.Status.CanTransitionTo(interfaces.StatusCompleted) {
		return fmt.Errorf("%w: %q -> completed", interfaces.ErrInvalidTransition, p.Status)
	}
	now := m.now()
	p.Status = interfaces.StatusCompleted
	p.CompletedAt = &now
	return nil
}

// CancelPlan cancels an active plan.
func (m *MemStore) CancelPlan(ctx context.Context, id interfaces.PlanID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(id)
	if err != nil {
		return err
	}
	if !p.Status.CanTransitionTo(interfaces.StatusCancelled) {
		return fmt.Errorf("%w: %q -> cancelled", interfaces.ErrInvalidTransition, p.Status)
	}
	p.Status = interfaces.StatusCancelled
	return nil
}

// GetTrusteeShares returns encrypted shares for a triggered plan.
func (m *MemStore) GetTrusteeShares(ctx context.Context, id interfaces.PlanID) ([]interfaces.EncryptedShare, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if p.Status != interfaces.StatusTriggered {
		return nil, fmt.Errorf("%w: shares are released only after trigger, status is %q", interfaces.ErrInvalidTransition, p.Status)
	}

	shares := make([]interfaces.EncryptedShare, 0, len(p.Trustees))
	for _, tr := range p.Trustees {
		shares = append(shares, tr.EncryptedShare)
	}
	return shares, nil
}

// UpdatePlan replaces an active plan's configuration in place, keeping the
// plan ID and creation time. All approvals reset: the share set changed.
func (m *MemStore) UpdatePlan(ctx context.Context, id interfaces.PlanID, req interfaces.CreatePlanRequest) (*interfaces.InheritancePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if p.Status != interfaces.StatusActive {
		return nil, fmt.Errorf("%w: cannot update plan in status %q", interfaces.ErrInvalidTransition, p.Status)
	}

	updated, err := newPlanFromRequest(req, m.now())
	if err != nil {
		return nil, err
	}
	updated.ID = p.ID
	updated.CreatedAt = p.CreatedAt
	for i := range updated.Trustees {
		updated.Trustees[i].PlanID = p.ID
	}
	for i := range updated.Beneficiaries {
		updated.Beneficiaries[i].PlanID = p.ID
	}

	m.plans[p.ID] = updated
	return clonePlan(updated), nil
}

// DeletePlan removes a plan. Triggered and completed plans are retained for
// audit and cannot be deleted.
func (m *MemStore) DeletePlan(ctx context.Context, id interfaces.PlanID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(id)
	if err != nil {
		return err
	}
	if p.Status != interfaces.StatusActive && p.Status != interfaces.StatusCancelled {
		return fmt.Errorf("%w: cannot delete plan in status %q", interfaces.ErrInvalidTransition, p.Status)
	}
	delete(m.plans, id)
	return nil
}

func (m *MemStore) get(id interfaces.PlanID) (*interfaces.InheritancePlan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrPlanNotFound, id)
	}
	return p, nil
}

func clonePlan(p *interfaces.InheritancePlan) *interfaces.InheritancePlan {
	out := *p
	out.Trustees = append([]interfaces.Trustee(nil), p.Trustees...)
	out.Beneficiaries = append([]interfaces.Beneficiary(nil), p.Beneficiaries...)
	out.Items = append([]string(nil), p.Items...)
	return &out
}
