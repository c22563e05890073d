package interfaces

import (
	"context"
	"time"
)

// TrusteeSpec describes one trustee at plan creation or edit time. The public
// key is the trustee's PEM-encoded encryption key; the share for this trustee
// is encrypted under it before the plan ever leaves the owner's session.
type TrusteeSpec struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	PublicKeyPEM []byte `json:"public_key_pem"`
}

// BeneficiarySpec describes one beneficiary at plan creation or edit time.
type BeneficiarySpec struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
}

// CreatePlanRequest is the §-complete payload for creating or replacing a
// plan. ShamirShares arrive already encrypted per trustee; the persistence
// layer never sees plaintext share material.
type CreatePlanRequest struct {
	Name              string            `json:"name"`
	OwnerID           string            `json:"owner_id"`
	KThreshold        int               `json:"k_threshold"`
	WaitingPeriodDays int               `json:"waiting_period_days"`
	Trustees          []TrusteeSpec     `json:"trustees"`
	Beneficiaries     []BeneficiarySpec `json:"beneficiaries"`
	VaultItemIDs      []string          `json:"vault_item_ids"`
	ShamirShares      []EncryptedShare  `json:"shamir_shares"`
}

// ApprovalProgress summarizes trustee approvals for a plan.
type ApprovalProgress struct {
	Approved   int  `json:"approved"`
	Total      int  `json:"total"`
	CanTrigger bool `json:"can_trigger"`
}

// PlanStatusView is the aggregate returned by GetPlanStatus.
type PlanStatusView struct {
	Plan          *InheritancePlan `json:"plan"`
	Trustees      []Trustee        `json:"trustees"`
	Beneficiaries []Beneficiary    `json:"beneficiaries"`
	Items         []string         `json:"items"`
	Progress      ApprovalProgress `json:"approval_progress"`
}

// TriggerRequest carries the audit reason for a trigger attempt. The reason
// must be non-empty; EmergencyOverride waives the waiting period but never the
// approval quorum.
type TriggerRequest struct {
	Reason            string `json:"reason"`
	EmergencyOverride bool   `json:"emergency_override,omitempty"`
}

// PlanAPI is the plan persistence contract consumed by the escrow core and
// implemented by the external vault/inheritance API (and by the reference
// store in this repository). Each plan is read-modify-written as a whole
// unit; approval bookkeeping must be atomic on the implementation side, since
// two trustees may approve concurrently.
type PlanAPI interface {
	// CreatePlan persists a new plan in active status.
	CreatePlan(ctx context.Context, req CreatePlanRequest) (*InheritancePlan, error)

	// ListPlans returns all plans visible to the caller.
	ListPlans(ctx context.Context) ([]*InheritancePlan, error)

	// GetPlanStatus returns the plan with derived approval progress.
	GetPlanStatus(ctx context.Context, id PlanID) (*PlanStatusView, error)

	// ApprovePlan marks a trustee approval. Approving twice is a no-op.
	ApprovePlan(ctx context.Context, id PlanID, trusteeID TrusteeID) error

	// TriggerInheritance transitions the plan to triggered once quorum and
	// waiting period allow it. Rejections leave the plan untouched.
	TriggerInheritance(ctx context.Context, id PlanID, req TriggerRequest) error

	// CompletePlan marks a triggered plan completed after beneficiary
	// reconstruction succeeded.
	CompletePlan(ctx context.Context, id PlanID) error

	// CancelPlan cancels a plan. Valid only from active status.
	CancelPlan(ctx context.Context, id PlanID) error

	// GetTrusteeShares returns the encrypted shares for beneficiary-side
	// reconstruction. Valid only after the plan triggered.
	GetTrusteeShares(ctx context.Context, id PlanID) ([]EncryptedShare, error)

	// UpdatePlan replaces a plan's configuration. Valid only while active;
	// callers must re-split and re-distribute shares.
	UpdatePlan(ctx context.Context, id PlanID, req CreatePlanRequest) (*InheritancePlan, error)

	// DeletePlan removes a plan. Valid only from active or cancelled status.
	DeletePlan(ctx context.Context, id PlanID) error
}

// Clock abstracts wall-clock reads so waiting-period gating is testable.
type Clock func() time.Time
