package interfaces

import (
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
)

// MaxTrustees is the practical ceiling on the trustee set of a single plan.
// It bounds share indexes, not the underlying field arithmetic.
const MaxTrustees = 10

// MinThreshold is the smallest meaningful reconstruction threshold.
const MinThreshold = 2

// PlanID uniquely identifies an inheritance plan.
type PlanID string

// NewPlanID generates a fresh random plan identifier.
func NewPlanID() PlanID {
	return PlanID(uuid.Must(uuid.NewRandom()).String())
}

// Validate checks that the plan ID is a well-formed UUID.
func (id PlanID) Validate() error {
	if _, err := uuid.Parse(string(id)); err != nil {
		return fmt.Errorf("invalid plan id %q: %w", id, err)
	}
	return nil
}

// String returns the plan ID as a string.
func (id PlanID) String() string { return string(id) }

// TrusteeID uniquely identifies a trustee within a plan.
type TrusteeID string

// NewTrusteeID generates a fresh random trustee identifier.
func NewTrusteeID() TrusteeID {
	return TrusteeID(uuid.Must(uuid.NewRandom()).String())
}

// String returns the trustee ID as a string.
func (id TrusteeID) String() string { return string(id) }

// PlanStatus is the lifecycle state of an inheritance plan.
//
// Valid transitions: active -> {triggered, cancelled}, triggered -> completed.
// The "ready" state (quorum met, waiting period pending or trigger not yet
// requested) is derived on read and never persisted.
type PlanStatus string

const (
	StatusActive    PlanStatus = "active"
	StatusReady     PlanStatus = "ready"
	StatusTriggered PlanStatus = "triggered"
	StatusCompleted PlanStatus = "completed"
	StatusCancelled PlanStatus = "cancelled"
)

// Validate checks that the status is one of the known lifecycle states.
func (s PlanStatus) Validate() error {
	switch s {
	case StatusActive, StatusReady, StatusTriggered, StatusCompleted, StatusCancelled:
		return nil
	default:
		return fmt.Errorf("unknown plan status %q", s)
	}
}

// CanTransitionTo reports whether a stored status may advance to the target.
// Ready is treated as a view of active for transition purposes.
func (s PlanStatus) CanTransitionTo(target PlanStatus) bool {
	from := s
	if from == StatusReady {
		from = StatusActive
	}
	switch from {
	case StatusActive:
		return target == StatusTriggered || target == StatusCancelled
	case StatusTriggered:
		return target == StatusCompleted
	default:
		return false
	}
}

// EncryptedShare is the ciphertext of one Shamir share, envelope-encrypted for
// exactly one trustee. EncryptedData carries the ephemeral public key and the
// AEAD ciphertext; IV is the GCM nonce used for the symmetric layer.
type EncryptedShare struct {
	EncryptedData []byte `json:"encrypted_data"`
	IV            []byte `json:"iv"`
	TrusteeEmail  string `json:"trustee_email"`
	ShareIndex    int    `json:"share_index"`
}

// Validate performs structural checks on an encrypted share.
func (s EncryptedShare) Validate() error {
	if len(s.EncryptedData) == 0 {
		return errors.New("encrypted share: empty ciphertext")
	}
	if len(s.IV) == 0 {
		return errors.New("encrypted share: missing IV")
	}
	if s.ShareIndex < 1 || s.ShareIndex > MaxTrustees {
		return fmt.Errorf("encrypted share: index %d out of range 1..%d", s.ShareIndex, MaxTrustees)
	}
	return nil
}

// Trustee is a holder of one encrypted share and an approval vote.
type Trustee struct {
	ID             TrusteeID      `json:"id"`
	PlanID         PlanID         `json:"plan_id"`
	Email          string         `json:"email"`
	Name           string         `json:"name"`
	ShareIndex     int            `json:"share_index"`
	EncryptedShare EncryptedShare `json:"encrypted_share"`
	HasApproved    bool           `json:"has_approved"`
	ApprovedAt     *time.Time     `json:"approved_at,omitempty"`
}

// Beneficiary receives reconstructed access after a plan triggers. It holds no
// cryptographic material of its own.
type Beneficiary struct {
	ID           string `json:"id"`
	PlanID       PlanID `json:"plan_id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
}

// InheritancePlan is the persisted state of one escrow arrangement. Items
// reference vault items by ID only; the plan never stores plaintext content.
type InheritancePlan struct {
	ID                PlanID        `json:"id"`
	OwnerID           string        `json:"owner_id"`
	Name              string        `json:"name"`
	KThreshold        int           `json:"k_threshold"`
	NTotal            int           `json:"n_total"`
	WaitingPeriodDays int           `json:"waiting_period_days"`
	Status            PlanStatus    `json:"status"`
	Trustees          []Trustee     `json:"trustees"`
	Beneficiaries     []Beneficiary `json:"beneficiaries"`
	Items             []string      `json:"items"`
	TriggerReason     string        `json:"trigger_reason,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	TriggeredAt       *time.Time    `json:"triggered_at,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
}

// Validate checks the plan's structural invariants: threshold bounds, trustee
// count, and uniqueness of share indexes.
func (p *InheritancePlan) Validate() error {
	if p.KThreshold < MinThreshold {
		return fmt.Errorf("%w: threshold %d below minimum %d", ErrInvalidThreshold, p.KThreshold, MinThreshold)
	}
	if p.NTotal > MaxTrustees {
		return fmt.Errorf("%w: %d trustees exceeds cap of %d", ErrTooManyShares, p.NTotal, MaxTrustees)
	}
	if p.NTotal < p.KThreshold {
		return fmt.Errorf("%w: %d trustees below threshold %d", ErrInvalidConfig, p.NTotal, p.KThreshold)
	}
	if len(p.Trustees) != p.NTotal {
		return fmt.Errorf("%w: expected %d trustees, have %d", ErrInvalidConfig, p.NTotal, len(p.Trustees))
	}
	if p.WaitingPeriodDays < 0 {
		return fmt.Errorf("%w: negative waiting period", ErrInvalidConfig)
	}
	seen := make(map[int]bool, len(p.Trustees))
	for _, tr := range p.Trustees {
		if tr.ShareIndex < 1 || tr.ShareIndex > p.NTotal {
			return fmt.Errorf("%w: trustee %s share index %d out of range 1..%d", ErrInvalidConfig, tr.Email, tr.ShareIndex, p.NTotal)
		}
		if seen[tr.ShareIndex] {
			return fmt.Errorf("%w: duplicate share index %d", ErrInvalidConfig, tr.ShareIndex)
		}
		seen[tr.ShareIndex] = true
		if _, err := mail.ParseAddress(tr.Email); err != nil {
			return fmt.Errorf("%w: trustee email %q: %v", ErrInvalidConfig, tr.Email, err)
		}
	}
	return p.Status.Validate()
}

// ApprovedCount returns the number of trustees that have approved. The count
// is authoritative only at the persistence layer; a client-side copy may be
// stale under concurrent approvals.
func (p *InheritancePlan) ApprovedCount() int {
	n := 0
	for _, tr := range p.Trustees {
		if tr.HasApproved {
			n++
		}
	}
	return n
}

// WaitingPeriodOver reports whether the mandatory delay since plan creation
// has elapsed at the given instant.
func (p *InheritancePlan) WaitingPeriodOver(now time.Time) bool {
	deadline := p.CreatedAt.AddDate(0, 0, p.WaitingPeriodDays)
	return !now.Before(deadline)
}

// CanTrigger reports whether the plan may transition to triggered at the
// given instant: approval quorum reached, waiting period elapsed, and the
// stored status still active.
func (p *InheritancePlan) CanTrigger(now time.Time) bool {
	if p.Status != StatusActive && p.Status != StatusReady {
		return false
	}
	return p.ApprovedCount() >= p.KThreshold && p.WaitingPeriodOver(now)
}

// EffectiveStatus derives the presented status: a stored active plan whose
// quorum is already met reads as ready. Nothing is persisted.
func (p *InheritancePlan) EffectiveStatus() PlanStatus {
	if p.Status == StatusActive && p.ApprovedCount() >= p.KThreshold {
		return StatusReady
	}
	return p.Status
}
