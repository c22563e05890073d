package plan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heirvault/escrow-backend/cryptoutils"
	"github.com/heirvault/escrow-backend/interfaces"
	"github.com/heirvault/escrow-backend/kms"
	"github.com/heirvault/escrow-backend/shamir"
)

// Config is the owner-facing plan definition. Share material is never part of
// it; SetupPlan derives shares from the master key and encrypts them per
// trustee before anything is handed to the persistence layer.
type Config struct {
	Name              string
	OwnerID           string
	KThreshold        int
	WaitingPeriodDays int
	Trustees          []interfaces.TrusteeSpec
	Beneficiaries     []interfaces.BeneficiarySpec
	VaultItemIDs      []string
}

// Service orchestrates the escrow lifecycle on top of a PlanAPI store: owner
// setup (split and encrypt), trustee approval, triggering, and beneficiary
// reconstruction.
type Service struct {
	store interfaces.PlanAPI
	log   *slog.Logger
}

// NewService wraps a plan store with lifecycle orchestration.
func NewService(store interfaces.PlanAPI, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

// SetupPlan splits the vault master key into one share per trustee, encrypts
// each share under that trustee's public key, and persists the plan. The
// plaintext shares are wiped before return; only ciphertext leaves this call.
func (s *Service) SetupPlan(ctx context.Context, vmk *kms.VaultMasterKey, cfg Config) (*interfaces.InheritancePlan, error) {
	req, err := buildPlanRequest(vmk, cfg)
	if err != nil {
		return nil, err
	}

	created, err := s.store.CreatePlan(ctx, req)
	if err != nil {
		return nil, err
	}

	s.log.Info("Inheritance plan created",
		slog.String("planID", created.ID.String()),
		slog.Int("threshold", created.KThreshold),
		slog.Int("trustees", created.NTotal),
		slog.Int("waitingPeriodDays", created.WaitingPeriodDays))
	return created, nil
}

// UpdatePlan replaces an active plan's configuration. The master key is
// re-split for the new trustee set and every share is re-encrypted; the store
// discards all prior approvals since they attested to the old configuration.
func (s *Service) UpdatePlan(ctx context.Context, vmk *kms.VaultMasterKey, id interfaces.PlanID, cfg Config) (*interfaces.InheritancePlan, error) {
	req, err := buildPlanRequest(vmk, cfg)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdatePlan(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.log.Info("Inheritance plan updated",
		slog.String("planID", updated.ID.String()),
		slog.Int("threshold", updated.KThreshold),
		slog.Int("trustees", updated.NTotal))
	return updated, nil
}

// buildPlanRequest splits the master key and encrypts one share per trustee.
// Plaintext share material is wiped before return.
func buildPlanRequest(vmk *kms.VaultMasterKey, cfg Config) (interfaces.CreatePlanRequest, error) {
	if vmk == nil || len(vmk.RawKey()) == 0 {
		return interfaces.CreatePlanRequest{}, fmt.Errorf("%w: missing vault master key", interfaces.ErrInvalidInput)
	}

	n := len(cfg.Trustees)
	shares, err := shamir.Split(vmk.RawKey(), cfg.KThreshold, n)
	if err != nil {
		return interfaces.CreatePlanRequest{}, err
	}

	req := interfaces.CreatePlanRequest{
		Name:              cfg.Name,
		OwnerID:           cfg.OwnerID,
		KThreshold:        cfg.KThreshold,
		WaitingPeriodDays: cfg.WaitingPeriodDays,
		Trustees:          cfg.Trustees,
		Beneficiaries:     cfg.Beneficiaries,
		VaultItemIDs:      cfg.VaultItemIDs,
	}

	for i, spec := range cfg.Trustees {
		blob, err := shares[i].MarshalBinary()
		if err != nil {
			return interfaces.CreatePlanRequest{}, fmt.Errorf("failed to serialize share %d: %w", shares[i].Index, err)
		}
		pubkey, err := cryptoutils.NewTrusteePubkey(spec.PublicKeyPEM)
		if err != nil {
			cryptoutils.WipeBytes(blob)
			return interfaces.CreatePlanRequest{}, fmt.Errorf("trustee %s: %w", spec.Email, err)
		}
		enc, err := cryptoutils.EncryptShare(blob, pubkey, spec.Email, shares[i].Index)
		cryptoutils.WipeBytes(blob)
		if err != nil {
			return interfaces.CreatePlanRequest{}, fmt.Errorf("failed to encrypt share for %s: %w", spec.Email, err)
		}
		req.ShamirShares = append(req.ShamirShares, enc)
	}
	for i := range shares {
		cryptoutils.WipeBytes(shares[i].Data)
	}
	return req, nil
}

// Status returns the plan with derived approval progress.
func (s *Service) Status(ctx context.Context, id interfaces.PlanID) (*interfaces.PlanStatusView, error) {
	return s.store.GetPlanStatus(ctx, id)
}

// Approve records a trustee's approval vote. Repeat approvals are no-ops.
func (s *Service) Approve(ctx context.Context, id interfaces.PlanID, trusteeID interfaces.TrusteeID) error {
	if err := s.store.ApprovePlan(ctx, id, trusteeID); err != nil {
		return err
	}
	s.log.Info("Trustee approval recorded",
		slog.String("planID", id.String()),
		slog.String("trusteeID", trusteeID.String()))
	return nil
}

// Trigger attempts the active -> triggered transition. The store enforces the
// approval quorum and waiting period; a rejected attempt changes nothing.
func (s *Service) Trigger(ctx context.Context, id interfaces.PlanID, reason string, emergencyOverride bool) error {
	err := s.store.TriggerInheritance(ctx, id, interfaces.TriggerRequest{
		Reason:            reason,
		EmergencyOverride: emergencyOverride,
	})
	if err != nil {
		return err
	}
	s.log.Warn("Inheritance triggered",
		slog.String("planID", id.String()),
		slog.String("reason", reason),
		slog.Bool("emergencyOverride", emergencyOverride))
	return nil
}

// Cancel revokes an active plan.
func (s *Service) Cancel(ctx context.Context, id interfaces.PlanID) error {
	return s.store.CancelPlan(ctx, id)
}

// DecryptTrusteeShare recovers one plaintext Shamir share using the trustee's
// private key. Each trustee runs this locally; private keys never travel.
func DecryptTrusteeShare(enc interfaces.EncryptedShare, priv cryptoutils.TrusteePrivkey) (shamir.Share, error) {
	blob, err := cryptoutils.DecryptShare(enc, priv)
	if err != nil {
		return shamir.Share{}, err
	}
	defer cryptoutils.WipeBytes(blob)

	var share shamir.Share
	if err := share.UnmarshalBinary(blob); err != nil {
		return shamir.Share{}, fmt.Errorf("%w: %v", interfaces.ErrDecryptionFailure, err)
	}
	return share, nil
}

// RecoverMasterKey reconstructs the vault master key from decrypted trustee
// shares and marks the plan completed. The plan must already be triggered;
// the salt is the owner's KDF salt distributed alongside the recovery kit.
func (s *Service) RecoverMasterKey(ctx context.Context, id interfaces.PlanID, shares []shamir.Share, salt []byte) (*kms.VaultMasterKey, error) {
	view, err := s.store.GetPlanStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if view.Plan.Status != interfaces.StatusTriggered {
		return nil, fmt.Errorf("%w: reconstruction requires a triggered plan, status is %q", interfaces.ErrInvalidTransition, view.Plan.Status)
	}

	raw, err := shamir.Combine(shares)
	if err != nil {
		return nil, err
	}
	vmk, err := kms.MasterKeyFromBytes(raw, salt)
	if err != nil {
		return nil, err
	}

	if err := s.store.CompletePlan(ctx, id); err != nil {
		vmk.Zero()
		return nil, err
	}

	s.log.Info("Vault master key reconstructed", slog.String("planID", id.String()))
	return vmk, nil
}
