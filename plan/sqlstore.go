package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/heirvault/escrow-backend/interfaces"
	_ "modernc.org/sqlite"
)

// SQLStore is a sqlite-backed PlanAPI implementation. Approval bookkeeping
// and trigger transitions use conditional updates inside transactions, so
// concurrent trustees cannot double-count or race a status change.
type SQLStore struct {
	db  *sql.DB
	now interfaces.Clock
}

// NewSQLStore opens (or creates) the plan database at dbPath.
func NewSQLStore(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan database: %w", err)
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize plan schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		k_threshold INTEGER NOT NULL,
		n_total INTEGER NOT NULL,
		waiting_period_days INTEGER NOT NULL,
		status TEXT NOT NULL,
		trigger_reason TEXT NOT NULL DEFAULT '',
		beneficiaries TEXT NOT NULL DEFAULT '[]',
		items TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		triggered_at INTEGER,
		completed_at INTEGER
	);
	CREATE TABLE IF NOT EXISTS trustees (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
		email TEXT NOT NULL,
		name TEXT NOT NULL,
		share_index INTEGER NOT NULL,
		encrypted_data BLOB NOT NULL,
		iv BLOB NOT NULL,
		has_approved INTEGER NOT NULL DEFAULT 0,
		approved_at INTEGER,
		UNIQUE(plan_id, share_index)
	);
	CREATE INDEX IF NOT EXISTS idx_trustees_plan ON trustees(plan_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// SetClock overrides the wall clock. Test hook.
func (s *SQLStore) SetClock(now interfaces.Clock) {
	s.now = now
}

// CreatePlan validates the request and persists a new active plan.
func (s *SQLStore) CreatePlan(ctx context.Context, req interfaces.CreatePlanRequest) (*interfaces.InheritancePlan, error) {
	p, err := newPlanFromRequest(req, s.now())
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := insertPlan(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

func insertPlan(ctx context.Context, tx *sql.Tx, p *interfaces.InheritancePlan) error {
	beneficiaries, err := json.Marshal(p.Beneficiaries)
	if err != nil {
		return err
	}
	items, err := json.Marshal(p.Items)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plans (id, owner_id, name, k_threshold, n_total, waiting_period_days,
			status, trigger_reason, beneficiaries, items, created_at, triggered_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.OwnerID, p.Name, p.KThreshold, p.NTotal, p.WaitingPeriodDays,
		string(p.Status), p.TriggerReason, string(beneficiaries), string(items),
		p.CreatedAt.Unix(), unixOrNil(p.TriggeredAt), unixOrNil(p.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}

	for _, tr := range p.Trustees {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO trustees (id, plan_id, email, name, share_index, encrypted_data, iv, has_approved, approved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tr.ID.String(), p.ID.String(), tr.Email, tr.Name, tr.ShareIndex,
			tr.EncryptedShare.EncryptedData, tr.EncryptedShare.IV,
			boolToInt(tr.HasApproved), unixOrNil(tr.ApprovedAt))
		if err != nil {
			return fmt.Errorf("failed to insert trustee: %w", err)
		}
	}
	return nil
}

// ListPlans returns all stored plans.
func (s *SQLStore) ListPlans(ctx context.Context) ([]*interfaces.InheritancePlan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM plans ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []interfaces.PlanID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, interfaces.PlanID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	plans := make([]*interfaces.InheritancePlan, 0, len(ids))
	for _, id := range ids {
		p, err := s.loadPlan(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// GetPlanStatus returns the plan with derived approval progress.
func (s *SQLStore) GetPlanStatus(ctx context.Context, id interfaces.PlanID) (*interfaces.PlanStatusView, error) {
	p, err := s.loadPlan(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return statusView(p, s.now()), nil
}

// ApprovePlan records a trustee approval with a conditional update, so two
// concurrent approvals by the same trustee count once.
func (s *SQLStore) ApprovePlan(ctx context.Context, id interfaces.PlanID, trusteeID interfaces.TrusteeID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status, err := s.planStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if status != interfaces.StatusActive {
		return fmt.Errorf("%w: cannot approve plan in status %q", interfaces.ErrInvalidTransition, status)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE trustees SET has_approved = 1, approved_at = ?
		WHERE id = ? AND plan_id = ? AND has_approved = 0`,
		s.now().Unix(), trusteeID.String(), id.String())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either already approved (no-op) or unknown trustee.
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM trustees WHERE id = ? AND plan_id = ?`,
			trusteeID.String(), id.String()).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", interfaces.ErrTrusteeNotFound, trusteeID)
		}
	}
	return tx.Commit()
}

// TriggerInheritance transitions the plan to triggered once the approval
// quorum and waiting period allow it.
func (s *SQLStore) TriggerInheritance(ctx context.Context, id interfaces.PlanID, req interfaces.TriggerRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, err := s.loadPlan(ctx, tx, id)
	if err != nil {
		return err
	}
	now := s.now()
	if err := checkTrigger(p, req, now); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE plans SET status = ?, trigger_reason = ?, triggered_at = ?
		WHERE id = ? AND status = ?`,
		string(interfaces.StatusTriggered), req.Reason, now.Unix(),
		id.String(), string(interfaces.StatusActive))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: plan changed state concurrently", interfaces.ErrInvalidTransition)
	}
	return tx.Commit()
}

// CompletePlan marks a triggered plan completed.
func (s *SQLStore) CompletePlan(ctx context.Context, id interfaces.PlanID) error {
	return s.transition(ctx, id, interfaces.StatusTriggered, interfaces.StatusCompleted, "completed_at")
}

// CancelPlan cancels an active plan.
func (s *SQLStore) CancelPlan(ctx context.Context, id interfaces.PlanID) error {
	return s.transition(ctx, id, interfaces.StatusActive, interfaces.StatusCancelled, "")
}

func (s *SQLStore) transition(ctx context.Context, id interfaces.PlanID, from, to interfaces.PlanStatus, timestampCol string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status, err := s.planStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if status != from {
		return fmt.Errorf("%w: %q -> %q", interfaces.ErrInvalidTransition, status, to)
	}

	query := `UPDATE plans SET status = ? WHERE id = ? AND status = ?`
	args := []any{string(to), id.String(), string(from)}
	if timestampCol != "" {
		query = fmt.Sprintf(`UPDATE plans SET status = ?, %s = ? WHERE id = ? AND status = ?`, timestampCol)
		args = []any{string(to), s.now().Unix(), id.String(), string(from)}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// GetTrusteeShares returns encrypted shares for a triggered plan.
func (s *SQLStore) GetTrusteeShares(ctx context.Context, id interfaces.PlanID) ([]interfaces.EncryptedShare, error) {
	p, err := s.loadPlan(ctx, s.db, id)
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

// UpdatePlan replaces an active plan's configuration, keeping the plan ID and
// creation time. All approvals reset: the share set changed.
func (s *SQLStore) UpdatePlan(ctx context.Context, id interfaces.PlanID, req interfaces.CreatePlanRequest) (*interfaces.InheritancePlan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := s.loadPlan(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != interfaces.StatusActive {
		return nil, fmt.Errorf("%w: cannot update plan in status %q", interfaces.ErrInvalidTransition, existing.Status)
	}

	updated, err := newPlanFromRequest(req, s.now())
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	for i := range updated.Trustees {
		updated.Trustees[i].PlanID = existing.ID
	}
	for i := range updated.Beneficiaries {
		updated.Beneficiaries[i].PlanID = existing.ID
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM trustees WHERE plan_id = ?`, id.String()); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id.String()); err != nil {
		return nil, err
	}
	if err := insertPlan(ctx, tx, updated); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeletePlan removes a plan. Triggered and completed plans are retained for
// audit and cannot be deleted.
func (s *SQLStore) DeletePlan(ctx context.Context, id interfaces.PlanID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status, err := s.planStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if status != interfaces.StatusActive && status != interfaces.StatusCancelled {
		return fmt.Errorf("%w: cannot delete plan in status %q", interfaces.ErrInvalidTransition, status)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM trustees WHERE plan_id = ?`, id.String()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id.String()); err != nil {
		return err
	}
	return tx.Commit()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) planStatus(ctx context.Context, q querier, id interfaces.PlanID) (interfaces.PlanStatus, error) {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM plans WHERE id = ?`, id.String()).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", interfaces.ErrPlanNotFound, id)
	}
	if err != nil {
		return "", err
	}
	return interfaces.PlanStatus(status), nil
}

func (s *SQLStore) loadPlan(ctx context.Context, q querier, id interfaces.PlanID) (*interfaces.InheritancePlan, error) {
	var (
		p                          interfaces.InheritancePlan
		status                     string
		beneficiaries, items       string
		createdUnix                int64
		triggeredUnix, doneUnix    sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, owner_id, name, k_threshold, n_total, waiting_period_days,
			status, trigger_reason, beneficiaries, items, created_at, triggered_at, completed_at
		FROM plans WHERE id = ?`, id.String()).Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.KThreshold, &p.NTotal, &p.WaitingPeriodDays,
		&status, &p.TriggerReason, &beneficiaries, &items, &createdUnix, &triggeredUnix, &doneUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrPlanNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	p.Status = interfaces.PlanStatus(status)
	p.CreatedAt = time.Unix(createdUnix, 0).UTC()
	p.TriggeredAt = timeOrNil(triggeredUnix)
	p.CompletedAt = timeOrNil(doneUnix)
	if err := json.Unmarshal([]byte(beneficiaries), &p.Beneficiaries); err != nil {
		return nil, fmt.Errorf("corrupt beneficiary record: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &p.Items); err != nil {
		return nil, fmt.Errorf("corrupt item record: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, email, name, share_index, encrypted_data, iv, has_approved, approved_at
		FROM trustees WHERE plan_id = ? ORDER BY share_index`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tr           interfaces.Trustee
			approved     int
			approvedUnix sql.NullInt64
		)
		tr.PlanID = p.ID
		if err := rows.Scan(&tr.ID, &tr.Email, &tr.Name, &tr.ShareIndex,
			&tr.EncryptedShare.EncryptedData, &tr.EncryptedShare.IV, &approved, &approvedUnix); err != nil {
			return nil, err
		}
		tr.EncryptedShare.TrusteeEmail = tr.Email
		tr.EncryptedShare.ShareIndex = tr.ShareIndex
		tr.HasApproved = approved != 0
		tr.ApprovedAt = timeOrNil(approvedUnix)
		p.Trustees = append(p.Trustees, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
