package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/heirvault/escrow-backend/api"
	"github.com/heirvault/escrow-backend/interfaces"
)

// PlanClient talks to a remote plan service over HTTP and implements the same
// PlanAPI contract as the in-process stores, so owner and trustee tooling can
// switch between local and remote plans without changes.
type PlanClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPlanClient creates a client for the plan service.
//
// Parameters:
//   - baseURL: The base URL of the plan API (e.g., "http://localhost:8080")
//   - timeout: Request timeout duration (optional, default 30 seconds)
func NewPlanClient(baseURL string, timeout ...time.Duration) *PlanClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &PlanClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// do runs one request against the plan service. A non-2xx response is turned
// back into the store's sentinel error where the status code identifies it,
// so errors.Is checks work the same against local and remote stores.
func (c *PlanClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("plan service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return remoteError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("could not parse response: %w", err)
		}
	}
	return nil
}

// remoteError recovers a sentinel error from the response where the message
// names one, falling back to a generic error with the status code.
func remoteError(code int, msg string) error {
	sentinels := []error{
		interfaces.ErrPlanNotFound,
		interfaces.ErrTrusteeNotFound,
		interfaces.ErrQuorumNotMet,
		interfaces.ErrWaitingPeriodNotElapsed,
		interfaces.ErrInvalidTransition,
		interfaces.ErrInvalidThreshold,
		interfaces.ErrTooManyShares,
		interfaces.ErrInvalidConfig,
		interfaces.ErrInvalidInput,
	}
	for _, sentinel := range sentinels {
		if strings.Contains(msg, sentinel.Error()) {
			return fmt.Errorf("%w: plan service returned %d", sentinel, code)
		}
	}
	return fmt.Errorf("plan service returned %d: %s", code, msg)
}

// CreatePlan persists a new plan in active status.
func (c *PlanClient) CreatePlan(ctx context.Context, req interfaces.CreatePlanRequest) (*interfaces.InheritancePlan, error) {
	var plan interfaces.InheritancePlan
	if err := c.do(ctx, http.MethodPost, "/api/plans", req, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListPlans returns all plans visible to the caller.
func (c *PlanClient) ListPlans(ctx context.Context) ([]*interfaces.InheritancePlan, error) {
	var plans []*interfaces.InheritancePlan
	if err := c.do(ctx, http.MethodGet, "/api/plans", nil, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// GetPlanStatus returns the plan with derived approval progress.
func (c *PlanClient) GetPlanStatus(ctx context.Context, id interfaces.PlanID) (*interfaces.PlanStatusView, error) {
	var view interfaces.PlanStatusView
	if err := c.do(ctx, http.MethodGet, "/api/plans/"+id.String(), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ApprovePlan records a trustee approval. Approving twice is a no-op.
func (c *PlanClient) ApprovePlan(ctx context.Context, id interfaces.PlanID, trusteeID interfaces.TrusteeID) error {
	return c.do(ctx, http.MethodPost, "/api/plans/"+id.String()+"/approvals/"+trusteeID.String(), nil, nil)
}

// TriggerInheritance attempts the active to triggered transition.
func (c *PlanClient) TriggerInheritance(ctx context.Context, id interfaces.PlanID, req interfaces.TriggerRequest) error {
	return c.do(ctx, http.MethodPost, "/api/plans/"+id.String()+"/trigger", req, nil)
}

// CompletePlan marks a triggered plan completed.
func (c *PlanClient) CompletePlan(ctx context.Context, id interfaces.PlanID) error {
	return c.do(ctx, http.MethodPost, "/api/plans/"+id.String()+"/complete", nil, nil)
}

// CancelPlan cancels an active plan.
func (c *PlanClient) CancelPlan(ctx context.Context, id interfaces.PlanID) error {
	return c.do(ctx, http.MethodPost, "/api/plans/"+id.String()+"/cancel", nil, nil)
}

// GetTrusteeShares fetches and decodes the encrypted shares of a triggered
// plan. Decryption stays with the trustee holding the matching private key.
func (c *PlanClient) GetTrusteeShares(ctx context.Context, id interfaces.PlanID) ([]interfaces.EncryptedShare, error) {
	var wire []api.TrusteeShareResponse
	if err := c.do(ctx, http.MethodGet, "/api/plans/"+id.String()+"/shares", nil, &wire); err != nil {
		return nil, err
	}

	shares := make([]interfaces.EncryptedShare, 0, len(wire))
	for _, w := range wire {
		share, err := w.Decode()
		if err != nil {
			return nil, fmt.Errorf("could not decode share %d: %w", w.ShareIndex, err)
		}
		shares = append(shares, share)
	}
	return shares, nil
}

// UpdatePlan replaces an active plan's configuration.
func (c *PlanClient) UpdatePlan(ctx context.Context, id interfaces.PlanID, req interfaces.CreatePlanRequest) (*interfaces.InheritancePlan, error) {
	var plan interfaces.InheritancePlan
	if err := c.do(ctx, http.MethodPut, "/api/plans/"+id.String(), req, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// DeletePlan removes an active or cancelled plan.
func (c *PlanClient) DeletePlan(ctx context.Context, id interfaces.PlanID) error {
	return c.do(ctx, http.MethodDelete, "/api/plans/"+id.String(), nil, nil)
}
