/*
Package clients provides client libraries for the escrow plan service.

PlanClient implements the same PlanAPI contract as the in-process stores, so
owner tooling, trustee tooling, and tests can switch between a local store
and a remote plan service without code changes.

# Error Model

The server reports failures as plain-text error messages. PlanClient matches
those messages back onto the shared sentinel errors, so callers can use
errors.Is the same way against a remote service as against a local store:

	err := client.TriggerInheritance(ctx, planID, req)
	if errors.Is(err, interfaces.ErrQuorumNotMet) {
	    // not enough trustee approvals yet
	}

# Example Usage

	client := clients.NewPlanClient("http://localhost:8080")

	plan, err := client.CreatePlan(ctx, req)
	if err != nil {
	    return err
	}

	view, err := client.GetPlanStatus(ctx, plan.ID)
*/
package clients
