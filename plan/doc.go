// Package plan implements the inheritance plan lifecycle: owner-side setup
// (master key split and per-trustee share encryption), trustee approval
// voting, the quorum-and-waiting-period gated trigger, and beneficiary-side
// master key reconstruction.
//
// Two PlanAPI stores are provided. MemStore keeps plans in memory and backs
// tests and single-process use. SQLStore persists to sqlite and enforces
// approval idempotence and status transitions with conditional updates, so
// concurrent trustees behave correctly. Both stores apply identical gating:
// a trigger needs at least KThreshold approvals and an elapsed waiting
// period (unless the emergency override is set), and a rejected trigger
// leaves the plan untouched.
//
// Plaintext share material exists only inside Service.SetupPlan and the
// trustee-local DecryptTrusteeShare; stores only ever see ciphertext.
package plan
