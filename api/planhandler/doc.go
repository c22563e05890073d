// Package planhandler implements the HTTP API for inheritance plans.
//
// The handler exposes the full plan lifecycle: creation with per-trustee
// encrypted shares, trustee approvals, the gated trigger transition, share
// release after a trigger, and plan edits while a plan is still active.
// Lifecycle rules are enforced by the backing store; the handler translates
// store errors into HTTP status codes (404 for unknown plans and trustees,
// 409 for lifecycle conflicts, 400 for malformed input).
package planhandler
