// Package services implements the debate orchestrator and its supporting
// business logic. This file centralizes the service-level error taxonomy so
// that every failure leaving the orchestrator carries a stable, checkable
// kind. Translation into HTTP status codes is performed at the handler
// layer.
//
// Kinds:
//   - ErrValidation: malformed request, rejected before any state change.
//   - ErrDebateNotFound / ErrParticipantNotFound: unknown target, no state change.
//   - ErrInvalidState: operation illegal for the debate's current status.
//   - ErrRateLimited: rejected by the tenant limiter before any resource was
//     consumed.
//   - ErrLockTimeout: the per-debate lock was not acquired within the wait
//     bound; retryable.
//   - ErrExternalService: the completion service failed after retries;
//     retryable. Context/knowledge failures never surface as errors; they
//     degrade to an operation without that enrichment.
package services

import "errors"

var (
	// ErrValidation indicates a malformed request (no participants, bad
	// rules, out-of-range content length).
	ErrValidation = errors.New("invalid request")

	// ErrDebateNotFound indicates that the requested debate does not exist.
	ErrDebateNotFound = errors.New("debate not found")

	// ErrParticipantNotFound indicates that neither an explicit participant
	// id nor the debate's next-participant pointer resolves to a current
	// member.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrInvalidState is returned when an operation is illegal for the
	// debate's current lifecycle status.
	ErrInvalidState = errors.New("operation not allowed in current debate state")

	// ErrRateLimited is returned when the tenant's sliding window is full.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrLockTimeout is returned when the per-debate lock could not be
	// acquired within the configured bound. Safe to retry.
	ErrLockTimeout = errors.New("timed out acquiring debate lock")

	// ErrExternalService is returned when the completion service failed
	// after bounded retries. Safe to retry with backoff.
	ErrExternalService = errors.New("external service failure")
)
