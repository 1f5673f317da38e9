// Package ferrerr defines the control plane's typed error taxonomy: failure
// kinds, their HTTP status codes, and whether a caller should retry.
package ferrerr

import "fmt"

// Kind identifies the category of a control-plane error.
type Kind int

const (
	// Client input errors (4xx); of these only RateLimited is retryable.
	NotFound Kind = iota
	Validation
	Unauthorized
	Forbidden
	Conflict
	RateLimited

	// Policy/budget outcomes, not exceptional but surfaced as errors at
	// the HTTP boundary.
	PolicyDenied
	BudgetExceeded
	ApprovalRequired

	// Internal errors (5xx).
	Database
	Queue
	ExternalService
	Internal
	Config
)

// Error is the control plane's canonical error type. It carries a Kind, a
// human-readable message, and kind-specific fields used by callers that
// need structured detail (e.g. Field for Validation, RetryAfterSecs for
// RateLimited).
type Error struct {
	Kind Kind
	Msg  string

	// Entity/ID identify the missing resource for NotFound errors.
	Entity string
	ID     string

	// Field optionally names the offending field for Validation errors.
	Field *string

	// RuleID optionally references the policy rule that produced a
	// PolicyDenied decision.
	RuleID *string

	// RetryAfterSecs is set for RateLimited errors.
	RetryAfterSecs uint64

	// Action/RequestID identify the blocked action for ApprovalRequired.
	Action    string
	RequestID string

	// Resource/Limit describe the exhausted budget dimension for
	// BudgetExceeded errors.
	Resource string
	Limit    string

	// Service names the upstream for ExternalService errors.
	Service string
}

func (e *Error) Error() string {
	switch e.Kind {
	case NotFound:
		return fmt.Sprintf("not found: %s with id %s", e.Entity, e.ID)
	case Validation:
		if e.Field != nil {
			return fmt.Sprintf("validation error: %s (field: %s)", e.Msg, *e.Field)
		}
		return fmt.Sprintf("validation error: %s", e.Msg)
	case Unauthorized:
		return fmt.Sprintf("unauthorized: %s", e.Msg)
	case Forbidden:
		return fmt.Sprintf("forbidden: %s", e.Msg)
	case Conflict:
		return fmt.Sprintf("conflict: %s", e.Msg)
	case RateLimited:
		return fmt.Sprintf("rate limited: retry after %ds", e.RetryAfterSecs)
	case PolicyDenied:
		return fmt.Sprintf("policy denied: %s", e.Msg)
	case BudgetExceeded:
		return fmt.Sprintf("budget exceeded: %s limit of %s reached", e.Resource, e.Limit)
	case ApprovalRequired:
		return fmt.Sprintf("approval required for action: %s", e.Action)
	case Database:
		return fmt.Sprintf("database error: %s", e.Msg)
	case Queue:
		return fmt.Sprintf("queue error: %s", e.Msg)
	case ExternalService:
		return fmt.Sprintf("external service error: %s - %s", e.Service, e.Msg)
	case Internal:
		return fmt.Sprintf("internal error: %s", e.Msg)
	case Config:
		return fmt.Sprintf("configuration error: %s", e.Msg)
	default:
		return e.Msg
	}
}

// StatusCode returns the HTTP status code for the error's kind.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case NotFound:
		return 404
	case Validation:
		return 400
	case Unauthorized:
		return 401
	case Forbidden:
		return 403
	case Conflict:
		return 409
	case RateLimited:
		return 429
	case PolicyDenied:
		return 403
	case BudgetExceeded:
		return 402
	case ApprovalRequired:
		return 202
	case Database, Queue, Internal, Config:
		return 500
	case ExternalService:
		return 502
	default:
		return 500
	}
}

// Code returns the stable string error code used in API responses.
func (e *Error) Code() string {
	switch e.Kind {
	case NotFound:
		return "NOT_FOUND"
	case Validation:
		return "VALIDATION_ERROR"
	case Unauthorized:
		return "UNAUTHORIZED"
	case Forbidden:
		return "FORBIDDEN"
	case Conflict:
		return "CONFLICT"
	case RateLimited:
		return "RATE_LIMITED"
	case PolicyDenied:
		return "POLICY_DENIED"
	case BudgetExceeded:
		return "BUDGET_EXCEEDED"
	case ApprovalRequired:
		return "APPROVAL_REQUIRED"
	case Database:
		return "DATABASE_ERROR"
	case Queue:
		return "QUEUE_ERROR"
	case ExternalService:
		return "EXTERNAL_SERVICE_ERROR"
	case Internal:
		return "INTERNAL_ERROR"
	case Config:
		return "CONFIG_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// IsRetryable reports whether the caller should retry the operation.
// True only for RateLimited, transient storage/queue failures, and
// ExternalService; never for validation, not-found, forbidden,
// policy-denied, budget-exceeded, approval-required, or configuration.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case RateLimited, Database, Queue, ExternalService:
		return true
	default:
		return false
	}
}

// Constructors mirror the kind-specific fields each error carries.

func NewNotFound(entity, id string) *Error {
	return &Error{Kind: NotFound, Entity: entity, ID: id}
}

func NewValidation(msg string) *Error {
	return &Error{Kind: Validation, Msg: msg}
}

// WithField returns a copy of a Validation error annotated with the
// offending field name. It is a no-op (returns e unchanged) for any other
// kind.
func (e *Error) WithField(field string) *Error {
	if e.Kind != Validation {
		return e
	}
	cp := *e
	cp.Field = &field
	return &cp
}

func NewUnauthorized(msg string) *Error { return &Error{Kind: Unauthorized, Msg: msg} }
func NewForbidden(msg string) *Error    { return &Error{Kind: Forbidden, Msg: msg} }
func NewConflict(msg string) *Error     { return &Error{Kind: Conflict, Msg: msg} }

func NewRateLimited(retryAfterSecs uint64) *Error {
	return &Error{Kind: RateLimited, RetryAfterSecs: retryAfterSecs}
}

func NewPolicyDenied(reason string, ruleID *string) *Error {
	return &Error{Kind: PolicyDenied, Msg: reason, RuleID: ruleID}
}

func NewBudgetExceeded(resource, limit string) *Error {
	return &Error{Kind: BudgetExceeded, Resource: resource, Limit: limit}
}

func NewApprovalRequired(action, requestID string) *Error {
	return &Error{Kind: ApprovalRequired, Action: action, RequestID: requestID}
}

func NewDatabase(msg string) *Error        { return &Error{Kind: Database, Msg: msg} }
func NewQueue(msg string) *Error           { return &Error{Kind: Queue, Msg: msg} }
func NewInternal(msg string) *Error        { return &Error{Kind: Internal, Msg: msg} }
func NewConfig(msg string) *Error          { return &Error{Kind: Config, Msg: msg} }

func NewExternalService(service, msg string) *Error {
	return &Error{Kind: ExternalService, Service: service, Msg: msg}
}
