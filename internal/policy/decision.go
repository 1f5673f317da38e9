// Package policy evaluates tool calls against an allowlist and a budget,
// producing immutable, audit-ready decisions. It follows an
// Options-in/Decide-out shape and implements the control plane's
// allow/deny/approval-list semantics rather than tag-based filtering.
package policy

import "github.com/sattyamjjain/ferrumdeck/internal/id"

// DecisionKind is the outcome of one policy evaluation.
type DecisionKind int

const (
	Allow DecisionKind = iota
	Deny
	RequiresApproval
	AllowWithWarning
)

// Decision is an immutable record of one policy evaluation, kept for audit.
type Decision struct {
	ID       id.PolicyDecisionID
	Kind     DecisionKind
	Reason   string
	RuleID   *id.PolicyRuleID
	Metadata map[string]any
}

func newDecision(kind DecisionKind, reason string) Decision {
	return Decision{ID: id.NewPolicyDecisionID(), Kind: kind, Reason: reason, Metadata: map[string]any{}}
}

func allowDecision(reason string) Decision            { return newDecision(Allow, reason) }
func denyDecision(reason string) Decision              { return newDecision(Deny, reason) }
func requiresApprovalDecision(reason string) Decision  { return newDecision(RequiresApproval, reason) }

// WithRule returns a copy of the decision annotated with the rule that
// produced it.
func (d Decision) WithRule(ruleID id.PolicyRuleID) Decision {
	d.RuleID = &ruleID
	return d
}

// IsAllowed reports whether the action may proceed (Allow or
// AllowWithWarning).
func (d Decision) IsAllowed() bool { return d.Kind == Allow || d.Kind == AllowWithWarning }

// IsDenied reports whether the action was denied.
func (d Decision) IsDenied() bool { return d.Kind == Deny }

// NeedsApproval reports whether the action is blocked pending human
// approval.
func (d Decision) NeedsApproval() bool { return d.Kind == RequiresApproval }
