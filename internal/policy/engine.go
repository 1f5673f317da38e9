package policy

import (
	"context"
	"fmt"

	"github.com/sattyamjjain/ferrumdeck/internal/budget"
	"github.com/sattyamjjain/ferrumdeck/internal/telemetry"
)

// Engine evaluates tool calls against a configured allowlist and gates
// continued execution against a budget. It is purely functional and
// stateless between calls: every Decision is constructed fresh so each
// evaluation stands on its own in the audit trail.
type Engine struct {
	allowlist     ToolAllowlist
	defaultBudget budget.Budget
	logger        telemetry.Logger
}

// New constructs an Engine. A nil logger falls back to telemetry.NewNoopLogger.
func New(allowlist ToolAllowlist, defaultBudget budget.Budget, logger telemetry.Logger) *Engine {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Engine{allowlist: allowlist, defaultBudget: defaultBudget, logger: logger}
}

// DefaultBudget returns the engine's fallback budget, used when EvaluateBudget
// is called without an explicit per-run override.
func (e *Engine) DefaultBudget() budget.Budget { return e.defaultBudget }

// EvaluateToolCall decides whether toolName may run, requires approval, or
// is denied, based on the engine's allowlist.
func (e *Engine) EvaluateToolCall(ctx context.Context, toolName string) Decision {
	var d Decision
	switch e.allowlist.Check(toolName) {
	case ResultAllowed:
		d = allowDecision(fmt.Sprintf("tool %q is in allowlist", toolName))
	case ResultRequiresApproval:
		d = requiresApprovalDecision(fmt.Sprintf("tool %q requires approval before execution", toolName))
	default:
		d = denyDecision(fmt.Sprintf("tool %q is not in allowlist", toolName))
	}
	e.logger.Debug(ctx, "policy: evaluated tool call", "tool", toolName, "kind", d.Kind)
	return d
}

// EvaluateBudget decides whether usage is within limits. A nil b falls back
// to the engine's default budget.
func (e *Engine) EvaluateBudget(ctx context.Context, usage budget.Usage, b *budget.Budget) Decision {
	effective := e.defaultBudget
	if b != nil {
		effective = *b
	}
	if exceeded := usage.CheckAgainst(effective); exceeded != nil {
		return denyDecision(fmt.Sprintf("budget exceeded: %s", exceeded))
	}
	return allowDecision("within budget limits")
}
