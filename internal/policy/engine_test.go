package policy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sattyamjjain/ferrumdeck/internal/budget"
	"github.com/sattyamjjain/ferrumdeck/internal/policy"
)

func TestToolAllowlistDeniedByDefault(t *testing.T) {
	e := policy.New(policy.ToolAllowlist{}, budget.DefaultBudget(), nil)
	d := e.EvaluateToolCall(context.Background(), "unknown_tool")
	assert.True(t, d.IsDenied())
}

func TestToolAllowlistAllow(t *testing.T) {
	allowlist := policy.ToolAllowlist{AllowedTools: []string{"read_file"}}
	e := policy.New(allowlist, budget.DefaultBudget(), nil)
	d := e.EvaluateToolCall(context.Background(), "read_file")
	assert.True(t, d.IsAllowed())
}

func TestToolAllowlistDenyTakesPrecedenceOverAllow(t *testing.T) {
	allowlist := policy.ToolAllowlist{
		AllowedTools: []string{"shell"},
		DeniedTools:  []string{"shell"},
	}
	e := policy.New(allowlist, budget.DefaultBudget(), nil)
	d := e.EvaluateToolCall(context.Background(), "shell")
	assert.True(t, d.IsDenied())
}

func TestToolAllowlistApprovalRequired(t *testing.T) {
	allowlist := policy.ToolAllowlist{ApprovalRequired: []string{"deploy"}}
	e := policy.New(allowlist, budget.DefaultBudget(), nil)
	d := e.EvaluateToolCall(context.Background(), "deploy")
	assert.True(t, d.NeedsApproval())
}

func TestBudgetExceeded(t *testing.T) {
	e := policy.New(policy.ToolAllowlist{}, budget.DefaultBudget(), nil)
	usage := budget.Usage{InputTokens: 200_000}
	d := e.EvaluateBudget(context.Background(), usage, nil)
	assert.True(t, d.IsDenied())
}

func TestBudgetWithinLimits(t *testing.T) {
	e := policy.New(policy.ToolAllowlist{}, budget.DefaultBudget(), nil)
	d := e.EvaluateBudget(context.Background(), budget.Usage{InputTokens: 1}, nil)
	assert.True(t, d.IsAllowed())
}

func TestEvaluateToolCallIsAuditable(t *testing.T) {
	e := policy.New(policy.ToolAllowlist{AllowedTools: []string{"read_file"}}, budget.DefaultBudget(), nil)
	d1 := e.EvaluateToolCall(context.Background(), "read_file")
	d2 := e.EvaluateToolCall(context.Background(), "read_file")
	assert.NotEqual(t, d1.ID.String(), d2.ID.String(), "each evaluation gets a fresh id")
}
