package budget_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sattyamjjain/ferrumdeck/internal/budget"
)

func u64p(v uint64) *uint64 { return &v }

// S6: Budget{max_input_tokens: 100_000}, Usage{input_tokens: 100_001} =>
// BudgetExceeded::InputTokens{used: 100_001, limit: 100_000}.
func TestScenarioS6BudgetExceeded(t *testing.T) {
	b := budget.Budget{MaxInputTokens: u64p(100_000)}
	u := budget.Usage{InputTokens: 100_001}

	exceeded := u.CheckAgainst(b)
	require.NotNil(t, exceeded)
	assert.Equal(t, budget.DimInputTokens, exceeded.Dimension)
	assert.Equal(t, uint64(100_001), exceeded.Used)
	assert.Equal(t, uint64(100_000), exceeded.Limit)
}

func TestCheckAgainstWithinLimits(t *testing.T) {
	u := budget.Usage{InputTokens: 1}
	assert.Nil(t, u.CheckAgainst(budget.DefaultBudget()))
}

func TestCheckAgainstUnlimitedDimension(t *testing.T) {
	u := budget.Usage{InputTokens: 1_000_000}
	assert.Nil(t, u.CheckAgainst(budget.Budget{}))
}

func TestDeclarationOrderReturnsFirstExceeded(t *testing.T) {
	b := budget.Budget{MaxInputTokens: u64p(10), MaxOutputTokens: u64p(10)}
	u := budget.Usage{InputTokens: 11, OutputTokens: 11}

	exceeded := u.CheckAgainst(b)
	require.NotNil(t, exceeded)
	assert.Equal(t, budget.DimInputTokens, exceeded.Dimension, "input tokens is declared first")
}

// TestMonotonicityProperty covers spec property 6: check_against returns
// Some iff at least one dimension is strictly greater than its limit, and
// the returned dimension is the first such in declaration order.
func TestMonotonicityProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	properties.Property("exceeded iff input tokens strictly over limit", prop.ForAll(
		func(limit, used uint64) bool {
			b := budget.Budget{MaxInputTokens: &limit}
			u := budget.Usage{InputTokens: used}
			exceeded := u.CheckAgainst(b)
			if used > limit {
				return exceeded != nil && exceeded.Dimension == budget.DimInputTokens
			}
			return exceeded == nil
		},
		gen.UInt64Range(0, 1000),
		gen.UInt64Range(0, 1000),
	))

	properties.TestingRun(t)
}
