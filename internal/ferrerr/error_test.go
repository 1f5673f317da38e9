package ferrerr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sattyamjjain/ferrumdeck/internal/ferrerr"
)

func TestStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  *ferrerr.Error
		want int
	}{
		{"not_found", ferrerr.NewNotFound("Run", "run_123"), 404},
		{"validation", ferrerr.NewValidation("invalid input"), 400},
		{"unauthorized", ferrerr.NewUnauthorized("invalid token"), 401},
		{"forbidden", ferrerr.NewForbidden("access denied"), 403},
		{"conflict", ferrerr.NewConflict("already exists"), 409},
		{"rate_limited", ferrerr.NewRateLimited(60), 429},
		{"policy_denied", ferrerr.NewPolicyDenied("tool not allowed", nil), 403},
		{"budget_exceeded", ferrerr.NewBudgetExceeded("tokens", "10000"), 402},
		{"approval_required", ferrerr.NewApprovalRequired("deploy", "req_123"), 202},
		{"database", ferrerr.NewDatabase("connection failed"), 500},
		{"queue", ferrerr.NewQueue("redis unavailable"), 500},
		{"external_service", ferrerr.NewExternalService("llm", "timeout"), 502},
		{"internal", ferrerr.NewInternal("unexpected state"), 500},
		{"config", ferrerr.NewConfig("missing setting"), 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.StatusCode())
		})
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []*ferrerr.Error{
		ferrerr.NewRateLimited(1),
		ferrerr.NewDatabase("x"),
		ferrerr.NewQueue("x"),
		ferrerr.NewExternalService("llm", "x"),
	}
	for _, e := range retryable {
		assert.True(t, e.IsRetryable(), e.Code())
	}

	notRetryable := []*ferrerr.Error{
		ferrerr.NewValidation("x"),
		ferrerr.NewNotFound("Run", "run_1"),
		ferrerr.NewForbidden("x"),
		ferrerr.NewPolicyDenied("x", nil),
		ferrerr.NewBudgetExceeded("tokens", "1"),
		ferrerr.NewApprovalRequired("deploy", "req_1"),
		ferrerr.NewConfig("x"),
	}
	for _, e := range notRetryable {
		assert.False(t, e.IsRetryable(), e.Code())
	}
}

func TestValidationWithField(t *testing.T) {
	err := ferrerr.NewValidation("missing name").WithField("name")
	require := assert.New(t)
	require.NotNil(err.Field)
	require.Equal("name", *err.Field)
	require.Contains(err.Error(), "name")
}
