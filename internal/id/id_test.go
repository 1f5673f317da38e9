package id_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sattyamjjain/ferrumdeck/internal/id"
)

func TestRunIDGeneration(t *testing.T) {
	r := id.NewRunID()
	s := r.String()
	assert.True(t, len(s) > 4 && s[:4] == "run_")
	assert.Len(t, s, 30) // "run_" (4) + ULID (26)
}

func TestStepIDGeneration(t *testing.T) {
	s := id.NewStepID()
	assert.Contains(t, s.String(), "stp_")
}

func TestParseRoundTrip(t *testing.T) {
	r := id.NewRunID()
	parsed, err := id.ParseRunID(r.String())
	require.NoError(t, err)
	assert.Equal(t, r.ULID(), parsed.ULID())
}

func TestParseWithoutPrefix(t *testing.T) {
	r := id.NewRunID()
	parsed, err := id.ParseRunID(r.ULID().String())
	require.NoError(t, err)
	assert.Equal(t, r.ULID(), parsed.ULID())
}

func TestParseInvalidULIDFails(t *testing.T) {
	_, err := id.ParseRunID("run_INVALID_ULID_STRING!!!")
	assert.ErrorIs(t, err, id.ErrInvalidFormat)
}

func TestParseEmptyStringFails(t *testing.T) {
	_, err := id.ParseRunID("")
	assert.Error(t, err)
}

func TestParseTooShortFails(t *testing.T) {
	_, err := id.ParseRunID("run_ABC")
	assert.Error(t, err)
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		r := id.NewRunID()
		_, dup := seen[r.String()]
		require.False(t, dup, "duplicate id generated")
		seen[r.String()] = struct{}{}
	}
}

func TestOrdering(t *testing.T) {
	first := id.NewRunID()
	time.Sleep(2 * time.Millisecond)
	second := id.NewRunID()

	assert.GreaterOrEqual(t, second.Timestamp(), first.Timestamp())
	assert.True(t, first.Before(second))
	assert.True(t, first.String() < second.String())
}

func TestJSONRoundTrip(t *testing.T) {
	r := id.NewRunID()
	b, err := json.Marshal(r.String())
	require.NoError(t, err)

	var s string
	require.NoError(t, json.Unmarshal(b, &s))

	parsed, err := id.ParseRunID(s)
	require.NoError(t, err)
	assert.Equal(t, r.ULID(), parsed.ULID())
}

func TestAllPrefixes(t *testing.T) {
	assert.Contains(t, id.NewTenantID().String(), "ten_")
	assert.Contains(t, id.NewWorkspaceID().String(), "wks_")
	assert.Contains(t, id.NewProjectID().String(), "prj_")
	assert.Contains(t, id.NewAgentID().String(), "agt_")
	assert.Contains(t, id.NewAgentVersionID().String(), "agv_")
	assert.Contains(t, id.NewToolID().String(), "tol_")
	assert.Contains(t, id.NewToolVersionID().String(), "tov_")
	assert.Contains(t, id.NewPolicyRuleID().String(), "pol_")
	assert.Contains(t, id.NewPolicyDecisionID().String(), "pdc_")
	assert.Contains(t, id.NewApprovalID().String(), "apr_")
	assert.Contains(t, id.NewAuditEventID().String(), "aud_")
	assert.Contains(t, id.NewAPIKeyID().String(), "key_")
	assert.Contains(t, id.NewArtifactID().String(), "art_")
}

// TestRoundTripProperty covers spec property 1: for every generated id x,
// parse(display(x)) == x, and display(x) starts with the prefix.
func TestRoundTripProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	properties.Property("run id round-trips through display/parse", prop.ForAll(
		func(_ int) bool {
			r := id.NewRunID()
			parsed, err := id.ParseRunID(r.String())
			if err != nil {
				return false
			}
			return parsed.ULID() == r.ULID() && len(r.String()) > 4 && r.String()[:4] == "run_"
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
