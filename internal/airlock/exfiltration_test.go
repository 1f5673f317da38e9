package airlock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sattyamjjain/ferrumdeck/internal/airlock"
)

func shieldWithAllowlist(domains ...string) *airlock.ExfiltrationShield {
	return airlock.NewExfiltrationShield(airlock.ExfiltrationConfig{
		Enabled:          true,
		TargetTools:      []string{"http_get", "curl", "fetch"},
		AllowedDomains:   domains,
		BlockIPAddresses: true,
	})
}

func shieldNoAllowlist() *airlock.ExfiltrationShield {
	return airlock.NewExfiltrationShield(airlock.ExfiltrationConfig{
		Enabled:          true,
		TargetTools:      []string{"http_get"},
		AllowedDomains:   nil,
		BlockIPAddresses: true,
	})
}

func TestAllowedDomain(t *testing.T) {
	s := shieldWithAllowlist("github.com", "api.anthropic.com")
	v := s.Check("http_get", map[string]any{"url": "https://api.github.com/repos/test/repo"})
	assert.Nil(t, v)
}

func TestSubdomainAllowed(t *testing.T) {
	s := shieldWithAllowlist("github.com")
	v := s.Check("http_get", map[string]any{"url": "https://api.github.com/v1/test"})
	assert.Nil(t, v)
}

func TestUnauthorizedDomain(t *testing.T) {
	s := shieldWithAllowlist("github.com")
	v := s.Check("http_get", map[string]any{"url": "https://evil-server.com/steal-data"})
	require.NotNil(t, v)
	assert.Equal(t, airlock.ViolationExfiltrationAttempt, v.Type)
	assert.Contains(t, v.Details, "evil-server.com")
}

func TestIPAddressBlocked(t *testing.T) {
	s := shieldNoAllowlist()
	v := s.Check("http_get", map[string]any{"url": "http://192.168.1.100:8080/api"})
	require.NotNil(t, v)
	assert.Equal(t, airlock.ViolationIPAddressUsed, v.Type)
}

func TestLocalhostIPBlocked(t *testing.T) {
	s := shieldNoAllowlist()
	v := s.Check("http_get", map[string]any{"endpoint": "http://127.0.0.1:3000/internal"})
	require.NotNil(t, v)
	assert.Equal(t, airlock.ViolationIPAddressUsed, v.Type)
}

func TestNoWhitelistAllowsDomains(t *testing.T) {
	s := shieldNoAllowlist()
	v := s.Check("http_get", map[string]any{"url": "https://any-domain.com/api"})
	assert.Nil(t, v)
}

func TestExfiltrationNonTargetToolSkipped(t *testing.T) {
	s := shieldWithAllowlist("github.com")
	v := s.Check("read_file", map[string]any{"url": "https://evil.com/data"})
	assert.Nil(t, v)
}

func TestURLExtractionFromNestedJSON(t *testing.T) {
	s := shieldWithAllowlist("allowed.com")
	v := s.Check("curl", map[string]any{
		"config": map[string]any{
			"endpoints": []any{
				map[string]any{"url": "https://blocked.io/api"},
			},
		},
	})
	require.NotNil(t, v)
}

func TestMultipleURLsFirstViolation(t *testing.T) {
	s := shieldWithAllowlist("allowed.com")
	v := s.Check("http_get", map[string]any{
		"urls": []any{
			"https://allowed.com/ok",
			"https://blocked.io/bad",
			"https://also-blocked.io/bad",
		},
	})
	require.NotNil(t, v)
	assert.Contains(t, v.Details, "blocked.io")
}

func TestCaseInsensitiveDomainMatching(t *testing.T) {
	s := shieldWithAllowlist("GitHub.com")
	v := s.Check("http_get", map[string]any{"url": "https://GITHUB.COM/test"})
	assert.Nil(t, v)
}
