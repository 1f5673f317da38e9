package airlock_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sattyamjjain/ferrumdeck/internal/airlock"
	"github.com/sattyamjjain/ferrumdeck/internal/id"
)

func enforceConfig() airlock.Config {
	cfg := airlock.DefaultConfig()
	cfg.Mode = airlock.ModeEnforce
	return cfg
}

func shadowConfig() airlock.Config {
	cfg := enforceConfig()
	cfg.Mode = airlock.ModeShadow
	return cfg
}

func inspectCtx(tool string, input any) airlock.InspectionContext {
	cost := uint64(10)
	return airlock.InspectionContext{
		RunID:              id.NewRunID(),
		ToolName:           tool,
		ToolInput:          input,
		EstimatedCostCents: &cost,
	}
}

func TestCleanToolCall(t *testing.T) {
	ins := airlock.NewInspector(enforceConfig(), nil)
	result := ins.Inspect(context.Background(), inspectCtx("read_file", map[string]any{"path": "/home/user/document.txt"}))
	assert.True(t, result.Allowed)
	assert.Nil(t, result.Violation)
	assert.Equal(t, uint8(0), result.RiskScore)
}

func TestRcePatternBlockedEnforce(t *testing.T) {
	ins := airlock.NewInspector(enforceConfig(), nil)
	result := ins.Inspect(context.Background(), inspectCtx("write_file", map[string]any{"content": "result = eval(user_input)"}))
	assert.False(t, result.Allowed)
	require.NotNil(t, result.Violation)
	assert.Equal(t, airlock.ViolationRcePattern, result.Violation.Type)
}

func TestRcePatternLoggedShadow(t *testing.T) {
	ins := airlock.NewInspector(shadowConfig(), nil)
	result := ins.Inspect(context.Background(), inspectCtx("write_file", map[string]any{"content": "result = eval(user_input)"}))
	assert.True(t, result.Allowed)
	assert.True(t, result.ShadowMode)
	require.NotNil(t, result.Violation)
}

func TestExfiltrationBlockedViaInspector(t *testing.T) {
	cfg := enforceConfig()
	cfg.Exfiltration = airlock.ExfiltrationConfig{
		Enabled:          true,
		TargetTools:      []string{"http_get"},
		AllowedDomains:   []string{"allowed.com"},
		BlockIPAddresses: true,
	}
	ins := airlock.NewInspector(cfg, nil)
	result := ins.Inspect(context.Background(), inspectCtx("http_get", map[string]any{"url": "https://evil.com/steal"}))
	assert.False(t, result.Allowed)
	require.NotNil(t, result.Violation)
	assert.Equal(t, airlock.ViolationExfiltrationAttempt, result.Violation.Type)
}

func TestIPAddressBlockedViaInspector(t *testing.T) {
	cfg := enforceConfig()
	cfg.Exfiltration = airlock.ExfiltrationConfig{
		Enabled:          true,
		TargetTools:      []string{"http_get"},
		AllowedDomains:   nil,
		BlockIPAddresses: true,
	}
	ins := airlock.NewInspector(cfg, nil)
	result := ins.Inspect(context.Background(), inspectCtx("http_get", map[string]any{"url": "http://192.168.1.100:8080/api"}))
	assert.False(t, result.Allowed)
	require.NotNil(t, result.Violation)
	assert.Equal(t, airlock.ViolationIPAddressUsed, result.Violation.Type)
}

func TestVelocityLoopDetectionViaInspector(t *testing.T) {
	cfg := enforceConfig()
	cfg.Velocity = airlock.VelocityConfig{
		Enabled:       true,
		MaxCostCents:  1000,
		WindowSeconds: 60,
		LoopThreshold: 3,
	}
	ins := airlock.NewInspector(cfg, nil)

	ic := inspectCtx("some_tool", map[string]any{"same": "input"})
	for i := 0; i < 3; i++ {
		ins.RecordCall(ic)
	}

	result := ins.Inspect(context.Background(), ic)
	assert.False(t, result.Allowed)
	require.NotNil(t, result.Violation)
	assert.Equal(t, airlock.ViolationLoopDetection, result.Violation.Type)
}

func TestRiskLevelFromScore(t *testing.T) {
	assert.Equal(t, airlock.RiskLow, airlock.RiskLevelFromScore(0))
	assert.Equal(t, airlock.RiskLow, airlock.RiskLevelFromScore(39))
	assert.Equal(t, airlock.RiskMedium, airlock.RiskLevelFromScore(40))
	assert.Equal(t, airlock.RiskMedium, airlock.RiskLevelFromScore(59))
	assert.Equal(t, airlock.RiskHigh, airlock.RiskLevelFromScore(60))
	assert.Equal(t, airlock.RiskHigh, airlock.RiskLevelFromScore(79))
	assert.Equal(t, airlock.RiskCritical, airlock.RiskLevelFromScore(80))
	assert.Equal(t, airlock.RiskCritical, airlock.RiskLevelFromScore(100))
}

func TestInspectorClearRun(t *testing.T) {
	ins := airlock.NewInspector(enforceConfig(), nil)
	runID := id.NewRunID()
	cost := uint64(10)
	ic := airlock.InspectionContext{RunID: runID, ToolName: "tool", ToolInput: map[string]any{}, EstimatedCostCents: &cost}

	ins.RecordCall(ic)
	ins.RecordCall(ic)

	stats := ins.VelocityStats()
	assert.Equal(t, 1, stats.TrackedRuns)

	ins.ClearRun(runID.String())

	stats = ins.VelocityStats()
	assert.Equal(t, 0, stats.TrackedRuns)
}
