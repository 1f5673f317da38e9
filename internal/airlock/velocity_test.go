package airlock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sattyamjjain/ferrumdeck/internal/airlock"
	"github.com/sattyamjjain/ferrumdeck/internal/id"
)

func cents(v uint64) *uint64 { return &v }

func newTestTracker() *airlock.VelocityTracker {
	return airlock.NewVelocityTracker(airlock.VelocityConfig{
		Enabled:       true,
		MaxCostCents:  100, // $1.00
		WindowSeconds: 10,
		LoopThreshold: 3,
	})
}

func ctxFor(runID id.RunID, tool string, cost *uint64) airlock.InspectionContext {
	return airlock.InspectionContext{
		RunID:              runID,
		ToolName:           tool,
		ToolInput:          map[string]any{"test": "data"},
		EstimatedCostCents: cost,
	}
}

func TestVelocityWithinLimits(t *testing.T) {
	tracker := newTestTracker()
	runID := id.NewRunID()

	ic := ctxFor(runID, "test_tool", cents(50))
	assert.Nil(t, tracker.Check(ic))
	tracker.Record(ic)

	ic2 := ctxFor(runID, "test_tool", cents(40))
	assert.Nil(t, tracker.Check(ic2))
}

func TestVelocityExceeded(t *testing.T) {
	tracker := newTestTracker()
	runID := id.NewRunID()

	for i := 0; i < 3; i++ {
		tracker.Record(ctxFor(runID, "expensive_tool", cents(40)))
	}

	v := tracker.Check(ctxFor(runID, "expensive_tool", cents(40)))
	require.NotNil(t, v)
	assert.Equal(t, airlock.ViolationVelocityBreach, v.Type)
	assert.GreaterOrEqual(t, v.RiskScore, uint8(80))
}

func TestVelocityLoopDetection(t *testing.T) {
	tracker := newTestTracker()
	runID := id.NewRunID()
	ic := airlock.InspectionContext{
		RunID:              runID,
		ToolName:           "looping_tool",
		ToolInput:          map[string]any{"same": "input"},
		EstimatedCostCents: cents(1),
	}

	for i := 0; i < 3; i++ {
		tracker.Record(ic)
	}

	v := tracker.Check(ic)
	require.NotNil(t, v)
	assert.Equal(t, airlock.ViolationLoopDetection, v.Type)
}

func TestVelocityDifferentInputsNoLoop(t *testing.T) {
	tracker := newTestTracker()
	runID := id.NewRunID()

	for i := 0; i < 5; i++ {
		ic := airlock.InspectionContext{
			RunID:              runID,
			ToolName:           "tool",
			ToolInput:          map[string]any{"iteration": i},
			EstimatedCostCents: cents(1),
		}
		tracker.Record(ic)
		assert.Nil(t, tracker.Check(ic))
	}
}

func TestVelocityClearRun(t *testing.T) {
	tracker := newTestTracker()
	runID := id.NewRunID()

	ic := ctxFor(runID, "tool", cents(50))
	tracker.Record(ic)
	tracker.Record(ic)

	stats := tracker.Stats()
	assert.Equal(t, 1, stats.TrackedRuns)

	tracker.ClearRun(runID.String())

	stats = tracker.Stats()
	assert.Equal(t, 0, stats.TrackedRuns)
}

func TestVelocitySeparateRuns(t *testing.T) {
	tracker := newTestTracker()
	run1 := id.NewRunID()
	run2 := id.NewRunID()

	for i := 0; i < 3; i++ {
		tracker.Record(ctxFor(run1, "tool", cents(40)))
	}

	assert.Nil(t, tracker.Check(ctxFor(run2, "tool", cents(40))))
}
