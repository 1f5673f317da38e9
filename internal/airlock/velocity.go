package airlock

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

func formatVelocityBreach(projectedCents uint64, windowSeconds uint64, limitCents uint64) string {
	return fmt.Sprintf("Spending velocity exceeded: $%.2f in %d seconds (limit: $%.2f)",
		float64(projectedCents)/100.0, windowSeconds, float64(limitCents)/100.0)
}

func formatLoopDetection(identical int, toolName string, threshold int) string {
	return fmt.Sprintf("Loop detected: %d identical calls to '%s' in sequence (threshold: %d)",
		identical, toolName, threshold)
}

// callRecord is one recorded tool call, kept for velocity and loop checks.
type callRecord struct {
	toolName  string
	inputHash uint64
	costCents uint64
	at        time.Time
}

// runTracker holds per-run call history.
type runTracker struct {
	calls       []callRecord
	lastCleanup time.Time
}

func newRunTracker() *runTracker {
	return &runTracker{lastCleanup: time.Now()}
}

// cleanup drops records outside window, but only runs every 5s so it never
// costs more than an occasional slice filter per run.
func (t *runTracker) cleanup(window time.Duration) {
	now := time.Now()
	if now.Sub(t.lastCleanup) <= 5*time.Second {
		return
	}
	kept := t.calls[:0]
	for _, c := range t.calls {
		if now.Sub(c.at) < window {
			kept = append(kept, c)
		}
	}
	t.calls = kept
	t.lastCleanup = now
}

// VelocityStats reports tracker occupancy for monitoring.
type VelocityStats struct {
	TrackedRuns   int
	TotalRecords  int
}

// VelocityTracker implements the spending-velocity and loop-detection
// circuit breaker (layer B). State is kept per run under a shared RWMutex,
// mirroring the upstream tracker's tokio::sync::RwLock<HashMap<...>>.
type VelocityTracker struct {
	config VelocityConfig
	mu     sync.RWMutex
	runs   map[string]*runTracker
}

// NewVelocityTracker builds a tracker from cfg.
func NewVelocityTracker(cfg VelocityConfig) *VelocityTracker {
	return &VelocityTracker{config: cfg, runs: make(map[string]*runTracker)}
}

// hashInput produces a stable hash of the tool input for loop detection,
// via its canonical JSON encoding.
func hashInput(input any) uint64 {
	h := fnv.New64a()
	b, err := json.Marshal(input)
	if err != nil {
		return 0
	}
	_, _ = h.Write(b)
	return h.Sum64()
}

// Check reports a velocity or loop violation for ic against this run's
// recorded history, or nil if the call may proceed. It does not itself
// record the call; callers record separately after the call succeeds.
func (t *VelocityTracker) Check(ic InspectionContext) *Violation {
	runKey := ic.RunID.String()
	inputHash := hashInput(ic.ToolInput)
	window := time.Duration(t.config.WindowSeconds) * time.Second
	now := time.Now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	tracker, ok := t.runs[runKey]
	if !ok {
		return nil
	}

	var recentCost uint64
	for _, c := range tracker.calls {
		if now.Sub(c.at) < window {
			recentCost += c.costCents
		}
	}
	var estimated uint64
	if ic.EstimatedCostCents != nil {
		estimated = *ic.EstimatedCostCents
	}
	projected := recentCost + estimated

	if projected > t.config.MaxCostCents {
		return &Violation{
			Type:      ViolationVelocityBreach,
			RiskScore: 85,
			RiskLevel: RiskCritical,
			Details:   formatVelocityBreach(projected, t.config.WindowSeconds, t.config.MaxCostCents),
			Trigger:   "velocity_limit",
		}
	}

	threshold := int(t.config.LoopThreshold)
	take := threshold + 1
	if take > len(tracker.calls) {
		take = len(tracker.calls)
	}
	identical := 0
	for i := len(tracker.calls) - 1; i >= len(tracker.calls)-take; i-- {
		c := tracker.calls[i]
		if c.toolName == ic.ToolName && c.inputHash == inputHash {
			identical++
		}
	}

	if identical >= threshold {
		return &Violation{
			Type:      ViolationLoopDetection,
			RiskScore: 75,
			RiskLevel: RiskHigh,
			Details:   formatLoopDetection(identical, ic.ToolName, threshold),
			Trigger:   "loop_detection",
		}
	}

	return nil
}

// Record appends ic to this run's call history, after applying periodic
// cleanup of records outside the tracking window.
func (t *VelocityTracker) Record(ic InspectionContext) {
	runKey := ic.RunID.String()
	inputHash := hashInput(ic.ToolInput)
	window := time.Duration(t.config.WindowSeconds) * time.Second

	t.mu.Lock()
	defer t.mu.Unlock()

	tracker, ok := t.runs[runKey]
	if !ok {
		tracker = newRunTracker()
		t.runs[runKey] = tracker
	}
	tracker.cleanup(window * 2)

	var estimated uint64
	if ic.EstimatedCostCents != nil {
		estimated = *ic.EstimatedCostCents
	}
	tracker.calls = append(tracker.calls, callRecord{
		toolName:  ic.ToolName,
		inputHash: inputHash,
		costCents: estimated,
		at:        time.Now(),
	})
}

// ClearRun drops all tracked history for runID.
func (t *VelocityTracker) ClearRun(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, runID)
}

// Stats reports current tracker occupancy.
func (t *VelocityTracker) Stats() VelocityStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats := VelocityStats{TrackedRuns: len(t.runs)}
	for _, tr := range t.runs {
		stats.TotalRecords += len(tr.calls)
	}
	return stats
}
