// Package airlock implements the runtime tool-call inspector: three
// cooperating layers that scan every tool call before and after execution
// for dangerous code, runaway spend or loops, and data exfiltration. It is
// grounded on the retained fd-policy/src/airlock Rust module, translated
// into Go's usual concurrency idiom (sync.RWMutex in place of
// tokio::sync::RwLock, *regexp.Regexp compiled once in place of OnceLock).
package airlock

import (
	"context"

	"github.com/sattyamjjain/ferrumdeck/internal/id"
	"github.com/sattyamjjain/ferrumdeck/internal/telemetry"
)

// ViolationType categorizes what an inspection layer detected.
type ViolationType int

const (
	ViolationRcePattern ViolationType = iota
	ViolationVelocityBreach
	ViolationLoopDetection
	ViolationExfiltrationAttempt
	ViolationIPAddressUsed
)

func (v ViolationType) String() string {
	switch v {
	case ViolationRcePattern:
		return "rce_pattern"
	case ViolationVelocityBreach:
		return "velocity_breach"
	case ViolationLoopDetection:
		return "loop_detection"
	case ViolationExfiltrationAttempt:
		return "exfiltration_attempt"
	case ViolationIPAddressUsed:
		return "ip_address_used"
	default:
		return "unknown"
	}
}

// RiskLevel is a coarse bucket derived from a 0-100 risk score.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// RiskLevelFromScore buckets a 0-100 risk score into a RiskLevel: 0-39 low,
// 40-59 medium, 60-79 high, 80-100 critical.
func RiskLevelFromScore(score uint8) RiskLevel {
	switch {
	case score <= 39:
		return RiskLow
	case score <= 59:
		return RiskMedium
	case score <= 79:
		return RiskHigh
	default:
		return RiskCritical
	}
}

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "critical"
	}
}

// Violation is one layer's detected finding.
type Violation struct {
	Type      ViolationType
	RiskScore uint8
	RiskLevel RiskLevel
	Details   string
	Trigger   string
}

// InspectionContext carries everything a layer needs to evaluate one tool
// call.
type InspectionContext struct {
	RunID               id.RunID
	ToolName            string
	ToolInput           any
	EstimatedCostCents  *uint64
}

// Result is the outcome of inspecting one tool call through all enabled
// layers.
type Result struct {
	Allowed    bool
	Violation  *Violation
	ShadowMode bool
	RiskScore  uint8
	RiskLevel  RiskLevel
}

// clean returns the default, no-violation result.
func clean() Result {
	return Result{Allowed: true, RiskLevel: RiskLow}
}

// Inspector coordinates the three inspection layers in fixed order: anti-RCE
// pattern matching, then the velocity/loop circuit breaker, then the
// exfiltration shield. The first violation from any layer wins.
type Inspector struct {
	config              Config
	rceMatcher          *RcePatternMatcher
	velocityTracker     *VelocityTracker
	exfiltrationShield  *ExfiltrationShield
	logger              telemetry.Logger
}

// NewInspector builds an Inspector from cfg. A nil logger falls back to a
// no-op logger.
func NewInspector(cfg Config, logger telemetry.Logger) *Inspector {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Inspector{
		config:             cfg,
		rceMatcher:         NewRcePatternMatcher(cfg.Rce),
		velocityTracker:    NewVelocityTracker(cfg.Velocity),
		exfiltrationShield: NewExfiltrationShield(cfg.Exfiltration),
		logger:             logger,
	}
}

// IsShadowMode reports whether the inspector currently logs violations
// instead of blocking them.
func (ins *Inspector) IsShadowMode() bool { return ins.config.Mode == ModeShadow }

// Config returns the inspector's current configuration.
func (ins *Inspector) Config() Config { return ins.config }

// VelocityStats returns current spending/loop-detection tracker statistics,
// for monitoring.
func (ins *Inspector) VelocityStats() VelocityStats { return ins.velocityTracker.Stats() }

// Inspect runs ctx through every enabled layer in order and returns the
// combined result. In shadow mode, Allowed is always true even when a
// violation was found; in enforce mode a violation sets Allowed to false.
func (ins *Inspector) Inspect(ctx context.Context, ic InspectionContext) Result {
	shadow := ins.IsShadowMode()

	if ins.config.Rce.Enabled {
		if v := ins.rceMatcher.Check(ic.ToolName, ic.ToolInput); v != nil {
			ins.logger.Warn(ctx, "airlock: rce pattern detected",
				"tool", ic.ToolName, "trigger", v.Trigger, "risk_score", v.RiskScore, "shadow_mode", shadow)
			return violated(shadow, v)
		}
	}

	if ins.config.Velocity.Enabled {
		if v := ins.velocityTracker.Check(ic); v != nil {
			ins.logger.Warn(ctx, "airlock: velocity violation detected",
				"tool", ic.ToolName, "trigger", v.Trigger, "risk_score", v.RiskScore, "shadow_mode", shadow)
			return violated(shadow, v)
		}
	}

	if ins.config.Exfiltration.Enabled {
		if v := ins.exfiltrationShield.Check(ic.ToolName, ic.ToolInput); v != nil {
			ins.logger.Warn(ctx, "airlock: exfiltration attempt detected",
				"tool", ic.ToolName, "trigger", v.Trigger, "risk_score", v.RiskScore, "shadow_mode", shadow)
			return violated(shadow, v)
		}
	}

	return clean()
}

func violated(shadow bool, v *Violation) Result {
	return Result{
		Allowed:    shadow,
		Violation:  v,
		ShadowMode: shadow,
		RiskScore:  v.RiskScore,
		RiskLevel:  v.RiskLevel,
	}
}

// RecordCall records a completed tool call for future velocity checks.
// Callers invoke this after a tool call succeeds.
func (ins *Inspector) RecordCall(ic InspectionContext) {
	if ins.config.Velocity.Enabled {
		ins.velocityTracker.Record(ic)
	}
}

// ClearRun drops velocity-tracking state for a completed run, freeing
// memory.
func (ins *Inspector) ClearRun(runID string) {
	ins.velocityTracker.ClearRun(runID)
}
