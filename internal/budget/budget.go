// Package budget implements per-run resource limits and the usage counters
// checked against them. A Budget's zero pointer on any dimension means that
// dimension is unlimited.
package budget

import "fmt"

// Budget holds optional per-dimension limits for a run. A nil pointer means
// unlimited on that axis.
type Budget struct {
	MaxInputTokens  *uint64
	MaxOutputTokens *uint64
	MaxTotalTokens  *uint64
	MaxToolCalls    *uint32
	MaxWallTimeMs   *uint64
	MaxCostCents    *uint64
}

// DefaultBudget mirrors the control plane's default limits: 100k input
// tokens, 50k output tokens, 150k total tokens, 50 tool calls, 5 minutes of
// wall time, and $5.00.
func DefaultBudget() Budget {
	return Budget{
		MaxInputTokens:  u64p(100_000),
		MaxOutputTokens: u64p(50_000),
		MaxTotalTokens:  u64p(150_000),
		MaxToolCalls:    u32p(50),
		MaxWallTimeMs:   u64p(5 * 60 * 1000),
		MaxCostCents:    u64p(500),
	}
}

func u64p(v uint64) *uint64 { return &v }
func u32p(v uint32) *uint32 { return &v }

// Usage mirrors the counters tracked against a Budget.
type Usage struct {
	InputTokens  uint64
	OutputTokens uint64
	ToolCalls    uint32
	WallTimeMs   uint64
	CostCents    uint64
}

// TotalTokens is InputTokens + OutputTokens.
func (u Usage) TotalTokens() uint64 { return u.InputTokens + u.OutputTokens }

// Dimension identifies which budget axis was exceeded.
type Dimension int

const (
	DimInputTokens Dimension = iota
	DimOutputTokens
	DimTotalTokens
	DimToolCalls
	DimWallTime
	DimCost
)

// Exceeded reports the first budget dimension (in declaration order) whose
// usage strictly exceeds its limit.
type Exceeded struct {
	Dimension Dimension
	Used      uint64
	Limit     uint64
}

func (e Exceeded) String() string {
	switch e.Dimension {
	case DimInputTokens:
		return fmt.Sprintf("input tokens exceeded: %d/%d", e.Used, e.Limit)
	case DimOutputTokens:
		return fmt.Sprintf("output tokens exceeded: %d/%d", e.Used, e.Limit)
	case DimTotalTokens:
		return fmt.Sprintf("total tokens exceeded: %d/%d", e.Used, e.Limit)
	case DimToolCalls:
		return fmt.Sprintf("tool calls exceeded: %d/%d", e.Used, e.Limit)
	case DimWallTime:
		return fmt.Sprintf("wall time exceeded: %dms/%dms", e.Used, e.Limit)
	case DimCost:
		return fmt.Sprintf("cost exceeded: $%.2f/$%.2f", float64(e.Used)/100.0, float64(e.Limit)/100.0)
	default:
		return "budget exceeded"
	}
}

// CheckAgainst evaluates usage against budget dimension by dimension, in
// declaration order (input tokens, output tokens, total tokens, tool calls,
// wall time, cost), and returns the first exceeded dimension, or nil if
// usage is within every configured limit. "Exceeded" means strictly greater
// than the limit.
func (u Usage) CheckAgainst(b Budget) *Exceeded {
	if b.MaxInputTokens != nil && u.InputTokens > *b.MaxInputTokens {
		return &Exceeded{DimInputTokens, u.InputTokens, *b.MaxInputTokens}
	}
	if b.MaxOutputTokens != nil && u.OutputTokens > *b.MaxOutputTokens {
		return &Exceeded{DimOutputTokens, u.OutputTokens, *b.MaxOutputTokens}
	}
	if b.MaxTotalTokens != nil && u.TotalTokens() > *b.MaxTotalTokens {
		return &Exceeded{DimTotalTokens, u.TotalTokens(), *b.MaxTotalTokens}
	}
	if b.MaxToolCalls != nil && u.ToolCalls > *b.MaxToolCalls {
		return &Exceeded{DimToolCalls, uint64(u.ToolCalls), uint64(*b.MaxToolCalls)}
	}
	if b.MaxWallTimeMs != nil && u.WallTimeMs > *b.MaxWallTimeMs {
		return &Exceeded{DimWallTime, u.WallTimeMs, *b.MaxWallTimeMs}
	}
	if b.MaxCostCents != nil && u.CostCents > *b.MaxCostCents {
		return &Exceeded{DimCost, u.CostCents, *b.MaxCostCents}
	}
	return nil
}
