// Package contracts declares the external collaborators the run execution
// plane depends on: persistence, audit logging, caller identity, and rate
// limiting. The only implementation in this package is InMemoryRateLimiter
// (ratelimiter.go), an in-memory RateLimiter. Concrete adapters (a Postgres
// repository, a Kafka-backed audit sink, a JWKS-validating identity
// resolver) live outside this module; this package exists so the core
// packages (orchestrator, policy, airlock) can depend on behavior without
// depending on any particular backing store.
package contracts

import (
	"context"
	"time"

	"github.com/sattyamjjain/ferrumdeck/internal/dag"
	"github.com/sattyamjjain/ferrumdeck/internal/id"
)

// RunStatus is a run's position in its lifecycle. Terminal statuses are the
// last six; a run leaves Running exactly once, to one of them.
type RunStatus int

const (
	RunCreated RunStatus = iota
	RunQueued
	RunRunning
	RunWaitingApproval
	RunCompleted
	RunFailed
	RunCancelled
	RunTimeout
	RunBudgetKilled
	RunPolicyBlocked
)

// IsTerminal reports whether a run in this status will never transition
// again.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunTimeout, RunBudgetKilled, RunPolicyBlocked:
		return true
	default:
		return false
	}
}

// WorkflowDefinition is the persisted, versioned source a run is built
// from: a set of step definitions plus the scheduling policy applied to
// them.
type WorkflowDefinition struct {
	ID            string
	TenantID      id.TenantID
	ProjectID     id.ProjectID
	Steps         []dag.StepDefinition
	OnError       string
	MaxIterations uint32
}

// Run is one execution of a WorkflowDefinition.
type Run struct {
	ID           id.RunID
	WorkflowID   string
	ProjectID    id.ProjectID
	TenantID     id.TenantID
	Status       RunStatus
	Input        map[string]any
	Output       map[string]any
	Error        map[string]any
	StepResults  map[string]map[string]any
	CurrentStep  *string
	InputTokens  uint64
	OutputTokens uint64
	ToolCalls    uint32
	CostCents    uint64
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// StepExecutionStatus mirrors dag.StepStatus for the persisted row; kept as
// a distinct type because the execution row additionally distinguishes
// Retrying, which the in-memory scheduler folds into Running.
type StepExecutionStatus int

const (
	ExecPending StepExecutionStatus = iota
	ExecRunning
	ExecWaitingApproval
	ExecCompleted
	ExecFailed
	ExecSkipped
	ExecCancelled
	ExecRetrying
)

// StepExecution is one attempt at running a workflow step within a run.
type StepExecution struct {
	ID           string
	RunID        id.RunID
	StepID       string
	StepType     dag.StepType
	Status       StepExecutionStatus
	Input        map[string]any
	Output       map[string]any
	Error        map[string]any
	Attempt      uint32
	SpanID       *string
	InputTokens  *int32
	OutputTokens *int32
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// RunUpdate carries the fields to change on a Run; nil fields are left
// untouched.
type RunUpdate struct {
	Status      *RunStatus
	Output      map[string]any
	Error       map[string]any
	CurrentStep *string
	CompletedAt *time.Time
}

// StepExecutionUpdate carries the fields to change on a StepExecution.
type StepExecutionUpdate struct {
	Status       *StepExecutionStatus
	Output       map[string]any
	Error        map[string]any
	InputTokens  *int32
	OutputTokens *int32
	CompletedAt  *time.Time
}

// WorkflowRepository resolves workflow definitions by id.
type WorkflowRepository interface {
	Get(ctx context.Context, workflowID string) (*WorkflowDefinition, error)
}

// RunRepository persists run lifecycle state.
type RunRepository interface {
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, runID id.RunID, update RunUpdate) error
	UpdateRunStepResults(ctx context.Context, runID id.RunID, stepID string, output map[string]any) error
	IncrementRunUsage(ctx context.Context, runID id.RunID, inputTokens, outputTokens int32, toolCalls int32, costCents int64) error
}

// StepExecutionRepository persists per-attempt step execution rows.
type StepExecutionRepository interface {
	CreateStepExecution(ctx context.Context, exec StepExecution) error
	UpdateStepExecution(ctx context.Context, executionID string, update StepExecutionUpdate) error
	ListStepExecutionsByRun(ctx context.Context, runID id.RunID) ([]StepExecution, error)
}

// Repository bundles the persistence contracts the orchestrator depends
// on. Implementations are expected to share one underlying connection pool
// and be cheap to clone.
type Repository interface {
	Workflows() WorkflowRepository
	Runs() RunRepository
	StepExecutions() StepExecutionRepository
}

// ActorKind identifies who performed an audited action.
type ActorKind int

const (
	ActorSystem ActorKind = iota
	ActorUser
	ActorAPIKey
	ActorAgent
)

// Outcome is the result recorded against an audit event.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomePending
)

// AuditEvent is an immutable record of one tenant-scoped action.
type AuditEvent struct {
	ID           id.AuditEventID
	TenantID     id.TenantID
	Kind         string
	Actor        ActorKind
	ActorID      string
	ResourceType string
	ResourceID   string
	Action       string
	Outcome      Outcome
	Metadata     map[string]any
	CreatedAt    time.Time
}

// AuditSink records audit events. Implementations must not drop events
// silently; a failure to persist one is itself worth surfacing to the
// caller.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// Principal is the resolved identity of an authenticated caller.
type Principal struct {
	TenantID  id.TenantID
	SubjectID string
	Scopes    []string
}

// Identity resolves a bearer credential (JWT or API key) to a Principal.
type Identity interface {
	Resolve(ctx context.Context, credential string) (*Principal, error)
}

// RateLimiter gates a caller-scoped action against a token-bucket style
// budget. Allow returns false when the action should be rejected; it never
// blocks.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}
