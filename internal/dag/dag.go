// Package dag builds and queries the directed acyclic graph of steps that
// make up one workflow run: topological ordering, cycle detection, entry
// points, parallel execution layers, and ready-step computation. It is
// grounded on the retained fd-dag/src/lib.rs, translated from
// thiserror-based errors into the control plane's ferrerr taxonomy and from
// HashMap/HashSet into Go's built-in map/struct{} idioms.
package dag

import (
	"fmt"
	"sort"

	"github.com/sattyamjjain/ferrumdeck/internal/ferrerr"
)

// StepType is the kind of work a step performs.
type StepType int

const (
	StepLLM StepType = iota
	StepTool
	StepCondition
	StepLoop
	StepParallel
	StepApproval
)

func (t StepType) String() string {
	switch t {
	case StepLLM:
		return "llm"
	case StepTool:
		return "tool"
	case StepCondition:
		return "condition"
	case StepLoop:
		return "loop"
	case StepParallel:
		return "parallel"
	case StepApproval:
		return "approval"
	default:
		return "unknown"
	}
}

// ParseStepType parses the lowercase names String returns back into a
// StepType, for loaders that read a step's type from text (YAML, JSON, an
// HTTP request body).
func ParseStepType(s string) (StepType, error) {
	switch s {
	case "llm":
		return StepLLM, nil
	case "tool":
		return StepTool, nil
	case "condition":
		return StepCondition, nil
	case "loop":
		return StepLoop, nil
	case "parallel":
		return StepParallel, nil
	case "approval":
		return StepApproval, nil
	default:
		return 0, fmt.Errorf("dag: unknown step type %q", s)
	}
}

// DefaultTimeoutMs is applied to a StepDefinition that does not specify its
// own timeout.
const DefaultTimeoutMs uint64 = 30000

// RetryConfig controls how many times, and with what backoff, a step is
// retried after failure.
type RetryConfig struct {
	MaxAttempts       uint32
	DelayMs           uint64
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the conventional retry policy: 3 attempts, 1s
// initial delay, doubling backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, DelayMs: 1000, BackoffMultiplier: 2.0}
}

// StepDefinition describes one node in a workflow DAG.
type StepDefinition struct {
	ID         string
	Name       string
	Type       StepType
	Config     map[string]any
	DependsOn  []string
	Condition  *string
	TimeoutMs  uint64
	Retry      *RetryConfig
}

// StepStatus is a step's position in its execution lifecycle.
type StepStatus int

const (
	StatusPending StepStatus = iota
	StatusReady
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusSkipped
	StatusWaitingApproval
	StatusCancelled
)

func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusWaitingApproval:
		return "waiting_approval"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether a step in this status will never transition
// again.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether a step in this status satisfies its
// dependents (completed, or skipped and therefore vacuously satisfied).
func (s StepStatus) IsSuccessful() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// WorkflowDag is the built, validated dependency graph for one workflow.
// Construct it with Build; the zero value is not usable.
type WorkflowDag struct {
	steps             map[string]StepDefinition
	children          map[string][]string
	parents           map[string][]string
	entryPoints       []string
	topologicalOrder  []string
}

// Build validates each step's Config against the JSON Schema registered for
// its StepType (see schema.go), indexes steps, validates that every
// dependency resolves to a known step, and computes a topological order via
// Kahn's algorithm. It returns a ferrerr Validation error for a schema
// violation, a missing dependency, or a detected cycle, and an Internal
// error if construction yields no entry points despite a non-empty step set
// (a defect in this function, never in caller input).
func Build(steps []StepDefinition) (*WorkflowDag, error) {
	stepMap := make(map[string]StepDefinition, len(steps))
	children := make(map[string][]string, len(steps))
	parents := make(map[string][]string, len(steps))

	for _, step := range steps {
		if err := validateStepConfig(step); err != nil {
			return nil, err
		}
		children[step.ID] = nil
		parents[step.ID] = append([]string(nil), step.DependsOn...)
		stepMap[step.ID] = step
	}

	for stepID, step := range stepMap {
		for _, dep := range step.DependsOn {
			if _, ok := stepMap[dep]; !ok {
				return nil, ferrerr.NewValidation(
					fmt.Sprintf("step %q depends on %q which does not exist", stepID, dep)).
					WithField("depends_on")
			}
			children[dep] = append(children[dep], stepID)
		}
	}

	order, err := topologicalSort(stepMap, children)
	if err != nil {
		return nil, err
	}

	var entryPoints []string
	for id, s := range stepMap {
		if len(s.DependsOn) == 0 {
			entryPoints = append(entryPoints, id)
		}
	}
	sort.Strings(entryPoints)

	if len(entryPoints) == 0 && len(stepMap) != 0 {
		return nil, ferrerr.NewInternal("no entry points found in workflow DAG")
	}

	return &WorkflowDag{
		steps:            stepMap,
		children:         children,
		parents:          parents,
		entryPoints:      entryPoints,
		topologicalOrder: order,
	}, nil
}

// topologicalSort orders steps with Kahn's algorithm. A step count mismatch
// between the produced order and the input set means a cycle exists among
// the unordered steps.
func topologicalSort(steps map[string]StepDefinition, children map[string][]string) ([]string, error) {
	inDegree := make(map[string]int, len(steps))
	var queue []string

	for id, step := range steps {
		inDegree[id] = len(step.DependsOn)
		if len(step.DependsOn) == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(steps))
	for len(queue) > 0 {
		stepID := queue[0]
		queue = queue[1:]
		order = append(order, stepID)

		var freed []string
		for _, childID := range children[stepID] {
			inDegree[childID]--
			if inDegree[childID] == 0 {
				freed = append(freed, childID)
			}
		}
		sort.Strings(freed)
		queue = append(queue, freed...)
	}

	if len(order) != len(steps) {
		inOrder := make(map[string]struct{}, len(order))
		for _, id := range order {
			inOrder[id] = struct{}{}
		}
		var cycleSteps []string
		for id := range steps {
			if _, ok := inOrder[id]; !ok {
				cycleSteps = append(cycleSteps, id)
			}
		}
		sort.Strings(cycleSteps)
		return nil, ferrerr.NewValidation(
			fmt.Sprintf("cycle detected in workflow DAG: %v", cycleSteps)).WithField("depends_on")
	}

	return order, nil
}

// GetStep returns the definition for id, if any.
func (d *WorkflowDag) GetStep(id string) (StepDefinition, bool) {
	s, ok := d.steps[id]
	return s, ok
}

// StepIDs returns every step ID in the DAG, unordered.
func (d *WorkflowDag) StepIDs() []string {
	ids := make([]string, 0, len(d.steps))
	for id := range d.steps {
		ids = append(ids, id)
	}
	return ids
}

// EntryPoints returns the steps with no dependencies, sorted for
// determinism.
func (d *WorkflowDag) EntryPoints() []string { return d.entryPoints }

// TopologicalOrder returns the full dependency-respecting step order.
func (d *WorkflowDag) TopologicalOrder() []string { return d.topologicalOrder }

// Children returns the steps that directly depend on stepID.
func (d *WorkflowDag) Children(stepID string) []string { return d.children[stepID] }

// Parents returns the steps stepID directly depends on.
func (d *WorkflowDag) Parents(stepID string) []string { return d.parents[stepID] }

// ExecutionLayers groups steps into successive layers that could all run in
// parallel: layer N's steps depend only on steps in layers before it.
func (d *WorkflowDag) ExecutionLayers() [][]string {
	var layers [][]string
	completed := make(map[string]struct{}, len(d.steps))
	remaining := make(map[string]struct{}, len(d.steps))
	for id := range d.steps {
		remaining[id] = struct{}{}
	}

	for len(remaining) > 0 {
		var ready []string
		for id := range remaining {
			satisfied := true
			for _, dep := range d.parents[id] {
				if _, ok := completed[dep]; !ok {
					satisfied = false
					break
				}
			}
			if satisfied {
				ready = append(ready, id)
			}
		}

		if len(ready) == 0 {
			break
		}
		sort.Strings(ready)

		for _, id := range ready {
			delete(remaining, id)
			completed[id] = struct{}{}
		}
		layers = append(layers, ready)
	}

	return layers
}

// Len returns the number of steps in the DAG.
func (d *WorkflowDag) Len() int { return len(d.steps) }

// IsEmpty reports whether the DAG has no steps.
func (d *WorkflowDag) IsEmpty() bool { return len(d.steps) == 0 }

// ComputeReadySteps returns every step, not already in completedSteps, all
// of whose dependencies are in completedSteps.
func ComputeReadySteps(d *WorkflowDag, completedSteps map[string]struct{}) []string {
	var ready []string
	for stepID, step := range d.steps {
		if _, done := completedSteps[stepID]; done {
			continue
		}
		allSatisfied := true
		for _, dep := range step.DependsOn {
			if _, ok := completedSteps[dep]; !ok {
				allSatisfied = false
				break
			}
		}
		if allSatisfied {
			ready = append(ready, stepID)
		}
	}
	sort.Strings(ready)
	return ready
}
