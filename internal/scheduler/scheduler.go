// Package scheduler drives one workflow run's DAG through its lifecycle:
// marking steps running, completed, failed, skipped, or waiting on
// approval, and computing the next ready set after each transition. It is
// grounded on the retained fd-dag/src/scheduler.rs.
package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sattyamjjain/ferrumdeck/internal/dag"
	"github.com/sattyamjjain/ferrumdeck/internal/ferrerr"
)

// OnErrorPolicy controls what happens to the rest of the workflow when a
// step fails.
type OnErrorPolicy string

const (
	// OnErrorFail cancels every still-pending step and fails the run.
	OnErrorFail OnErrorPolicy = "fail"
	// OnErrorContinue skips only the failed step's dependents and lets
	// independent branches keep running.
	OnErrorContinue OnErrorPolicy = "continue"
)

// CompletionResult reports what a state transition unlocked.
type CompletionResult struct {
	ReadySteps       []string
	WorkflowComplete bool
	WorkflowFailed   bool
	Error            string
}

// Scheduler drives one DAG's steps through Pending -> ... -> a terminal
// status, recomputing the ready set after every transition.
type Scheduler struct {
	d             *dag.WorkflowDag
	stepStatus    map[string]dag.StepStatus
	stepOutputs   map[string]map[string]any
	onError       OnErrorPolicy
}

// New wraps an already-built DAG with fresh per-step state, all Pending.
func New(d *dag.WorkflowDag, onError OnErrorPolicy) *Scheduler {
	status := make(map[string]dag.StepStatus, len(d.StepIDs()))
	for _, id := range d.StepIDs() {
		status[id] = dag.StatusPending
	}
	return &Scheduler{d: d, stepStatus: status, stepOutputs: make(map[string]map[string]any), onError: onError}
}

// FromSteps builds the DAG from steps and wraps it in a new Scheduler.
func FromSteps(steps []dag.StepDefinition, onError OnErrorPolicy) (*Scheduler, error) {
	d, err := dag.Build(steps)
	if err != nil {
		return nil, err
	}
	return New(d, onError), nil
}

// Dag returns the underlying workflow DAG.
func (s *Scheduler) Dag() *dag.WorkflowDag { return s.d }

// StepStatus returns a step's current status.
func (s *Scheduler) StepStatus(stepID string) (dag.StepStatus, bool) {
	st, ok := s.stepStatus[stepID]
	return st, ok
}

// AllStepStatus returns every step's current status.
func (s *Scheduler) AllStepStatus() map[string]dag.StepStatus { return s.stepStatus }

// StepOutput returns a completed step's recorded output.
func (s *Scheduler) StepOutput(stepID string) (map[string]any, bool) {
	out, ok := s.stepOutputs[stepID]
	return out, ok
}

// GetReadySteps returns every Pending step whose dependencies are all
// satisfied (Completed or Skipped).
func (s *Scheduler) GetReadySteps() []string {
	completed := make(map[string]struct{})
	for id, status := range s.stepStatus {
		if status.IsSuccessful() {
			completed[id] = struct{}{}
		}
	}

	var ready []string
	for id, status := range s.stepStatus {
		if status != dag.StatusPending {
			continue
		}
		step, ok := s.d.GetStep(id)
		if !ok {
			continue
		}
		satisfied := true
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

// GetInitialSteps returns the DAG's entry points, the steps executed first.
func (s *Scheduler) GetInitialSteps() []string { return s.d.EntryPoints() }

// SetStepState force-sets stepID's status and, if non-nil, recorded output,
// bypassing the normal transition checks. It exists only to rebuild a
// Scheduler's in-memory state from persisted step executions after a
// restart; callers driving live execution should use the transition
// methods below instead.
func (s *Scheduler) SetStepState(stepID string, status dag.StepStatus, output map[string]any) error {
	if err := s.requireKnown(stepID); err != nil {
		return err
	}
	s.stepStatus[stepID] = status
	if output != nil {
		s.stepOutputs[stepID] = output
	}
	return nil
}

func (s *Scheduler) requireKnown(stepID string) error {
	if _, ok := s.stepStatus[stepID]; !ok {
		return ferrerr.NewNotFound("step", stepID)
	}
	return nil
}

// MarkRunning transitions stepID to Running.
func (s *Scheduler) MarkRunning(stepID string) error {
	if err := s.requireKnown(stepID); err != nil {
		return err
	}
	s.stepStatus[stepID] = dag.StatusRunning
	return nil
}

// CompleteStep records output, transitions stepID to Completed, and
// recomputes the ready set and overall completion.
func (s *Scheduler) CompleteStep(stepID string, output map[string]any) (CompletionResult, error) {
	if err := s.requireKnown(stepID); err != nil {
		return CompletionResult{}, err
	}
	s.stepStatus[stepID] = dag.StatusCompleted
	s.stepOutputs[stepID] = output

	ready := s.GetReadySteps()
	return CompletionResult{
		ReadySteps:       ready,
		WorkflowComplete: s.allTerminal() && len(ready) == 0,
	}, nil
}

// FailStep transitions stepID to Failed and applies the on-error policy:
// OnErrorFail cancels every remaining Pending/Ready step and fails the run;
// OnErrorContinue skips stepID's dependents and lets independent branches
// proceed.
func (s *Scheduler) FailStep(stepID, errMsg string) (CompletionResult, error) {
	if err := s.requireKnown(stepID); err != nil {
		return CompletionResult{}, err
	}
	s.stepStatus[stepID] = dag.StatusFailed

	if s.onError == OnErrorFail {
		for id, status := range s.stepStatus {
			if status == dag.StatusPending || status == dag.StatusReady {
				s.stepStatus[id] = dag.StatusCancelled
			}
		}
		return CompletionResult{
			WorkflowFailed: true,
			Error:          fmt.Sprintf("step %q failed: %s", stepID, errMsg),
		}, nil
	}

	s.skipDependents(stepID)
	ready := s.GetReadySteps()
	return CompletionResult{
		ReadySteps:       ready,
		WorkflowComplete: s.allTerminal() && len(ready) == 0,
	}, nil
}

// SkipStep transitions stepID to Skipped, e.g. when its guarding condition
// evaluates false, and recomputes the ready set.
func (s *Scheduler) SkipStep(stepID string) (CompletionResult, error) {
	if err := s.requireKnown(stepID); err != nil {
		return CompletionResult{}, err
	}
	s.stepStatus[stepID] = dag.StatusSkipped

	ready := s.GetReadySteps()
	return CompletionResult{
		ReadySteps:       ready,
		WorkflowComplete: s.allTerminal() && len(ready) == 0,
	}, nil
}

// MarkWaitingApproval transitions stepID to WaitingApproval.
func (s *Scheduler) MarkWaitingApproval(stepID string) error {
	if err := s.requireKnown(stepID); err != nil {
		return err
	}
	s.stepStatus[stepID] = dag.StatusWaitingApproval
	return nil
}

// ResumeAfterApproval transitions stepID from WaitingApproval back to
// Running.
func (s *Scheduler) ResumeAfterApproval(stepID string) error {
	if err := s.requireKnown(stepID); err != nil {
		return err
	}
	s.stepStatus[stepID] = dag.StatusRunning
	return nil
}

// skipDependents walks stepID's children transitively and marks any still
// Pending ones Skipped.
func (s *Scheduler) skipDependents(failedStepID string) {
	visited := make(map[string]struct{})
	queue := []string{failedStepID}
	var toSkip []string

	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}

		for _, childID := range s.d.Children(id) {
			if _, ok := visited[childID]; !ok {
				queue = append(queue, childID)
				toSkip = append(toSkip, childID)
			}
		}
	}

	for _, id := range toSkip {
		if s.stepStatus[id] == dag.StatusPending {
			s.stepStatus[id] = dag.StatusSkipped
		}
	}
}

func (s *Scheduler) allTerminal() bool {
	for _, status := range s.stepStatus {
		if !status.IsTerminal() {
			return false
		}
	}
	return true
}

// IsComplete reports whether every step has reached a terminal status.
func (s *Scheduler) IsComplete() bool { return s.allTerminal() }

// HasFailed reports whether any step is in the Failed status.
func (s *Scheduler) HasFailed() bool {
	for _, status := range s.stepStatus {
		if status == dag.StatusFailed {
			return true
		}
	}
	return false
}

// StatusSummary counts steps per status, for dashboards.
func (s *Scheduler) StatusSummary() map[dag.StepStatus]int {
	summary := make(map[dag.StepStatus]int)
	for _, status := range s.stepStatus {
		summary[status]++
	}
	return summary
}

// ExecutionLayers delegates to the underlying DAG, for visualization.
func (s *Scheduler) ExecutionLayers() [][]string { return s.d.ExecutionLayers() }

// EvaluateCondition evaluates a condition expression of the form
// "$.step_id.field == value" against recorded step outputs. An empty
// condition always evaluates true. Only == and != are evaluated
// numerically/structurally; >= and <= always evaluate true, matching the
// upstream scheduler's documented limitation (no numeric comparison was
// ever implemented for them).
func (s *Scheduler) EvaluateCondition(condition string) bool {
	if condition == "" {
		return true
	}

	for _, op := range []string{"==", "!=", ">=", "<="} {
		idx := strings.Index(condition, op)
		if idx < 0 {
			continue
		}
		left := strings.TrimSpace(condition[:idx])
		right := strings.TrimSpace(condition[idx+len(op):])

		if op == ">=" || op == "<=" {
			return true
		}

		leftVal, leftOK := s.resolvePath(left)
		rightVal, rightOK := parseLiteral(right)
		equal := leftOK && rightOK && valuesEqual(leftVal, rightVal)

		if op == "==" {
			return equal
		}
		return !equal
	}

	return true
}

// resolvePath resolves a "$.step_id.field.field2" expression against
// recorded step outputs, or treats a bare token as a literal string.
func (s *Scheduler) resolvePath(path string) (any, bool) {
	if !strings.HasPrefix(path, "$.") {
		return path, true
	}

	parts := strings.Split(path[2:], ".")
	if len(parts) == 0 {
		return nil, false
	}

	output, ok := s.stepOutputs[parts[0]]
	if !ok {
		return nil, false
	}

	var current any = output
	for _, part := range parts[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// parseLiteral parses a condition's right-hand side as bool, null, number,
// quoted string, or bare string, in that precedence.
func parseLiteral(s string) (any, bool) {
	switch s {
	case "true":
		return true, true
	case "false":
		return false, true
	case "null":
		return nil, true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1], true
	}
	return s, true
}

// valuesEqual compares a and b for condition evaluation. A path resolved
// against step outputs decoded from JSON always surfaces numbers as
// float64, while parseLiteral prefers int64 for a right-hand side with no
// decimal point; both are coerced to float64 before comparison so "2" on
// either side of the operator compares equal regardless of which side it
// came from.
func valuesEqual(a, b any) bool {
	if af, aok := toFloat64(a); aok {
		if bf, bok := toFloat64(b); bok {
			return af == bf
		}
	}
	return a == b
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
