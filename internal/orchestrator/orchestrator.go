// Package orchestrator drives one workflow run's lifecycle end to end:
// building the DAG and scheduler, enqueueing the initial steps, applying
// outcome callbacks from workers, and restoring the in-memory scheduler
// from persisted step executions after a restart. It is grounded on the
// retained gateway/src/handlers/orchestrator.rs, translated from
// tokio::sync::RwLock-guarded state into sync.RWMutex and from an
// ApiError-typed Result into ferrerr.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sattyamjjain/ferrumdeck/internal/airlock"
	"github.com/sattyamjjain/ferrumdeck/internal/contracts"
	"github.com/sattyamjjain/ferrumdeck/internal/dag"
	"github.com/sattyamjjain/ferrumdeck/internal/ferrerr"
	"github.com/sattyamjjain/ferrumdeck/internal/id"
	"github.com/sattyamjjain/ferrumdeck/internal/queue"
	"github.com/sattyamjjain/ferrumdeck/internal/scheduler"
	"github.com/sattyamjjain/ferrumdeck/internal/telemetry"
)

func nowFunc() time.Time { return time.Now() }

// QueueEnqueuer adapts a *queue.Client to the Enqueuer interface, always
// targeting the well-known steps queue.
type QueueEnqueuer struct {
	Client *queue.Client
}

// EnqueueStep appends message to the steps stream.
func (e QueueEnqueuer) EnqueueStep(ctx context.Context, message queue.Message[queue.StepJob]) (string, error) {
	return queue.Enqueue(ctx, e.Client, queue.Steps, message)
}

// Enqueuer dispatches a step job onto the queue transport. QueueEnqueuer
// satisfies it over a *queue.Client; it is kept as an interface here so
// orchestrator tests can substitute an in-memory fake.
type Enqueuer interface {
	EnqueueStep(ctx context.Context, message queue.Message[queue.StepJob]) (string, error)
}

// Orchestrator manages the DAG execution lifecycle for every run: it is
// the component a gateway HTTP handler or a worker callback calls into
// after a workflow is submitted or a step outcome is reported.
type Orchestrator struct {
	repo     contracts.Repository
	enqueuer Enqueuer
	velocity *airlock.VelocityTracker
	logger   telemetry.Logger

	mu         sync.RWMutex
	schedulers map[string]*scheduler.Scheduler
}

// New builds an Orchestrator over repo and enqueuer. velocity, if non-nil,
// is cleared for a run on every terminal transition; logger, if nil,
// discards all messages.
func New(repo contracts.Repository, enqueuer Enqueuer, velocity *airlock.VelocityTracker, logger telemetry.Logger) *Orchestrator {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Orchestrator{
		repo:       repo,
		enqueuer:   enqueuer,
		velocity:   velocity,
		logger:     logger,
		schedulers: make(map[string]*scheduler.Scheduler),
	}
}

// StartWorkflow loads workflowID's definition, builds its DAG and
// scheduler, creates step-execution rows and enqueues jobs for every entry
// step, and transitions the run to Running. It returns the ids of the
// steps enqueued.
func (o *Orchestrator) StartWorkflow(ctx context.Context, runID id.RunID, workflowID string, projectID id.ProjectID, tenantID id.TenantID, input map[string]any) ([]string, error) {
	workflow, err := o.repo.Workflows().Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, ferrerr.NewNotFound("Workflow", workflowID)
	}

	sch, err := scheduler.FromSteps(workflow.Steps, onErrorPolicy(workflow.OnError))
	if err != nil {
		return nil, ferrerr.NewValidation(fmt.Sprintf("invalid workflow DAG: %s", err))
	}

	initialSteps := sch.GetInitialSteps()
	if len(initialSteps) == 0 {
		return nil, ferrerr.NewValidation("workflow has no entry points (all steps have dependencies)")
	}

	o.mu.Lock()
	o.schedulers[runID.String()] = sch
	o.mu.Unlock()

	for _, stepID := range initialSteps {
		step, ok := sch.Dag().GetStep(stepID)
		if !ok {
			continue
		}
		if err := o.scheduleStep(ctx, runID, sch, step, projectID, tenantID); err != nil {
			return nil, err
		}
	}

	running := contracts.RunRunning
	if err := o.repo.Runs().UpdateRun(ctx, runID, contracts.RunUpdate{Status: &running}); err != nil {
		return nil, err
	}

	o.logger.Info(ctx, "orchestrator: started workflow",
		"run_id", runID.String(), "workflow_id", workflowID, "initial_steps", len(initialSteps))

	return initialSteps, nil
}

// CompleteStep applies a successful step outcome: advances the scheduler,
// updates the execution row and the run's aggregates, and either finalizes
// the run or enqueues the newly-ready steps.
func (o *Orchestrator) CompleteStep(ctx context.Context, runID id.RunID, stepID, executionID string, output map[string]any, inputTokens, outputTokens *int32) (scheduler.CompletionResult, error) {
	sch, err := o.getOrRestoreScheduler(ctx, runID)
	if err != nil {
		return scheduler.CompletionResult{}, err
	}

	o.mu.Lock()
	result, err := sch.CompleteStep(stepID, output)
	o.mu.Unlock()
	if err != nil {
		return scheduler.CompletionResult{}, ferrerr.NewInternal(fmt.Sprintf("dag error: %s", err))
	}

	completed := contracts.ExecCompleted
	now := nowFunc()
	if err := o.repo.StepExecutions().UpdateStepExecution(ctx, executionID, contracts.StepExecutionUpdate{
		Status: &completed, Output: output, InputTokens: inputTokens, OutputTokens: outputTokens, CompletedAt: &now,
	}); err != nil {
		return scheduler.CompletionResult{}, err
	}

	if err := o.repo.Runs().UpdateRunStepResults(ctx, runID, stepID, output); err != nil {
		return scheduler.CompletionResult{}, err
	}

	if inputTokens != nil && outputTokens != nil {
		if err := o.repo.Runs().IncrementRunUsage(ctx, runID, *inputTokens, *outputTokens, 0, 0); err != nil {
			return scheduler.CompletionResult{}, err
		}
	}

	switch {
	case result.WorkflowComplete:
		if err := o.completeWorkflow(ctx, runID, output); err != nil {
			return scheduler.CompletionResult{}, err
		}
	case result.WorkflowFailed:
		errMsg := result.Error
		if errMsg == "" {
			errMsg = "unknown error"
		}
		if err := o.failWorkflow(ctx, runID, errMsg); err != nil {
			return scheduler.CompletionResult{}, err
		}
	default:
		if err := o.enqueueReadySteps(ctx, runID, sch, result.ReadySteps); err != nil {
			return scheduler.CompletionResult{}, err
		}
	}

	o.logger.Info(ctx, "orchestrator: step completed",
		"run_id", runID.String(), "step_id", stepID, "ready_steps", result.ReadySteps, "workflow_complete", result.WorkflowComplete)

	return result, nil
}

// FailStep applies a failed step outcome and follows the workflow's
// on-error policy: OnErrorFail fails the run; OnErrorContinue skips the
// step's dependents and enqueues any branch that is still ready.
func (o *Orchestrator) FailStep(ctx context.Context, runID id.RunID, stepID, executionID, errMsg string) (scheduler.CompletionResult, error) {
	sch, err := o.getOrRestoreScheduler(ctx, runID)
	if err != nil {
		return scheduler.CompletionResult{}, err
	}

	o.mu.Lock()
	result, err := sch.FailStep(stepID, errMsg)
	o.mu.Unlock()
	if err != nil {
		return scheduler.CompletionResult{}, ferrerr.NewInternal(fmt.Sprintf("dag error: %s", err))
	}

	failed := contracts.ExecFailed
	now := nowFunc()
	if err := o.repo.StepExecutions().UpdateStepExecution(ctx, executionID, contracts.StepExecutionUpdate{
		Status: &failed, Error: map[string]any{"message": errMsg}, CompletedAt: &now,
	}); err != nil {
		return scheduler.CompletionResult{}, err
	}

	switch {
	case result.WorkflowFailed:
		if err := o.failWorkflow(ctx, runID, errMsg); err != nil {
			return scheduler.CompletionResult{}, err
		}
	case result.WorkflowComplete:
		if err := o.completeWorkflow(ctx, runID, nil); err != nil {
			return scheduler.CompletionResult{}, err
		}
	default:
		if err := o.enqueueReadySteps(ctx, runID, sch, result.ReadySteps); err != nil {
			return scheduler.CompletionResult{}, err
		}
	}

	o.logger.Warn(ctx, "orchestrator: step failed",
		"run_id", runID.String(), "step_id", stepID, "error", errMsg, "workflow_failed", result.WorkflowFailed)

	return result, nil
}

// SkipStep marks a step Skipped, e.g. because its guarding condition
// evaluated false, and proceeds like a successful completion with no
// output.
func (o *Orchestrator) SkipStep(ctx context.Context, runID id.RunID, stepID, executionID, reason string) (scheduler.CompletionResult, error) {
	sch, err := o.getOrRestoreScheduler(ctx, runID)
	if err != nil {
		return scheduler.CompletionResult{}, err
	}

	o.mu.Lock()
	result, err := sch.SkipStep(stepID)
	o.mu.Unlock()
	if err != nil {
		return scheduler.CompletionResult{}, ferrerr.NewInternal(fmt.Sprintf("dag error: %s", err))
	}

	skipped := contracts.ExecSkipped
	now := nowFunc()
	output := map[string]any{"skipped": true, "reason": reason}
	if err := o.repo.StepExecutions().UpdateStepExecution(ctx, executionID, contracts.StepExecutionUpdate{
		Status: &skipped, Output: output, CompletedAt: &now,
	}); err != nil {
		return scheduler.CompletionResult{}, err
	}

	if result.WorkflowComplete {
		if err := o.completeWorkflow(ctx, runID, nil); err != nil {
			return scheduler.CompletionResult{}, err
		}
	} else {
		if err := o.enqueueReadySteps(ctx, runID, sch, result.ReadySteps); err != nil {
			return scheduler.CompletionResult{}, err
		}
	}

	o.logger.Debug(ctx, "orchestrator: step skipped", "run_id", runID.String(), "step_id", stepID, "reason", reason)
	return result, nil
}

// MarkWaitingApproval transitions a step and its run to WaitingApproval.
func (o *Orchestrator) MarkWaitingApproval(ctx context.Context, runID id.RunID, stepID, executionID string) error {
	sch, err := o.getOrRestoreScheduler(ctx, runID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	err = sch.MarkWaitingApproval(stepID)
	o.mu.Unlock()
	if err != nil {
		return ferrerr.NewInternal(fmt.Sprintf("dag error: %s", err))
	}

	waiting := contracts.ExecWaitingApproval
	if err := o.repo.StepExecutions().UpdateStepExecution(ctx, executionID, contracts.StepExecutionUpdate{Status: &waiting}); err != nil {
		return err
	}

	runWaiting := contracts.RunWaitingApproval
	step := stepID
	if err := o.repo.Runs().UpdateRun(ctx, runID, contracts.RunUpdate{Status: &runWaiting, CurrentStep: &step}); err != nil {
		return err
	}

	o.logger.Info(ctx, "orchestrator: step waiting for approval", "run_id", runID.String(), "step_id", stepID)
	return nil
}

// GetExecutionLayers returns the run's DAG decomposed into parallel
// execution layers, restoring the scheduler first if necessary.
func (o *Orchestrator) GetExecutionLayers(ctx context.Context, runID id.RunID) ([][]string, error) {
	sch, err := o.getOrRestoreScheduler(ctx, runID)
	if err != nil {
		return nil, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return sch.ExecutionLayers(), nil
}

// Cleanup discards the in-memory scheduler and velocity bookkeeping for a
// terminal run.
func (o *Orchestrator) Cleanup(ctx context.Context, runID id.RunID) {
	o.mu.Lock()
	delete(o.schedulers, runID.String())
	o.mu.Unlock()
	if o.velocity != nil {
		o.velocity.ClearRun(runID.String())
	}
	o.logger.Debug(ctx, "orchestrator: cleaned up scheduler", "run_id", runID.String())
}

// getOrRestoreScheduler returns the cached scheduler for runID, or
// reconstructs it from the persisted run and its step executions if the
// orchestrator process restarted since the run began.
func (o *Orchestrator) getOrRestoreScheduler(ctx context.Context, runID id.RunID) (*scheduler.Scheduler, error) {
	o.mu.RLock()
	sch, ok := o.schedulers[runID.String()]
	o.mu.RUnlock()
	if ok {
		return sch, nil
	}

	run, err := o.repo.Runs().GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ferrerr.NewNotFound("WorkflowRun", runID.String())
	}
	if run.Status.IsTerminal() {
		return nil, ferrerr.NewValidation(fmt.Sprintf("workflow run is already terminal: %d", run.Status))
	}

	workflow, err := o.repo.Workflows().Get(ctx, run.WorkflowID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, ferrerr.NewInternal("workflow not found for run")
	}

	d, err := dag.Build(workflow.Steps)
	if err != nil {
		return nil, ferrerr.NewValidation(fmt.Sprintf("invalid workflow DAG: %s", err))
	}

	executions, err := o.repo.StepExecutions().ListStepExecutionsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	restored := scheduler.New(d, onErrorPolicy(workflow.OnError))
	for _, exec := range executions {
		status := execStatusToDagStatus(exec.Status)
		if err := restored.SetStepState(exec.StepID, status, exec.Output); err != nil {
			return nil, ferrerr.NewInternal(fmt.Sprintf("restoring step %q: %s", exec.StepID, err))
		}
	}

	o.mu.Lock()
	o.schedulers[runID.String()] = restored
	o.mu.Unlock()

	o.logger.Info(ctx, "orchestrator: restored scheduler from database", "run_id", runID.String())
	return restored, nil
}

// scheduleStep is the single path by which a step is either enqueued for
// execution or skipped without ever running: before scheduling a step whose
// definition carries a non-empty condition, it evaluates that condition
// against the run's recorded step outputs and routes to skipUnmetCondition
// instead of createAndEnqueueStep when it evaluates false.
func (o *Orchestrator) scheduleStep(ctx context.Context, runID id.RunID, sch *scheduler.Scheduler, step dag.StepDefinition, projectID id.ProjectID, tenantID id.TenantID) error {
	if step.Condition != nil && *step.Condition != "" {
		o.mu.RLock()
		met := sch.EvaluateCondition(*step.Condition)
		o.mu.RUnlock()
		if !met {
			return o.skipUnmetCondition(ctx, runID, sch, step)
		}
	}
	_, err := o.createAndEnqueueStep(ctx, runID, step, projectID, tenantID)
	return err
}

// skipUnmetCondition records stepID as Skipped without ever enqueueing it,
// advances the scheduler past it, and continues scheduling whatever that
// unlocks, mirroring the outcome of a worker-reported SkipStep call.
func (o *Orchestrator) skipUnmetCondition(ctx context.Context, runID id.RunID, sch *scheduler.Scheduler, step dag.StepDefinition) error {
	executionID := "wfse_" + id.NewRunID().String()
	now := nowFunc()
	output := map[string]any{"skipped": true, "reason": "condition not met"}
	if err := o.repo.StepExecutions().CreateStepExecution(ctx, contracts.StepExecution{
		ID: executionID, RunID: runID, StepID: step.ID, StepType: step.Type,
		Status: contracts.ExecSkipped, Input: step.Config, Output: output, Attempt: 1, CompletedAt: &now,
	}); err != nil {
		return err
	}

	o.mu.Lock()
	result, err := sch.SkipStep(step.ID)
	o.mu.Unlock()
	if err != nil {
		return ferrerr.NewInternal(fmt.Sprintf("dag error: %s", err))
	}

	o.logger.Debug(ctx, "orchestrator: step skipped by unmet condition", "run_id", runID.String(), "step_id", step.ID)

	if result.WorkflowComplete {
		return o.completeWorkflow(ctx, runID, nil)
	}
	return o.enqueueReadySteps(ctx, runID, sch, result.ReadySteps)
}

func (o *Orchestrator) createAndEnqueueStep(ctx context.Context, runID id.RunID, step dag.StepDefinition, projectID id.ProjectID, tenantID id.TenantID) (string, error) {
	executionID := "wfse_" + id.NewRunID().String()

	if err := o.repo.StepExecutions().CreateStepExecution(ctx, contracts.StepExecution{
		ID: executionID, RunID: runID, StepID: step.ID, StepType: step.Type,
		Status: contracts.ExecPending, Input: step.Config, Attempt: 1,
	}); err != nil {
		return "", err
	}

	job := queue.StepJob{
		RunID: runID.String(), StepID: step.ID, StepType: step.Type.String(), Input: step.Config,
		Context: queue.JobContext{TenantID: tenantID.String(), ProjectID: projectID.String()},
	}
	message := queue.NewMessage(executionID, job)
	if _, err := o.enqueuer.EnqueueStep(ctx, message); err != nil {
		return "", err
	}

	o.logger.Debug(ctx, "orchestrator: created and enqueued step",
		"run_id", runID.String(), "step_id", step.ID, "execution_id", executionID)
	return executionID, nil
}

func (o *Orchestrator) enqueueReadySteps(ctx context.Context, runID id.RunID, sch *scheduler.Scheduler, stepIDs []string) error {
	if len(stepIDs) == 0 {
		return nil
	}
	run, err := o.repo.Runs().GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return ferrerr.NewNotFound("WorkflowRun", runID.String())
	}
	workflow, err := o.repo.Workflows().Get(ctx, run.WorkflowID)
	if err != nil {
		return err
	}
	if workflow == nil {
		return ferrerr.NewInternal("workflow not found for run")
	}

	byID := make(map[string]dag.StepDefinition, len(workflow.Steps))
	for _, s := range workflow.Steps {
		byID[s.ID] = s
	}

	for _, stepID := range stepIDs {
		step, ok := byID[stepID]
		if !ok {
			continue
		}
		if err := o.scheduleStep(ctx, runID, sch, step, run.ProjectID, run.TenantID); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) completeWorkflow(ctx context.Context, runID id.RunID, output map[string]any) error {
	completed := contracts.RunCompleted
	now := nowFunc()
	if err := o.repo.Runs().UpdateRun(ctx, runID, contracts.RunUpdate{Status: &completed, Output: output, CompletedAt: &now}); err != nil {
		return err
	}
	o.Cleanup(ctx, runID)
	o.logger.Info(ctx, "orchestrator: workflow completed", "run_id", runID.String())
	return nil
}

func (o *Orchestrator) failWorkflow(ctx context.Context, runID id.RunID, errMsg string) error {
	failed := contracts.RunFailed
	now := nowFunc()
	if err := o.repo.Runs().UpdateRun(ctx, runID, contracts.RunUpdate{
		Status: &failed, Error: map[string]any{"message": errMsg}, CompletedAt: &now,
	}); err != nil {
		return err
	}
	o.Cleanup(ctx, runID)
	o.logger.Error(ctx, "orchestrator: workflow failed", "run_id", runID.String(), "error", errMsg)
	return nil
}

func onErrorPolicy(s string) scheduler.OnErrorPolicy {
	if s == string(scheduler.OnErrorContinue) {
		return scheduler.OnErrorContinue
	}
	return scheduler.OnErrorFail
}

func execStatusToDagStatus(s contracts.StepExecutionStatus) dag.StepStatus {
	switch s {
	case contracts.ExecPending:
		return dag.StatusPending
	case contracts.ExecRunning, contracts.ExecRetrying:
		return dag.StatusRunning
	case contracts.ExecWaitingApproval:
		return dag.StatusWaitingApproval
	case contracts.ExecCompleted:
		return dag.StatusCompleted
	case contracts.ExecFailed:
		return dag.StatusFailed
	case contracts.ExecSkipped:
		return dag.StatusSkipped
	case contracts.ExecCancelled:
		return dag.StatusCancelled
	default:
		return dag.StatusPending
	}
}
