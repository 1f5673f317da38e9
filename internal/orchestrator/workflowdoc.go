package orchestrator

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/sattyamjjain/ferrumdeck/internal/contracts"
	"github.com/sattyamjjain/ferrumdeck/internal/dag"
	"github.com/sattyamjjain/ferrumdeck/internal/ferrerr"
	"github.com/sattyamjjain/ferrumdeck/internal/id"
)

// WorkflowDefinitionDoc is the YAML authoring format for a workflow
// definition, in the same design/quickstart spirit of declaring a workflow
// as a document rather than Go code. A control-plane operator hands this
// to ParseWorkflowDefinitionDoc, which turns it into the
// []dag.StepDefinition that StartWorkflow ultimately schedules; the
// HTTP/gRPC transport is free to store either form, but this is the form a
// human edits.
type WorkflowDefinitionDoc struct {
	ID      string              `yaml:"id"`
	OnError string              `yaml:"on_error"`
	Steps   []StepDefinitionDoc `yaml:"steps"`
}

// StepDefinitionDoc is one step within a WorkflowDefinitionDoc.
type StepDefinitionDoc struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Type      string         `yaml:"type"`
	Config    map[string]any `yaml:"config"`
	DependsOn []string       `yaml:"depends_on"`
	Condition string         `yaml:"condition"`
	TimeoutMs uint64         `yaml:"timeout_ms"`
	Retry     *RetryDoc      `yaml:"retry"`
}

// RetryDoc is the YAML form of dag.RetryConfig.
type RetryDoc struct {
	MaxAttempts       uint32  `yaml:"max_attempts"`
	DelayMs           uint64  `yaml:"delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// ParseWorkflowDefinitionDoc decodes a YAML-authored workflow definition
// into the step definitions dag.Build and StartWorkflow operate on. A step
// with no timeout_ms gets dag.DefaultTimeoutMs; a step with no retry block
// gets dag.DefaultRetryConfig.
func ParseWorkflowDefinitionDoc(raw []byte) (*WorkflowDefinitionDoc, []dag.StepDefinition, error) {
	var doc WorkflowDefinitionDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, ferrerr.NewValidation(fmt.Sprintf("workflow document: invalid yaml: %s", err))
	}
	if doc.ID == "" {
		return nil, nil, ferrerr.NewValidation("workflow document: id is required").WithField("id")
	}

	steps := make([]dag.StepDefinition, 0, len(doc.Steps))
	for _, s := range doc.Steps {
		stepType, err := dag.ParseStepType(s.Type)
		if err != nil {
			return nil, nil, ferrerr.NewValidation(fmt.Sprintf("workflow document: step %q: %s", s.ID, err)).WithField("type")
		}

		timeout := s.TimeoutMs
		if timeout == 0 {
			timeout = dag.DefaultTimeoutMs
		}

		retry := s.Retry.toConfig()

		step := dag.StepDefinition{
			ID:        s.ID,
			Name:      s.Name,
			Type:      stepType,
			Config:    s.Config,
			DependsOn: s.DependsOn,
			TimeoutMs: timeout,
			Retry:     retry,
		}
		if s.Condition != "" {
			condition := s.Condition
			step.Condition = &condition
		}
		steps = append(steps, step)
	}

	return &doc, steps, nil
}

// ToDefinition builds the contracts.WorkflowDefinition a WorkflowRepository
// hands back to StartWorkflow, scoping the parsed steps to tenantID and
// projectID.
func (doc *WorkflowDefinitionDoc) ToDefinition(steps []dag.StepDefinition, tenantID id.TenantID, projectID id.ProjectID) contracts.WorkflowDefinition {
	onError := doc.OnError
	if onError == "" {
		onError = "fail"
	}
	return contracts.WorkflowDefinition{
		ID:        doc.ID,
		TenantID:  tenantID,
		ProjectID: projectID,
		Steps:     steps,
		OnError:   onError,
	}
}

func (r *RetryDoc) toConfig() *dag.RetryConfig {
	if r == nil {
		cfg := dag.DefaultRetryConfig()
		return &cfg
	}
	return &dag.RetryConfig{
		MaxAttempts:       r.MaxAttempts,
		DelayMs:           r.DelayMs,
		BackoffMultiplier: r.BackoffMultiplier,
	}
}
