package dag

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/sattyamjjain/ferrumdeck/internal/ferrerr"
)

// configSchemas holds the raw JSON Schema documents that a StepDefinition's
// Config must satisfy for its StepType. Schemas are intentionally loose:
// they check only the handful of fields every worker implementation of that
// step type requires to do anything at all, not the full shape a particular
// tool or model integration might want. A step type with no entry here is
// not validated.
var configSchemas = map[StepType]string{
	StepLLM: `{
		"type": "object",
		"required": ["model"],
		"properties": {"model": {"type": "string", "minLength": 1}}
	}`,
	StepTool: `{
		"type": "object",
		"required": ["tool_name"],
		"properties": {"tool_name": {"type": "string", "minLength": 1}}
	}`,
	StepLoop: `{
		"type": "object",
		"required": ["max_iterations"],
		"properties": {"max_iterations": {"type": "integer", "minimum": 1}}
	}`,
}

var (
	compileOnce     sync.Once
	compiledSchemas map[StepType]*jsonschema.Schema
	compileErr      error
)

// compileConfigSchemas compiles configSchemas once, in the style of
// registry/service.go's validatePayloadJSONAgainstSchema: unmarshal the
// schema into an any, add it as a compiler resource, then compile it.
func compileConfigSchemas() (map[StepType]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		schemas := make(map[StepType]*jsonschema.Schema, len(configSchemas))
		for stepType, raw := range configSchemas {
			var doc any
			if err := json.Unmarshal([]byte(raw), &doc); err != nil {
				compileErr = fmt.Errorf("dag: unmarshal schema for step type %s: %w", stepType, err)
				return
			}
			resourceName := fmt.Sprintf("step-config-%s.json", stepType)
			if err := compiler.AddResource(resourceName, doc); err != nil {
				compileErr = fmt.Errorf("dag: add schema resource for step type %s: %w", stepType, err)
				return
			}
			schema, err := compiler.Compile(resourceName)
			if err != nil {
				compileErr = fmt.Errorf("dag: compile schema for step type %s: %w", stepType, err)
				return
			}
			schemas[stepType] = schema
		}
		compiledSchemas = schemas
	})
	return compiledSchemas, compileErr
}

// validateStepConfig checks step.Config against the registered schema for
// step.Type, if any. A step type with no registered schema always passes.
func validateStepConfig(step StepDefinition) error {
	schemas, err := compileConfigSchemas()
	if err != nil {
		return ferrerr.NewInternal(err.Error())
	}
	schema, ok := schemas[step.Type]
	if !ok {
		return nil
	}

	var doc any = map[string]any(step.Config)
	if err := schema.Validate(doc); err != nil {
		return ferrerr.NewValidation(
			fmt.Sprintf("step %q config failed validation: %s", step.ID, err)).
			WithField("config")
	}
	return nil
}
