package dag_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sattyamjjain/ferrumdeck/internal/dag"
)

func step(id string, dependsOn ...string) dag.StepDefinition {
	return dag.StepDefinition{
		ID:        id,
		Name:      id,
		Type:      dag.StepLLM,
		Config:    map[string]any{"model": "test-model"},
		DependsOn: dependsOn,
		TimeoutMs: dag.DefaultTimeoutMs,
	}
}

func TestSimpleDag(t *testing.T) {
	steps := []dag.StepDefinition{
		step("a"),
		step("b", "a"),
		step("c", "a"),
		step("d", "b", "c"),
	}

	d, err := dag.Build(steps)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, d.EntryPoints())
	assert.Equal(t, 4, d.Len())

	order := d.TopologicalOrder()
	pos := func(s string) int {
		for i, x := range order {
			if x == s {
				return i
			}
		}
		return -1
	}
	assert.Less(t, pos("a"), pos("b"))
	assert.Less(t, pos("a"), pos("c"))
	assert.Less(t, pos("b"), pos("d"))
	assert.Less(t, pos("c"), pos("d"))
}

func TestParallelSteps(t *testing.T) {
	steps := []dag.StepDefinition{
		step("init"),
		step("a", "init"),
		step("b", "init"),
		step("c", "init"),
		step("final", "a", "b", "c"),
	}

	d, err := dag.Build(steps)
	require.NoError(t, err)
	layers := d.ExecutionLayers()

	require.Len(t, layers, 3)
	assert.Equal(t, []string{"init"}, layers[0])
	assert.ElementsMatch(t, []string{"a", "b", "c"}, layers[1])
	assert.Equal(t, []string{"final"}, layers[2])
}

func TestCycleDetection(t *testing.T) {
	steps := []dag.StepDefinition{
		step("a", "c"),
		step("b", "a"),
		step("c", "b"),
	}

	_, err := dag.Build(steps)
	require.Error(t, err)
}

func TestMissingDependency(t *testing.T) {
	steps := []dag.StepDefinition{step("a", "nonexistent")}

	_, err := dag.Build(steps)
	require.Error(t, err)
}

func TestReadySteps(t *testing.T) {
	steps := []dag.StepDefinition{
		step("a"),
		step("b", "a"),
		step("c", "a"),
		step("d", "b", "c"),
	}

	d, err := dag.Build(steps)
	require.NoError(t, err)

	ready := dag.ComputeReadySteps(d, map[string]struct{}{})
	assert.Equal(t, []string{"a"}, ready)

	completed := map[string]struct{}{"a": {}}
	ready = dag.ComputeReadySteps(d, completed)
	sort.Strings(ready)
	assert.Equal(t, []string{"b", "c"}, ready)

	completed = map[string]struct{}{"a": {}, "b": {}}
	ready = dag.ComputeReadySteps(d, completed)
	assert.Equal(t, []string{"c"}, ready)

	completed = map[string]struct{}{"a": {}, "b": {}, "c": {}}
	ready = dag.ComputeReadySteps(d, completed)
	assert.Equal(t, []string{"d"}, ready)
}

// TestAcyclicityProperty covers the acyclicity property for a purely
// sequential dependency chain: Build succeeds and its topological order
// holds all three steps.
func TestAcyclicityProperty(t *testing.T) {
	steps := []dag.StepDefinition{step("a"), step("b", "a"), step("c", "b")}
	d, err := dag.Build(steps)
	require.NoError(t, err)
	order := d.TopologicalOrder()
	require.Len(t, order, 3)
}
