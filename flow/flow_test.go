package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildLinear(t *testing.T) *ProcessFlow {
	t.Helper()
	b := NewBuilder("demo", "/tmp/demo")
	require.NoError(t, b.AddStep(&Step{Name: "a", Command: "true"}))
	require.NoError(t, b.AddStep(&Step{Name: "b", Command: "true"}))
	require.NoError(t, b.AddStep(&Step{Name: "c", Command: "true"}))
	require.NoError(t, b.AddEdge("b", "a", false))
	require.NoError(t, b.AddEdge("c", "b", false))
	f, err := b.Build()
	require.NoError(t, err)
	return f
}

func TestBuildLinearChainTopoOrder(t *testing.T) {
	f := buildLinear(t)
	assert.Equal(t, []string{"a", "b", "c"}, f.TopoOrder())
	assert.Equal(t, []string{"a"}, stepNames(f.Roots()))
	assert.Equal(t, []string{"c"}, stepNames(f.Leaves()))
}

func TestPrerequisitesAndDependents(t *testing.T) {
	f := buildLinear(t)
	assert.Equal(t, []Dependency{{Step: "a"}}, f.Prerequisites("b"))
	assert.Equal(t, []Dependency{{Step: "b"}}, f.Dependents("a"))
}

func TestBuildDetectsCycle(t *testing.T) {
	b := NewBuilder("demo", "/tmp/demo")
	require.NoError(t, b.AddStep(&Step{Name: "a", Command: "true"}))
	require.NoError(t, b.AddStep(&Step{Name: "b", Command: "true"}))
	require.NoError(t, b.AddEdge("a", "b", false))
	require.NoError(t, b.AddEdge("b", "a", false))

	_, err := b.Build()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestAddEdgeUnknownStep(t *testing.T) {
	b := NewBuilder("demo", "/tmp/demo")
	require.NoError(t, b.AddStep(&Step{Name: "a", Command: "true"}))
	assert.Error(t, b.AddEdge("a", "ghost", false))
	assert.Error(t, b.AddEdge("ghost", "a", false))
}

func TestDuplicateStepName(t *testing.T) {
	b := NewBuilder("demo", "/tmp/demo")
	require.NoError(t, b.AddStep(&Step{Name: "a", Command: "true"}))
	assert.Error(t, b.AddStep(&Step{Name: "a", Command: "true"}))
}

func TestSubgraphRangeRun(t *testing.T) {
	// a -> b1 -> c1 -> d
	b := NewBuilder("demo", "/tmp/demo")
	require.NoError(t, b.AddStep(&Step{Name: "a", Command: "true"}))
	require.NoError(t, b.AddStep(&Step{Name: "b1", Command: "true"}))
	require.NoError(t, b.AddStep(&Step{Name: "c1", Command: "true"}))
	require.NoError(t, b.AddStep(&Step{Name: "d", Command: "true"}))
	require.NoError(t, b.AddEdge("b1", "a", false))
	require.NoError(t, b.AddEdge("c1", "b1", false))
	require.NoError(t, b.AddEdge("d", "c1", false))
	f, err := b.Build()
	require.NoError(t, err)

	active, err := f.Subgraph([]string{"b*"}, []string{"c*"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"b1": true, "c1": true}, active)
}

func TestSubgraphEmptyPatternsDefaultToRootsAndLeaves(t *testing.T) {
	f := buildLinear(t)
	active, err := f.Subgraph(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, active)
}

func TestSubgraphUnmatchedPatternErrors(t *testing.T) {
	f := buildLinear(t)
	_, err := f.Subgraph([]string{"nope*"}, nil)
	assert.Error(t, err)
}

func stepNames(steps []*Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Name)
	}
	return out
}
