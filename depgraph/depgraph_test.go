package depgraph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francescomucio/tee/depgraph"
)

func TestBuildOrdersPredecessorsFirst(t *testing.T) {
	b := depgraph.NewBuilder()
	staging := depgraph.Node{Kind: depgraph.NodeTransformation, ID: "a.staging"}
	summary := depgraph.Node{Kind: depgraph.NodeTransformation, ID: "a.summary"}
	b.AddDependency(summary, staging)

	g := b.Build()
	require.Empty(t, g.Cycles)
	require.Equal(t, []string{"a.staging", "a.summary"}, g.ExecutionOrder)
}

func TestBuildDetectsCycle(t *testing.T) {
	b := depgraph.NewBuilder()
	x := depgraph.Node{Kind: depgraph.NodeTransformation, ID: "a.x"}
	y := depgraph.Node{Kind: depgraph.NodeTransformation, ID: "a.y"}
	b.AddDependency(x, y)
	b.AddDependency(y, x)

	g := b.Build()
	assert.Empty(t, g.ExecutionOrder)
	require.Len(t, g.Cycles, 1)
	assert.ElementsMatch(t, []string{"a.x", "a.y"}, g.Cycles[0])
}

func TestSelfDependencyIsDropped(t *testing.T) {
	b := depgraph.NewBuilder()
	f := depgraph.Node{Kind: depgraph.NodeFunction, ID: "a.recursive_fn"}
	b.AddDependency(f, f)

	g := b.Build()
	assert.Empty(t, g.Cycles)
	assert.Equal(t, []string{"a.recursive_fn"}, g.ExecutionOrder)
}

func TestTestNodeIDFormsColumnTableAndFunctionVariants(t *testing.T) {
	assert.Equal(t, "test:a.orders.id.unique", depgraph.TestNodeID("a.orders", "id", "unique"))
	assert.Equal(t, "test:a.orders.row_count", depgraph.TestNodeID("a.orders", "", "row_count"))
	assert.Equal(t, "test:a.my_func.returns_rows", depgraph.TestNodeID("a.my_func", "", "returns_rows"))
}

func TestTestNodeDependsOnHostEntity(t *testing.T) {
	b := depgraph.NewBuilder()
	orders := depgraph.Node{Kind: depgraph.NodeTransformation, ID: "a.orders"}
	test := depgraph.Node{Kind: depgraph.NodeTest, ID: depgraph.TestNodeID("a.orders", "", "row_count")}
	b.AddDependency(test, orders)

	g := b.Build()
	require.Len(t, g.Edges, 1)
	assert.Equal(t, "test:a.orders.row_count", g.Edges[0].Dependent)
	assert.Equal(t, "a.orders", g.Edges[0].Dependency)
}

func TestIndependentNodesWithNoEdgesAppearInOrder(t *testing.T) {
	b := depgraph.NewBuilder()
	b.AddNode(depgraph.NodeTransformation, "a.isolated")
	g := b.Build()
	assert.Contains(t, g.ExecutionOrder, "a.isolated")
}
