// Package depgraph builds the project's multi-kind dependency graph,
// computes a topological execution order, and enumerates cycles, per
// SPEC_FULL.md §4.6 / spec.md §4.6.
//
// Nodes are a tagged sum of transformation, function, and test-attachment
// kinds, owned by an arena keyed by dense indices (spec.md §9's "Heterogeneous
// DAG nodes" design note); edges are index pairs rather than a duck-typed
// dictionary keyed by string. The Builder keeps a forward adjacency set per
// node (what it depends on); the reverse (dependents) lists are derived
// from it inside the Kahn pass. The cycle/topological
// algorithms mirror original_source/tee/parser/analysis/dependency_graph.py's
// graphlib.TopologicalSorter-based approach: Kahn's algorithm for the
// happy-path order, falling back to an explicit DFS cycle enumeration only
// when the Kahn pass cannot drain every node.
package depgraph

// NodeKind classifies a graph node.
type NodeKind string

const (
	NodeTransformation NodeKind = "transformation"
	NodeFunction       NodeKind = "function"
	NodeTest           NodeKind = "test"
)

// Node is one entity in the dependency graph.
type Node struct {
	Kind NodeKind
	ID   string
}

// Builder accumulates nodes and dependency edges before producing a Graph.
// It owns the node arena: every node is assigned a dense index the moment
// it is first referenced by AddNode or AddDependency.
type Builder struct {
	nodes []Node
	index map[string]int
	deps  map[int]map[int]bool // node index -> set of indices it depends on
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		index: map[string]int{},
		deps:  map[int]map[int]bool{},
	}
}

// AddNode registers id (idempotent) and returns its arena index.
func (b *Builder) AddNode(kind NodeKind, id string) int {
	if i, ok := b.index[id]; ok {
		return i
	}
	i := len(b.nodes)
	b.nodes = append(b.nodes, Node{Kind: kind, ID: id})
	b.index[id] = i
	b.deps[i] = map[int]bool{}
	return i
}

// AddDependency records that node depends on dependsOn: "an edge A -> B
// means B depends on A" (spec.md's Dependency Graph entity) — here the
// caller states the dependency directly, node depends on dependsOn, and
// both node and dependsOn are auto-registered as NodeKind kind if new. A
// self-dependency (a node referencing itself) is silently dropped; the
// only place that matters is function self-reference exclusion, which
// callers already filter before calling this.
func (b *Builder) AddDependency(node Node, dependsOn Node) {
	ni := b.AddNode(node.Kind, node.ID)
	di := b.AddNode(dependsOn.Kind, dependsOn.ID)
	if ni == di {
		return
	}
	b.deps[ni][di] = true
}

// Edge is a resolved (dependent, dependency) pair, surfaced for rendering
// (SPEC_FULL.md §6.3's JSON graph artifact / flowchart text).
type Edge struct {
	Dependent  string
	Dependency string
}

// Graph is the built dependency graph: its node set, its edges, and the
// derived execution order / cycle report.
type Graph struct {
	Nodes         []Node
	Edges         []Edge
	ExecutionOrder []string
	Cycles        [][]string
}

// Build computes the execution order (Kahn's algorithm, predecessors
// first) and cycle report from the accumulated nodes and dependencies.
// When any cycle exists, ExecutionOrder is empty and Cycles lists every
// strongly-connected component of size greater than one (spec.md invariant
// 4).
func (b *Builder) Build() *Graph {
	n := len(b.nodes)

	var edges []Edge
	for ni, set := range b.deps {
		for di := range set {
			edges = append(edges, Edge{Dependent: b.nodes[ni].ID, Dependency: b.nodes[di].ID})
		}
	}

	order, ok := b.kahn()
	var cycles [][]string
	if !ok {
		cycles = b.sccCycles()
		order = nil
	}

	_ = n
	return &Graph{
		Nodes:          append([]Node(nil), b.nodes...),
		Edges:          edges,
		ExecutionOrder: order,
		Cycles:         cycles,
	}
}

// kahn performs Kahn's algorithm over the dependency relation (process a
// node only once every node it depends on has been processed). It returns
// ok=false if any node never becomes ready, meaning a cycle exists.
func (b *Builder) kahn() ([]string, bool) {
	n := len(b.nodes)
	indegree := make([]int, n)
	dependents := make([][]int, n) // reverse adjacency: dep -> nodes depending on it
	for ni, set := range b.deps {
		indegree[ni] = len(set)
		for di := range set {
			dependents[di] = append(dependents[di], ni)
		}
	}

	var queue []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	var order []string
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, b.nodes[i].ID)
		for _, dependent := range dependents[i] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	return order, len(order) == n
}

// sccCycles enumerates strongly-connected components of size greater than
// one via Tarjan's algorithm, each returned as a list of node identifiers.
func (b *Builder) sccCycles() [][]string {
	n := len(b.nodes)
	indices := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range indices {
		indices[i] = -1
	}

	var stack []int
	counter := 0
	var sccs [][]int

	var strongconnect func(v int)
	strongconnect = func(v int) {
		indices[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for w := range b.deps[v] {
			if indices[w] == -1 {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var component []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, component)
		}
	}

	for v := 0; v < n; v++ {
		if indices[v] == -1 {
			strongconnect(v)
		}
	}

	var cycles [][]string
	for _, component := range sccs {
		if len(component) < 2 {
			// A single-node component is only a cycle if it has a self-edge.
			v := component[0]
			if !b.deps[v][v] {
				continue
			}
		}
		ids := make([]string, len(component))
		for i, v := range component {
			ids[i] = b.nodes[v].ID
		}
		cycles = append(cycles, ids)
	}
	return cycles
}

// TestNodeID builds the synthesized identifier for a test attachment, per
// spec.md's Dependency Graph entity: column-level tests use
// "test:<table>.<column>.<test>", table-level tests use
// "test:<table>.<test>", and function-level tests use
// "test:<function>.<test>".
func TestNodeID(hostIdentifier, column, testName string) string {
	if column != "" {
		return "test:" + hostIdentifier + "." + column + "." + testName
	}
	return "test:" + hostIdentifier + "." + testName
}
