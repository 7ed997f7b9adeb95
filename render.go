package tee

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/francescomucio/tee/depgraph"
)

// graphArtifact is the JSON shape spec.md §6.3 requires: nodes, edges,
// reverse-indexed dependencies/dependents, execution order, and cycles.
type graphArtifact struct {
	Nodes          []string            `json:"nodes"`
	Edges          [][2]string         `json:"edges"`
	Dependencies   map[string][]string `json:"dependencies"`
	Dependents     map[string][]string `json:"dependents"`
	ExecutionOrder []string            `json:"execution_order"`
	Cycles         [][]string          `json:"cycles"`
}

func buildGraphArtifact(g *depgraph.Graph) graphArtifact {
	art := graphArtifact{
		Dependencies: map[string][]string{},
		Dependents:   map[string][]string{},
	}
	for _, n := range g.Nodes {
		art.Nodes = append(art.Nodes, n.ID)
	}
	for _, e := range g.Edges {
		// depgraph.Edge{Dependent, Dependency}: Dependent depends on
		// Dependency. §6.3's edge pair [from, to] follows the entity
		// Dependency Graph definition "A -> B means B depends on A", so
		// from=Dependency, to=Dependent.
		art.Edges = append(art.Edges, [2]string{e.Dependency, e.Dependent})
		art.Dependencies[e.Dependent] = append(art.Dependencies[e.Dependent], e.Dependency)
		art.Dependents[e.Dependency] = append(art.Dependents[e.Dependency], e.Dependent)
	}
	for k := range art.Dependencies {
		sort.Strings(art.Dependencies[k])
	}
	for k := range art.Dependents {
		sort.Strings(art.Dependents[k])
	}
	art.ExecutionOrder = g.ExecutionOrder
	art.Cycles = g.Cycles
	return art
}

func marshalGraphArtifact(g *depgraph.Graph) ([]byte, error) {
	return json.MarshalIndent(buildGraphArtifact(g), "", "  ")
}

// renderFlowchart renders the graph as a Mermaid flowchart, one arrow per
// edge ("A --> B" meaning A must run before B).
func renderFlowchart(g *depgraph.Graph) string {
	var b strings.Builder
	b.WriteString("flowchart LR\n")
	for _, e := range g.Edges {
		b.WriteString("    ")
		b.WriteString(sanitizeMermaidID(e.Dependency))
		b.WriteString(" --> ")
		b.WriteString(sanitizeMermaidID(e.Dependent))
		b.WriteString("\n")
	}
	return b.String()
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", ":", "_", "-", "_")
	return r.Replace(id)
}

// renderReport renders a human-readable markdown summary of the graph.
func renderReport(g *depgraph.Graph) string {
	var b strings.Builder
	b.WriteString("# Dependency Graph\n\n")
	b.WriteString("## Nodes\n\n")
	for _, n := range g.Nodes {
		b.WriteString("- `" + n.ID + "` (" + string(n.Kind) + ")\n")
	}

	b.WriteString("\n## Execution Order\n\n")
	if len(g.Cycles) > 0 {
		b.WriteString("No execution order: the graph contains cycles.\n")
	} else if len(g.ExecutionOrder) == 0 {
		b.WriteString("(empty graph)\n")
	} else {
		for i, id := range g.ExecutionOrder {
			b.WriteString(strconv.Itoa(i+1) + ". `" + id + "`\n")
		}
	}

	if len(g.Cycles) > 0 {
		b.WriteString("\n## Cycles\n\n")
		for _, c := range g.Cycles {
			b.WriteString("- " + strings.Join(c, " -> ") + "\n")
		}
	}

	return b.String()
}
