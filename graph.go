package tee

import (
	"regexp"

	"github.com/francescomucio/tee/depgraph"
	"github.com/francescomucio/tee/model"
	"github.com/francescomucio/tee/sqlast"
	"github.com/francescomucio/tee/testlibrary"
)

// hostPlaceholder matches the three placeholder forms spec.md §4.6 says are
// substituted with the host identifier for dependency-extraction purposes
// only ("other placeholders are left unexpanded").
var hostPlaceholder = regexp.MustCompile(`@(table_name|column_name|function_name)\b|\{\{\s*(table_name|column_name|function_name)\s*\}\}`)

func substituteHostPlaceholder(sql, host string) string {
	return hostPlaceholder.ReplaceAllString(sql, host)
}

// buildGraph constructs the multi-kind dependency graph from the merged
// entity set and the test library, per spec.md §4.6.
func buildGraph(m merged, lib testlibrary.Library) *depgraph.Graph {
	b := depgraph.NewBuilder()

	for _, t := range m.Transformations {
		node := depgraph.Node{Kind: depgraph.NodeTransformation, ID: t.ID}
		b.AddNode(depgraph.NodeTransformation, t.ID)
		for _, ref := range t.SourceTables {
			b.AddDependency(node, depgraph.Node{Kind: depgraph.NodeTransformation, ID: ref})
		}
		for _, ref := range t.SourceFunctions {
			b.AddDependency(node, depgraph.Node{Kind: depgraph.NodeFunction, ID: ref})
		}

		for _, col := range t.Columns {
			for _, att := range col.Tests {
				attachTest(b, lib, depgraph.NodeTransformation, t.ID, col.Name, att)
			}
		}
		for _, att := range t.TableTests {
			attachTest(b, lib, depgraph.NodeTransformation, t.ID, "", att)
		}
	}

	for _, f := range m.Functions {
		node := depgraph.Node{Kind: depgraph.NodeFunction, ID: f.ID}
		b.AddNode(depgraph.NodeFunction, f.ID)
		for _, ref := range f.SourceTables {
			b.AddDependency(node, depgraph.Node{Kind: depgraph.NodeTransformation, ID: ref})
		}
		for _, ref := range f.SourceFunctions {
			if ref == f.ID {
				continue // a function excludes itself from its own dependency set
			}
			b.AddDependency(node, depgraph.Node{Kind: depgraph.NodeFunction, ID: ref})
		}
		for _, att := range f.Tests {
			attachTest(b, lib, depgraph.NodeFunction, f.ID, "", att)
		}
	}

	// Singular tests self-declare their target; they do not need an
	// explicit attachment on the transformation to appear in the graph.
	for name, st := range lib.SingularTests {
		if st.TargetTransformation == "" {
			continue
		}
		attachTest(b, lib, depgraph.NodeTransformation, st.TargetTransformation, "", model.TestAttachment{Name: name})
	}

	return b.Build()
}

// attachTest adds the graph node for one test attachment and its edges:
// always an edge to the host entity (invariant 3), plus, for a generic
// test, edges to every entity its host-substituted SQL references.
func attachTest(b *depgraph.Builder, lib testlibrary.Library, hostKind depgraph.NodeKind, host, column string, att model.TestAttachment) {
	name := model.NormalizeTestName(att.Name)
	testID := depgraph.TestNodeID(host, column, name)
	testNode := depgraph.Node{Kind: depgraph.NodeTest, ID: testID}
	hostNode := depgraph.Node{Kind: hostKind, ID: host}
	b.AddDependency(testNode, hostNode)

	if gt, ok := lib.GenericTests[name]; ok {
		substituted := substituteHostPlaceholder(gt.SQL, host)
		if analysis, err := sqlast.Analyze(substituted); err == nil {
			for _, ref := range analysis.SourceTables {
				if ref == host {
					continue
				}
				b.AddDependency(testNode, depgraph.Node{Kind: depgraph.NodeTransformation, ID: ref})
			}
			for _, ref := range analysis.SourceFunctions {
				b.AddDependency(testNode, depgraph.Node{Kind: depgraph.NodeFunction, ID: ref})
			}
		}
	}
}
