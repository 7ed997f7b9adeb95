package tee

import "github.com/francescomucio/tee/depgraph"

// compileCache holds one compilation's intermediate layers (parsed
// first-party entities, loaded imports, the merged entity map, the
// dependency graph). Compile stores them here and Refresh on the owning
// Compiler clears them; Compile does not read them back, so every call
// re-runs the whole pipeline.
type compileCache struct {
	fp    firstParty
	imp   imported
	m     merged
	graph *depgraph.Graph
}
