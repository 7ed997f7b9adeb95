package tee

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/go-cmp/cmp"

	"github.com/francescomucio/tee/depgraph"
	"github.com/francescomucio/tee/discovery"
	"github.com/francescomucio/tee/emitter"
	"github.com/francescomucio/tee/model"
	"github.com/francescomucio/tee/otsimport"
	"github.com/francescomucio/tee/testlibrary"
)

// Compiler drives one project's compilation pipeline (spec.md §4.11) and
// caches its intermediate layers (parsed entities, the merged entity map,
// the dependency graph) until Refresh is called.
type Compiler struct {
	project Project

	mu    sync.Mutex
	cache *compileCache
}

// New returns a Compiler for project. No I/O happens until Compile is
// called.
func New(project Project) *Compiler {
	return &Compiler{project: project}
}

// Refresh invalidates every cached intermediate layer. The next Compile
// call re-parses and re-builds everything from scratch.
func (c *Compiler) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = nil
}

// Result is the outcome of a successful compilation.
type Result struct {
	Transformations []model.Transformation
	Functions       []model.Function
	Graph           *depgraph.Graph
	ModulePaths     map[string]string // schema -> written module file path
	TestLibraryPath string            // "" if no test library was emitted
	Warnings        []string
}

// Compile runs the fixed pipeline sequence of spec.md §4.11 to completion:
// parse, load imports, detect conflicts, merge, build the graph and persist
// its renderings, emit per-schema modules, emit the merged test library,
// and round-trip-revalidate every emitted module.
func (c *Compiler) Compile(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := c.project.logger()

	files, err := discovery.Discover(c.project.RootPath)
	if err != nil {
		return nil, &FileDiscoveryError{Path: c.project.RootPath, Cause: err}
	}
	// Modules written by an earlier run into an output directory inside the
	// project tree are this compiler's own artifacts, not imports.
	if outAbs, err := filepath.Abs(c.project.OutputDir); err == nil {
		kept := files[:0]
		for _, f := range files {
			if p, err := filepath.Abs(f.Path); err == nil && strings.HasPrefix(p, outAbs+string(filepath.Separator)) {
				continue
			}
			kept = append(kept, f)
		}
		files = kept
	}
	logger.Info("tee: discovery complete", "files", len(files))

	fp, err := parseFirstParty(c.project, files)
	if err != nil {
		return nil, err
	}
	logger.Info("tee: parsed first-party entities",
		"transformations", len(fp.Transformations), "functions", len(fp.Functions))

	imp, err := loadImported(c.project, files)
	if err != nil {
		return nil, err
	}
	logger.Info("tee: loaded imported modules",
		"transformations", len(imp.Transformations), "functions", len(imp.Functions))

	m, err := mergeEntities(fp, imp)
	if err != nil {
		return nil, err
	}
	logger.Info("tee: merged entity map",
		"transformations", len(m.Transformations), "functions", len(m.Functions))

	warnings := append([]string{}, fp.Warnings...)
	warnings = append(warnings, imp.Warnings...)

	// The merged test library (not just the first-party one) must be known
	// before the graph is built: a generic test attached to an imported
	// transformation may be defined in an imported test-library file rather
	// than first-party.
	importedLibs, libWarnings := loadImportedTestLibraries(imp.TestLibraryPaths)
	warnings = append(warnings, libWarnings...)
	for _, w := range warnings {
		logger.Warn(w)
	}

	mergedLib, conflicts := testlibrary.Merge(fp.TestLibrary, importedLibs...)
	for _, conf := range conflicts {
		logger.Warn("tee: test library conflict, kept first-party definition",
			"section", conf.Section, "name", conf.Name)
		warnings = append(warnings, "tee: test library conflict on "+conf.Section+"."+conf.Name+": kept first-party definition")
	}

	graph := buildGraph(m, mergedLib)
	if len(graph.Cycles) > 0 {
		logger.Warn("tee: dependency graph contains cycles", "cycles", graph.Cycles)
	}
	unused := unusedGenericTestWarnings(mergedLib, graph)
	for _, w := range unused {
		logger.Warn(w)
	}
	warnings = append(warnings, unused...)

	c.cache = &compileCache{fp: fp, imp: imp, m: m, graph: graph}

	if err := os.MkdirAll(c.project.OutputDir, 0o755); err != nil {
		return nil, &OutputGenerationError{Path: c.project.OutputDir, Cause: err}
	}
	if err := persistGraphArtifacts(c.project.OutputDir, graph); err != nil {
		return nil, err
	}

	var testLibraryRelPath string
	if !mergedLib.IsEmpty() {
		testLibraryRelPath = c.project.Name + "_test_library.ots." + string(c.project.format())
	}

	groups := emitter.GroupBySchema(m.Transformations, m.Functions)
	cfg := emitter.Config{
		Database:   c.project.Database,
		Connection: c.project.Connection,
		ModuleTags: c.project.ModuleTags,
		TestLibraryPath: func(string) string {
			return testLibraryRelPath
		},
	}

	docs := make(map[string]otsimport.Document, len(groups))
	for schema, group := range groups {
		docs[schema] = emitter.BuildDocument(schema, group, cfg)
	}

	emitFormat := emitter.FormatJSON
	ext := ".ots.json"
	if c.project.format() == FormatYAML {
		emitFormat = emitter.FormatYAML
		ext = ".ots.yaml"
	}

	if err := emitter.EmitAll(ctx, docs, c.project.OutputDir, emitFormat); err != nil {
		return nil, &OutputGenerationError{Path: c.project.OutputDir, Cause: err}
	}
	logger.Info("tee: emitted portable modules", "count", len(docs))

	modulePaths := make(map[string]string, len(docs))
	for schema := range docs {
		modulePaths[schema] = filepath.Join(c.project.OutputDir, schema+ext)
	}

	tlFormat := testlibrary.FormatJSON
	if c.project.format() == FormatYAML {
		tlFormat = testlibrary.FormatYAML
	}
	writtenLibPath, err := testlibrary.Write(mergedLib, c.project.OutputDir, c.project.Name, tlFormat)
	if err != nil {
		return nil, &OutputGenerationError{Path: "test library", Cause: err}
	}
	if writtenLibPath != "" {
		logger.Info("tee: emitted merged test library", "path", writtenLibPath)
	}

	for schema, path := range modulePaths {
		if err := revalidateModule(path, groups[schema]); err != nil {
			return nil, err
		}
	}
	logger.Info("tee: round-trip revalidation passed", "modules", len(modulePaths))

	return &Result{
		Transformations: m.Transformations,
		Functions:       m.Functions,
		Graph:           graph,
		ModulePaths:     modulePaths,
		TestLibraryPath: writtenLibPath,
		Warnings:        warnings,
	}, nil
}

func persistGraphArtifacts(outDir string, graph *depgraph.Graph) error {
	graphJSON, err := marshalGraphArtifact(graph)
	if err != nil {
		return &OutputGenerationError{Path: "graph.json", Cause: err}
	}
	if err := os.WriteFile(filepath.Join(outDir, "graph.json"), graphJSON, 0o644); err != nil {
		return &OutputGenerationError{Path: "graph.json", Cause: err}
	}
	if err := os.WriteFile(filepath.Join(outDir, "graph.mmd"), []byte(renderFlowchart(graph)), 0o644); err != nil {
		return &OutputGenerationError{Path: "graph.mmd", Cause: err}
	}
	if err := os.WriteFile(filepath.Join(outDir, "graph.md"), []byte(renderReport(graph)), 0o644); err != nil {
		return &OutputGenerationError{Path: "graph.md", Cause: err}
	}
	return nil
}

// unusedGenericTestWarnings reports generic tests defined in the library
// but never reached by any test node in the graph, per spec.md §7's
// "test-unused" non-fatal diagnostic.
func unusedGenericTestWarnings(lib testlibrary.Library, graph *depgraph.Graph) []string {
	if len(lib.GenericTests) == 0 {
		return nil
	}
	used := map[string]bool{}
	for _, n := range graph.Nodes {
		if n.Kind == depgraph.NodeTest {
			used[n.ID] = true
		}
	}
	var warnings []string
	for name := range lib.GenericTests {
		referenced := false
		for id := range used {
			if len(id) > len(name) && id[len(id)-len(name):] == name {
				referenced = true
				break
			}
		}
		if !referenced {
			warnings = append(warnings, "tee: generic test "+name+" is defined but never attached to any entity")
		}
	}
	return warnings
}

// roundTripTransformation/roundTripFunction project the fields spec.md §8
// property 1 requires to be equal after a re-import: identifier,
// function_type/materialization type, language, parameter count, return
// type, and resolved SQL.
type roundTripTransformation struct {
	ID                  string
	MaterializationType model.MaterializationType
	ResolvedSQL         string
}

type roundTripFunction struct {
	ID          string
	Kind        model.FunctionKind
	Language    string
	ParamCount  int
	ReturnType  string
	ResolvedSQL string
}

func projectTransformation(t model.Transformation) roundTripTransformation {
	return roundTripTransformation{ID: t.ID, MaterializationType: t.Materialization.Type, ResolvedSQL: t.ResolvedSQL}
}

func projectFunction(f model.Function) roundTripFunction {
	return roundTripFunction{ID: f.ID, Kind: f.Kind, Language: f.Language, ParamCount: len(f.Parameters), ReturnType: f.ReturnType, ResolvedSQL: f.ResolvedSQL}
}

// revalidateModule re-imports the module written to path and compares each
// entity against its pre-emission in-memory original, per spec.md §4.11
// step 8 / §8 property 1.
func revalidateModule(path string, group *emitter.Group) error {
	_, reTransformations, reFunctions, err := otsimport.Load(path)
	if err != nil {
		return &CompilationError{Message: "round-trip re-import failed for " + path, Identifiers: []string{err.Error()}}
	}

	reT := make(map[string]model.Transformation, len(reTransformations))
	for _, t := range reTransformations {
		reT[t.ID] = t
	}
	reF := make(map[string]model.Function, len(reFunctions))
	for _, f := range reFunctions {
		reF[f.ID] = f
	}

	var mismatches []string
	for _, t := range group.Transformations {
		got, ok := reT[t.ID]
		if !ok {
			mismatches = append(mismatches, t.ID+": missing after re-import")
			continue
		}
		if diff := cmp.Diff(projectTransformation(t), projectTransformation(got)); diff != "" {
			mismatches = append(mismatches, t.ID+": "+diff)
		}
	}
	for _, f := range group.Functions {
		got, ok := reF[f.ID]
		if !ok {
			mismatches = append(mismatches, f.ID+": missing after re-import")
			continue
		}
		if diff := cmp.Diff(projectFunction(f), projectFunction(got)); diff != "" {
			mismatches = append(mismatches, f.ID+": "+diff)
		}
	}

	if len(mismatches) > 0 {
		return &CompilationError{Message: "round-trip revalidation failed for " + path, Identifiers: mismatches}
	}
	return nil
}
