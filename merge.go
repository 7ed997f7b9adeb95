package tee

import (
	"os"
	"path/filepath"

	"github.com/francescomucio/tee/conflict"
	"github.com/francescomucio/tee/discovery"
	"github.com/francescomucio/tee/model"
	"github.com/francescomucio/tee/otsimport"
	"github.com/francescomucio/tee/resolver"
	"github.com/francescomucio/tee/testlibrary"
)

// imported is the result of loading every discovered imported-module file.
type imported struct {
	Transformations  []model.Transformation
	Functions        []model.Function
	TestLibraryPaths []string // resolved, existing test-library file paths
	Warnings         []string
}

func loadImported(project Project, files []discovery.File) (imported, error) {
	modelsRoot := filepath.Join(project.RootPath, "models")

	var out imported
	for _, f := range files {
		if f.Role != discovery.RoleImportedModule {
			continue
		}

		doc, transformations, functions, err := otsimport.Load(f.Path)
		if err != nil {
			return imported{}, err
		}

		if ok, reason := otsimport.ValidateLocation(doc, f.Path, modelsRoot); !ok {
			if project.StrictModuleLocation {
				return imported{}, &OTSValidationError{File: f.Path, Reasons: []string{reason}}
			}
			out.Warnings = append(out.Warnings, "tee: "+f.Path+": "+reason)
		}

		out.Transformations = append(out.Transformations, transformations...)
		out.Functions = append(out.Functions, functions...)

		if doc.TestLibraryPath != "" {
			candidate := doc.TestLibraryPath
			if !filepath.IsAbs(candidate) {
				candidate = filepath.Join(filepath.Dir(f.Path), candidate)
			}
			if _, err := os.Stat(candidate); err == nil {
				out.TestLibraryPaths = append(out.TestLibraryPaths, candidate)
			}
		}
	}
	return out, nil
}

// merged is the single entity map produced by spec.md §4.11 steps 3-4:
// conflicts detected, first-party and imported entities combined.
type merged struct {
	Transformations []model.Transformation
	Functions       []model.Function
}

func mergeEntities(fp firstParty, imp imported) (merged, error) {
	firstPartyIDs := make([]string, 0, len(fp.Transformations)+len(fp.Functions))
	for _, t := range fp.Transformations {
		firstPartyIDs = append(firstPartyIDs, t.ID)
	}
	for _, f := range fp.Functions {
		firstPartyIDs = append(firstPartyIDs, f.ID)
	}

	importedIDs := make([]string, 0, len(imp.Transformations)+len(imp.Functions))
	for _, t := range imp.Transformations {
		importedIDs = append(importedIDs, t.ID)
	}
	for _, f := range imp.Functions {
		importedIDs = append(importedIDs, f.ID)
	}

	if dups := conflict.Detect(firstPartyIDs, importedIDs); len(dups) > 0 {
		return merged{}, &CompilationError{
			Message:     "duplicate identifiers across first-party and imported sources",
			Identifiers: dups,
		}
	}

	m := merged{
		Transformations: append(append([]model.Transformation(nil), fp.Transformations...), imp.Transformations...),
		Functions:       append(append([]model.Function(nil), fp.Functions...), imp.Functions...),
	}
	resolveFunctionReferences(m)
	return m, nil
}

// resolveFunctionReferences drops function-call identifiers from
// SourceFunctions that do not resolve against the known-function map,
// per spec.md §9's open-question resolution ("unmatched calls are dropped,
// not errored"). Table references are left untouched: an unresolved table
// reference is a legitimate external source (invariant 2).
func resolveFunctionReferences(m merged) {
	known := map[string]bool{}
	for _, f := range m.Functions {
		known[f.ID] = true
	}

	resolve := func(refs []string) []string {
		var out []string
		seen := map[string]bool{}
		for _, ref := range refs {
			qualified, ok := resolver.ResolveFunction(ref, known)
			if !ok {
				continue
			}
			if !seen[qualified] {
				seen[qualified] = true
				out = append(out, qualified)
			}
		}
		return out
	}

	for i := range m.Transformations {
		m.Transformations[i].SourceFunctions = resolve(m.Transformations[i].SourceFunctions)
	}
	for i := range m.Functions {
		m.Functions[i].SourceFunctions = resolve(m.Functions[i].SourceFunctions)
	}
}

// loadImportedTestLibraries loads every existing imported test-library file.
func loadImportedTestLibraries(paths []string) ([]testlibrary.Library, []string) {
	var libs []testlibrary.Library
	var warnings []string
	for _, p := range paths {
		lib, err := testlibrary.Load(p)
		if err != nil {
			warnings = append(warnings, "tee: failed to load imported test library "+p+": "+err.Error())
			continue
		}
		libs = append(libs, lib)
	}
	return libs, warnings
}
