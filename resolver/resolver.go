// Package resolver derives fully-qualified identifiers from source file
// paths and resolves partial SQL references against the set of known
// entities, per SPEC_FULL.md §4.5.
package resolver

import (
	"path/filepath"
	"strings"
)

// ConnectionType selects the directory-to-identifier convention. Only
// "duckdb" has a distinct first-parent-folder rule in the original source;
// every other connection type falls back to the generic path-to-dots rule
// (original_source/tee/parser/analysis/table_resolver.py).
type ConnectionType string

const DuckDB ConnectionType = "duckdb"

// Resolver derives identifiers for files under a models/ or functions/ root
// and resolves partial references against known-entity maps.
type Resolver struct {
	Connection ConnectionType
}

// New returns a Resolver for the given connection type.
func New(connection ConnectionType) *Resolver {
	return &Resolver{Connection: connection}
}

// TableIdentifier returns the fully-qualified identifier for a model file,
// per SPEC_FULL.md §4.5: "models/<schema>/<stem>.<ext>" -> "schema.stem";
// a file directly under "models/" -> the bare stem.
func (r *Resolver) TableIdentifier(sqlFile, modelsRoot string) (string, error) {
	return r.identifier(sqlFile, modelsRoot)
}

// FunctionIdentifier returns the fully-qualified identifier for a function
// file. An explicit schema in metadata overrides the directory-derived
// schema.
func (r *Resolver) FunctionIdentifier(functionFile, functionsRoot, explicitSchema, functionName string) (string, error) {
	if explicitSchema != "" {
		if functionName == "" {
			return "", &Error{Path: functionFile, Message: "missing function name"}
		}
		return explicitSchema + "." + functionName, nil
	}
	if functionName != "" {
		id, err := r.identifierFromDir(functionFile, functionsRoot)
		if err != nil {
			return "", err
		}
		if !strings.Contains(id, ".") {
			return functionName, nil
		}
		schema := id[:strings.LastIndex(id, ".")]
		return schema + "." + functionName, nil
	}
	return r.identifier(functionFile, functionsRoot)
}

func (r *Resolver) identifier(file, root string) (string, error) {
	return r.identifierFromDir(file, root)
}

func (r *Resolver) identifierFromDir(file, root string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", &Error{Path: file, Message: err.Error()}
	}
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	stem := stemOf(parts[len(parts)-1])

	if r.Connection == DuckDB || r.Connection == "" {
		if len(parts) >= 2 {
			schema := parts[0]
			return schema + "." + stem, nil
		}
		return stem, nil
	}

	// Non-duckdb: dots replace path separators, extensions stripped.
	joined := strings.Join(append(parts[:len(parts)-1], stem), ".")
	return joined, nil
}

func stemOf(filename string) string {
	base := filename
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}

// ResolveTable resolves a partial table reference against the known
// entities map: exact match first, else a unique suffix match, else it is
// treated as external (not an error — SPEC_FULL.md invariant 2).
func ResolveTable(ref string, known map[string]bool) (string, bool) {
	return resolveBySuffix(ref, known)
}

// ResolveFunction resolves a partial function reference the same way.
func ResolveFunction(ref string, known map[string]bool) (string, bool) {
	return resolveBySuffix(ref, known)
}

func resolveBySuffix(ref string, known map[string]bool) (string, bool) {
	if known[ref] {
		return ref, true
	}
	parts := strings.Split(ref, ".")
	last := parts[len(parts)-1]
	var match string
	count := 0
	for name := range known {
		nameParts := strings.Split(name, ".")
		if nameParts[len(nameParts)-1] == last {
			match = name
			count++
		}
	}
	if count == 1 {
		return match, true
	}
	return "", false
}

// Error reports a naming input that violates the resolver's rules.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	return "resolver: " + e.Path + ": " + e.Message
}
