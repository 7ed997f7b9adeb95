// Package discovery walks a project tree and classifies each source file by
// role (model, function, test, imported-module) and language (SQL, script),
// per SPEC_FULL.md §4.1.
package discovery

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Role is what a discovered file declares.
type Role string

const (
	RoleModel           Role = "model"
	RoleFunction        Role = "function"
	RoleTest            Role = "test"
	RoleImportedModule  Role = "imported-module"
)

// Language is the source language of a discovered file.
type Language string

const (
	LanguageSQL    Language = "sql"
	LanguageScript Language = "script"
)

// ScriptExtensions lists the recognized scripting-language file extensions.
// The embedded interpreter (scriptmodel package) runs Go source, so the
// scripting surface is Go rather than the original source project's Python;
// callers may extend this list.
var ScriptExtensions = []string{".tee.go"}

const (
	modelsDir    = "models"
	functionsDir = "functions"
	testsDir     = "tests"

	otsJSONSuffix = ".ots.json"
	otsYAMLSuffix = ".ots.yaml"
)

// File is one discovered, classified source file.
type File struct {
	Path     string // absolute or project-relative path, as given by the walk root
	Role     Role
	Language Language

	// CompanionScript is set on a discovered SQL file's File when a
	// same-stem, same-directory script file exists alongside it; that
	// script file is metadata-only and is not independently classified
	// (SPEC_FULL.md §4.1).
	CompanionScript string
}

// Discover walks root and returns every classified file. A missing
// models/functions/tests sub-directory is not an error; the File set
// for that role is simply empty (SPEC_FULL.md §4.1).
func Discover(root string) ([]File, error) {
	var all []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A single unreadable entry should not abort discovery of the
			// rest of the tree; skip it.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		all = append(all, path)
		return nil
	})
	if err != nil {
		return nil, &Error{Path: root, Cause: err}
	}
	sort.Strings(all)

	exists := make(map[string]bool, len(all))
	for _, p := range all {
		exists[p] = true
	}

	var files []File
	for _, p := range all {
		if isOTSFile(p) {
			files = append(files, File{Path: p, Role: RoleImportedModule, Language: detectLanguage(p)})
			continue
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			rel = p
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) == 0 {
			continue
		}

		var role Role
		switch parts[0] {
		case modelsDir:
			role = RoleModel
		case functionsDir:
			role = RoleFunction
		case testsDir:
			role = RoleTest
		default:
			continue
		}

		lang := detectLanguage(p)
		if lang == "" {
			continue
		}

		if lang == LanguageScript && hasSQLCompanion(p, exists) {
			// A script file accompanying a SQL file of the same stem is
			// metadata-only; it is consumed by the SQL file's parser, not
			// classified on its own.
			continue
		}

		f := File{Path: p, Role: role, Language: lang}
		if lang == LanguageSQL {
			if companion, ok := scriptCompanion(p, exists); ok {
				f.CompanionScript = companion
			}
		}
		files = append(files, f)
	}

	return files, nil
}

func isOTSFile(path string) bool {
	return strings.HasSuffix(path, otsJSONSuffix) || strings.HasSuffix(path, otsYAMLSuffix)
}

func detectLanguage(path string) Language {
	if strings.HasSuffix(path, ".sql") {
		return LanguageSQL
	}
	base := filepath.Base(path)
	for _, se := range ScriptExtensions {
		if strings.HasSuffix(base, se) {
			return LanguageScript
		}
	}
	return ""
}

func scriptStem(scriptPath string) (string, bool) {
	base := filepath.Base(scriptPath)
	for _, se := range ScriptExtensions {
		if strings.HasSuffix(base, se) {
			return strings.TrimSuffix(base, se), true
		}
	}
	return "", false
}

func hasSQLCompanion(scriptPath string, exists map[string]bool) bool {
	stem, ok := scriptStem(scriptPath)
	if !ok {
		return false
	}
	dir := filepath.Dir(scriptPath)
	return exists[filepath.Join(dir, stem+".sql")]
}

func scriptCompanion(sqlPath string, exists map[string]bool) (string, bool) {
	dir := filepath.Dir(sqlPath)
	base := strings.TrimSuffix(filepath.Base(sqlPath), ".sql")
	for _, ext := range ScriptExtensions {
		candidate := filepath.Join(dir, base+ext)
		if exists[candidate] {
			return candidate, true
		}
	}
	return "", false
}

// Error wraps an I/O failure encountered while walking the project tree.
type Error struct {
	Path  string
	Cause error
}

func (e *Error) Error() string {
	return "discovery: failed to walk " + e.Path + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }
