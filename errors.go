// Package tee compiles a data-transformation project (SQL + scripting-language
// sources declaring transformations, functions, and tests) into portable
// transformation modules and a merged test library.
package tee

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per error kind named in SPEC_FULL.md §6.4. Callers
// should use errors.Is against these rather than type-asserting the
// concrete *XxxError structs.
var (
	ErrFileDiscovery        = errors.New("tee: file discovery error")
	ErrSQLParsing           = errors.New("tee: SQL parsing error")
	ErrScriptParsing        = errors.New("tee: script parsing error")
	ErrVariableSubstitution = errors.New("tee: variable substitution error")
	ErrTableResolution      = errors.New("tee: table resolution error")
	ErrDependency           = errors.New("tee: dependency graph error")
	ErrOTSValidation        = errors.New("tee: OTS validation error")
	ErrOTSModuleReader      = errors.New("tee: OTS module reader error")
	ErrOTSConverter         = errors.New("tee: OTS converter error")
	ErrOutputGeneration     = errors.New("tee: output generation error")
	ErrCompilation          = errors.New("tee: compilation error")
)

// FileDiscoveryError wraps an I/O failure encountered while walking the
// project tree.
type FileDiscoveryError struct {
	Path  string
	Cause error
}

func (e *FileDiscoveryError) Error() string {
	return fmt.Sprintf("tee: file discovery error at %q: %s", e.Path, e.Cause)
}

func (e *FileDiscoveryError) Unwrap() error { return e.Cause }

func (e *FileDiscoveryError) Is(target error) bool { return target == ErrFileDiscovery }

// SQLParsingError carries the file path and parser diagnostic for an
// unparseable SQL string. Per SPEC_FULL.md §4.2, the offending file is
// skipped and compilation continues; this error is reported as a
// diagnostic rather than necessarily aborting the run.
type SQLParsingError struct {
	File       string
	Diagnostic string
}

func (e *SQLParsingError) Error() string {
	return fmt.Sprintf("tee: failed to parse SQL in %q: %s", e.File, e.Diagnostic)
}

func (e *SQLParsingError) Is(target error) bool { return target == ErrSQLParsing }

// ScriptParsingError carries the originating file path for a sandboxed
// script execution failure.
type ScriptParsingError struct {
	File  string
	Cause error
}

func (e *ScriptParsingError) Error() string {
	return fmt.Sprintf("tee: failed to execute script %q: %s", e.File, e.Cause)
}

func (e *ScriptParsingError) Unwrap() error { return e.Cause }

func (e *ScriptParsingError) Is(target error) bool { return target == ErrScriptParsing }

// VariableSubstitutionError reports an unresolved required placeholder.
type VariableSubstitutionError struct {
	Variable string
	Message  string
}

func (e *VariableSubstitutionError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("tee: variable substitution error for %q: %s", e.Variable, e.Message)
	}
	return fmt.Sprintf("tee: variable substitution error: %s", e.Message)
}

func (e *VariableSubstitutionError) Is(target error) bool { return target == ErrVariableSubstitution }

// TableResolutionError reports a naming input that violates the resolver's
// directory-derived identifier rules.
type TableResolutionError struct {
	Path    string
	Message string
}

func (e *TableResolutionError) Error() string {
	return fmt.Sprintf("tee: could not resolve name for %q: %s", e.Path, e.Message)
}

func (e *TableResolutionError) Is(target error) bool { return target == ErrTableResolution }

// DependencyError reports a dependency graph construction failure.
type DependencyError struct {
	Message string
	Cause   error
}

func (e *DependencyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tee: failed to build dependency graph: %s: %s", e.Message, e.Cause)
	}
	return fmt.Sprintf("tee: failed to build dependency graph: %s", e.Message)
}

func (e *DependencyError) Unwrap() error { return e.Cause }

func (e *DependencyError) Is(target error) bool { return target == ErrDependency }

// OTSValidationError reports a structural violation found in an imported
// module document.
type OTSValidationError struct {
	File    string
	Reasons []string
}

func (e *OTSValidationError) Error() string {
	return fmt.Sprintf("tee: OTS validation failed for %q: %v", e.File, e.Reasons)
}

func (e *OTSValidationError) Is(target error) bool { return target == ErrOTSValidation }

// OTSModuleReaderError reports an I/O or parse failure while reading an
// imported module file.
type OTSModuleReaderError struct {
	File  string
	Cause error
}

func (e *OTSModuleReaderError) Error() string {
	return fmt.Sprintf("tee: failed to read OTS module %q: %s", e.File, e.Cause)
}

func (e *OTSModuleReaderError) Unwrap() error { return e.Cause }

func (e *OTSModuleReaderError) Is(target error) bool { return target == ErrOTSModuleReader }

// OTSConverterError reports an unsupported construct found while converting
// an imported module document to the internal model.
type OTSConverterError struct {
	File    string
	Message string
}

func (e *OTSConverterError) Error() string {
	return fmt.Sprintf("tee: failed to convert OTS module %q: %s", e.File, e.Message)
}

func (e *OTSConverterError) Is(target error) bool { return target == ErrOTSConverter }

// OutputGenerationError reports a failure while emitting artifacts.
type OutputGenerationError struct {
	Path  string
	Cause error
}

func (e *OutputGenerationError) Error() string {
	return fmt.Sprintf("tee: failed to write output %q: %s", e.Path, e.Cause)
}

func (e *OutputGenerationError) Unwrap() error { return e.Cause }

func (e *OutputGenerationError) Is(target error) bool { return target == ErrOutputGeneration }

// CompilationError reports duplicate identifiers or a post-emission
// revalidation failure. It lists every offending identifier rather than
// just the first, per SPEC_FULL.md §7.
type CompilationError struct {
	Message     string
	Identifiers []string
}

func (e *CompilationError) Error() string {
	if len(e.Identifiers) > 0 {
		return fmt.Sprintf("tee: compilation error: %s: %v", e.Message, e.Identifiers)
	}
	return fmt.Sprintf("tee: compilation error: %s", e.Message)
}

func (e *CompilationError) Is(target error) bool { return target == ErrCompilation }
