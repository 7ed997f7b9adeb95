// Package scriptmodel runs a scripting-language source file in a sandboxed,
// per-file interpreter and collects the models, functions, and tests it
// declares, per SPEC_FULL.md §4.3 / spec.md §4.3.
//
// The original source project's scripting surface is Python, executed
// directly by the CPython interpreter. A statically-typed Go port has no
// such interpreter available for Python; per spec.md §9's own design note
// ("the script extractor presents each script file to a small embedded
// interpreter ... No process-global state"), this package embeds
// github.com/traefik/yaegi and treats the scripting surface as Go source.
// Each script file is evaluated by a freshly constructed interp.Interpreter
// exposing a "tee" package of registration helpers; nothing is shared
// between files.
package scriptmodel

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/francescomucio/tee/variables"
)

// DeclarationKind classifies an entity declared by a script file.
type DeclarationKind string

const (
	KindModel    DeclarationKind = "model"
	KindFunction DeclarationKind = "function"
	KindTest     DeclarationKind = "test"
)

// TestAttachmentMeta is one reference to a named test in the test library,
// attached to a column, a table, or a function from a script declaration's
// schema/tests kwargs.
type TestAttachmentMeta struct {
	Name     string
	Params   map[string]any
	Expected any
	Severity string
}

// ColumnMeta declares one column of a model's or function's schema, with its
// own attached tests, mirroring the original's `schema=[{"name": ..., "tests":
// [...]}, ...]` keyword argument.
type ColumnMeta struct {
	Name        string
	Datatype    string
	Description string
	Tests       []TestAttachmentMeta
}

// ModelMeta is the optional metadata a script passes to tee.CreateModel /
// tee.Model, mirroring the original @model decorator's keyword arguments.
type ModelMeta struct {
	Description string
	Variables   []string
	Tags        []string
	Schema      []ColumnMeta
	Tests       []TestAttachmentMeta // table-level test attachments
	ObjectTags  map[string]string
}

// FunctionMeta is the optional metadata a script passes to tee.CreateFunction.
type FunctionMeta struct {
	Kind        string // "scalar" or "table"; defaults to "scalar"
	Description string
	Tags        []string
	Schema      []ColumnMeta // return-table schema, table-valued functions only
	Tests       []TestAttachmentMeta
	ObjectTags  map[string]string
}

// TestMeta is the optional metadata a script passes to tee.CreateTest /
// tee.Test, mirroring the original @test decorator's keyword arguments. Name
// is only meaningful on tee.DeclareTest, the metadata+companion-SQL shape,
// where there is no separate name argument to carry the override.
type TestMeta struct {
	Name        string
	Severity    string // defaults to "error"
	Description string
	Tags        []string
}

// Declaration is one model, function, or test registered by a script file.
type Declaration struct {
	Kind         DeclarationKind
	Name         string
	SQL          string
	Description  string
	Variables    []string
	Tags         []string
	Severity     string
	FunctionKind string
	Schema       []ColumnMeta
	TableTests   []TestAttachmentMeta
	ObjectTags   map[string]string
}

// registry accumulates declarations for exactly one script file. It must
// never be shared across files: two files sharing a registry would let one
// file's factory calls collide with another's, defeating the per-file
// isolation spec.md §4.3 requires for name-conflict detection.
type registry struct {
	file    string
	values  variables.Values
	decls   []Declaration
	counter int
}

func (r *registry) name(explicit string) string {
	if explicit != "" {
		return explicit
	}
	r.counter++
	return DeriveName(r.file, fmt.Sprintf("decl%d", r.counter))
}

func (r *registry) CreateModel(name, sql string, meta ModelMeta) {
	r.decls = append(r.decls, Declaration{
		Kind:        KindModel,
		Name:        r.name(name),
		SQL:         sql,
		Description: meta.Description,
		Variables:   meta.Variables,
		Tags:        meta.Tags,
		Schema:      meta.Schema,
		TableTests:  meta.Tests,
		ObjectTags:  meta.ObjectTags,
	})
}

func (r *registry) Model(name string, fn func() string, meta ModelMeta) {
	r.CreateModel(name, fn(), meta)
}

func (r *registry) CreateFunction(name, sql string, meta FunctionMeta) {
	kind := meta.Kind
	if kind == "" {
		kind = "scalar"
	}
	r.decls = append(r.decls, Declaration{
		Kind:         KindFunction,
		Name:         r.name(name),
		SQL:          sql,
		Description:  meta.Description,
		Tags:         meta.Tags,
		FunctionKind: kind,
		Schema:       meta.Schema,
		TableTests:   meta.Tests,
		ObjectTags:   meta.ObjectTags,
	})
}

func (r *registry) CreateTest(name, sql string, meta TestMeta) {
	severity := meta.Severity
	if severity == "" {
		severity = "error"
	}
	r.decls = append(r.decls, Declaration{
		Kind:        KindTest,
		Name:        r.name(name),
		SQL:         sql,
		Description: meta.Description,
		Tags:        meta.Tags,
		Severity:    severity,
	})
}

func (r *registry) Test(name string, fn func() string, meta TestMeta) {
	r.CreateTest(name, fn(), meta)
}

// DeclareTest registers a metadata-only declaration for the "metadata +
// companion SQL" shape (spec.md §4.3 shape 3, the original's
// SqlTestMetadata(name=..., severity=...)): the script carries only name,
// severity, description, and tags, and the caller pairs it with the SQL
// read from a same-stem .sql file. Unlike CreateModel/CreateFunction/
// CreateTest, Name is taken verbatim (possibly empty) rather than derived
// from the script's own path, since the companion SQL file's identity is
// what actually matters for naming.
func (r *registry) DeclareTest(meta TestMeta) {
	severity := meta.Severity
	if severity == "" {
		severity = "error"
	}
	r.decls = append(r.decls, Declaration{
		Kind:        KindTest,
		Name:        meta.Name,
		Description: meta.Description,
		Tags:        meta.Tags,
		Severity:    severity,
	})
}

// Var resolves a project variable by dot-path, for use inside a model or
// test callable body — the Go-native equivalent of the original decorator's
// "variables=[...] injected into the function's namespace" behavior.
func (r *registry) Var(path string) any {
	v, _ := variables.Lookup(r.values, path)
	return v
}

// VarString is Var with a string conversion, for callables that build SQL
// text via concatenation or fmt.Sprintf.
func (r *registry) VarString(path string) string {
	v := r.Var(path)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// DeriveName implements spec.md §4.3's default naming rule:
// "<parent_directory_name>__<file_stem>__<callable_name>", collapsed to
// "<file_stem>__<callable_name>" when the parent directory is the top-level
// tests directory.
func DeriveName(file, callableName string) string {
	dir := filepath.Dir(file)
	stem := filepath.Base(file)
	if i := strings.Index(stem, "."); i >= 0 {
		stem = stem[:i] // "check.tee.go" -> "check"
	}
	parent := filepath.Base(dir)
	if parent == "tests" || parent == "." || parent == "" {
		return stem + "__" + callableName
	}
	return parent + "__" + stem + "__" + callableName
}

// Extract runs the script at path through a fresh interpreter and returns
// its declarations. values supplies the project variable map available to
// callables via tee.Var / tee.VarString.
func Extract(path string, values variables.Values) ([]Declaration, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{File: path, Cause: err}
	}

	reg := &registry{file: path, values: values}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, &Error{File: path, Cause: err}
	}
	if err := i.Use(teeExports(reg)); err != nil {
		return nil, &Error{File: path, Cause: err}
	}

	if _, err := i.Eval(string(src)); err != nil {
		return nil, &Error{File: path, Cause: err}
	}

	return reg.decls, nil
}

// teeExports binds reg's methods into the "tee/tee" package symbol table a
// script imports as `import "tee/tee"`.
func teeExports(reg *registry) interp.Exports {
	return interp.Exports{
		"tee/tee": map[string]reflect.Value{
			"CreateModel":        reflect.ValueOf(reg.CreateModel),
			"Model":              reflect.ValueOf(reg.Model),
			"CreateFunction":     reflect.ValueOf(reg.CreateFunction),
			"CreateTest":         reflect.ValueOf(reg.CreateTest),
			"Test":               reflect.ValueOf(reg.Test),
			"DeclareTest":        reflect.ValueOf(reg.DeclareTest),
			"Var":                reflect.ValueOf(reg.Var),
			"VarString":          reflect.ValueOf(reg.VarString),
			"ModelMeta":          reflect.ValueOf((*ModelMeta)(nil)),
			"FunctionMeta":       reflect.ValueOf((*FunctionMeta)(nil)),
			"TestMeta":           reflect.ValueOf((*TestMeta)(nil)),
			"ColumnMeta":         reflect.ValueOf((*ColumnMeta)(nil)),
			"TestAttachmentMeta": reflect.ValueOf((*TestAttachmentMeta)(nil)),
		},
	}
}

// Error reports a script execution failure, with the originating file path
// attached as spec.md §4.3 requires.
type Error struct {
	File  string
	Cause error
}

func (e *Error) Error() string {
	return "scriptmodel: " + e.File + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }
