// Package otsimport loads, validates, and converts portable module
// documents (the OTS wire format) into the internal model, per SPEC_FULL.md
// §4.7 / spec.md §4.7 / §6.1. The wire-format structs declared here are also
// used by the emitter package to write the same documents back out, so the
// on-disk shape only has one Go-side definition.
package otsimport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/blang/semver"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/francescomucio/tee/model"
)

// AcceptedVersions lists every ots_version a reader must accept, per
// spec.md §6.1. EmittedVersion is the version this compiler writes.
var AcceptedVersions = []string{"0.1.0", "0.2.0", "0.2.1", "0.2.2"}

const EmittedVersion = "0.2.2"

// Target describes the database/schema/dialect a module targets.
type Target struct {
	Database   string `json:"database" yaml:"database"`
	Schema     string `json:"schema" yaml:"schema"`
	SQLDialect string `json:"sql_dialect" yaml:"sql_dialect"`
}

// CodeSQL is a transformation's SQL body, original and resolved.
type CodeSQL struct {
	OriginalSQL     string   `json:"original_sql" yaml:"original_sql"`
	ResolvedSQL     string   `json:"resolved_sql" yaml:"resolved_sql"`
	SourceTables    []string `json:"source_tables,omitempty" yaml:"source_tables,omitempty"`
	SourceFunctions []string `json:"source_functions,omitempty" yaml:"source_functions,omitempty"`
}

// TransformationCode wraps CodeSQL under the "sql" key per the wire format.
type TransformationCode struct {
	SQL CodeSQL `json:"sql" yaml:"sql"`
}

// ColumnDoc is one column of a transformation's declared schema.
type ColumnDoc struct {
	Name        string `json:"name" yaml:"name"`
	Datatype    string `json:"datatype" yaml:"datatype"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// SchemaDoc is a transformation's declared schema section.
type SchemaDoc struct {
	Columns      []ColumnDoc `json:"columns,omitempty" yaml:"columns,omitempty"`
	Partitioning []string    `json:"partitioning,omitempty" yaml:"partitioning,omitempty"`
	Indexes      []string    `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// TestAttachmentDoc is one reference to a named test.
type TestAttachmentDoc struct {
	Name     string         `json:"name" yaml:"name"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Expected any            `json:"expected,omitempty" yaml:"expected,omitempty"`
	Severity string         `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// TestsDoc groups a transformation's column-level and table-level test
// attachments.
type TestsDoc struct {
	Columns map[string][]TestAttachmentDoc `json:"columns,omitempty" yaml:"columns,omitempty"`
	Table   []TestAttachmentDoc            `json:"table,omitempty" yaml:"table,omitempty"`
}

// MetadataDoc carries provenance and free-form tags.
type MetadataDoc struct {
	FilePath   string            `json:"file_path" yaml:"file_path"`
	Tags       []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	ObjectTags map[string]string `json:"object_tags,omitempty" yaml:"object_tags,omitempty"`
}

// TransformationDoc is the wire format of one Transformation entry.
type TransformationDoc struct {
	TransformationID string              `json:"transformation_id" yaml:"transformation_id"`
	Description      string              `json:"description,omitempty" yaml:"description,omitempty"`
	TransformationType string            `json:"transformation_type" yaml:"transformation_type"`
	SQLDialect       string              `json:"sql_dialect" yaml:"sql_dialect"`
	Code             TransformationCode  `json:"code" yaml:"code"`
	Schema           SchemaDoc           `json:"schema,omitempty" yaml:"schema,omitempty"`
	Materialization  model.Materialization `json:"materialization" yaml:"materialization"`
	Tests            TestsDoc            `json:"tests,omitempty" yaml:"tests,omitempty"`
	Metadata         MetadataDoc         `json:"metadata" yaml:"metadata"`
}

// FunctionCode is a function's body, generic plus per-dialect overrides.
type FunctionCode struct {
	GenericSQL        string            `json:"generic_sql" yaml:"generic_sql"`
	DatabaseSpecific  map[string]string `json:"database_specific,omitempty" yaml:"database_specific,omitempty"`
}

// DependenciesDoc is a function's resolved table/function references.
type DependenciesDoc struct {
	Tables    []string `json:"tables,omitempty" yaml:"tables,omitempty"`
	Functions []string `json:"functions,omitempty" yaml:"functions,omitempty"`
}

// FunctionDoc is the wire format of one Function entry.
type FunctionDoc struct {
	FunctionID        string            `json:"function_id" yaml:"function_id"`
	Description       string            `json:"description,omitempty" yaml:"description,omitempty"`
	FunctionType       string            `json:"function_type" yaml:"function_type"`
	Language          string            `json:"language" yaml:"language"`
	Code              FunctionCode      `json:"code" yaml:"code"`
	Parameters        []model.Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	ReturnType        string            `json:"return_type,omitempty" yaml:"return_type,omitempty"`
	ReturnTableSchema []ColumnDoc       `json:"return_table_schema,omitempty" yaml:"return_table_schema,omitempty"`
	Deterministic     bool              `json:"deterministic" yaml:"deterministic"`
	Dependencies      DependenciesDoc   `json:"dependencies" yaml:"dependencies"`
	Metadata          MetadataDoc       `json:"metadata" yaml:"metadata"`
}

// Document is the top-level portable module document (§6.1).
type Document struct {
	OTSVersion        string               `json:"ots_version" yaml:"ots_version"`
	ModuleName        string               `json:"module_name" yaml:"module_name"`
	ModuleDescription string               `json:"module_description,omitempty" yaml:"module_description,omitempty"`
	Target            Target               `json:"target" yaml:"target"`
	Transformations   []TransformationDoc  `json:"transformations" yaml:"transformations"`
	Functions         []FunctionDoc        `json:"functions,omitempty" yaml:"functions,omitempty"`
	TestLibraryPath   string               `json:"test_library_path,omitempty" yaml:"test_library_path,omitempty"`
	Tags              []string             `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// isYAML reports whether path's extension indicates YAML encoding.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func readAsJSON(raw []byte, path string) ([]byte, error) {
	if !isYAML(path) {
		return raw, nil
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, &ModuleReaderError{Path: path, Cause: err}
	}
	converted, err := json.Marshal(yamlToJSONCompatible(generic))
	if err != nil {
		return nil, &ModuleReaderError{Path: path, Cause: err}
	}
	return converted, nil
}

// yamlToJSONCompatible recursively converts map[string]interface{} keys
// (yaml.v3 decodes mappings into map[string]interface{} already, but nested
// sequences of maps need the same walk) so json.Marshal never encounters a
// non-string-keyed map.
func yamlToJSONCompatible(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = yamlToJSONCompatible(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = yamlToJSONCompatible(vv)
		}
		return out
	default:
		return val
	}
}

// ModuleReaderError wraps an I/O or parse failure reading a module file.
type ModuleReaderError struct {
	Path  string
	Cause error
}

func (e *ModuleReaderError) Error() string {
	return "otsimport: failed to read " + e.Path + ": " + e.Cause.Error()
}

func (e *ModuleReaderError) Unwrap() error { return e.Cause }

// ValidationError reports a structural violation found by the JSON-schema
// validator.
type ValidationError struct {
	Path   string
	Issues []string
}

func (e *ValidationError) Error() string {
	return "otsimport: " + e.Path + " failed module validation: " + strings.Join(e.Issues, "; ")
}

// ConverterError reports an unsupported construct encountered while
// converting a validated document into the internal model.
type ConverterError struct {
	Path    string
	Message string
}

func (e *ConverterError) Error() string {
	return "otsimport: " + e.Path + ": " + e.Message
}

// Load reads, validates, and converts the module file at path. It returns
// the parsed Document (for test_library_path and location-validation
// purposes) alongside the converted transformations and functions.
func Load(path string) (*Document, []model.Transformation, []model.Function, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, &ModuleReaderError{Path: path, Cause: err}
	}

	jsonBytes, err := readAsJSON(raw, path)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := validateStructure(jsonBytes, path); err != nil {
		return nil, nil, nil, err
	}

	var doc Document
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, nil, nil, &ModuleReaderError{Path: path, Cause: err}
	}

	if !acceptedVersion(doc.OTSVersion) {
		return nil, nil, nil, &ValidationError{Path: path, Issues: []string{"unsupported ots_version " + doc.OTSVersion}}
	}

	transformations, err := convertTransformations(doc, path)
	if err != nil {
		return nil, nil, nil, err
	}
	functions, err := convertFunctions(doc, path)
	if err != nil {
		return nil, nil, nil, err
	}

	return &doc, transformations, functions, nil
}

func acceptedVersion(v string) bool {
	parsed, err := semver.Parse(v)
	if err != nil {
		return false
	}
	for _, accepted := range AcceptedVersions {
		a, err := semver.Parse(accepted)
		if err == nil && a.EQ(parsed) {
			return true
		}
	}
	return false
}

// moduleSchema is the structural JSON schema a portable module document
// must satisfy, independent of ots_version (version acceptance is checked
// separately via semver so that historical versions upconvert silently
// rather than failing schema validation on a version string mismatch).
const moduleSchema = `{
  "type": "object",
  "required": ["ots_version", "module_name", "target", "transformations"],
  "properties": {
    "ots_version": {"type": "string"},
    "module_name": {"type": "string"},
    "target": {
      "type": "object",
      "required": ["database", "schema", "sql_dialect"]
    },
    "transformations": {"type": "array"},
    "functions": {"type": "array"}
  }
}`

func validateStructure(jsonBytes []byte, path string) error {
	schemaLoader := gojsonschema.NewStringLoader(moduleSchema)
	documentLoader := gojsonschema.NewBytesLoader(jsonBytes)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &ModuleReaderError{Path: path, Cause: err}
	}
	if result.Valid() {
		return nil
	}
	issues := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		issues = append(issues, re.String())
	}
	return &ValidationError{Path: path, Issues: issues}
}
