package tee

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/francescomucio/tee/discovery"
	"github.com/francescomucio/tee/model"
	"github.com/francescomucio/tee/resolver"
	"github.com/francescomucio/tee/scriptmodel"
	"github.com/francescomucio/tee/sqlast"
	"github.com/francescomucio/tee/testlibrary"
	"github.com/francescomucio/tee/variables"
)

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func schemaAndStem(id string) (schema, stem string) {
	if i := strings.LastIndex(id, "."); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}

// collectSchemas lists the immediate sub-directories of root, treated as
// the known schema names for SQL-reference qualification (spec.md §4.2).
// A missing directory yields an empty set rather than an error.
func collectSchemas(root string) map[string]bool {
	schemas := map[string]bool{}
	entries, err := os.ReadDir(root)
	if err != nil {
		return schemas
	}
	for _, e := range entries {
		if e.IsDir() {
			schemas[e.Name()] = true
		}
	}
	return schemas
}

// validateVariables reports a fatal VariableSubstitutionError when sql
// references a required placeholder (no default) absent from values, per
// spec.md §4.4's validation paragraph: "missing placeholders without
// defaults are a fatal substitution error".
func validateVariables(sql, file string, values variables.Values) error {
	result := variables.Validate(sql, values)
	if len(result.Missing) == 0 {
		return nil
	}
	sort.Strings(result.Missing)
	return &VariableSubstitutionError{
		Variable: strings.Join(result.Missing, ", "),
		Message:  "no value or default bound for placeholder(s) referenced in " + file,
	}
}

// abortsCompilation reports whether err represents a fatal condition that
// must abort the whole run rather than being downgraded to a per-file
// warning, per spec.md §7 ("local recovery is confined to per-file
// parsing ... all other errors are fatal").
func abortsCompilation(err error) bool {
	var varErr *VariableSubstitutionError
	return errors.As(err, &varErr)
}

// convertColumnMeta converts a script declaration's column metadata into the
// internal model, including each column's own attached tests.
func convertColumnMeta(cols []scriptmodel.ColumnMeta) []model.Column {
	if len(cols) == 0 {
		return nil
	}
	out := make([]model.Column, 0, len(cols))
	for _, c := range cols {
		out = append(out, model.Column{
			Name:        c.Name,
			Datatype:    c.Datatype,
			Description: c.Description,
			Tests:       convertTestAttachmentMeta(c.Tests),
		})
	}
	return out
}

// convertTestAttachmentMeta converts a script declaration's test-attachment
// metadata into the internal model.
func convertTestAttachmentMeta(atts []scriptmodel.TestAttachmentMeta) []model.TestAttachment {
	if len(atts) == 0 {
		return nil
	}
	out := make([]model.TestAttachment, 0, len(atts))
	for _, a := range atts {
		out = append(out, model.TestAttachment{
			Name:     model.NormalizeTestName(a.Name),
			Params:   a.Params,
			Expected: a.Expected,
			Severity: a.Severity,
		})
	}
	return out
}

// firstParty is the result of parsing every discovered first-party file.
type firstParty struct {
	Transformations []model.Transformation
	Functions       []model.Function
	TestLibrary     testlibrary.Library
	Warnings        []string
}

func parseFirstParty(project Project, files []discovery.File) (firstParty, error) {
	modelsRoot := filepath.Join(project.RootPath, "models")
	functionsRoot := filepath.Join(project.RootPath, "functions")

	knownSchemas := collectSchemas(modelsRoot)
	for s := range collectSchemas(functionsRoot) {
		knownSchemas[s] = true
	}

	res := resolver.New(resolver.ConnectionType(project.Connection))
	out := firstParty{
		TestLibrary: testlibrary.Build(project.Name, map[string]model.GenericTest{}, map[string]model.SingularTest{}),
	}

	for _, f := range files {
		switch f.Role {
		case discovery.RoleModel:
			switch f.Language {
			case discovery.LanguageSQL:
				t, warn, err := parseSQLModel(f, project, res, modelsRoot, knownSchemas)
				if err != nil {
					if abortsCompilation(err) {
						return firstParty{}, err
					}
					out.Warnings = append(out.Warnings, err.Error())
					continue
				}
				if warn != "" {
					out.Warnings = append(out.Warnings, warn)
				}
				out.Transformations = append(out.Transformations, t)
			case discovery.LanguageScript:
				ts, warnings, err := parseScriptModels(f, project)
				if err != nil {
					if abortsCompilation(err) {
						return firstParty{}, err
					}
					out.Warnings = append(out.Warnings, err.Error())
					continue
				}
				out.Transformations = append(out.Transformations, ts...)
				out.Warnings = append(out.Warnings, warnings...)
			}

		case discovery.RoleFunction:
			switch f.Language {
			case discovery.LanguageSQL:
				fn, err := parseSQLFunction(f, project, res, functionsRoot, knownSchemas)
				if err != nil {
					if abortsCompilation(err) {
						return firstParty{}, err
					}
					out.Warnings = append(out.Warnings, err.Error())
					continue
				}
				out.Functions = append(out.Functions, fn)
			case discovery.LanguageScript:
				fns, warnings, err := parseScriptFunctions(f, project)
				if err != nil {
					if abortsCompilation(err) {
						return firstParty{}, err
					}
					out.Warnings = append(out.Warnings, err.Error())
					continue
				}
				out.Functions = append(out.Functions, fns...)
				out.Warnings = append(out.Warnings, warnings...)
			}

		case discovery.RoleTest:
			switch f.Language {
			case discovery.LanguageSQL:
				raw, err := os.ReadFile(f.Path)
				if err != nil {
					out.Warnings = append(out.Warnings, err.Error())
					continue
				}
				name := testNameFromPath(f.Path)
				override := testOverride{}
				if f.CompanionScript != "" {
					decls, derr := scriptmodel.Extract(f.CompanionScript, project.Variables)
					if derr != nil {
						out.Warnings = append(out.Warnings, derr.Error())
					} else {
						for _, d := range decls {
							if d.Kind != scriptmodel.KindTest {
								continue
							}
							if d.Name != "" {
								name = d.Name
							}
							override = testOverride{Description: d.Description, Severity: d.Severity, Tags: d.Tags}
							break
						}
					}
				}
				registerTest(&out.TestLibrary, name, string(raw), override)
			case discovery.LanguageScript:
				decls, err := scriptmodel.Extract(f.Path, project.Variables)
				if err != nil {
					out.Warnings = append(out.Warnings, err.Error())
					continue
				}
				for _, d := range decls {
					if d.Kind != scriptmodel.KindTest {
						continue
					}
					registerTest(&out.TestLibrary, d.Name, d.SQL, testOverride{Description: d.Description, Severity: d.Severity, Tags: d.Tags})
				}
			}
		}
	}

	sort.Slice(out.Transformations, func(i, j int) bool { return out.Transformations[i].ID < out.Transformations[j].ID })
	sort.Slice(out.Functions, func(i, j int) bool { return out.Functions[i].ID < out.Functions[j].ID })

	return out, nil
}

func testNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func parseSQLModel(f discovery.File, project Project, res *resolver.Resolver, modelsRoot string, knownSchemas map[string]bool) (model.Transformation, string, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return model.Transformation{}, "", err
	}

	id, err := res.TableIdentifier(f.Path, modelsRoot)
	if err != nil {
		return model.Transformation{}, "", err
	}
	schema, _ := schemaAndStem(id)

	var desc string
	var tags []string
	var columns []model.Column
	var tableTests []model.TestAttachment
	var objectTags map[string]string
	if f.CompanionScript != "" {
		decls, err := scriptmodel.Extract(f.CompanionScript, project.Variables)
		if err == nil {
			for _, d := range decls {
				if d.Kind == scriptmodel.KindModel {
					desc, tags = d.Description, d.Tags
					columns = convertColumnMeta(d.Schema)
					tableTests = convertTestAttachmentMeta(d.TableTests)
					objectTags = d.ObjectTags
					break
				}
			}
		}
	}

	original := string(raw)
	qualified := sqlast.Qualify(original, schema, knownSchemas)
	if err := validateVariables(qualified, f.Path, project.Variables); err != nil {
		return model.Transformation{}, "", err
	}
	resolved := variables.Substitute(qualified, project.Variables)

	analysis, err := sqlast.Analyze(resolved)
	var warn string
	if err != nil {
		warn = "tee: failed to parse SQL in " + f.Path + ": " + err.Error()
	}

	return model.Transformation{
		ID:              id,
		Schema:          schema,
		Description:     desc,
		OriginalSQL:     original,
		ResolvedSQL:     resolved,
		SourceTables:    analysis.SourceTables,
		SourceFunctions: analysis.SourceFunctions,
		Materialization: model.Materialization{Type: model.MaterializationTable},
		Columns:         columns,
		TableTests:      tableTests,
		Tags:            tags,
		ObjectTags:      objectTags,
		Provenance:      model.Provenance{SourceFile: f.Path, ContentHash: contentHash(raw)},
	}, warn, nil
}

func parseScriptModels(f discovery.File, project Project) ([]model.Transformation, []string, error) {
	decls, err := scriptmodel.Extract(f.Path, project.Variables)
	if err != nil {
		return nil, nil, err
	}

	raw, _ := os.ReadFile(f.Path)
	hash := contentHash(raw)

	var out []model.Transformation
	var warnings []string
	for _, d := range decls {
		if d.Kind != scriptmodel.KindModel {
			continue
		}
		schema, _ := schemaAndStem(d.Name)
		if verr := validateVariables(d.SQL, f.Path, project.Variables); verr != nil {
			return nil, nil, verr
		}
		resolved := variables.Substitute(d.SQL, project.Variables)
		analysis, err := sqlast.Analyze(resolved)
		if err != nil {
			warnings = append(warnings, "tee: failed to parse SQL declared by "+f.Path+": "+err.Error())
			continue
		}
		out = append(out, model.Transformation{
			ID:              d.Name,
			Schema:          schema,
			Description:     d.Description,
			OriginalSQL:     d.SQL,
			ResolvedSQL:     resolved,
			SourceTables:    analysis.SourceTables,
			SourceFunctions: analysis.SourceFunctions,
			Materialization: model.Materialization{Type: model.MaterializationTable},
			Columns:         convertColumnMeta(d.Schema),
			TableTests:      convertTestAttachmentMeta(d.TableTests),
			Tags:            d.Tags,
			ObjectTags:      d.ObjectTags,
			Provenance:      model.Provenance{SourceFile: f.Path, ContentHash: hash},
		})
	}
	return out, warnings, nil
}

func parseSQLFunction(f discovery.File, project Project, res *resolver.Resolver, functionsRoot string, knownSchemas map[string]bool) (model.Function, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return model.Function{}, err
	}

	var explicitSchema, explicitName string
	var desc string
	var tags []string
	var returnSchema []model.Column
	var tests []model.TestAttachment
	var objectTags map[string]string
	kind := model.FunctionScalar
	if f.CompanionScript != "" {
		decls, derr := scriptmodel.Extract(f.CompanionScript, project.Variables)
		if derr == nil {
			for _, d := range decls {
				if d.Kind == scriptmodel.KindFunction {
					desc, tags = d.Description, d.Tags
					returnSchema = convertColumnMeta(d.Schema)
					tests = convertTestAttachmentMeta(d.TableTests)
					objectTags = d.ObjectTags
					if d.FunctionKind == string(model.FunctionTable) {
						kind = model.FunctionTable
					}
					break
				}
			}
		}
	}

	id, err := res.FunctionIdentifier(f.Path, functionsRoot, explicitSchema, explicitName)
	if err != nil {
		return model.Function{}, err
	}
	schema, _ := schemaAndStem(id)

	original := string(raw)
	qualified := sqlast.Qualify(original, schema, knownSchemas)
	if err := validateVariables(qualified, f.Path, project.Variables); err != nil {
		return model.Function{}, err
	}
	resolved := variables.Substitute(qualified, project.Variables)
	analysis, _ := sqlast.Analyze(resolved)

	return model.Function{
		ID:                id,
		Schema:            schema,
		Description:       desc,
		Kind:              kind,
		Language:          "sql",
		OriginalSQL:       original,
		ResolvedSQL:       resolved,
		SourceTables:      analysis.SourceTables,
		SourceFunctions:   analysis.SourceFunctions,
		ReturnTableSchema: returnSchema,
		Tests:             tests,
		Tags:              tags,
		ObjectTags:        objectTags,
		Deterministic:     true,
		Provenance:        model.Provenance{SourceFile: f.Path, ContentHash: contentHash(raw)},
	}, nil
}

func parseScriptFunctions(f discovery.File, project Project) ([]model.Function, []string, error) {
	decls, err := scriptmodel.Extract(f.Path, project.Variables)
	if err != nil {
		return nil, nil, err
	}
	raw, _ := os.ReadFile(f.Path)
	hash := contentHash(raw)

	var out []model.Function
	var warnings []string
	for _, d := range decls {
		if d.Kind != scriptmodel.KindFunction {
			continue
		}
		schema, _ := schemaAndStem(d.Name)
		if verr := validateVariables(d.SQL, f.Path, project.Variables); verr != nil {
			return nil, nil, verr
		}
		resolved := variables.Substitute(d.SQL, project.Variables)
		analysis, aerr := sqlast.Analyze(resolved)
		if aerr != nil {
			warnings = append(warnings, "tee: failed to parse SQL declared by "+f.Path+": "+aerr.Error())
			continue
		}
		kind := model.FunctionScalar
		if d.FunctionKind == string(model.FunctionTable) {
			kind = model.FunctionTable
		}
		out = append(out, model.Function{
			ID:                d.Name,
			Schema:            schema,
			Description:       d.Description,
			Kind:              kind,
			Language:          "sql",
			OriginalSQL:       d.SQL,
			ResolvedSQL:       resolved,
			SourceTables:      analysis.SourceTables,
			SourceFunctions:   analysis.SourceFunctions,
			ReturnTableSchema: convertColumnMeta(d.Schema),
			Tests:             convertTestAttachmentMeta(d.TableTests),
			Tags:              d.Tags,
			ObjectTags:        d.ObjectTags,
			Deterministic:     true,
			Provenance:        model.Provenance{SourceFile: f.Path, ContentHash: hash},
		})
	}
	return out, warnings, nil
}

// testOverride carries the description/severity/tags a companion script (or
// a script-declared test) contributes on top of the SQL body itself, per
// spec.md §4.3 shape 3.
type testOverride struct {
	Description string
	Severity    string
	Tags        []string
}

// placeholder patterns recognized when classifying a test-library entry,
// per spec.md §4.10 / §3 Test Definition ("@table_name", "@column_name",
// "@function_name" or their {{ }} forms mark a generic test).
var (
	columnNamePlaceholder   = regexp.MustCompile(`@column_name\b|\{\{\s*column_name\s*\}\}`)
	tableNamePlaceholder    = regexp.MustCompile(`@table_name\b|\{\{\s*table_name\s*\}\}`)
	functionNamePlaceholder = regexp.MustCompile(`@function_name\b|\{\{\s*function_name\s*\}\}`)
	singularTarget          = regexp.MustCompile(`(?i)FROM\s+([A-Za-z_][\w]*\.[A-Za-z_][\w]*)`)
	genericParamAt          = regexp.MustCompile(`@(\w+)`)
	genericParamJinja       = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)
)

var reservedTestPlaceholders = map[string]bool{
	"table_name": true, "column_name": true, "function_name": true,
}

// registerTest classifies sql as a generic or singular test and adds it to
// lib under name, per spec.md §4.10 step 1 / §3 Test Definition. override's
// Description, when set, wins over the SQL's leading comment; its Severity
// and Tags have no slot in the test library wire format (§6.2) and so are
// only captured on the model's internal DefaultSeverity/Tags fields.
func registerTest(lib *testlibrary.Library, name, sql string, override testOverride) {
	desc := extractLeadingComment(sql)
	if override.Description != "" {
		desc = override.Description
	}
	body := sql

	switch {
	case columnNamePlaceholder.MatchString(sql):
		lib.GenericTests[name] = model.GenericTest{
			Type: "sql", Level: model.TestLevelColumn, Description: desc, SQL: body,
			Parameters:      extractParameters(sql),
			DefaultSeverity: override.Severity,
			Tags:            override.Tags,
		}
	case functionNamePlaceholder.MatchString(sql):
		lib.GenericTests[name] = model.GenericTest{
			Type: "sql", Level: model.TestLevelFunction, Description: desc, SQL: body,
			Parameters:      extractParameters(sql),
			DefaultSeverity: override.Severity,
			Tags:            override.Tags,
		}
	case tableNamePlaceholder.MatchString(sql):
		lib.GenericTests[name] = model.GenericTest{
			Type: "sql", Level: model.TestLevelTable, Description: desc, SQL: body,
			Parameters:      extractParameters(sql),
			DefaultSeverity: override.Severity,
			Tags:            override.Tags,
		}
	default:
		target := ""
		if m := singularTarget.FindStringSubmatch(sql); m != nil {
			target = m[1]
		}
		lib.SingularTests[name] = model.SingularTest{
			Type: "sql", Level: model.TestLevelTable, Description: desc, SQL: body,
			TargetTransformation: target,
			DefaultSeverity:      override.Severity,
			Tags:                 override.Tags,
		}
	}
}

func extractLeadingComment(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if !strings.HasPrefix(trimmed, "--") {
		return ""
	}
	line := trimmed
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		line = trimmed[:i]
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "--"))
}

func extractParameters(sql string) map[string]model.ParamSchema {
	params := map[string]model.ParamSchema{}
	add := func(name string) {
		if reservedTestPlaceholders[name] {
			return
		}
		params[name] = model.ParamSchema{Type: "string"}
	}
	for _, m := range genericParamAt.FindAllStringSubmatch(sql, -1) {
		add(m[1])
	}
	for _, m := range genericParamJinja.FindAllStringSubmatch(sql, -1) {
		add(m[1])
	}
	if len(params) == 0 {
		return nil
	}
	return params
}
