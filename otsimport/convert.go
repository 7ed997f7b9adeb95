package otsimport

import (
	"path/filepath"
	"strings"

	"github.com/francescomucio/tee/model"
)

func schemaOf(moduleName string) string {
	if i := strings.LastIndex(moduleName, "."); i >= 0 {
		return moduleName[i+1:]
	}
	return moduleName
}

func convertTransformations(doc Document, path string) ([]model.Transformation, error) {
	schema := schemaOf(doc.ModuleName)
	out := make([]model.Transformation, 0, len(doc.Transformations))
	for _, t := range doc.Transformations {
		if t.TransformationType != "" && t.TransformationType != "sql" {
			return nil, &ConverterError{Path: path, Message: "unsupported transformation_type " + t.TransformationType + " for " + t.TransformationID}
		}

		columns := make([]model.Column, 0, len(t.Schema.Columns))
		for _, c := range t.Schema.Columns {
			col := model.Column{Name: c.Name, Datatype: c.Datatype, Description: c.Description}
			if attachments, ok := t.Tests.Columns[c.Name]; ok {
				col.Tests = convertAttachments(attachments)
			}
			columns = append(columns, col)
		}

		out = append(out, model.Transformation{
			ID:              t.TransformationID,
			Schema:          schema,
			Description:     t.Description,
			OriginalSQL:     t.Code.SQL.OriginalSQL,
			ResolvedSQL:     t.Code.SQL.ResolvedSQL,
			SourceTables:    t.Code.SQL.SourceTables,
			SourceFunctions: t.Code.SQL.SourceFunctions,
			Materialization: t.Materialization,
			Columns:         columns,
			Partitioning:    t.Schema.Partitioning,
			Indexes:         t.Schema.Indexes,
			TableTests:      convertAttachments(t.Tests.Table),
			Tags:            t.Metadata.Tags,
			ObjectTags:      t.Metadata.ObjectTags,
			Provenance:      model.Provenance{SourceFile: t.Metadata.FilePath},
		})
	}
	return out, nil
}

func convertAttachments(docs []TestAttachmentDoc) []model.TestAttachment {
	if len(docs) == 0 {
		return nil
	}
	out := make([]model.TestAttachment, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.TestAttachment{
			Name:     model.NormalizeTestName(d.Name),
			Params:   d.Params,
			Expected: d.Expected,
			Severity: d.Severity,
		})
	}
	return out
}

func convertFunctions(doc Document, path string) ([]model.Function, error) {
	schema := schemaOf(doc.ModuleName)
	out := make([]model.Function, 0, len(doc.Functions))
	for _, f := range doc.Functions {
		kind := model.FunctionKind(f.FunctionType)
		if kind != model.FunctionScalar && kind != model.FunctionTable {
			return nil, &ConverterError{Path: path, Message: "unsupported function_type " + f.FunctionType + " for " + f.FunctionID}
		}

		var returnTableSchema []model.Column
		for _, c := range f.ReturnTableSchema {
			returnTableSchema = append(returnTableSchema, model.Column{Name: c.Name, Datatype: c.Datatype, Description: c.Description})
		}

		out = append(out, model.Function{
			ID:                f.FunctionID,
			Schema:            schema,
			Description:       f.Description,
			Kind:              kind,
			Language:          f.Language,
			OriginalSQL:       f.Code.GenericSQL,
			ResolvedSQL:       f.Code.GenericSQL,
			Parameters:        f.Parameters,
			ReturnType:        f.ReturnType,
			ReturnTableSchema: returnTableSchema,
			Deterministic:     f.Deterministic,
			SourceTables:      f.Dependencies.Tables,
			SourceFunctions:   f.Dependencies.Functions,
			Tags:              f.Metadata.Tags,
			ObjectTags:        f.Metadata.ObjectTags,
			Provenance:        model.Provenance{SourceFile: f.Metadata.FilePath},
		})
	}
	return out, nil
}

// ValidateLocation checks that an imported module's target schema matches
// the directory under modelsRoot in which the module file resides, per
// spec.md §4.7's location-validation invariant. It returns ok=false with a
// human-readable reason on mismatch; callers decide whether that is a
// warning or a fatal error (spec.md §9's open question: warning by default).
func ValidateLocation(doc *Document, modulePath, modelsRoot string) (ok bool, reason string) {
	rel, err := filepath.Rel(modelsRoot, filepath.Dir(modulePath))
	if err != nil {
		return true, ""
	}
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	if len(parts) == 0 || parts[0] == "." || parts[0] == ".." {
		return true, ""
	}
	dirSchema := parts[0]
	if dirSchema != doc.Target.Schema {
		return false, "module targets schema " + doc.Target.Schema + " but resides under models/" + dirSchema
	}
	return true, ""
}
