// Package emitter groups resolved entities by schema and writes portable
// module documents, per SPEC_FULL.md §4.9 / spec.md §4.9.
package emitter

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/francescomucio/tee/internal/tagset"
	"github.com/francescomucio/tee/model"
	"github.com/francescomucio/tee/otsimport"
	"github.com/francescomucio/tee/sqlast"
)

// Config carries the project-level settings the emitter needs beyond the
// entities themselves.
type Config struct {
	Database   string
	Connection string // project connection type, e.g. "duckdb"
	ModuleTags []string

	// TestLibraryPath, given a schema name, returns the relative path to
	// that schema's merged test library file, or "" if none was emitted.
	TestLibraryPath func(schema string) string
}

// dialectMap is the fixed connection-to-dialect table from spec.md §4.9.
var dialectMap = map[string]string{
	"duckdb":    "duckdb",
	"postgres":  "postgres",
	"snowflake": "snowflake",
	"mysql":     "mysql",
	"bigquery":  "bigquery",
	"spark":     "spark",
}

func dialectFor(connection string) string {
	if d, ok := dialectMap[connection]; ok {
		return d
	}
	return "duckdb"
}

// Group holds the transformations and functions belonging to one schema.
type Group struct {
	Transformations []model.Transformation
	Functions       []model.Function
}

// GroupBySchema partitions transformations and functions by their Schema
// field.
func GroupBySchema(transformations []model.Transformation, functions []model.Function) map[string]*Group {
	groups := map[string]*Group{}
	get := func(schema string) *Group {
		g, ok := groups[schema]
		if !ok {
			g = &Group{}
			groups[schema] = g
		}
		return g
	}
	for _, t := range transformations {
		g := get(t.Schema)
		g.Transformations = append(g.Transformations, t)
	}
	for _, f := range functions {
		g := get(f.Schema)
		g.Functions = append(g.Functions, f)
	}
	return groups
}

// BuildDocument converts one schema's Group into its wire-format Document.
func BuildDocument(schema string, group *Group, cfg Config) otsimport.Document {
	doc := otsimport.Document{
		OTSVersion:        otsimport.EmittedVersion,
		ModuleName:        cfg.Database + "." + schema,
		ModuleDescription: "Transformations for " + schema + " schema",
		Target: otsimport.Target{
			Database:   cfg.Database,
			Schema:     schema,
			SQLDialect: dialectFor(cfg.Connection),
		},
		Tags: cfg.ModuleTags,
	}

	dialect := dialectFor(cfg.Connection)

	sort.Slice(group.Transformations, func(i, j int) bool { return group.Transformations[i].ID < group.Transformations[j].ID })
	for _, t := range group.Transformations {
		doc.Transformations = append(doc.Transformations, buildTransformationDoc(t, dialect, cfg.ModuleTags))
	}

	sort.Slice(group.Functions, func(i, j int) bool { return group.Functions[i].ID < group.Functions[j].ID })
	for _, f := range group.Functions {
		doc.Functions = append(doc.Functions, buildFunctionDoc(f, cfg.ModuleTags))
	}

	if cfg.TestLibraryPath != nil {
		doc.TestLibraryPath = cfg.TestLibraryPath(schema)
	}

	return doc
}

func buildTransformationDoc(t model.Transformation, dialect string, moduleTags []string) otsimport.TransformationDoc {
	columns := t.Columns
	if len(columns) == 0 {
		for _, inferred := range sqlast.InferProjectionSchema(t.ResolvedSQL) {
			columns = append(columns, model.Column{Name: inferred.Name, Datatype: inferred.Datatype})
		}
	}

	columnDocs := make([]otsimport.ColumnDoc, 0, len(columns))
	columnTests := map[string][]otsimport.TestAttachmentDoc{}
	for _, c := range columns {
		columnDocs = append(columnDocs, otsimport.ColumnDoc{Name: c.Name, Datatype: c.Datatype, Description: c.Description})
		if len(c.Tests) > 0 {
			columnTests[c.Name] = attachmentDocs(c.Tests)
		}
	}

	return otsimport.TransformationDoc{
		TransformationID:   t.ID,
		Description:        t.Description,
		TransformationType: "sql",
		SQLDialect:         dialect,
		Code: otsimport.TransformationCode{SQL: otsimport.CodeSQL{
			OriginalSQL:     t.OriginalSQL,
			ResolvedSQL:     t.ResolvedSQL,
			SourceTables:    t.SourceTables,
			SourceFunctions: t.SourceFunctions,
		}},
		Schema: otsimport.SchemaDoc{
			Columns:      columnDocs,
			Partitioning: t.Partitioning,
			Indexes:      t.Indexes,
		},
		Materialization: t.Materialization,
		Tests: otsimport.TestsDoc{
			Columns: columnTests,
			Table:   attachmentDocs(t.TableTests),
		},
		Metadata: otsimport.MetadataDoc{
			FilePath:   t.Provenance.SourceFile,
			Tags:       tagset.Merge(moduleTags, t.Tags),
			ObjectTags: t.ObjectTags,
		},
	}
}

func buildFunctionDoc(f model.Function, moduleTags []string) otsimport.FunctionDoc {
	var returnTableSchema []otsimport.ColumnDoc
	for _, c := range f.ReturnTableSchema {
		returnTableSchema = append(returnTableSchema, otsimport.ColumnDoc{Name: c.Name, Datatype: c.Datatype, Description: c.Description})
	}

	return otsimport.FunctionDoc{
		FunctionID:        f.ID,
		Description:       f.Description,
		FunctionType:      string(f.Kind),
		Language:          f.Language,
		Code:              otsimport.FunctionCode{GenericSQL: f.ResolvedSQL},
		Parameters:        f.Parameters,
		ReturnType:        f.ReturnType,
		ReturnTableSchema: returnTableSchema,
		Deterministic:     f.Deterministic,
		Dependencies: otsimport.DependenciesDoc{
			Tables:    f.SourceTables,
			Functions: f.SourceFunctions,
		},
		Metadata: otsimport.MetadataDoc{
			FilePath:   f.Provenance.SourceFile,
			Tags:       tagset.Merge(moduleTags, f.Tags),
			ObjectTags: f.ObjectTags,
		},
	}
}

func attachmentDocs(attachments []model.TestAttachment) []otsimport.TestAttachmentDoc {
	if len(attachments) == 0 {
		return nil
	}
	out := make([]otsimport.TestAttachmentDoc, 0, len(attachments))
	for _, a := range attachments {
		out = append(out, otsimport.TestAttachmentDoc{
			Name:     model.NormalizeTestName(a.Name),
			Params:   a.Params,
			Expected: a.Expected,
			Severity: a.Severity,
		})
	}
	return out
}

// Format selects the on-disk encoding for an emitted module.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// EmitAll writes one module file per schema under outDir, in parallel
// (one goroutine per schema, bounded to GOMAXPROCS), mirroring
// compiler/gen/writer.go's worker-pool shape. Each file is written
// atomically via a temp-file-then-rename to avoid leaving a torn module on
// disk if the process is interrupted mid-write.
func EmitAll(ctx context.Context, docs map[string]otsimport.Document, outDir string, format Format) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))

	for schema, doc := range docs {
		schema, doc := schema, doc
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return writeModule(outDir, schema, doc, format)
		})
	}

	return eg.Wait()
}

func writeModule(outDir, schema string, doc otsimport.Document, format Format) error {
	var encoded []byte
	var err error
	ext := ".ots.json"
	if format == FormatYAML {
		encoded, err = yaml.Marshal(doc)
		ext = ".ots.yaml"
	} else {
		encoded, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return err
	}

	finalPath := filepath.Join(outDir, schema+ext)
	tmp, err := os.CreateTemp(outDir, schema+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, finalPath)
}
