package scriptmodel_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francescomucio/tee/scriptmodel"
	"github.com/francescomucio/tee/variables"
)

func writeScript(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestExtractFactoryCallModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my_schema", "advanced.tee.go")
	writeScript(t, path, `package tees

import "tee/tee"

func init() {
	tee.CreateModel("users_summary", "SELECT * FROM my_first_table", tee.ModelMeta{
		Description: "Summary of user data",
	})
}
`)

	decls, err := scriptmodel.Extract(path, nil)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, scriptmodel.KindModel, decls[0].Kind)
	assert.Equal(t, "users_summary", decls[0].Name)
	assert.Equal(t, "SELECT * FROM my_first_table", decls[0].SQL)
	assert.Equal(t, "Summary of user data", decls[0].Description)
}

func TestExtractDecoratorStyleModelUsesCallableResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my_schema", "computed.tee.go")
	writeScript(t, path, `package tees

import "tee/tee"

func init() {
	tee.Model("recent_users", func() string {
		return "SELECT * FROM my_first_table WHERE env = " + tee.VarString("env")
	}, tee.ModelMeta{Variables: []string{"env"}})
}
`)

	decls, err := scriptmodel.Extract(path, variables.Values{"env": "prod"})
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, "SELECT * FROM my_first_table WHERE env = prod", decls[0].SQL)
	assert.Equal(t, []string{"env"}, decls[0].Variables)
}

func TestExtractFactoryLoopGeneratesMultipleModels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.tee.go")
	writeScript(t, path, `package tees

import "tee/tee"

func init() {
	tables := []string{"users", "orders"}
	for _, table := range tables {
		tee.CreateModel(table, "SELECT * FROM staging."+table, tee.ModelMeta{})
	}
}
`)

	decls, err := scriptmodel.Extract(path, nil)
	require.NoError(t, err)
	require.Len(t, decls, 2)
	assert.Equal(t, "users", decls[0].Name)
	assert.Equal(t, "SELECT * FROM staging.users", decls[0].SQL)
	assert.Equal(t, "orders", decls[1].Name)
}

func TestExtractTestDecoratorDefaultsSeverityToError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tests", "check_minimum_rows.tee.go")
	writeScript(t, path, `package tees

import "tee/tee"

func init() {
	tee.Test("check_minimum_rows", func() string {
		return "SELECT 1 FROM @table_name HAVING COUNT(*) < @min_rows:10"
	}, tee.TestMeta{})
}
`)

	decls, err := scriptmodel.Extract(path, nil)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, scriptmodel.KindTest, decls[0].Kind)
	assert.Equal(t, "error", decls[0].Severity)
}

func TestExtractReportsFileOnScriptError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.tee.go")
	writeScript(t, path, `package tees

func init() {
	this is not valid go
}
`)

	_, err := scriptmodel.Extract(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestExtractModelCarriesSchemaTestsAndObjectTags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my_schema", "customers.tee.go")
	writeScript(t, path, `package tees

import "tee/tee"

func init() {
	tee.CreateModel("customers", "SELECT id, email FROM raw.customers", tee.ModelMeta{
		Schema: []tee.ColumnMeta{
			{Name: "id", Datatype: "integer", Tests: []tee.TestAttachmentMeta{{Name: "not_null"}}},
		},
		Tests:      []tee.TestAttachmentMeta{{Name: "row_count_gt_0"}},
		ObjectTags: map[string]string{"pii": "true"},
	})
}
`)

	decls, err := scriptmodel.Extract(path, nil)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	d := decls[0]
	require.Len(t, d.Schema, 1)
	assert.Equal(t, "id", d.Schema[0].Name)
	require.Len(t, d.Schema[0].Tests, 1)
	assert.Equal(t, "not_null", d.Schema[0].Tests[0].Name)
	require.Len(t, d.TableTests, 1)
	assert.Equal(t, "row_count_gt_0", d.TableTests[0].Name)
	assert.Equal(t, map[string]string{"pii": "true"}, d.ObjectTags)
}

func TestExtractDeclareTestCarriesMetadataForCompanionSQL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tests", "has_customer.tee.go")
	writeScript(t, path, `package tees

import "tee/tee"

func init() {
	tee.DeclareTest(tee.TestMeta{
		Name:        "customer_must_exist",
		Severity:    "warn",
		Description: "every order must reference a customer",
		Tags:        []string{"integrity"},
	})
}
`)

	decls, err := scriptmodel.Extract(path, nil)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	d := decls[0]
	assert.Equal(t, scriptmodel.KindTest, d.Kind)
	assert.Equal(t, "customer_must_exist", d.Name)
	assert.Equal(t, "warn", d.Severity)
	assert.Equal(t, "every order must reference a customer", d.Description)
	assert.Equal(t, []string{"integrity"}, d.Tags)
	assert.Empty(t, d.SQL, "DeclareTest carries no SQL of its own; the companion .sql file supplies it")
}

func TestDeriveNameCollapsesUnderTopLevelTestsDirectory(t *testing.T) {
	assert.Equal(t, "check_minimum_rows__decl1", scriptmodel.DeriveName("/proj/tests/check_minimum_rows.tee.go", "decl1"))
	assert.Equal(t, "my_schema__advanced__decl1", scriptmodel.DeriveName("/proj/models/my_schema/advanced.tee.go", "decl1"))
}
