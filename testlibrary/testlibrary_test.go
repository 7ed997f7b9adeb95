package testlibrary_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francescomucio/tee/model"
	"github.com/francescomucio/tee/testlibrary"
)

func TestBuildSetsHeaderAndDescription(t *testing.T) {
	lib := testlibrary.Build("analytics", map[string]model.GenericTest{
		"unique": {Type: "sql", Level: model.TestLevelColumn, SQL: "select {{ column_name }} from {{ table }} group by 1 having count(*) > 1"},
	}, nil)

	assert.Equal(t, testlibrary.OTSVersion, lib.OTSVersion)
	assert.Equal(t, testlibrary.TestLibraryVersion, lib.TestLibraryVersion)
	assert.Equal(t, "Test library for analytics project", lib.Description)
	assert.False(t, lib.IsEmpty())
}

func TestMergePrefersFirstPartyOnCollision(t *testing.T) {
	firstParty := testlibrary.Build("analytics", map[string]model.GenericTest{
		"unique": {SQL: "first party body"},
	}, nil)
	imported := testlibrary.Library{
		GenericTests: map[string]model.GenericTest{
			"unique":     {SQL: "imported body"},
			"not_null":   {SQL: "imported not null"},
		},
	}

	merged, conflicts := testlibrary.Merge(firstParty, imported)

	require.Len(t, conflicts, 1)
	assert.Equal(t, "generic_tests", conflicts[0].Section)
	assert.Equal(t, "unique", conflicts[0].Name)

	assert.Equal(t, "first party body", merged.GenericTests["unique"].SQL)
	assert.Equal(t, "imported not null", merged.GenericTests["not_null"].SQL)
}

func TestMergeOfTwoEmptyLibrariesProducesEmptyResult(t *testing.T) {
	merged, conflicts := testlibrary.Merge(testlibrary.Library{}, testlibrary.Library{})
	assert.Empty(t, conflicts)
	assert.True(t, merged.IsEmpty())
}

func TestWriteEmptyLibraryEmitsNoFile(t *testing.T) {
	dir := t.TempDir()
	path, err := testlibrary.Write(testlibrary.Library{}, dir, "analytics", testlibrary.FormatJSON)
	require.NoError(t, err)
	assert.Empty(t, path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteNonEmptyLibraryUsesProjectNamedFile(t *testing.T) {
	dir := t.TempDir()
	lib := testlibrary.Build("analytics", map[string]model.GenericTest{
		"unique": {Type: "sql", Level: model.TestLevelColumn, SQL: "select 1"},
	}, nil)

	path, err := testlibrary.Write(lib, dir, "analytics", testlibrary.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "analytics_test_library.ots.json"), path)

	loaded, err := testlibrary.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "select 1", loaded.GenericTests["unique"].SQL)
}

func TestWriteYAMLUsesYAMLExtensionAndRoundTrips(t *testing.T) {
	dir := t.TempDir()
	lib := testlibrary.Build("analytics", nil, map[string]model.SingularTest{
		"orders_total_positive": {Type: "sql", Level: model.TestLevelTable, SQL: "select 1 where total < 0", TargetTransformation: "orders"},
	})

	path, err := testlibrary.Write(lib, dir, "analytics", testlibrary.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "analytics_test_library.ots.yaml"), path)

	loaded, err := testlibrary.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "orders", loaded.SingularTests["orders_total_positive"].TargetTransformation)
}
