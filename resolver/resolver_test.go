package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francescomucio/tee/resolver"
)

func TestTableIdentifierUnderSchemaDirectory(t *testing.T) {
	r := resolver.New(resolver.DuckDB)
	id, err := r.TableIdentifier("/proj/models/my_schema/orders.sql", "/proj/models")
	require.NoError(t, err)
	assert.Equal(t, "my_schema.orders", id)
}

func TestTableIdentifierDirectlyUnderModels(t *testing.T) {
	r := resolver.New(resolver.DuckDB)
	id, err := r.TableIdentifier("/proj/models/orders.sql", "/proj/models")
	require.NoError(t, err)
	assert.Equal(t, "orders", id)
}

func TestFunctionIdentifierExplicitSchemaOverridesDirectory(t *testing.T) {
	r := resolver.New(resolver.DuckDB)
	id, err := r.FunctionIdentifier("/proj/functions/dir_schema/udf.sql", "/proj/functions", "explicit_schema", "my_func")
	require.NoError(t, err)
	assert.Equal(t, "explicit_schema.my_func", id)
}

func TestResolveTableExactMatch(t *testing.T) {
	known := map[string]bool{"a.x": true, "b.y": true}
	id, ok := resolver.ResolveTable("a.x", known)
	require.True(t, ok)
	assert.Equal(t, "a.x", id)
}

func TestResolveTableUniqueSuffixMatch(t *testing.T) {
	known := map[string]bool{"a.orders": true}
	id, ok := resolver.ResolveTable("orders", known)
	require.True(t, ok)
	assert.Equal(t, "a.orders", id)
}

func TestResolveTableAmbiguousSuffixIsExternal(t *testing.T) {
	known := map[string]bool{"a.orders": true, "b.orders": true}
	_, ok := resolver.ResolveTable("orders", known)
	assert.False(t, ok)
}

func TestResolveTableUnknownIsExternal(t *testing.T) {
	known := map[string]bool{"a.x": true}
	_, ok := resolver.ResolveTable("external_table", known)
	assert.False(t, ok)
}
