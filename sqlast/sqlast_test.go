package sqlast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francescomucio/tee/sqlast"
)

func TestAnalyzeExtractsTableReferences(t *testing.T) {
	result, err := sqlast.Analyze("SELECT * FROM a.x")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.x"}, result.SourceTables)
	assert.Equal(t, sqlast.OperationSelect, result.Operation)
}

func TestAnalyzeExtractsJoinAndFunctionReferences(t *testing.T) {
	result, err := sqlast.Analyze("SELECT my_func(id) FROM orders o JOIN a.other x ON o.id = x.id")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"orders", "a.other"}, result.SourceTables)
	assert.Equal(t, []string{"my_func"}, result.SourceFunctions)
}

func TestAnalyzeDoesNotTreatKeywordsAsFunctions(t *testing.T) {
	result, err := sqlast.Analyze("SELECT * FROM t WHERE EXISTS (SELECT 1 FROM u)")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t", "u"}, result.SourceTables)
	assert.Empty(t, result.SourceFunctions)
}

func TestQualifyRewritesUnqualifiedReferences(t *testing.T) {
	got := sqlast.Qualify("SELECT * FROM orders", "my_schema", nil)
	assert.Equal(t, "SELECT * FROM my_schema.orders", got)
}

func TestQualifyLeavesAlreadyQualifiedReferencesIntact(t *testing.T) {
	known := map[string]bool{"other_schema": true}
	got := sqlast.Qualify("SELECT * FROM other_schema.orders", "my_schema", known)
	assert.Equal(t, "SELECT * FROM other_schema.orders", got)
}

func TestInferProjectionSchema(t *testing.T) {
	cols := sqlast.InferProjectionSchema("SELECT id::INT AS id, name::VARCHAR AS name FROM t")
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "number", cols[0].Datatype)
	assert.Equal(t, "name", cols[1].Name)
	assert.Equal(t, "string", cols[1].Datatype)
}
