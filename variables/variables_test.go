package variables_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/francescomucio/tee/variables"
)

func TestSubstituteWithDefaultAndEmptyMap(t *testing.T) {
	sql := "SELECT * FROM t WHERE n = @name:anonymous"
	got := variables.Substitute(sql, nil)
	assert.Equal(t, "SELECT * FROM t WHERE n = 'anonymous'", got)
}

func TestSubstituteWithDefaultAndProvidedValue(t *testing.T) {
	sql := "SELECT * FROM t WHERE n = @name:anonymous"
	got := variables.Substitute(sql, variables.Values{"name": "x"})
	assert.Equal(t, "SELECT * FROM t WHERE n = 'x'", got)
}

func TestSubstituteMissingRequiredAbortsWholeSubstitution(t *testing.T) {
	sql := "SELECT * FROM @schema.t"
	got := variables.Substitute(sql, nil)
	assert.Equal(t, sql, got)
}

func TestSubstituteNestedDotPath(t *testing.T) {
	sql := "SELECT * FROM t WHERE h = @config.database.host"
	got := variables.Substitute(sql, variables.Values{
		"config": map[string]any{"database": map[string]any{"host": "db1"}},
	})
	assert.Equal(t, "SELECT * FROM t WHERE h = 'db1'", got)
}

func TestSubstituteJinjaStyle(t *testing.T) {
	got := variables.Substitute("SELECT * FROM {{ tbl }}", variables.Values{"tbl": "orders"})
	assert.Equal(t, "SELECT * FROM 'orders'", got)
}

func TestSubstituteJinjaWithFilterDefault(t *testing.T) {
	got := variables.Substitute("SELECT * FROM t WHERE n = {{ name | default('anonymous') }}", nil)
	assert.Equal(t, "SELECT * FROM t WHERE n = 'anonymous'", got)
}

func TestSubstituteBooleanAndNumericValues(t *testing.T) {
	got := variables.Substitute("WHERE active = @active AND n = @count", variables.Values{
		"active": true,
		"count":  3,
	})
	assert.Equal(t, "WHERE active = TRUE AND n = 3", got)
}

func TestSubstituteEscapesEmbeddedQuotes(t *testing.T) {
	got := variables.Substitute("WHERE name = @name", variables.Values{"name": "O'Brien"})
	assert.Equal(t, "WHERE name = 'O''Brien'", got)
}

func TestSubstitutionIdempotence(t *testing.T) {
	sql := "SELECT * FROM t WHERE n = @name:anonymous"
	values := variables.Values{"name": "x"}
	once := variables.Substitute(sql, values)
	twice := variables.Substitute(once, values)
	assert.Equal(t, once, twice)
}

func TestValidateReportsMissingAndUnused(t *testing.T) {
	result := variables.Validate("SELECT * FROM t WHERE n = @name AND m = @other:1", variables.Values{
		"unused_var": "x",
	})
	assert.Contains(t, result.Missing, "name")
	assert.Contains(t, result.Unused, "unused_var")
	assert.Contains(t, result.Referenced, "name")
	assert.Contains(t, result.Referenced, "other")
}
