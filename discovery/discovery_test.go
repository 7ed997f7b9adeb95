package discovery_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francescomucio/tee/discovery"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscoverClassifiesByRoleAndLanguage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "models", "my_schema", "orders.sql"), "select 1")
	writeFile(t, filepath.Join(root, "functions", "my_schema", "udf.sql"), "select 1")
	writeFile(t, filepath.Join(root, "tests", "check.tee.go"), "package tees\n\nvar x = 1")
	writeFile(t, filepath.Join(root, "models", "my_schema", "generated.tee.go"), "package tees\n\nvar x = 1")
	writeFile(t, filepath.Join(root, "models", "my_schema", "imported.ots.json"), "{}")

	files, err := discovery.Discover(root)
	require.NoError(t, err)

	byRole := map[discovery.Role]int{}
	for _, f := range files {
		byRole[f.Role]++
	}
	assert.Equal(t, 2, byRole[discovery.RoleModel]) // orders.sql and the stand-alone generated.tee.go
	assert.Equal(t, 1, byRole[discovery.RoleFunction])
	assert.Equal(t, 1, byRole[discovery.RoleTest])
	assert.Equal(t, 1, byRole[discovery.RoleImportedModule])
}

func TestCompanionScriptIsNotIndependentlyClassified(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "models", "my_schema", "advanced.sql"), "select 1")
	writeFile(t, filepath.Join(root, "models", "my_schema", "advanced.tee.go"), "package tees\n")

	files, err := discovery.Discover(root)
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, discovery.RoleModel, files[0].Role)
	assert.Contains(t, files[0].CompanionScript, "advanced.tee.go")
}

func TestMissingSubdirectoryIsNotAnError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "models", "x.sql"), "select 1")

	files, err := discovery.Discover(root)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}
