package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCatalogueParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apps.yaml")
	contents := `
apps:
  - shortName: echo
    description: prints its arguments
    path: /bin/echo
    argParams: ["text"]
    options: ["-n"]
  - shortName: cat
    description: concatenates files
    path: /bin/cat
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	apps, err := loadCatalogue(path)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	require.Equal(t, "echo", apps[0].ShortName)
	require.Equal(t, "/bin/echo", apps[0].Path)
	require.Equal(t, []string{"text"}, apps[0].ArgParams)
	require.Equal(t, []string{"-n"}, apps[0].Options)
	require.Equal(t, "cat", apps[1].ShortName)
}

func TestLoadCatalogueMissingFile(t *testing.T) {
	_, err := loadCatalogue(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
