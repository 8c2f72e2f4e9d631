package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testDocuments = `[
  {"fullname": "scp-173", "title": "SCP-173", "category": "scp", "source": "concrete and rebar", "created_at": "2008-07-19T00:00:00Z"},
  {"fullname": "scp-049", "title": "SCP-049", "category": "scp", "source": "a plague doctor", "created_at": "2009-03-02T00:00:00Z"}
]`

func setupTestEnvironment(t *testing.T, assert *require.Assertions) string {
	storage := t.TempDir()
	t.Setenv("ENV", "test")
	t.Setenv("SEARCH_ENGINE", "local")
	t.Setenv("STORAGE_PATH", storage)
	t.Setenv("KVDB_PATH", filepath.Join(storage, "settings.db"))

	documents := filepath.Join(t.TempDir(), "pages.json")
	assert.NoError(os.WriteFile(documents, []byte(testDocuments), 0644))
	return documents
}

func execute(assert *require.Assertions, args ...string) (string, error) {
	importPath, importStatus, indexesAPIKey = "", false, ""

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	assert.NotNil(cfg, "config is loaded before any command runs")
	return buf.String(), err
}

func TestImportCommand(t *testing.T) {
	assert := require.New(t)
	documents := setupTestEnvironment(t, assert)

	output, err := execute(assert, "import", "--status")
	assert.NoError(err)
	assert.Contains(output, "nothing imported yet")

	output, err = execute(assert, "import", "--path", documents)
	assert.NoError(err, output)
	assert.Contains(output, "imported 2 documents from 1 files (0 unchanged, 0 failed)")

	output, err = execute(assert, "import", "--path", documents)
	assert.NoError(err, output)
	assert.Contains(output, "imported 0 documents from 0 files (1 unchanged, 0 failed)")

	output, err = execute(assert, "import", "--status")
	assert.NoError(err)
	assert.Contains(output, "2 documents, 1 files tracked")
}

func TestImportCommandRequiresPath(t *testing.T) {
	assert := require.New(t)
	setupTestEnvironment(t, assert)

	_, err := execute(assert, "import")
	assert.ErrorContains(err, "--path is required")
}

func TestIndexesCommand(t *testing.T) {
	assert := require.New(t)
	setupTestEnvironment(t, assert)

	output, err := execute(assert, "indexes")
	assert.NoError(err, output)
	assert.Equal("site_scp-jp\n", output)
}
