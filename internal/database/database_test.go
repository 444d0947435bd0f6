package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestResolveDatabaseURL(t *testing.T) {
	t.Run("configured value wins", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env")

		url, err := resolveDatabaseURL("  postgres://configured  ")
		require.NoError(t, err)
		assert.Equal(t, "postgres://configured", url)
	})

	t.Run("falls back to the environment", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env")

		url, err := resolveDatabaseURL("")
		require.NoError(t, err)
		assert.Equal(t, "postgres://env", url)
	})
}

func TestEnvFileDatabaseURL(t *testing.T) {
	t.Run("reads the key, stripping quotes and comments", func(t *testing.T) {
		path := writeEnv(t, t.TempDir(), `
# local settings
PORT=8990
DATABASE_URL="postgres://threadline:pw@localhost/threadline"
`)

		url, err := envFileDatabaseURL(path)
		require.NoError(t, err)
		assert.Equal(t, "postgres://threadline:pw@localhost/threadline", url)
	})

	t.Run("missing file keeps the search going", func(t *testing.T) {
		url, err := envFileDatabaseURL(filepath.Join(t.TempDir(), ".env"))
		require.NoError(t, err)
		assert.Empty(t, url)
	})

	t.Run("missing key keeps the search going", func(t *testing.T) {
		path := writeEnv(t, t.TempDir(), "PORT=8990\n")

		url, err := envFileDatabaseURL(path)
		require.NoError(t, err)
		assert.Empty(t, url)
	})

	t.Run("empty value is an error", func(t *testing.T) {
		path := writeEnv(t, t.TempDir(), "DATABASE_URL=\n")

		_, err := envFileDatabaseURL(path)
		assert.Error(t, err)
	})
}
