package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	s := NewSynthesizer(path, "http://app.test")
	require.NoError(t, s.SynthesizeEnv(false))
	assert.Equal(t, len(KnownRoles), s.GeneratedCount())

	vars := ReadEnvFile(path)
	assert.Equal(t, "http://app.test", vars["E2E_APP_BASE_URL"])
	assert.Equal(t, "admin@example.com", vars["E2E_CREDENTIALS_ADMIN_EMAIL"])
	assert.Len(t, vars["E2E_CREDENTIALS_ADMIN_PASSWORD"], 20)
	assert.NotEqual(t, vars["E2E_CREDENTIALS_ADMIN_PASSWORD"], vars["E2E_CREDENTIALS_MEMBER_PASSWORD"])

	t.Run("existing values are kept", func(t *testing.T) {
		again := NewSynthesizer(path, "http://other.test")
		require.NoError(t, again.SynthesizeEnv(false))
		assert.Zero(t, again.GeneratedCount())
		assert.Equal(t, vars, ReadEnvFile(path))
	})

	t.Run("rotation replaces passwords only", func(t *testing.T) {
		rotated := NewSynthesizer(path, "")
		require.NoError(t, rotated.SynthesizeEnv(true))
		now := ReadEnvFile(path)
		assert.Equal(t, vars["E2E_APP_BASE_URL"], now["E2E_APP_BASE_URL"])
		assert.NotEqual(t, vars["E2E_CREDENTIALS_ADMIN_PASSWORD"], now["E2E_CREDENTIALS_ADMIN_PASSWORD"])
	})

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	backups := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".env.backup.") {
			backups++
		}
	}
	assert.GreaterOrEqual(t, backups, 1)
}

func TestReadEnvFileMissing(t *testing.T) {
	assert.Empty(t, ReadEnvFile(filepath.Join(t.TempDir(), "absent")))
}
