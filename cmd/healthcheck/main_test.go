package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0o600))
	}
	write("default", `
ledger:
  difficulty: 4
  signing_secret: ""
archive:
  enabled: false
  database_url: ""
`)
	write("staging", `
ledger:
  difficulty: 2
  signing_secret: "staging-secret"
archive:
  database_url: "postgres://ledger@localhost/ledger"
`)
	write("bare", `
ledger:
  signing_secret: "bare-secret"
`)

	t.Run("Difficulty and secret come from configuration", func(t *testing.T) {
		settings, err := loadSettings(dir, "staging")
		require.NoError(t, err)
		assert.Equal(t, 2, settings.Ledger.Difficulty)
		assert.Equal(t, "staging-secret", settings.Ledger.SigningSecret)
		assert.Equal(t, "postgres://ledger@localhost/ledger", settings.Archive.DatabaseURL)
	})

	t.Run("Database url is required", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := loadSettings(dir, "bare")
		assert.Error(t, err)
	})

	t.Run("Database url from the environment", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env@localhost/ledger")
		settings, err := loadSettings(dir, "bare")
		require.NoError(t, err)
		assert.Equal(t, 4, settings.Ledger.Difficulty)
		assert.Equal(t, "postgres://env@localhost/ledger", settings.Archive.DatabaseURL)
	})
}
