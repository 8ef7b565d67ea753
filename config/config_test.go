package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0o600))
}

func TestLoadShippedConfig(t *testing.T) {
	v, err := Load(".", "test")
	require.NoError(t, err)

	settings, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, 1, settings.Ledger.Difficulty)
	assert.Equal(t, "Mining Reward", settings.Ledger.MiningRewardLabel)
	assert.Equal(t, "SYSTEM", settings.Ledger.RewardAddress)
	assert.Equal(t, 3, settings.Ledger.Threshold)
	assert.Equal(t, []string{"LOAN_MODIFICATION"}, settings.Ledger.ThresholdKinds)
	assert.Equal(t, time.Duration(0), settings.Ledger.MiningInterval)
	assert.Equal(t, time.Second, settings.HTTP.VerifyCacheTTL)
	assert.Equal(t, "8080", settings.Server.Port)
	assert.False(t, settings.Archive.Enabled)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "default", `
ledger:
  difficulty: 4
  signing_secret: ""
  mining_interval: 5m
archive:
  enabled: false
  database_url: ""
`)
	writeConfig(t, dir, "development", `
ledger:
  difficulty: 2
  signing_secret: "dev"
`)

	t.Run("Environment file overrides defaults", func(t *testing.T) {
		v, err := Load(dir, "dev")
		require.NoError(t, err)
		settings, err := Decode(v)
		require.NoError(t, err)
		assert.Equal(t, 2, settings.Ledger.Difficulty)
		assert.Equal(t, "dev", settings.Ledger.SigningSecret)
		assert.Equal(t, 5*time.Minute, settings.Ledger.MiningInterval)
	})

	t.Run("Environment variables override files", func(t *testing.T) {
		t.Setenv("LEDGER_SIGNING_SECRET", "from-env")
		t.Setenv("DATABASE_URL", "postgres://ledger@localhost/ledger")
		v, err := Load(dir, "development")
		require.NoError(t, err)
		settings, err := Decode(v)
		require.NoError(t, err)
		assert.Equal(t, "from-env", settings.Ledger.SigningSecret)
		assert.Equal(t, "postgres://ledger@localhost/ledger", settings.Archive.DatabaseURL)
	})

	t.Run("Missing environment file", func(t *testing.T) {
		_, err := Load(dir, "staging")
		assert.Error(t, err)
	})
}

func TestDecodeValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		content string
	}{
		{
			name:    "Missing signing secret",
			env:     "a",
			content: "ledger:\n  difficulty: 1\n",
		},
		{
			name:    "Negative difficulty",
			env:     "b",
			content: "ledger:\n  difficulty: -1\n  signing_secret: x\n",
		},
		{
			name:    "Difficulty above the cap",
			env:     "d",
			content: "ledger:\n  difficulty: 9\n  signing_secret: x\n",
		},
		{
			name:    "Archive without database url",
			env:     "c",
			content: "ledger:\n  signing_secret: x\narchive:\n  enabled: true\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "default", "log:\n  level: info\n")
			writeConfig(t, dir, tt.env, tt.content)

			v, err := Load(dir, tt.env)
			require.NoError(t, err)
			_, err = Decode(v)
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg   LogSettings
		level string
		json  bool
	}{
		{cfg: LogSettings{}, level: "info"},
		{cfg: LogSettings{Level: "debug", Format: "json"}, level: "debug", json: true},
		{cfg: LogSettings{Level: "loud"}, level: "info"},
	}
	for _, tt := range tests {
		logger := NewLogger(tt.cfg)
		assert.Equal(t, tt.level, logger.GetLevel().String())
		_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
		assert.Equal(t, tt.json, isJSON)
	}
}
