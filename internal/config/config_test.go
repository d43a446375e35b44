package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 4, cfg.Browser.MaxSessions)
	assert.Equal(t, 30*time.Second, cfg.Browser.ActionTimeout)
	assert.True(t, cfg.Recording.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Recording.ProbeTimeout)
	assert.Equal(t, 100, cfg.Recording.MaxValidationFailures)
	assert.Equal(t, 0.5, cfg.Matching.AgreementThreshold)
	assert.Equal(t, 50, cfg.Matching.RoleNameMaxLen)
	assert.Equal(t, 100, cfg.Matching.TextSnippetMaxLen)
	assert.Equal(t, "tests/replaykit", cfg.Export.Dir)
	assert.Equal(t, "REPLAYKIT_", cfg.Export.EnvPrefix)
	assert.False(t, cfg.Export.AllowTodoMarkers)
	assert.Equal(t, []string{"*"}, cfg.Security.AllowedOrigins)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
browser:
  maxSessions: 2
matching:
  agreementThreshold: 0.75
export:
  dir: e2e/generated
  allowTodoMarkers: true
`), 0o600))
	t.Setenv("REPLAYKIT_LOG_LEVEL", "debug")
	t.Setenv("REPLAYKIT_SERVER_PORT", "7070")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Browser.MaxSessions)
	assert.Equal(t, 0.75, cfg.Matching.AgreementThreshold)
	assert.Equal(t, "e2e/generated", cfg.Export.Dir)
	assert.True(t, cfg.Export.AllowTodoMarkers)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("matching:\n  agreementThreshold: 1.5\n"), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "agreementThreshold")
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Browser:  BrowserConfig{MaxSessions: 1},
		Matching: MatchingConfig{AgreementThreshold: 0.5, RoleNameMaxLen: 50, TextSnippetMaxLen: 100},
		Export:   ExportConfig{EnvPrefix: "REPLAYKIT_"},
	}
	assert.NoError(t, cfg.Validate())

	cfg.Browser.MaxSessions = 0
	assert.Error(t, cfg.Validate())
}
