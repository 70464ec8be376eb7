package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Listen)
	require.Equal(t, "keywarden.db", cfg.Server.DBPath)
	require.Equal(t, "PBM", cfg.Licenses.KeyLabel)
}

func TestLoadServerFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywarden.yaml")
	data := `
server:
  listen: ":9090"
  db_path: /tmp/test.db
auth:
  admin_token: secret
  api_key: genkey
licenses:
  key_label: CAFE
  fingerprint_salt: pepper
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Listen)
	require.Equal(t, "CAFE", cfg.Licenses.KeyLabel)
	require.NoError(t, cfg.Validate())
}

func TestLoadServerEnvOverrides(t *testing.T) {
	t.Setenv("KEYWARDEN_LISTEN", ":7000")
	t.Setenv("KEYWARDEN_ADMIN_TOKEN", "env-token")
	t.Setenv("KEYWARDEN_API_KEY", "env-key")

	cfg, err := LoadServer("")
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Server.Listen)
	require.Equal(t, "env-token", cfg.Auth.AdminToken)
	require.NoError(t, cfg.Validate())
}

func TestServerValidateRequiresCredentials(t *testing.T) {
	cfg := DefaultServerConfig()
	require.ErrorIs(t, cfg.Validate(), ErrMissingAdminToken)

	cfg.Auth.AdminToken = "token"
	require.ErrorIs(t, cfg.Validate(), ErrMissingAPIKey)

	cfg.Auth.APIKey = "key"
	require.NoError(t, cfg.Validate())
}

func TestAgentValidate(t *testing.T) {
	cfg := DefaultAgentConfig()
	require.ErrorIs(t, cfg.Validate(), ErrMissingLicenseKey)

	cfg.License.Key = "PBM-1111-2222-3333-4444"
	require.NoError(t, cfg.Validate())
	require.Equal(t, 10, cfg.Server.RequestTimeout)

	cfg.Server.HeartbeatS = 1
	require.NoError(t, cfg.Validate())
	require.Equal(t, 10, cfg.Server.HeartbeatS)
}

func TestAgentRetryBoundsNormalized(t *testing.T) {
	cfg := DefaultAgentConfig()
	cfg.License.Key = "k"
	cfg.Server.RetryInitialMs = 2000
	cfg.Server.RetryMaxMs = 100
	require.NoError(t, cfg.Validate())
	require.Equal(t, 2000, cfg.Server.RetryMaxMs)
}
