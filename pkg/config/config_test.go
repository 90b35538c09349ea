package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysafe/fsguard/pkg/capability"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 3, cfg.Engine.RetryAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Engine.RetryBackoff)
	assert.Equal(t, "fsguard-audit.log", cfg.Audit.Path)

	require.NoError(t, Validate(cfg))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: DEBUG
  format: json
workspace:
  root: /srv/work
  permissions: [read, write]
audit:
  path: /var/log/fsguard/audit.log
engine:
  retry_attempts: 5
  retry_backoff: 200ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/srv/work", cfg.Workspace.Root)
	assert.Equal(t, 5, cfg.Engine.RetryAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Engine.RetryBackoff)
	assert.Equal(t, "/var/log/fsguard/audit.log", cfg.AuditLogPath())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: INFO\n"), 0644))

	t.Setenv("FSGUARD_LOGGING_LEVEL", "ERROR")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
}

func TestLoad_InvalidLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: LOUD\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Workspace.Root = "/srv/work"
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Workspace.Root, loaded.Workspace.Root)
	assert.Equal(t, cfg.Logging.Level, loaded.Logging.Level)
}

func TestRootPermissions(t *testing.T) {
	ws := WorkspaceConfig{}
	assert.Equal(t, capability.Full(), ws.RootPermissions())

	ws.Permissions = []string{"read", "write"}
	perms := ws.RootPermissions()
	assert.True(t, perms.Has(capability.PermRead))
	assert.True(t, perms.Has(capability.PermWrite))
	assert.False(t, perms.Has(capability.PermDelete))
}

func TestAuditLogPath_Relative(t *testing.T) {
	cfg := Default()
	cfg.Workspace.Root = "/srv/work"
	assert.Equal(t, "/srv/work/fsguard-audit.log", cfg.AuditLogPath())
}
