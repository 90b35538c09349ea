package config

import (
	"path/filepath"
	"time"

	"github.com/polysafe/fsguard/pkg/capability"
)

// Default returns the full default configuration.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero-valued fields.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyWorkspaceDefaults(&cfg.Workspace)
	applyAuditDefaults(&cfg.Audit)
	applyEngineDefaults(&cfg.Engine)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyWorkspaceDefaults(cfg *WorkspaceConfig) {
	if cfg.Root == "" {
		cfg.Root = "."
	}
}

func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Path == "" {
		cfg.Path = "fsguard-audit.log"
	}
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":9090"
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
}

// RootPermissions translates the configured permission names into a
// capability permission set. An empty list grants everything.
func (c WorkspaceConfig) RootPermissions() capability.Permissions {
	if len(c.Permissions) == 0 {
		return capability.Full()
	}

	var perms capability.Permissions
	for _, name := range c.Permissions {
		switch name {
		case "read":
			perms |= capability.PermRead
		case "write":
			perms |= capability.PermWrite
		case "delete":
			perms |= capability.PermDelete
		case "createdir":
			perms |= capability.PermCreateDir
		}
	}
	return perms
}

// AuditLogPath resolves the audit log location against the workspace
// root when it is relative.
func (c *Config) AuditLogPath() string {
	if filepath.IsAbs(c.Audit.Path) {
		return c.Audit.Path
	}
	return filepath.Join(c.Workspace.Root, c.Audit.Path)
}
