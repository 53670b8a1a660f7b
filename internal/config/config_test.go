package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opendragon/nimo/internal/config"
)

func TestLoadRejectsMissingExplicitFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	_ = cfg
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nimo.yaml")
	contents := `
registry:
  address: 192.168.1.10
  commandPort: 6622
discovery:
  serviceType: _nimo-registry._tcp
  waitForRegistry: false
  timeoutSeconds: 5s
statusBus:
  group: 239.0.0.2
  port: 9992
log:
  level: debug
  file: /var/log/nimo.log
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "192.168.1.10", cfg.Registry.Address)
	require.Equal(t, 6622, cfg.Registry.CommandPort)
	require.False(t, cfg.Discovery.WaitForRegistry)
	require.Equal(t, 5*time.Second, cfg.Discovery.TimeoutSeconds)
	require.Equal(t, "239.0.0.2", cfg.StatusBus.Group)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nimo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	t.Setenv("NIMO_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
}
