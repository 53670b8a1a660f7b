// Package config loads nImO's process configuration (SPEC_FULL §A.2),
// modeled on the teacher pack's marmos91-dittofs config loader: a
// typed struct, viper for layered file/env/flag precedence, and a
// small set of recognized top-level keys.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of keys a nImO process recognizes.
type Config struct {
	Registry  RegistryConfig  `mapstructure:"registry"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	StatusBus StatusBusConfig `mapstructure:"statusBus"`
	Log       LogConfig       `mapstructure:"log"`
}

// RegistryConfig addresses the Registry directly, bypassing discovery,
// when set.
type RegistryConfig struct {
	Address     string `mapstructure:"address"`
	CommandPort int    `mapstructure:"commandPort"`
}

// DiscoveryConfig controls mDNS resolution of the Registry (spec §4.D).
type DiscoveryConfig struct {
	ServiceType     string        `mapstructure:"serviceType"`
	WaitForRegistry bool          `mapstructure:"waitForRegistry"`
	TimeoutSeconds  time.Duration `mapstructure:"timeoutSeconds"`
}

// StatusBusConfig addresses the multicast status bus (spec §4.G, §4.J).
type StatusBusConfig struct {
	Group string `mapstructure:"group"`
	Port  int    `mapstructure:"port"`
}

// LogConfig controls internal/nimolog output.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// EnvPrefix is the prefix applied to environment variable overrides
// (e.g. NIMO_REGISTRY_ADDRESS).
const EnvPrefix = "NIMO"

// DefaultSearchPaths are tried in order when path is empty.
var DefaultSearchPaths = []string{"./nimo.yaml", "/etc/nimo/nimo.yaml"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discovery.serviceType", "_nimo-registry._tcp")
	v.SetDefault("discovery.waitForRegistry", true)
	v.SetDefault("discovery.timeoutSeconds", 10*time.Second)
	v.SetDefault("statusBus.group", "239.0.0.1")
	v.SetDefault("statusBus.port", 9991)
	v.SetDefault("log.level", "info")
}

// Load reads configuration from path (or DefaultSearchPaths if path is
// empty), layering environment variable overrides on top, and returns a
// fully populated Config. When path is empty, finding no file on the
// search paths is not an error: the defaults apply (spec is silent on
// required config presence, and a zero-config launch is the common case
// for a single-machine cluster). An explicit path that cannot be read is
// an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		for _, candidate := range DefaultSearchPaths {
			v.SetConfigFile(candidate)
			if err := v.ReadInConfig(); err == nil {
				break
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
