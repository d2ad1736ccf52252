// Package config resolves nfsh's startup defaults — timeout, default
// uid/gid, default transfer-size fallback, debug address and log
// level/format — from NFSH_* environment variables and an optional
// ~/.nfshrc.yaml, environment first. CLI flags take priority over both for
// the three keys in flagBindings only (SPEC_FULL.md §2.3). It is a pure convenience layer over the
// session defaults in spec.md §3: nothing here is read again once the
// shell starts, and no session state is ever persisted back to it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds nfsh's startup defaults (spec.md §3, §4.3).
type Config struct {
	Timeout             time.Duration `mapstructure:"timeout" validate:"gt=0"`
	DefaultUID          uint32        `mapstructure:"uid"`
	DefaultGID          uint32        `mapstructure:"gid"`
	DefaultTransferSize uint32        `mapstructure:"transfer_size" validate:"gt=0"`
	DebugAddr           string        `mapstructure:"debug_addr"`
	LogLevel            string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat           string        `mapstructure:"log_format" validate:"oneof=text json"`
}

// defaultUID32/defaultGID32 are -2 ("nobody") stored as the uint32 two's
// complement AUTH_UNIX expects (spec.md §3 default).
const (
	defaultUID32          = uint32(0xFFFFFFFE)
	defaultGID32          = uint32(0xFFFFFFFE)
	defaultTransferSize   = uint32(8192)
	defaultTimeoutSeconds = 60
)

// flagBindings maps a registered --flag name to the viper/mapstructure key
// it overrides; BindPFlag (rather than the bulk BindPFlags) is used so
// dash-cased flag names can feed underscore-cased config keys.
var flagBindings = map[string]string{
	"debug-addr": "debug_addr",
	"log-level":  "log_level",
	"log-format": "log_format",
}

// Load resolves Config from defaults, an optional config file (explicitPath,
// falling back to ~/.nfshrc.yaml), NFSH_* environment variables, and flags
// already registered on fs, in increasing priority order. fs may be nil to
// skip flag binding (useful in tests).
func Load(fs *pflag.FlagSet) (*Config, error) {
	return load(fs, "")
}

// LoadWithConfigPath is Load with an explicit --config override.
func LoadWithConfigPath(fs *pflag.FlagSet, explicitPath string) (*Config, error) {
	return load(fs, explicitPath)
}

func load(fs *pflag.FlagSet, explicitPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("timeout", defaultTimeoutSeconds*time.Second)
	v.SetDefault("uid", defaultUID32)
	v.SetDefault("gid", defaultGID32)
	v.SetDefault("transfer_size", defaultTransferSize)
	v.SetDefault("debug_addr", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", explicitPath, err)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigName(".nfshrc")
		v.SetConfigType("yaml")
		v.AddConfigPath(home)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read %s: %w", filepath.Join(home, ".nfshrc.yaml"), err)
			}
		}
	}

	v.SetEnvPrefix("NFSH")
	v.AutomaticEnv()

	if fs != nil {
		for flagName, key := range flagBindings {
			if f := fs.Lookup(flagName); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flagName, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
