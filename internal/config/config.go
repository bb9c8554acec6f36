// Package config layers devenv's settings the way the CLI's ambient
// configuration works: CLI flags win over an optional
// ~/.config/devenv/config.toml, via github.com/spf13/viper. No
// environment variable other than the object-store SDK's own
// credential chain is consulted.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the resolved set of defaults shared by the backup and
// restore verbs. Every field here may also be overridden by a
// command-specific flag, which always wins.
type Config struct {
	Base              string `mapstructure:"base"`
	Machine           string `mapstructure:"machine"`
	ClaudeDirSource   string `mapstructure:"claude_dir_source"`
	OpenCodeDirSource string `mapstructure:"opencode_dir_source"`
	LogFile           string `mapstructure:"log_file"`
}

// DefaultPath returns ~/.config/devenv/config.toml, the default config
// file location, or "" if the home directory can't be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "devenv", "config.toml")
}

// Load builds a Config from, in increasing priority: the TOML file at
// configPath (defaulting to DefaultPath() when configPath is ""), and
// finally any flags already set on fs. A missing config file is not an
// error.
func Load(fs *pflag.FlagSet, configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		configPath = DefaultPath()
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
