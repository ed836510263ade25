// Package config loads runtime settings for the sync daemon from a
// YAML file and environment variables, in that order of increasing
// precedence; command-line flags are not read here. Loading produces an explicit Config value
// callers can construct, inspect, and pass around instead of reading
// package globals.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"memsync/internal/storage/devicestore"
)

// Config holds every tunable named in the sync protocol: relay TTL,
// journal retention, batching, plus the device's own data directory
// and network endpoints.
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	// UserID scopes relay queues: all of one user's devices share it.
	UserID string `mapstructure:"user_id"`

	RelayListenAddr string `mapstructure:"relay_listen_addr"`
	RelayURL        string `mapstructure:"relay_url"`

	RelayTTLSecs         int64 `mapstructure:"relay_ttl_secs"`
	RelayMaxPerDevice    int   `mapstructure:"relay_max_per_device"`
	JournalRetentionSecs int64 `mapstructure:"journal_retention_secs"`
	SyncBatchSize        int   `mapstructure:"sync_batch_size"`

	LogLevel string `mapstructure:"log_level"`
}

// RelayTTL returns RelayTTLSecs as a time.Duration, or 0 when unset.
func (c Config) RelayTTL() time.Duration {
	if c.RelayTTLSecs <= 0 {
		return 0
	}
	return time.Duration(c.RelayTTLSecs) * time.Second
}

// JournalRetention returns JournalRetentionSecs as a time.Duration.
func (c Config) JournalRetention() time.Duration {
	if c.JournalRetentionSecs <= 0 {
		return 0
	}
	return time.Duration(c.JournalRetentionSecs) * time.Second
}

func defaults() Config {
	dataDir, err := devicestore.DefaultDataDir()
	if err != nil {
		dataDir = ".memsync"
	}
	return Config{
		DataDir:              dataDir,
		UserID:               "default",
		RelayListenAddr:      ":8743",
		RelayURL:             "ws://127.0.0.1:8743/ws/relay",
		RelayTTLSecs:         300,
		RelayMaxPerDevice:    64,
		JournalRetentionSecs: 30 * 24 * 3600,
		SyncBatchSize:        50,
		LogLevel:             "info",
	}
}

// Load reads configuration from cfgFile if given, otherwise searches
// $HOME/.memsync/config.yaml and ./config.yaml, then overlays
// MEMSYNC_-prefixed environment variables. When no cfgFile is given,
// finding no config file in the search paths is not an error — defaults
// apply; an explicit cfgFile that cannot be read is an error.
func Load(cfgFile string) (Config, error) {
	v := viper.New()

	d := defaults()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("user_id", d.UserID)
	v.SetDefault("relay_listen_addr", d.RelayListenAddr)
	v.SetDefault("relay_url", d.RelayURL)
	v.SetDefault("relay_ttl_secs", d.RelayTTLSecs)
	v.SetDefault("relay_max_per_device", d.RelayMaxPerDevice)
	v.SetDefault("journal_retention_secs", d.JournalRetentionSecs)
	v.SetDefault("sync_batch_size", d.SyncBatchSize)
	v.SetDefault("log_level", d.LogLevel)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".memsync"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("MEMSYNC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
