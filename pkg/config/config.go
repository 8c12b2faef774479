// Package config loads runtime configuration from file and environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the api binary needs at startup.
type Config struct {
	ListenAddr    string        `mapstructure:"listen_addr"`
	Mode          string        `mapstructure:"mode"` // debug or release
	DatabaseDSN   string        `mapstructure:"database_dsn"`
	JournalPrefix string        `mapstructure:"journal_prefix"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Load reads config.yaml from the working directory if present, with
// SACCO_-prefixed environment variables taking precedence.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("mode", "debug")
	v.SetDefault("database_dsn", "saccoledger.db")
	v.SetDefault("journal_prefix", "JRN")
	v.SetDefault("sweep_interval", time.Hour)

	v.SetEnvPrefix("SACCO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
