package config

// Package config provides a reusable loader for SANVM configuration files
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/alibertay/san-network/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a sanvm process. It
// mirrors the structure of the YAML files under config/.
type Config struct {
	VM struct {
		StepCap int    `mapstructure:"step_cap" json:"step_cap"`
		Output  string `mapstructure:"output" json:"output"`
	} `mapstructure:"vm" json:"vm"`

	Contracts struct {
		MaxBytecodeLen int `mapstructure:"max_bytecode_len" json:"max_bytecode_len"`
	} `mapstructure:"contracts" json:"contracts"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`

	HTTP struct {
		ListenAddr   string `mapstructure:"listen_addr" json:"listen_addr"`
		RateLimitRPS int    `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
		RateBurst    int    `mapstructure:"rate_burst" json:"rate_burst"`
	} `mapstructure:"http" json:"http"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the SANVM_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("SANVM_ENV", ""))
}
