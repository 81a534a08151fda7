package config

// Package config provides a reusable loader for weavenet configuration
// files and environment variables. Consensus rules are compiled constants
// in the core package; this file carries node-local settings only.

import (
	"fmt"

	"github.com/spf13/viper"

	"weavenet/pkg/utils"
)

// Config represents the unified configuration for a weavenet node. It
// mirrors the structure of the YAML files under cmd/config.
type Config struct {
	Network struct {
		ID          string `mapstructure:"id" json:"id"`
		ChainID     string `mapstructure:"chain_id" json:"chain_id"`
		GenesisFile string `mapstructure:"genesis_file" json:"genesis_file"`
	} `mapstructure:"network" json:"network"`

	Node struct {
		ValidatorID string `mapstructure:"validator_id" json:"validator_id"`
		Wallet      string `mapstructure:"wallet" json:"wallet"`
		KeyFile     string `mapstructure:"key_file" json:"key_file"`
		IP          string `mapstructure:"ip" json:"ip"`
	} `mapstructure:"node" json:"node"`

	Mempool struct {
		MaxSize int `mapstructure:"max_size" json:"max_size"`
	} `mapstructure:"mempool" json:"mempool"`

	Consensus struct {
		OfflineTimeoutMS  int `mapstructure:"offline_timeout_ms" json:"offline_timeout_ms"`
		HeartbeatTickMS   int `mapstructure:"heartbeat_tick_ms" json:"heartbeat_tick_ms"`
		ExpirySweepTickMS int `mapstructure:"expiry_sweep_tick_ms" json:"expiry_sweep_tick_ms"`
	} `mapstructure:"consensus" json:"consensus"`

	Storage struct {
		ChainFile string `mapstructure:"chain_file" json:"chain_file"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned. If env is empty, only the default configuration is loaded.
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

// LoadFromEnv loads configuration using the WEAVE_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("WEAVE_ENV", ""))
}
