package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds runtime configuration loaded from flags, env, or config file.
// Static chain and token data lives in the registry file instead.
type Config struct {
	RPCURL        string
	ChainID       uint64
	PrivateKey    string
	KeyFile       string
	Registry      string
	PostgresDSN   string
	HistoryPath   string
	PriceFeedURL  string
	Confirmations uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	LogLevel      string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LPHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("registry", "./registry.json")
	v.SetDefault("history", "./data/tx_history.jsonl")
	v.SetDefault("confirmations", uint64(1))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:        v.GetString("rpc"),
		ChainID:       v.GetUint64("chain-id"),
		PrivateKey:    v.GetString("key"),
		KeyFile:       v.GetString("key-file"),
		Registry:      v.GetString("registry"),
		PostgresDSN:   v.GetString("pg-dsn"),
		HistoryPath:   v.GetString("history"),
		PriceFeedURL:  v.GetString("price-feed-url"),
		Confirmations: v.GetUint64("confirmations"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}
