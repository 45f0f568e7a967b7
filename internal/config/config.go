package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every recognized server option. Durations are stored as
// time.Duration; the corresponding settings are expressed in milliseconds
// on the wire and in env vars.
type Config struct {
	Addr      string
	RedisAddr string
	LogLevel  string

	TurnDuration      time.Duration
	TalonPause        time.Duration
	RecapPause        time.Duration
	MatchTargetInit   int
	MatchTargetStep   int
	InviteTTL         time.Duration
	ReconnectTokenTTL time.Duration
	DisconnectGrace   time.Duration
	MaxSpectators     int
	DevModeEnabled    bool
}

// Load builds the configuration from an optional YAML file, ZING_* env
// variables, and built-in defaults, in increasing priority order of
// defaults < file < env.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("zing")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("zing")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("addr", ":8080")
	v.SetDefault("redisAddr", "")
	v.SetDefault("logLevel", "info")

	v.SetDefault("turnDurationMs", 12000)
	v.SetDefault("talonPauseMs", 1500)
	v.SetDefault("recapPauseMs", 9000)
	v.SetDefault("matchTargetInitial", 101)
	v.SetDefault("matchTargetStep", 50)
	v.SetDefault("inviteTtlMs", 300000)
	v.SetDefault("reconnectTokenTtlMs", 600000)
	v.SetDefault("disconnectGraceMs", 60000)
	v.SetDefault("maxSpectatorsPerRoom", 8)
	v.SetDefault("devModeEnabled", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file is optional; env vars and defaults suffice.
	}

	cfg := &Config{
		Addr:      v.GetString("addr"),
		RedisAddr: v.GetString("redisAddr"),
		LogLevel:  v.GetString("logLevel"),

		TurnDuration:      time.Duration(v.GetInt("turnDurationMs")) * time.Millisecond,
		TalonPause:        time.Duration(v.GetInt("talonPauseMs")) * time.Millisecond,
		RecapPause:        time.Duration(v.GetInt("recapPauseMs")) * time.Millisecond,
		MatchTargetInit:   v.GetInt("matchTargetInitial"),
		MatchTargetStep:   v.GetInt("matchTargetStep"),
		InviteTTL:         time.Duration(v.GetInt("inviteTtlMs")) * time.Millisecond,
		ReconnectTokenTTL: time.Duration(v.GetInt("reconnectTokenTtlMs")) * time.Millisecond,
		DisconnectGrace:   time.Duration(v.GetInt("disconnectGraceMs")) * time.Millisecond,
		MaxSpectators:     v.GetInt("maxSpectatorsPerRoom"),
		DevModeEnabled:    v.GetBool("devModeEnabled"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration, used by tests.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.TurnDuration <= 0 {
		return fmt.Errorf("turnDurationMs must be positive, got %v", c.TurnDuration)
	}
	if c.MatchTargetInit <= 0 || c.MatchTargetStep <= 0 {
		return fmt.Errorf("match target values must be positive")
	}
	if c.MaxSpectators < 0 {
		return fmt.Errorf("maxSpectatorsPerRoom must not be negative")
	}
	if c.DisconnectGrace <= 0 {
		return fmt.Errorf("disconnectGraceMs must be positive, got %v", c.DisconnectGrace)
	}
	return nil
}
