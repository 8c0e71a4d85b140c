// Package config loads the shell's settings from defaults, an optional
// YAML file, LSH_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// AppName names the configuration directory and environment prefix.
	AppName = "lsh"
	// ConfigFileName is the config file name without extension.
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "yaml"
)

// Keys understood by Load. Flags are bound to the same names.
const (
	KeyPrompt       = "prompt"
	KeyHistoryFile  = "history_file"
	KeyLogLevel     = "log_level"
	KeyTrace        = "trace"
	KeyPrintCommand = "print_command"
	KeyNoExec       = "no_exec"
)

// Config is the resolved shell configuration.
type Config struct {
	Prompt string `mapstructure:"prompt" validate:"required"`
	// HistoryFile is where interactive history persists; empty disables it.
	HistoryFile  string `mapstructure:"history_file"`
	LogLevel     string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Trace        bool   `mapstructure:"trace"`
	PrintCommand bool   `mapstructure:"print_command"`
	NoExec       bool   `mapstructure:"no_exec"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Prompt:      "> ",
		HistoryFile: "~/.lsh_history",
		LogLevel:    "warn",
	}
}

// ConfigDir returns $XDG_CONFIG_HOME/lsh, defaulting to ~/.config/lsh.
//
//nolint:revive // ConfigDir reads better than Dir at call sites
func ConfigDir() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, AppName), nil
}

// Load resolves the configuration held by v. When path is set the file
// must exist; otherwise config.yaml in ConfigDir is read if present.
// Flags the caller bound to v take precedence over everything else.
func Load(v *viper.Viper, path string) (*Config, error) {
	defaults := DefaultConfig()
	v.SetDefault(KeyPrompt, defaults.Prompt)
	v.SetDefault(KeyHistoryFile, defaults.HistoryFile)
	v.SetDefault(KeyLogLevel, defaults.LogLevel)
	v.SetDefault(KeyTrace, defaults.Trace)
	v.SetDefault(KeyPrintCommand, defaults.PrintCommand)
	v.SetDefault(KeyNoExec, defaults.NoExec)

	v.SetEnvPrefix(AppName)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if dir, err := ConfigDir(); err == nil {
		v.SetConfigName(ConfigFileName)
		v.SetConfigType(ConfigFileExt)
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.HistoryFile = expandHome(cfg.HistoryFile)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for basic semantic errors.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
	})
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
