package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aditya/vertview/pkg/recovery"
	"github.com/aditya/vertview/pkg/rendezvous"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultSettleDelay    = recovery.DefaultSettleDelay
	defaultForwardTimeout = rendezvous.DefaultForwardTimeout
	defaultReadTimeout    = rendezvous.DefaultReadTimeout
)

// AppConfig holds all configuration for the application.
type AppConfig struct {
	LogLevel        string
	LogFile         string
	SettleDelay     time.Duration
	ForwardTimeout  time.Duration
	ReadTimeout     time.Duration
	EndpointDir     string
	EndpointName    string
	MetricsAddr     string
	MetricsInterval time.Duration
}

// SocketPath returns the rendezvous socket for this configuration.
func (cfg AppConfig) SocketPath() string {
	return rendezvous.SocketPath(cfg.EndpointDir, cfg.EndpointName)
}

// loadConfig layers defaults, the config file, VERTVIEW_* environment variables and flags.
func loadConfig(cmd *cobra.Command) (AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("VERTVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return AppConfig{}, fmt.Errorf("binding flags: %w", err)
	}

	if err := readConfigFile(v); err != nil {
		return AppConfig{}, err
	}

	cfg := AppConfig{
		LogLevel:        v.GetString("log-level"),
		LogFile:         v.GetString("log-file"),
		SettleDelay:     v.GetDuration("settle-delay"),
		ForwardTimeout:  v.GetDuration("forward-timeout"),
		ReadTimeout:     v.GetDuration("read-timeout"),
		EndpointDir:     v.GetString("endpoint-dir"),
		EndpointName:    v.GetString("endpoint-name"),
		MetricsAddr:     v.GetString("metrics-addr"),
		MetricsInterval: v.GetDuration("metrics-interval"),
	}
	if cfg.EndpointDir == "" {
		cfg.EndpointDir = rendezvous.DefaultDir()
	}
	if cfg.EndpointName == "" {
		cfg.EndpointName = rendezvous.CurrentUserEndpoint()
	}

	if err := validateConfig(cfg); err != nil {
		return AppConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper) error {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", file, err)
		}
		return nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(dir, "vertview"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// validateConfig validates the application configuration.
func validateConfig(cfg AppConfig) error {
	if cfg.SettleDelay <= 0 {
		return errors.New("settle delay must be positive")
	}
	if cfg.ForwardTimeout <= 0 {
		return errors.New("forward timeout must be positive")
	}
	if cfg.ReadTimeout <= 0 {
		return errors.New("read timeout must be positive")
	}
	if cfg.MetricsInterval < 0 {
		return errors.New("metrics interval cannot be negative")
	}
	if cfg.EndpointDir == "" {
		return errors.New("endpoint directory cannot be empty")
	}
	if cfg.EndpointName == "" {
		return errors.New("endpoint name cannot be empty")
	}
	if strings.ContainsAny(cfg.EndpointName, `/\`) {
		return errors.New("endpoint name cannot contain path separators")
	}
	return nil
}

// newLogger builds the process logger. An unknown level falls back to info.
func newLogger(cfg AppConfig) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if cfg.LogFile != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		})
	}
	return logger
}
