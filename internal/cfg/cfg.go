// Package cfg provides the configuration for the application.
package cfg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/matthisholleville/authgate/pkg/logger"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Cors struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type HTTPConfig struct {
	Addr        string `mapstructure:"addr"`
	AdminAPIKey string `mapstructure:"adminApiKey"`
	CORS        Cors   `mapstructure:"cors"`
}

type LogConfig struct {
	Format          string `mapstructure:"format"`
	Level           string `mapstructure:"level"`
	TimestampFormat string `mapstructure:"timestamp-format"`
}

// AuthHookConfig points to the JSON document configuring the authentication webhook.
type AuthHookConfig struct {
	ConfigFile string `mapstructure:"configFile"`
}

// MetadataConfig configures the metadata load and permission resolution.
type MetadataConfig struct {
	Path               string `mapstructure:"path"`
	Engine             string `mapstructure:"engine"`
	ResolveConcurrency int    `mapstructure:"resolveConcurrency"`
}

type ServerConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	AuthHook AuthHookConfig `mapstructure:"authHook"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Server   ServerConfig   `mapstructure:"server"`
}

// DefaultConfig returns the configuration used when no value is provided.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr: "0.0.0.0:8082",
			CORS: Cors{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"*"},
			},
		},
		Log: LogConfig{
			Format:          "text",
			Level:           "info",
			TimestampFormat: "ISO8601",
		},
		AuthHook: AuthHookConfig{
			ConfigFile: "auth.json",
		},
		Metadata: MetadataConfig{
			Path:               "metadata.yaml",
			Engine:             "memory",
			ResolveConcurrency: 8,
		},
		Server: ServerConfig{
			ShutdownTimeout: 15 * time.Second,
		},
	}
}

// Verify checks the configuration is usable.
func (c *Config) Verify() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.CORS.Enabled && len(c.HTTP.CORS.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("http.cors.allowed_origins is required when CORS is enabled"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	switch c.Log.TimestampFormat {
	case "ISO8601", "Unix":
	default:
		errs = append(errs, fmt.Errorf("log.timestamp-format must be ISO8601 or Unix, got %q", c.Log.TimestampFormat))
	}
	if c.AuthHook.ConfigFile == "" {
		errs = append(errs, errors.New("authHook.configFile is required"))
	}
	if c.Metadata.Path == "" {
		errs = append(errs, errors.New("metadata.path is required"))
	}
	if c.Metadata.Engine != "memory" {
		errs = append(errs, fmt.Errorf("metadata.engine %q is not supported", c.Metadata.Engine))
	}
	if c.Metadata.ResolveConcurrency < 1 {
		errs = append(errs, errors.New("metadata.resolveConcurrency must be at least 1"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdownTimeout must be positive"))
	}
	return errors.Join(errs...)
}

// WriteInitConfiguration writes the default configuration file when none exists.
func WriteInitConfiguration(log logger.Logger) {
	if err := viper.SafeWriteConfig(); err != nil {
		var configFileAlreadyExistsErr viper.ConfigFileAlreadyExistsError
		if errors.As(err, &configFileAlreadyExistsErr) {
			log.DebugWithContext(context.Background(), "Configuration file already exists. No changes made.")
		} else {
			log.ErrorWithContext(context.Background(), "Unable to write configuration file", zap.Error(err))
			os.Exit(1)
		}
	} else {
		log.InfoWithContext(context.Background(), "Default configuration written successfully")
	}
}
