// Package cmd provides the root command for the application.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/matthisholleville/authgate/internal/cfg"
	"github.com/matthisholleville/authgate/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	programName = "authgate"
	cfgDir      = "authgate"
)

var (
	// cfgFile is the path to the configuration file.
	cfgFile string
	// cfgDirPath is the path to the configuration directory.
	cfgDirPath = filepath.Join(xdg.ConfigHome, cfgDir)
)

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Webhook authentication and command permissions",
		Long: `authgate authenticates requests through an operator-supplied auth hook and resolves
the command permissions declared in the metadata into a type-checked permission table.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is %s)", cfgDirPath))
	cobra.OnInitialize(initConfig)
	return rootCmd
}

func initConfig() {
	log := logger.MustNewLogger("text", "info", "ISO8601")

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(cfgDirPath)
		viper.SetConfigType("yaml")
		viper.SetConfigName(programName)
		setDefaults(cfg.DefaultConfig())

		//nolint:gosec,mnd // We need to create the configuration directory with the default permissions
		if err := os.MkdirAll(cfgDirPath, 0755); err != nil {
			panic(fmt.Sprintf("Unable to create configuration directory: %v", err))
		}

		cfg.WriteInitConfiguration(log)
	}

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Sprintf("unable to read %s configuration %s: %v", programName, viper.ConfigFileUsed(), err))
	}
	for _, k := range viper.AllKeys() {
		value := viper.GetString(k)
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			viper.Set(k, GetEnvOrPanic(strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")))
		}
	}
}

// setDefaults registers the default configuration so that the initial file is complete.
func setDefaults(config *cfg.Config) {
	viper.SetDefault("http.addr", config.HTTP.Addr)
	viper.SetDefault("http.cors.enabled", config.HTTP.CORS.Enabled)
	viper.SetDefault("http.cors.allowed_origins", config.HTTP.CORS.AllowedOrigins)
	viper.SetDefault("http.cors.allowed_methods", config.HTTP.CORS.AllowedMethods)
	viper.SetDefault("http.cors.allowed_headers", config.HTTP.CORS.AllowedHeaders)
	viper.SetDefault("log.format", config.Log.Format)
	viper.SetDefault("log.level", config.Log.Level)
	viper.SetDefault("log.timestamp-format", config.Log.TimestampFormat)
	viper.SetDefault("authHook.configFile", config.AuthHook.ConfigFile)
	viper.SetDefault("metadata.path", config.Metadata.Path)
	viper.SetDefault("metadata.engine", config.Metadata.Engine)
	viper.SetDefault("metadata.resolveConcurrency", config.Metadata.ResolveConcurrency)
	viper.SetDefault("server.shutdownTimeout", config.Server.ShutdownTimeout)
}

// GetEnvOrPanic gets the environment variable or panics if it is not found.
func GetEnvOrPanic(env string) string {
	res := os.Getenv(env)
	if res == "" {
		panic("Mandatory env variable not found:" + env)
	}
	return res
}
