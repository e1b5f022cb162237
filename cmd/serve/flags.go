package serve

import (
	"github.com/matthisholleville/authgate/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func bindServeFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		util.MustBindPFlag("http.addr", flags.Lookup("http-addr"))
		util.MustBindEnv("http.addr", "AUTHGATE_HTTP_ADDR")

		util.MustBindPFlag("http.adminApiKey", flags.Lookup("http-admin-api-key"))
		util.MustBindEnv("http.adminApiKey", "AUTHGATE_HTTP_ADMIN_API_KEY")

		util.MustBindPFlag("http.cors.enabled", flags.Lookup("http-cors-enabled"))
		util.MustBindEnv("http.cors.enabled", "AUTHGATE_HTTP_CORS_ENABLED")

		util.MustBindPFlag("http.cors.allowed_origins", flags.Lookup("http-cors-allowed-origins"))
		util.MustBindEnv("http.cors.allowed_origins", "AUTHGATE_HTTP_CORS_ALLOWED_ORIGINS")

		util.MustBindPFlag("log.format", flags.Lookup("log-format"))
		util.MustBindEnv("log.format", "AUTHGATE_LOG_FORMAT")

		util.MustBindPFlag("log.level", flags.Lookup("log-level"))
		util.MustBindEnv("log.level", "AUTHGATE_LOG_LEVEL")

		util.MustBindPFlag("log.timestamp-format", flags.Lookup("log-timestamp-format"))
		util.MustBindEnv("log.timestamp-format", "AUTHGATE_LOG_TIMESTAMP_FORMAT")

		util.MustBindPFlag("authHook.configFile", flags.Lookup("auth-hook-config-file"))
		util.MustBindEnv("authHook.configFile", "AUTHGATE_AUTH_HOOK_CONFIG_FILE")

		util.MustBindPFlag("metadata.path", flags.Lookup("metadata-path"))
		util.MustBindEnv("metadata.path", "AUTHGATE_METADATA_PATH")

		util.MustBindPFlag("metadata.engine", flags.Lookup("metadata-engine"))
		util.MustBindEnv("metadata.engine", "AUTHGATE_METADATA_ENGINE")

		util.MustBindPFlag("metadata.resolveConcurrency", flags.Lookup("metadata-resolve-concurrency"))
		util.MustBindEnv("metadata.resolveConcurrency", "AUTHGATE_METADATA_RESOLVE_CONCURRENCY")

		util.MustBindPFlag("server.shutdownTimeout", flags.Lookup("server-shutdown-timeout"))
		util.MustBindEnv("server.shutdownTimeout", "AUTHGATE_SERVER_SHUTDOWN_TIMEOUT")
	}
}
