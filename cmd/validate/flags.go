package validate

import (
	"github.com/matthisholleville/authgate/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// bindValidateFlagsFunc binds the validate flags to the command.
func bindValidateFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		util.MustBindPFlag("metadata.path", flags.Lookup(metadataFlag))
		util.MustBindEnv("metadata.path", "AUTHGATE_METADATA_PATH")

		util.MustBindPFlag("metadata.resolveConcurrency", flags.Lookup(concurrencyFlag))
		util.MustBindEnv("metadata.resolveConcurrency", "AUTHGATE_METADATA_RESOLVE_CONCURRENCY")

		util.MustBindPFlag("log.format", flags.Lookup(logFormatFlag))
		util.MustBindEnv("log.format", "AUTHGATE_LOG_FORMAT")

		util.MustBindPFlag("log.level", flags.Lookup(logLevelFlag))
		util.MustBindEnv("log.level", "AUTHGATE_LOG_LEVEL")

		util.MustBindPFlag("log.timestamp-format", flags.Lookup(logTimestampFlag))
		util.MustBindEnv("log.timestamp-format", "AUTHGATE_LOG_TIMESTAMP_FORMAT")
	}
}
