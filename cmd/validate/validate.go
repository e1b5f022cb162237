// Package validate provides a command checking a metadata document offline.
package validate

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/matthisholleville/authgate/internal/cfg"
	"github.com/matthisholleville/authgate/internal/permissions"
	"github.com/matthisholleville/authgate/internal/storage"
	"github.com/matthisholleville/authgate/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	metadataFlag     = "metadata"
	concurrencyFlag  = "concurrency"
	logFormatFlag    = "log-format"
	logLevelFlag     = "log-level"
	logTimestampFlag = "log-timestamp-format"
)

// NewValidateCommand creates a new validate command.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the command permissions of a metadata document",
		Long:  "Load a metadata document, resolve its command permissions and print the resulting role table.",
		RunE:  runValidate,
		Args:  cobra.NoArgs,
	}
	defaultConfig := cfg.DefaultConfig()
	flags := cmd.Flags()

	flags.String(metadataFlag, defaultConfig.Metadata.Path, "The metadata document to validate")

	flags.Int(concurrencyFlag, defaultConfig.Metadata.ResolveConcurrency, "The number of command permission blocks resolved in parallel")

	flags.String(logFormatFlag, defaultConfig.Log.Format, "The format to use for logging")

	flags.String(logLevelFlag, "warn", "The level to use for logging")

	flags.String(logTimestampFlag, defaultConfig.Log.TimestampFormat, "The format to use for logging timestamps")

	cmd.PreRun = bindValidateFlagsFunc(flags)

	return cmd
}

func runValidate(cmd *cobra.Command, _ []string) error {
	path := viper.GetString("metadata.path")
	log := logger.MustNewLogger(
		viper.GetString("log.format"),
		viper.GetString("log.level"),
		viper.GetString("log.timestamp-format"),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	generation, err := storage.BuildGeneration(ctx, path, viper.GetInt("metadata.resolveConcurrency"), log)
	if err != nil {
		log.ErrorWithContext(ctx, "Invalid metadata", zap.String("path", path), zap.Error(err))
		return err
	}
	return PrintTable(cmd.OutOrStdout(), generation.Table)
}

// PrintTable writes one line per command and role.
func PrintTable(w io.Writer, table permissions.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBGRAPH\tCOMMAND\tROLE\tEXECUTE\tPRESETS")
	for _, name := range table.Commands() {
		roles := table.Roles(name)
		if len(roles) == 0 {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\n", name.Subgraph, name.Name)
			continue
		}
		for _, role := range roles {
			permission, _ := table.Lookup(name, role)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", name.Subgraph, name.Name, role, permission.AllowExecution, presetNames(permission))
		}
	}
	return tw.Flush()
}

func presetNames(permission permissions.CommandPermission) string {
	if len(permission.ArgumentPresets) == 0 {
		return "-"
	}
	names := make([]string, 0, len(permission.ArgumentPresets))
	for name := range permission.ArgumentPresets {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
