package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"tamid-harvester/lib/telemetry"

	"github.com/spf13/cobra"
)

var debug *bool

var rootCmd = &cobra.Command{
	Use:   "tamid-harvester",
	Short: "tamid-harvester collects project postings from the TAMID portal into a single browsable report.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*debug)
		_, err := telemetry.SetupFromEnv(cmd.Context(), "tamid-harvester")
		if err != nil {
			slog.Warn("failed to set up telemetry exporters", "err", err)
		}
	},
}

func init() {
	debug = rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging and request dumps.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
