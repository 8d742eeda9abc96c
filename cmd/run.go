package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Migrate every saved item",
		Long: `Streams saved items from Pocket, or from a Pocket HTML export when
--export-file is given, into Omnivore. Interrupting the run stops new
writes, lets in-flight writes finish and still writes the failure report.`,
		Args: cobra.NoArgs,
		RunE: runMigration,
	}
	cmd.Flags().String("export-file", "", "read items from a Pocket HTML export instead of the API")
	_ = viper.BindPFlag("source.export_file", cmd.Flags().Lookup("export-file"))
	return cmd
}

func runMigration(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a App) error {
		summary, err := a.Migrate(cmd.Context())
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Migrated %d of %d items (%d failed)\n", summary.Succeeded, summary.Fetched, summary.Failed)
		if summary.ReportURI != "" {
			fmt.Fprintf(out, "Failure report: %s\n", summary.ReportURI)
		}
		if err != nil {
			return fmt.Errorf("migration %s: %w", summary.RunID, err)
		}
		return nil
	})
}
