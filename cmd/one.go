package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newOneCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "one",
		Short: "Migrate a single saved item by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a App) error {
				out, uri, err := a.ImportOne(cmd.Context(), id)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if out.Saved {
					fmt.Fprintf(w, "Saved item %s after %d attempt(s)\n", id, out.Attempts)
					return nil
				}
				fmt.Fprintf(w, "Item %s was not saved: %v\n", id, out.Err)
				if uri != "" {
					fmt.Fprintf(w, "Failure report: %s\n", uri)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "source item id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
