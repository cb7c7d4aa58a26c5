package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/edison-gateway/internal/jobs"
)

// newJobsCmd creates the 'jobs' subcommand, which prints the job catalog
// served by /edison/jobs/available.
func newJobsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Lists the supported job types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog := jobs.Catalog()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(catalog); err != nil {
					return fmt.Errorf("encode catalog: %w", err)
				}
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, info := range catalog {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, info.Name.EdisonName(), info.Description)
			}
			if err := tw.Flush(); err != nil {
				return fmt.Errorf("write catalog: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")
	return cmd
}
