package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewSourcesCommand groups source administration.
func NewSourcesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect and re-enable feed sources",
	}
	cmd.AddCommand(newSourcesListCommand(rootOpts))
	cmd.AddCommand(newSourcesEnableCommand(rootOpts))
	return cmd
}

func newSourcesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sources with their health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			sources, err := a.ListSources(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tNICHE\tACTIVE\tFAILURES\tLAST CHECK\tLAST ERROR")
			for _, src := range sources {
				checked := "-"
				if src.LastCheckedAt != nil {
					checked = time.Unix(*src.LastCheckedAt, 0).UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%s\t%s\n",
					src.ID, src.Name, src.Niche, src.Active, src.ConsecutiveFailures, checked, src.LastError)
			}
			return tw.Flush()
		},
	}
}

func newSourcesEnableCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <id>",
		Short: "Re-activate a source disabled by the health check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			src, err := a.EnableSource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "source %s (%s) enabled\n", src.ID, src.Name)
			return nil
		},
	}
}
