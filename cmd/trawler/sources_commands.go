package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trawler/internal/ipc"
)

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	var all bool

	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "List and manage tracked sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sources(!all)
				if err != nil {
					return err
				}
				if len(resp.Sources) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tracked sources")
					return nil
				}

				rows := make([][]string, 0, len(resp.Sources))
				for _, src := range resp.Sources {
					lastScanned := "-"
					if src.LastScannedAt != nil {
						lastScanned = formatAge(*src.LastScannedAt)
					}
					rows = append(rows, []string{
						src.ExternalID,
						src.Name,
						yesNo(src.Enabled),
						lastScanned,
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "Enabled", "Last Scanned"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	sourcesCmd.Flags().BoolVar(&all, "all", false, "Include disabled sources")
	sourcesCmd.AddCommand(newSourceToggleCommand(ctx, "enable", true))
	sourcesCmd.AddCommand(newSourceToggleCommand(ctx, "disable", false))

	return sourcesCmd
}

func newSourceToggleCommand(ctx *commandContext, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <source-id>",
		Short: capitalize(verb) + " a source for future scans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SourceEnable(args[0], enabled); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Source %s %sd\n", args[0], verb)
				return nil
			})
		},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
