package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trawler/internal/ipc"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a discovery scan across tracked sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Scan(force)
				if err != nil {
					return err
				}
				result := resp.Result
				stdout := cmd.OutOrStdout()
				fmt.Fprintln(stdout, result.Summary())
				if result.Error != "" {
					fmt.Fprintf(stdout, "Scan error: %s\n", result.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Scan even while quota deferral is in effect")
	return cmd
}
