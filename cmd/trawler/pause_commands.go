package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trawler/internal/ipc"
)

func pauseTarget(args []string) string {
	if len(args) == 0 {
		return "all"
	}
	return args[0]
}

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause [pipeline]",
		Short: "Pause worker pools",
		Long:  "Pause all worker pools, or a single one (retrieval-standard, retrieval-short, relay). \"retrieval\" covers both retrieval pools.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := pauseTarget(args)
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Pause(target)
				if err != nil {
					return err
				}
				if resp.Changed {
					fmt.Fprintf(cmd.OutOrStdout(), "Paused %s; in-flight items will finish\n", target)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Already paused: %s\n", target)
				}
				return nil
			})
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume [pipeline]",
		Short: "Resume worker pools",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := pauseTarget(args)
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resume(target)
				if err != nil {
					return err
				}
				if resp.Changed {
					fmt.Fprintf(cmd.OutOrStdout(), "Resumed %s\n", target)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Not paused: %s\n", target)
				}
				return nil
			})
		},
	}
}
