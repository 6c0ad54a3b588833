package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"trawler/internal/ipc"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage queued items",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var phase string
	var statuses []string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList(ipc.QueueListRequest{
					Phase:    phase,
					Statuses: statuses,
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				if len(resp.Items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(resp.Items))
				for _, item := range resp.Items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.Title,
						item.Source,
						itemPhaseSummary(item),
						formatSize(item.LocalSize),
						formatAge(item.CreatedAt),
					})
				}
				table := renderTable(
					[]string{"ID", "Title", "Source", "State", "Size", "Added"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&phase, "phase", "", "Filter by phase (retrieval or relay)")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (pending, in_progress, completed, error)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum items to list")
	return cmd
}

// itemPhaseSummary collapses the dual-phase state into one short column.
func itemPhaseSummary(item ipc.Item) string {
	if item.RetrievalStatus != "completed" {
		state := "retrieval " + item.RetrievalStatus
		if item.RetrievalStatus == "error" && item.RetrievalError != "" {
			state += ": " + truncate(item.RetrievalError, 40)
		}
		return state
	}
	switch item.RelayStatus {
	case "completed":
		return "relayed"
	case "error":
		state := "relay error"
		if item.RelayError != "" {
			state += ": " + truncate(item.RelayError, 40)
		}
		return state
	default:
		return "relay " + item.RelayStatus
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var phase string

	cmd := &cobra.Command{
		Use:   "retry [item-id...]",
		Short: "Retry errored items, or all errored items of a phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid item id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueRetry(phase, ids)
				if err != nil {
					return err
				}
				if resp.Updated == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No errored items to retry")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d item(s) for retry\n", resp.Updated)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&phase, "phase", "retrieval", "Phase to retry (retrieval or relay)")
	return cmd
}
