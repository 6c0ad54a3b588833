package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"trawler/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				daemonKind := statusOK
				daemonText := fmt.Sprintf("pid %d, started %s", status.PID, formatAge(status.StartedAt))
				if !status.Running {
					daemonKind = statusError
					daemonText = "not running"
				}
				fmt.Fprintln(stdout, renderStatusLine("Daemon", daemonKind, daemonText, colorize))

				pausedKind, pausedText := pausedSummary(status.Paused)
				fmt.Fprintln(stdout, renderStatusLine("Pipelines", pausedKind, pausedText, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, status.DBPath, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Local files", statusInfo, formatSize(status.LocalSize), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Sources", statusInfo, fmt.Sprintf("%d enabled", status.Sources), colorize))

				if sc := status.Scanner; sc != nil {
					kind := statusOK
					text := "idle"
					switch {
					case sc.Scanning:
						text = "scan in progress"
					case sc.QuotaDeferred && sc.QuotaResetAt != nil:
						kind = statusWarn
						text = fmt.Sprintf("quota exhausted, resumes %s", formatAge(*sc.QuotaResetAt))
					case sc.LastScan != nil:
						text = fmt.Sprintf("last scan %s: %s", formatAge(sc.LastScan.FinishedAt), sc.LastScan.Summary())
					}
					fmt.Fprintln(stdout, renderStatusLine("Scanner", kind, text, colorize))
				}

				fmt.Fprintln(stdout)
				fmt.Fprintf(stdout, "Items (%d total)\n", status.TotalItems)
				rows := buildPhaseRows(status.Retrieval, status.Relay)
				if len(rows) == 0 {
					fmt.Fprintln(stdout, "No items tracked")
				} else {
					fmt.Fprintln(stdout, renderTable(
						[]string{"Status", "Retrieval", "Relay"},
						rows,
						[]columnAlignment{alignLeft, alignRight, alignRight},
					))
				}

				if len(status.Active) > 0 {
					fmt.Fprintln(stdout)
					fmt.Fprintln(stdout, "Active")
					activeRows := make([][]string, 0, len(status.Active))
					for _, slot := range status.Active {
						rate := "-"
						if slot.Rate > 0 {
							rate = formatSize(int64(slot.Rate)) + "/s"
						}
						activeRows = append(activeRows, []string{
							fmt.Sprintf("%d", slot.ItemID),
							slot.Title,
							string(slot.Pipeline),
							fmt.Sprintf("%.1f%%", slot.Percent),
							formatSize(slot.Bytes),
							rate,
						})
					}
					fmt.Fprintln(stdout, renderTable(
						[]string{"ID", "Title", "Pipeline", "Progress", "Size", "Rate"},
						activeRows,
						[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight},
					))
				}
				return nil
			})
		},
	}
}

func pausedSummary(paused map[string]bool) (statusKind, string) {
	stopped := make([]string, 0, len(paused))
	for name, p := range paused {
		if p {
			stopped = append(stopped, name)
		}
	}
	if len(stopped) == 0 {
		return statusOK, "all pipelines active"
	}
	sort.Strings(stopped)
	if len(stopped) == len(paused) && len(paused) > 0 {
		return statusWarn, "all pipelines paused"
	}
	return statusWarn, "paused: " + strings.Join(stopped, ", ")
}

func buildPhaseRows(retrieval, relay map[string]int) [][]string {
	statuses := make(map[string]struct{})
	for status := range retrieval {
		statuses[status] = struct{}{}
	}
	for status := range relay {
		statuses[status] = struct{}{}
	}

	ordered := make([]string, 0, len(statuses))
	for status := range statuses {
		ordered = append(ordered, status)
	}
	sort.Strings(ordered)

	rows := make([][]string, 0, len(ordered))
	for _, status := range ordered {
		if retrieval[status] == 0 && relay[status] == 0 {
			continue
		}
		rows = append(rows, []string{
			status,
			fmt.Sprintf("%d", retrieval[status]),
			fmt.Sprintf("%d", relay[status]),
		})
	}
	return rows
}
