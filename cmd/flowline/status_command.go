package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, statusLine("Daemon", runningLabel(status.Running), colorize, status.Running))
			fmt.Fprintln(out, statusLine("PID", fmt.Sprintf("%d", status.PID), colorize, true))
			fmt.Fprintln(out, statusLine("Database", status.DatabasePath, colorize, true))
			fmt.Fprintln(out, statusLine("Lock file", status.LockFilePath, colorize, true))
			fmt.Fprintln(out, statusLine("Active runs", fmt.Sprintf("%d", status.ActiveRuns), colorize, true))
			fmt.Fprintln(out, statusLine("Pipelines", joinOrNone(status.Pipelines), colorize, true))
			fmt.Fprintln(out, statusLine("Alerts", fmt.Sprintf("%d", status.AlertCount), colorize, true))
			dropped := fmt.Sprintf("%d", status.DroppedTransitions)
			fmt.Fprintln(out, statusLine("Dropped transitions", dropped, colorize, status.DroppedTransitions == 0))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func statusLine(label, value string, colorize, healthy bool) string {
	line := fmt.Sprintf("  %-20s %s", label+":", value)
	if colorize {
		if healthy {
			return ansiGreen + line + ansiReset
		}
		return ansiYellow + line + ansiReset
	}
	return line
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
