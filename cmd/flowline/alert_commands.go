package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"flowline/internal/api"
)

func newAlertCommand(ctx *commandContext) *cobra.Command {
	alertCmd := &cobra.Command{
		Use:   "alert",
		Short: "Inspect and evaluate alerts",
	}
	alertCmd.AddCommand(newAlertListCommand(ctx))
	alertCmd.AddCommand(newAlertEvaluateCommand(ctx))
	alertCmd.AddCommand(newAlertTestCommand(ctx))
	return alertCmd
}

func newAlertListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded alert definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			alerts, err := client.Alerts(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, alerts)
			}
			if len(alerts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No alerts loaded")
				return nil
			}
			rows := make([][]string, 0, len(alerts))
			for _, alert := range alerts {
				cooldown := ""
				if alert.Cooldown > 0 {
					cooldown = strconv.Itoa(alert.Cooldown) + "m"
				}
				rows = append(rows, []string{
					alert.ID,
					alert.Name,
					enabledLabel(alert.Enabled),
					alert.Cron,
					alert.Severity,
					strings.Join(alert.Channels, ","),
					cooldown,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Enabled", "Cron", "Severity", "Channels", "Cooldown"}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newAlertEvaluateCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate every enabled alert now",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			results, err := client.EvaluateAlerts(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, results)
			}
			for i := range results {
				printEvalResult(cmd, &results[i])
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No enabled alerts to evaluate")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newAlertTestCommand(ctx *commandContext) *cobra.Command {
	var deliver bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "test <alert-id>",
		Short: "Evaluate one alert as a dry run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := client.TestAlert(cmd.Context(), args[0], !deliver)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, result)
			}
			printEvalResult(cmd, result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&deliver, "deliver", false, "Actually deliver notifications and record history")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func printEvalResult(cmd *cobra.Command, result *api.EvalView) {
	out := cmd.OutOrStdout()
	header := "Alert " + result.AlertID
	if result.DryRun {
		header += " (dry run)"
	}
	fmt.Fprintln(out, header)
	if len(result.Tenants) == 0 {
		fmt.Fprintln(out, "  no tenant rows matched the source query")
		return
	}
	for _, tenant := range result.Tenants {
		label := tenant.Tenant
		if label == "" {
			label = "(all)"
		}
		switch {
		case tenant.Error != "":
			fmt.Fprintf(out, "  %s: error: %s\n", label, tenant.Error)
		case !tenant.Matched:
			fmt.Fprintf(out, "  %s: conditions not met\n", label)
		default:
			line := fmt.Sprintf("  %s: %s", label, tenant.Outcome)
			if tenant.Message != "" {
				line += " - " + tenant.Message
			}
			if len(tenant.Delivered) > 0 {
				line += fmt.Sprintf(" (delivered: %s)", strings.Join(tenant.Delivered, ","))
			}
			if len(tenant.Failed) > 0 {
				line += fmt.Sprintf(" (failed: %s)", strings.Join(tenant.Failed, ","))
			}
			fmt.Fprintln(out, line)
		}
	}
}

func enabledLabel(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
