package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"flowline/internal/api"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Trigger and inspect pipeline runs",
	}
	runCmd.AddCommand(newRunTriggerCommand(ctx))
	runCmd.AddCommand(newRunListCommand(ctx))
	runCmd.AddCommand(newRunShowCommand(ctx))
	runCmd.AddCommand(newRunCancelCommand(ctx))
	return runCmd
}

func newRunTriggerCommand(ctx *commandContext) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "trigger <pipeline>",
		Short: "Start a pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			run, err := client.TriggerRun(cmd.Context(), args[0], actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s started for pipeline %s\n", run.ID, run.Pipeline)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "Who or what requested the run")
	return cmd
}

func newRunListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			runs, err := client.ListRuns(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs found")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.ID,
					run.Pipeline,
					run.Status,
					formatTime(&run.CreatedAt),
					formatDuration(run.StartedAt, run.FinishedAt),
					run.ErrorType,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Run", "Pipeline", "Status", "Created", "Duration", "Error"}, rows, 4))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by run status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newRunShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its steps and state transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			detail, err := client.DescribeRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, detail)
			}
			printRunDetail(cmd, detail)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of tables")
	return cmd
}

func printRunDetail(cmd *cobra.Command, detail *api.RunDetail) {
	out := cmd.OutOrStdout()
	run := detail.Run
	fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.Pipeline)
	fmt.Fprintf(out, "Status:  %s\n", run.Status)
	if run.TriggerSource != "" {
		trigger := run.TriggerSource
		if run.TriggerActor != "" {
			trigger += " by " + run.TriggerActor
		}
		fmt.Fprintf(out, "Trigger: %s\n", trigger)
	}
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:   [%s] %s\n", run.ErrorType, run.ErrorMessage)
	}

	if len(detail.Steps) > 0 {
		rows := make([][]string, 0, len(detail.Steps))
		for _, step := range detail.Steps {
			retries := ""
			if step.RetryCount > 0 {
				retries = strconv.Itoa(step.RetryCount)
			}
			rows = append(rows, []string{
				strconv.Itoa(step.Level),
				step.Name,
				step.Kind,
				step.Status,
				retries,
				step.ErrorMessage,
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(
			[]string{"Level", "Step", "Kind", "Status", "Retries", "Error"}, rows, 0, 4))
	}

	if len(detail.Transitions) > 0 {
		rows := make([][]string, 0, len(detail.Transitions))
		for _, t := range detail.Transitions {
			rows = append(rows, []string{
				strconv.Itoa(t.Seq),
				t.FromState + " -> " + t.ToState,
				formatTime(&t.OccurredAt),
				t.Reason,
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Seq", "Transition", "At", "Reason"}, rows, 0))
	}
}

func newRunCancelCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Request cooperative cancellation of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			run, err := client.CancelRun(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch run.Status {
			case "cancelling", "cancelled":
				fmt.Fprintf(out, "Run %s %s\n", run.ID, run.Status)
			default:
				fmt.Fprintf(out, "Run %s already %s; nothing to cancel\n", run.ID, run.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the cancellation")
	return cmd
}

func formatTime(value *time.Time) string {
	if value == nil || value.IsZero() {
		return ""
	}
	return value.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(started, finished *time.Time) string {
	if started == nil {
		return ""
	}
	end := time.Now()
	if finished != nil {
		end = *finished
	}
	elapsed := end.Sub(*started).Round(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed.String()
}
