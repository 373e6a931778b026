package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"meshforge/internal/ledger"
	"meshforge/internal/services"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous batch runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(ctx, cmd, func(store *ledger.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, runs)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						run.ID,
						run.StartedAt.Local().Format(time.DateTime),
						run.Format,
						strconv.Itoa(run.Total),
						strconv.Itoa(run.Processed),
						strconv.Itoa(run.Errors),
						runState(run, colorize),
						run.OutputRoot,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]column{
						{title: "Run"}, {title: "Started"}, {title: "Format"},
						{title: "Total", numeric: true}, {title: "Processed", numeric: true}, {title: "Errors", numeric: true},
						{title: "State"}, {title: "Output"},
					},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print runs as JSON")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "List the items of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return withLedger(ctx, cmd, func(store *ledger.Store) error {
				run, err := store.GetRun(cmd.Context(), id)
				if err != nil {
					if errors.Is(err, ledger.ErrNotFound) {
						return fmt.Errorf("run %s not found", id)
					}
					return err
				}
				items, err := store.ListItems(cmd.Context(), id)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, struct {
						Run   *ledger.Run   `json:"run"`
						Items []ledger.Item `json:"items"`
					}{run, items})
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintln(out, renderStatusLine("Run", statusInfo, run.ID, colorize))
				fmt.Fprintln(out, renderStatusLine("Output", statusInfo, run.OutputRoot, colorize))
				fmt.Fprintln(out, renderStatusLine("Average time", statusInfo, fmt.Sprintf("%.2fs", run.AverageTime), colorize))
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					status := colorCell("ok", text.FgGreen, colorize)
					switch {
					case !item.Success:
						status = colorCell("failed", text.FgRed, colorize)
					case item.Degraded:
						status = colorCell("degraded", text.FgYellow, colorize)
					}
					rows = append(rows, []string{
						strconv.Itoa(item.Position),
						item.Image,
						status,
						strconv.FormatFloat(item.Duration, 'f', 2, 64),
						item.ErrorMessage,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]column{{title: "#", numeric: true}, {title: "Image"}, {title: "Status"}, {title: "Seconds", numeric: true}, {title: "Error"}},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run as JSON")
	return cmd
}

func withLedger(ctx *commandContext, cmd *cobra.Command, fn func(*ledger.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.Paths.LedgerPath == "" {
		return services.Wrap(services.ErrConfiguration, "cli", "history", "paths.ledger_path is empty; run history is disabled", nil)
	}
	store, err := ledger.Open(cmd.Context(), cfg.Paths.LedgerPath)
	if err != nil {
		return fmt.Errorf("open run ledger: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func runState(run ledger.Run, colorize bool) string {
	switch {
	case !run.Finished():
		return colorCell("running", text.FgBlue, colorize)
	case run.Cancelled:
		return colorCell("cancelled", text.FgYellow, colorize)
	case run.Errors > 0:
		return colorCell("errors", text.FgYellow, colorize)
	default:
		return colorCell("ok", text.FgGreen, colorize)
	}
}
