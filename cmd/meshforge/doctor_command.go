package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"meshforge/internal/config"
	"meshforge/internal/convert"
	"meshforge/internal/deps"
	"meshforge/internal/logging"
	"meshforge/internal/mesh"
	"meshforge/internal/preflight"
	"meshforge/internal/services"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the accelerator, external tools and conversion backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runner := services.ExecRunner{}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			failed := renderPreflight(out, preflight.RunAll(cmd.Context(), cfg, runner), colorize)
			failed += renderSystemDeps(out, cfg, colorize)

			backends, err := convert.BackendsFromConfig(cfg, runner)
			if err != nil {
				return err
			}
			registry := convert.NewRegistry(cmd.Context(), backends, cfg.ProbeTimeout(), logging.NewNop())
			renderBackends(out, registry, colorize)

			if failed > 0 {
				return fmt.Errorf("%d required check(s) failed", failed)
			}
			return nil
		},
	}
}

func renderPreflight(out io.Writer, results []preflight.Result, colorize bool) int {
	failed := 0
	for _, line := range renderSectionHeader("Environment", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusError
			failed++
		}
		fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
	fmt.Fprintln(out)
	return failed
}

func renderSystemDeps(out io.Writer, cfg *config.Config, colorize bool) int {
	for _, line := range renderSectionHeader("External Tools", colorize) {
		fmt.Fprintln(out, line)
	}
	statuses := preflight.CheckSystemDeps(cfg)
	for _, status := range statuses {
		kind := statusOK
		detail := status.Path
		if !status.Available {
			kind = statusError
			if status.Optional {
				kind = statusWarn
			}
			detail = status.Detail
		}
		fmt.Fprintln(out, renderStatusLine(status.Name, kind, detail, colorize))
	}
	fmt.Fprintln(out)
	return len(deps.MissingRequired(statuses))
}

func renderBackends(out io.Writer, registry *convert.Registry, colorize bool) {
	rows := make([][]string, 0)
	for _, status := range registry.Statuses() {
		available := colorCell("yes", text.FgGreen, colorize)
		if !status.Available {
			available = colorCell("no", text.FgRed, colorize)
		}
		rows = append(rows, []string{status.Name, available, status.Detail})
	}
	fmt.Fprintln(out, renderTable(columns("Backend", "Available", "Detail"), rows))

	formats := []mesh.Format{mesh.FormatOBJ, mesh.FormatGLB, mesh.FormatPLY, mesh.FormatSTL, mesh.FormatFBX}
	rows = rows[:0]
	for _, format := range formats {
		names := make([]string, 0)
		for _, backend := range registry.For(format) {
			names = append(names, backend.Name())
		}
		chain := strings.Join(names, " > ")
		if format == mesh.IntermediateFormat {
			chain = "intermediate"
		} else if chain == "" {
			chain = colorCell("none (degrades to obj)", text.FgYellow, colorize)
		}
		rows = append(rows, []string{format.String(), chain})
	}
	fmt.Fprintln(out, renderTable(columns("Format", "Backends"), rows))
}
