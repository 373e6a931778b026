package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"meshforge/internal/batch"
	"meshforge/internal/capability"
	"meshforge/internal/config"
	"meshforge/internal/services"
)

const defaultRembgOutput = "output_no_background"

func newRembgCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "rembg <image|directory>",
		Short: "Remove backgrounds from images without generating meshes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target, err := config.ExpandPath(strings.TrimSpace(outputDir))
			if err != nil {
				return services.Wrap(services.ErrConfiguration, "cli", "output", "resolve output directory", err)
			}
			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			set, err := capability.FromConfig(cfg, capability.WithLogger(logger))(0)
			if err != nil {
				return err
			}

			result, err := batch.RemoveBackgrounds(cmd.Context(), set.Background, strings.TrimSpace(args[0]), target, logger)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine("Processed", statusOK, fmt.Sprintf("%d", result.Processed), colorize))
			fmt.Fprintln(out, renderStatusLine("Errors", errorKind(result.Errors), fmt.Sprintf("%d", result.Errors), colorize))
			fmt.Fprintln(out, renderStatusLine("Output", statusInfo, target, colorize))
			if result.Processed == 0 && result.Errors > 0 {
				return fmt.Errorf("background removal failed for all %d images", result.Errors)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", defaultRembgOutput, "Output folder")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print counts as JSON")
	return cmd
}
