package main

import (
	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

const (
	groupGenerate = "generate"
	groupMaintain = "maintain"
)

func newRootCommand() *cobra.Command {
	var configFlag, logLevelFlag string
	ctx := newCommandContext(&configFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "meshforge",
		Short:         "Batch image-to-3D mesh generation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	flags.StringVar(&logLevelFlag, "log-level", "", "Override logging.level (debug, info, warn, error)")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupGenerate, Title: "Generation:"},
		&cobra.Group{ID: groupMaintain, Title: "Diagnostics and maintenance:"},
	)
	for _, cmd := range []*cobra.Command{newGenerateCommand(ctx), newRembgCommand(ctx)} {
		cmd.GroupID = groupGenerate
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{
		newDoctorCommand(ctx),
		newHistoryCommand(ctx),
		newTestNotifyCommand(ctx),
		newConfigCommand(ctx),
	} {
		cmd.GroupID = groupMaintain
		rootCmd.AddCommand(cmd)
	}
	return rootCmd
}
