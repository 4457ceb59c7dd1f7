package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)
	opts := &convertOptions{}

	rootCmd := &cobra.Command{
		Use:   "webpify [path]",
		Short: "Convert PNG renders to WebP without losing generation metadata",
		Long: `webpify converts PNG files to WebP while carrying the generation
metadata that image tools store in PNG text chunks (prompt, workflow, and
any extra fields) into EXIF tags inside the WebP container.

Point it at a folder to convert every PNG underneath, or at a single file.
Outputs are grouped into dated subfolders of the output root.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) > 0 {
				arg = args[0]
			}
			return runConvert(cmd, ctx, opts, arg)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	flags := rootCmd.Flags()
	flags.IntVar(&opts.workers, "workers", 0, "Worker pool size (0 uses the detected CPU count)")
	flags.IntVarP(&opts.quality, "quality", "q", 0, "Lossy quality, 0-100")
	flags.IntVar(&opts.effort, "effort", 0, "Encoder effort, 0-6 (higher is slower and smaller)")
	flags.BoolVar(&opts.lossless, "lossless", false, "Encode losslessly instead of at the quality setting")
	flags.StringVarP(&opts.output, "output", "o", "", "Output root (defaults to a webp folder beside the input)")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")
	flags.BoolVar(&opts.jsonOut, "json", false, "Emit the batch summary as JSON")
	flags.BoolVar(&opts.pause, "pause", false, "Wait for Enter before exiting")

	rootCmd.AddCommand(newReportCommand(ctx))
	rootCmd.AddCommand(newDepsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
