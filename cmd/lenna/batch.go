package main

import (
	"fmt"
	"os"

	"github.com/jo-hoe/lenna/internal/core"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var batchOpts struct {
	outDir  string
	format  string
	workers int
	plugins []string
	set     []string
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Process every image in a folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchOpts.outDir, "out-dir", "", "directory for processed images")
	batchCmd.Flags().StringVarP(&batchOpts.format, "format", "f", "png", "output format")
	batchCmd.Flags().IntVarP(&batchOpts.workers, "workers", "w", 0, "parallel workers (default: number of CPUs)")
	batchCmd.Flags().StringSliceVarP(&batchOpts.plugins, "plugin", "p", nil, "plugins to run in order (default: configured pipeline)")
	batchCmd.Flags().StringArrayVar(&batchOpts.set, "set", nil, "plugin parameter as key=value, applied to every plugin")
	_ = batchCmd.MarkFlagRequired("out-dir")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	service, err := newCoreService(cmd)
	if err != nil {
		return err
	}
	defer service.Close()

	plugins, params, err := resolvePipeline(service.Config(), batchOpts.plugins, batchOpts.set)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(batchOpts.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	requests, err := core.BatchRequests(args[0], batchOpts.outDir, batchOpts.format, plugins, params)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no images found in %s\n", args[0])
		return nil
	}

	bar := progressbar.NewOptions(len(requests),
		progressbar.OptionSetDescription("Processing"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
	)
	results := service.ProcessBatch(cmd.Context(), requests, batchOpts.workers, func(core.BatchResult) {
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	fmt.Fprintln(cmd.ErrOrStderr())

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", res.Request.InputPath, res.Err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "processed %d of %d images into %s\n", len(results)-failed, len(results), batchOpts.outDir)
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(results))
	}
	return nil
}
