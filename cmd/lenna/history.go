package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent processing runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		service, err := newCoreService(cmd)
		if err != nil {
			return err
		}
		defer service.Close()

		runs, err := service.ListRuns(historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tPLUGINS\tINPUT\tOUTPUT\tSIZE\tDURATION")
		for _, run := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dx%d\t%s\n",
				run.ID,
				run.CreatedAt.Local().Format(time.DateTime),
				strings.Join(run.Plugins, ","),
				run.InputPath,
				run.OutputPath,
				run.Width, run.Height,
				time.Duration(run.DurationMS)*time.Millisecond)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
