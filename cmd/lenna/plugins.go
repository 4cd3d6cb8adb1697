package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Inspect the available plugins",
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered plugins",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		service, err := newCoreService(cmd)
		if err != nil {
			return err
		}
		defer service.Close()

		infos, err := service.Plugins()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTITLE\tAUTHOR\tDESCRIPTION")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name, info.Title, info.Author, info.Description)
		}
		return w.Flush()
	},
}

var pluginsDescribeCmd = &cobra.Command{
	Use:   "describe <name>",
	Short: "Show a plugin's description and default configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		service, err := newCoreService(cmd)
		if err != nil {
			return err
		}
		defer service.Close()

		info, err := service.Describe(args[0])
		if err != nil {
			return err
		}

		encoder := yaml.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent(2)
		if err := encoder.Encode(info); err != nil {
			return fmt.Errorf("failed to encode plugin %s: %w", args[0], err)
		}
		return encoder.Close()
	},
}

func init() {
	pluginsCmd.AddCommand(pluginsListCmd, pluginsDescribeCmd)
	rootCmd.AddCommand(pluginsCmd)
}
