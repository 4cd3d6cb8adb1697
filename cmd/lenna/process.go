package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/jo-hoe/lenna/internal/core"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var processOpts struct {
	input   string
	output  string
	plugins []string
	set     []string
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run plugins on one image and save the result",
	Long: strings.TrimSpace(`
Opens the input image, runs each plugin with its default configuration
(plus any --set overrides) and saves the result. The output format follows
the output file extension.
    `),
	Args: cobra.NoArgs,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processOpts.input, "input", "i", "", "input image")
	processCmd.Flags().StringVarP(&processOpts.output, "output", "o", "", "output image")
	processCmd.Flags().StringSliceVarP(&processOpts.plugins, "plugin", "p", nil, "plugins to run in order (default: configured pipeline)")
	processCmd.Flags().StringArrayVar(&processOpts.set, "set", nil, "plugin parameter as key=value, applied to every plugin")
	_ = processCmd.MarkFlagRequired("input")
	_ = processCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	service, err := newCoreService(cmd)
	if err != nil {
		return err
	}
	defer service.Close()

	plugins, params, err := resolvePipeline(service.Config(), processOpts.plugins, processOpts.set)
	if err != nil {
		return err
	}

	result, err := service.ProcessFile(cmd.Context(), core.ProcessRequest{
		InputPath:  processOpts.input,
		OutputPath: processOpts.output,
		Plugins:    plugins,
		Params:     params,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, step := range result.Steps {
		fmt.Fprintln(out, step.Description)
	}
	fmt.Fprintln(out, result.InputShape)
	for _, step := range result.Steps {
		params := step.Config.Params
		if params == nil {
			params = map[string]any{}
		}
		config, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode config of %s: %w", step.Name, err)
		}
		fmt.Fprintln(out, string(config))
	}
	fmt.Fprintln(out, result.OutputShape)
	if result.RunID != "" {
		fmt.Fprintf(out, "run %s\n", result.RunID)
	}
	return nil
}

// resolvePipeline picks the plugins to run and their parameters. Without
// explicit plugins the configured pipeline and its inline parameters are used.
func resolvePipeline(config *core.ServiceConfig, plugins []string, set []string) ([]string, []map[string]any, error) {
	overrides, err := parseSetFlags(set)
	if err != nil {
		return nil, nil, err
	}

	var base []map[string]any
	if len(plugins) == 0 {
		plugins, base = config.StepNames(), config.StepParams()
	}

	params := make([]map[string]any, len(plugins))
	for i := range plugins {
		params[i] = map[string]any{}
		if i < len(base) {
			maps.Copy(params[i], base[i])
		}
		maps.Copy(params[i], overrides)
	}
	return plugins, params, nil
}

// parseSetFlags turns key=value pairs into parameters. Values are read as
// YAML scalars, so numbers and booleans keep their type.
func parseSetFlags(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", pair)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", pair, err)
		}
		if value == nil && raw != "null" && raw != "~" {
			value = raw
		}
		params[key] = value
	}
	return params, nil
}
