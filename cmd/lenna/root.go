package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/jo-hoe/lenna/internal/core"
	"github.com/spf13/cobra"
)

const (
	envConfig   = "LENNA_CONFIG"
	envLogLevel = "LENNA_LOG_LEVEL"
	envDatabase = "LENNA_DATABASE"

	defaultConfigFile = "config.yaml"
)

var (
	configPath   string
	logLevel     string
	databasePath string
)

var rootCmd = &cobra.Command{
	Use:           "lenna",
	Short:         "Run image processor plugins on image files",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logLevel
		if !cmd.Flags().Changed("log-level") {
			if env := os.Getenv(envLogLevel); env != "" {
				level = env
			}
		}
		return setupLogging(cmd.ErrOrStderr(), level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $"+envConfig+" or ./"+defaultConfigFile+" when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&databasePath, "db", "", "sqlite file for run history (default $"+envDatabase+")")
}

func setupLogging(w io.Writer, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// loadServiceConfig resolves the config file and applies the database override
func loadServiceConfig(cmd *cobra.Command) (*core.ServiceConfig, error) {
	path := configPath
	if !cmd.Flags().Changed("config") {
		path = os.Getenv(envConfig)
	}

	var config *core.ServiceConfig
	switch {
	case path != "":
		loaded, err := core.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	default:
		loaded, err := core.LoadConfig(defaultConfigFile)
		switch {
		case err == nil:
			config = loaded
		case errors.Is(err, fs.ErrNotExist):
			config = core.DefaultConfig()
		default:
			return nil, err
		}
	}

	db := databasePath
	if !cmd.Flags().Changed("db") {
		if env := os.Getenv(envDatabase); env != "" {
			db = env
		}
	}
	if db != "" {
		config.Database = core.Database{Type: "sqlite", ConnectionString: db}
	}
	return config, nil
}

func newCoreService(cmd *cobra.Command) (*core.CoreService, error) {
	config, err := loadServiceConfig(cmd)
	if err != nil {
		return nil, err
	}
	return core.NewCoreService(config)
}
