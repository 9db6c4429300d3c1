package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/simdeck/simdeck/pkg/api"
	"github.com/simdeck/simdeck/pkg/config"
	"github.com/simdeck/simdeck/pkg/transport"
)

const defaultConfigPath = "simdeck.yaml"

// app holds everything the subcommands share: resolved configuration and
// the logger.
type app struct {
	cfg config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
		serverURL  string
		verbose    bool
	)

	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "simdeck",
		Short:         "Live dashboard for multi-agent simulation servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := loadDotEnv(envFile); err != nil {
				return err
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if serverURL != "" {
				cfg.Server.URL = serverURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a.cfg = cfg
			a.log = newLogger(verbose)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "path to .env file (ignored if missing)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "simulation server URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(
		newWatchCmd(a),
		newReplayCmd(a),
		newSimsCmd(a),
	)

	return rootCmd
}

// loadDotEnv loads the env file if it exists. A missing file is not an
// error; secrets may come from the real environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the config file. The default path is allowed to be
// absent, in which case the zero config plus flags applies; an explicitly
// requested file must exist.
func loadConfig(path string) (config.Config, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Config{}, nil
		}
	}
	return config.Load(path)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// requireServer fails early for commands that talk to a server.
func (a *app) requireServer() error {
	if a.cfg.Server.URL == "" {
		return errors.New("no server configured (set server.url in simdeck.yaml or pass --server)")
	}
	return nil
}

// apiClient builds the REST client for the configured server.
func (a *app) apiClient() *api.Client {
	return &api.Client{
		BaseURL: a.cfg.Server.URL,
		Auth:    api.Auth{Key: a.cfg.Server.APIKey},
	}
}

// wsFactory builds the event feed transport for the configured server.
func (a *app) wsFactory() *transport.WSFactory {
	f := &transport.WSFactory{
		BaseURL: a.cfg.Server.URL,
		Log:     a.log,
	}
	if a.cfg.Server.APIKey != "" {
		f.Header = http.Header{"Authorization": []string{"Bearer " + a.cfg.Server.APIKey}}
	}
	return f
}
