// Package cli defines the Cobra commands of the voicelab server binary.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/voicelab/internal/config"
	"github.com/ashureev/voicelab/internal/levels"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	debug   bool
	version = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "voicelab",
	Short: "Voice agent prompt-injection challenge server",
	Long: `voicelab serves the voice agent prompt-injection challenge: level
catalog, per-player progress, screen state and the call setup proxy to
Pipecat Cloud. Running it without a subcommand starts the server.`,
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runServe,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at debug level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(levelsCmd)
	rootCmd.AddCommand(progressCmd)
}

// setup installs the JSON logger and loads .env before any command runs.
func setup(_ *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	return nil
}

func loadCatalog(cmd *cobra.Command, cfg *config.Config) (*levels.Catalog, error) {
	catalog, err := levels.Load(cmd.Context(), cfg.LevelsFile)
	if err != nil {
		return nil, fmt.Errorf("load levels from %s: %w", cfg.LevelsFile, err)
	}
	return catalog, nil
}
