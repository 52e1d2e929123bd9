package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ashureev/voicelab/internal/config"
	"github.com/ashureev/voicelab/internal/identity"
	"github.com/ashureev/voicelab/internal/progress"
	"github.com/ashureev/voicelab/internal/store"
	"github.com/spf13/cobra"
)

var progressUser string

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect or reset a player's progress",
}

var progressShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a player's progress record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withTracker(cmd, func(t *progress.Tracker) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(t.Snapshot())
		})
	},
}

var progressResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset a player's progress to level 0",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withTracker(cmd, func(t *progress.Tracker) error {
			t.Reset(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Progress reset for %s\n", progressUser)
			return nil
		})
	},
}

var progressDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a player's stored progress record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRepository(cmd, func(repo store.Repository, _ *config.Config) error {
			if err := repo.DeleteProgress(cmd.Context(), progressUser); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Progress deleted for %s\n", progressUser)
			return nil
		})
	},
}

func init() {
	progressCmd.PersistentFlags().StringVar(&progressUser, "user", "", "Player id (the voicelab_anon_id cookie value)")
	_ = progressCmd.MarkPersistentFlagRequired("user")

	progressCmd.AddCommand(progressShowCmd)
	progressCmd.AddCommand(progressResetCmd)
	progressCmd.AddCommand(progressDeleteCmd)
}

func withTracker(cmd *cobra.Command, fn func(*progress.Tracker) error) error {
	return withRepository(cmd, func(repo store.Repository, cfg *config.Config) error {
		catalog, err := loadCatalog(cmd, cfg)
		if err != nil {
			return err
		}
		tracker := progress.NewTracker(cmd.Context(), progress.NewRepositoryStorage(repo, progressUser), catalog.Last(), slog.Default())
		return fn(tracker)
	})
}

func withRepository(cmd *cobra.Command, fn func(store.Repository, *config.Config) error) error {
	if !identity.ValidUserID(progressUser) {
		return fmt.Errorf("invalid player id %q", progressUser)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	return fn(repo, cfg)
}
