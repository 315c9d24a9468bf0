package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/duonganh203/benkyo/internal/config"
	"github.com/duonganh203/benkyo/internal/models"
)

func newOptimizeCmd() *cobra.Command {
	var deckID, userID string

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run a weight optimization for a deck and print the result",
		Long: `Run the optimization pipeline once for a deck, as its owner, and wait for
the result. The deck must not have another optimization in progress.

  benkyo optimize --deck 0b6f... --user 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, flush, err := loadConfig()
			if err != nil {
				return err
			}
			defer flush()

			if cfg.Storage == config.StorageMemory {
				return errors.New("optimize needs persistent storage, set STORAGE=postgres")
			}

			repo, closeRepo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			result, err := newCoordinator(cfg, repo).TriggerManualOptimization(cmd.Context(), deckID, userID)
			if err != nil && !errors.Is(err, models.ErrOptimizationInProgress) {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(result); encErr != nil {
				return fmt.Errorf("print result: %w", encErr)
			}

			if err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("optimization failed: %s", result.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&deckID, "deck", "", "deck ID")
	cmd.Flags().StringVar(&userID, "user", "", "deck owner user ID")
	_ = cmd.MarkFlagRequired("deck")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
