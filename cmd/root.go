package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contract-radar/internal/config"
	"github.com/sells-group/contract-radar/internal/evaluator"
	"github.com/sells-group/contract-radar/internal/rescore"
	"github.com/sells-group/contract-radar/internal/store"
	"github.com/sells-group/contract-radar/pkg/anthropic"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "contract-radar",
	Short: "Contract opportunity discovery and fit scoring",
	Long:  "Tracks a company capability profile, scores contract opportunities against it with Claude, and keeps evaluations fresh as the profile changes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.Pool.MaxConns,
			MinConns: cfg.Store.Pool.MinConns,
		})
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initCoordinator(st store.Store) *rescore.Coordinator {
	eval := evaluator.NewClaude(anthropic.NewClient(cfg.Anthropic.Key), evaluator.Config{
		Model:             cfg.Anthropic.Model,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		RequestsPerSecond: cfg.Anthropic.RequestsPerSecond,
		Burst:             cfg.Anthropic.Burst,
	})
	return rescore.New(st, eval, rescore.Config{
		Workers:          cfg.Rescore.Workers,
		EvaluatorTimeout: time.Duration(cfg.Rescore.EvaluatorTimeoutSecs) * time.Second,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
