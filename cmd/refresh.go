package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <evaluation-id>",
	Short: "Re-score a single evaluation against the current profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("evaluate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		ev, err := initCoordinator(st).RefreshOne(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("fit score:       %d\n", ev.FitScore)
		fmt.Printf("win probability: %d\n", ev.WinProbability)
		fmt.Printf("recommendation:  %s\n", ev.Recommendation)
		fmt.Printf("profile version: %d\n", ev.ProfileVersionAtEvaluation)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
