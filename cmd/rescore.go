package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/contract-radar/internal/model"
)

var rescoreCompanyID string

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Re-score every stale evaluation for a company",
	RunE: func(cmd *cobra.Command, _ []string) error {
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

		sum, err := initCoordinator(st).RescoreAllStale(ctx, rescoreCompanyID)
		if err != nil {
			return err
		}

		printSummary(sum)
		return nil
	},
}

func printSummary(sum *model.RescoreSummary) {
	fmt.Printf("stale:     %d\n", sum.TotalStale)
	fmt.Printf("re-scored: %d\n", sum.RescoredCount)
	fmt.Printf("failed:    %d\n", sum.ErrorCount)
	if len(sum.FailedIDs) > 0 {
		fmt.Printf("failed evaluation IDs: %s\n", strings.Join(sum.FailedIDs, ", "))
	}
}

func init() {
	rescoreCmd.Flags().StringVar(&rescoreCompanyID, "company", "", "company profile ID (required)")
	_ = rescoreCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(rescoreCmd)
}
