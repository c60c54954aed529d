package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/contract-radar/internal/rescore"
)

var staleCompanyID string

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "Show how many evaluations are stale for a company",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		// Counting needs no evaluator; build the coordinator without one.
		coord := rescore.New(st, nil, rescore.Config{})
		sc, err := coord.StaleCount(ctx, staleCompanyID)
		if err != nil {
			return err
		}

		fmt.Printf("profile version: %d\n", sc.CurrentProfileVersion)
		fmt.Printf("evaluations:     %d\n", sc.TotalEvaluations)
		fmt.Printf("stale:           %d\n", sc.StaleCount)
		return nil
	},
}

func init() {
	staleCmd.Flags().StringVar(&staleCompanyID, "company", "", "company profile ID (required)")
	_ = staleCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(staleCmd)
}
