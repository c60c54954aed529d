package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/contract-radar/internal/evaluator"
	"github.com/sells-group/contract-radar/internal/model"
	"github.com/sells-group/contract-radar/pkg/anthropic"
)

var (
	evaluateCompanyID     string
	evaluateOpportunityID string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score one opportunity against a company profile",
	Long:  "Creates the evaluation for the (opportunity, company) pair, or replaces its scored fields if one already exists. User-owned fields are never touched.",
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

		p, err := st.GetProfile(ctx, evaluateCompanyID)
		if err != nil {
			return err
		}
		opp, err := st.GetOpportunity(ctx, evaluateOpportunityID)
		if err != nil {
			return err
		}

		eval := evaluator.NewClaude(anthropic.NewClient(cfg.Anthropic.Key), evaluator.Config{
			Model:             cfg.Anthropic.Model,
			MaxTokens:         cfg.Anthropic.MaxTokens,
			RequestsPerSecond: cfg.Anthropic.RequestsPerSecond,
			Burst:             cfg.Anthropic.Burst,
		})

		res, err := eval.Evaluate(ctx, opp, p)
		if err != nil {
			return err
		}

		ev, err := st.GetEvaluationByPair(ctx, opp.ID, p.ID)
		switch {
		case err == nil:
			ev.ApplyScores(res, p.Version, time.Now().UTC())
			if err := st.UpdateEvaluationScores(ctx, ev); err != nil {
				return err
			}
		case model.IsNotFound(err):
			ev = &model.Evaluation{OpportunityID: opp.ID, CompanyID: p.ID}
			ev.ApplyScores(res, p.Version, time.Now().UTC())
			if ev, err = st.CreateEvaluation(ctx, ev); err != nil {
				return err
			}
		default:
			return err
		}

		fmt.Printf("evaluation:      %s\n", ev.ID)
		fmt.Printf("fit score:       %d\n", ev.FitScore)
		fmt.Printf("win probability: %d\n", ev.WinProbability)
		fmt.Printf("recommendation:  %s\n", ev.Recommendation)
		return nil
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateCompanyID, "company", "", "company profile ID (required)")
	_ = evaluateCmd.MarkFlagRequired("company")
	evaluateCmd.Flags().StringVar(&evaluateOpportunityID, "opportunity", "", "opportunity ID (required)")
	_ = evaluateCmd.MarkFlagRequired("opportunity")
	rootCmd.AddCommand(evaluateCmd)
}
