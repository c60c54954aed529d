package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/contract-radar/internal/model"
	"github.com/sells-group/contract-radar/internal/profile"
)

var (
	profileCompanyID string
	profileFile      string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the company capability profile",
}

var profileInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a company profile from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}

		data, err := os.ReadFile(profileFile)
		if err != nil {
			return eris.Wrap(err, "read profile file")
		}

		var p model.CompanyProfile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return eris.Wrap(err, "parse profile yaml")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		created, err := st.CreateProfile(ctx, &p)
		if err != nil {
			return err
		}

		zap.L().Info("profile created",
			zap.String("company_id", created.ID),
			zap.Int64("version", created.Version),
		)
		fmt.Println(created.ID)
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a company profile as YAML",
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

		p, err := st.GetProfile(ctx, profileCompanyID)
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(p)
		if err != nil {
			return eris.Wrap(err, "marshal profile")
		}
		fmt.Print(string(out))
		return nil
	},
}

var profileApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a YAML patch to a company profile",
	Long:  "Applies a partial update. If the patch changes any scoring-relevant field, the profile version bumps by one and existing evaluations become stale.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}

		data, err := os.ReadFile(profileFile)
		if err != nil {
			return eris.Wrap(err, "read patch file")
		}

		var patch model.ProfilePatch
		if err := yaml.Unmarshal(data, &patch); err != nil {
			return eris.Wrap(err, "parse patch yaml")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p, bumped, err := profile.NewTracker(st).ApplyUpdate(ctx, profileCompanyID, patch)
		if err != nil {
			return err
		}

		if bumped {
			fmt.Printf("profile updated, version bumped to %d (existing evaluations are now stale)\n", p.Version)
		} else {
			fmt.Printf("profile updated, version unchanged at %d\n", p.Version)
		}
		return nil
	},
}

func init() {
	profileInitCmd.Flags().StringVarP(&profileFile, "file", "f", "", "profile YAML file (required)")
	_ = profileInitCmd.MarkFlagRequired("file")

	profileShowCmd.Flags().StringVar(&profileCompanyID, "company", "", "company profile ID (required)")
	_ = profileShowCmd.MarkFlagRequired("company")

	profileApplyCmd.Flags().StringVar(&profileCompanyID, "company", "", "company profile ID (required)")
	_ = profileApplyCmd.MarkFlagRequired("company")
	profileApplyCmd.Flags().StringVarP(&profileFile, "file", "f", "", "patch YAML file (required)")
	_ = profileApplyCmd.MarkFlagRequired("file")

	profileCmd.AddCommand(profileInitCmd, profileShowCmd, profileApplyCmd)
	rootCmd.AddCommand(profileCmd)
}
