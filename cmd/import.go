package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contract-radar/internal/importer"
)

var (
	importCSVPath string
	importCharset string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import opportunities from a CSV export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}

		charset := importCharset
		if charset == "" {
			charset = cfg.Import.Charset
		}

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close() //nolint:errcheck

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := importer.Import(ctx, st, f, charset)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.Int64("written", n),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	_ = importCmd.MarkFlagRequired("csv")
	importCmd.Flags().StringVar(&importCharset, "charset", "", "source encoding (default from config)")
	rootCmd.AddCommand(importCmd)
}
