package main

import (
	"fmt"
	"io"
	"os"

	"iclr-explorer/internal/repository"
	"iclr-explorer/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importYear string

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Load submissions from a JSON array or JSON Lines export",
	Long: `Load submissions into the partition of --year.

Records are upserted by their source id, so re-running an import refreshes
reviews and decisions without duplicating papers. Pass "-" to read stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		in, err := openInput(args[0])
		if err != nil {
			return err
		}
		defer in.Close()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		importer := service.NewImporter(repository.NewSubmissionRepository(st.db, st.resolver, logger), st.years, logger)

		target := importYear
		if target == "" {
			target = st.years.Current()
		}

		res, err := importer.Import(ctx, in, target)
		if err != nil {
			return err
		}

		logger.Info("Import finished",
			zap.String("year", target),
			zap.Int("imported", res.Imported),
			zap.Int("skipped", res.Skipped))
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d submissions into %s (%d skipped)\n", res.Imported, target, res.Skipped)
		return nil
	},
}

var importStatsCmd = &cobra.Command{
	Use:   "import-stats [file]",
	Short: "Replace the prediction stats leaderboard from an export",
	Long: `Replace every stored prediction stats record with the records of an export.

Records without prompt text are skipped. When a prompt appears more than once
the last record wins. Pass "-" to read stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		in, err := openInput(args[0])
		if err != nil {
			return err
		}
		defer in.Close()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		importer := service.NewStatsImporter(repository.NewStatsRepository(st.db, logger), logger)
		res, err := importer.Import(ctx, in)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "imported %d prediction stats records (%d skipped)\n", res.Imported, res.Skipped)
		return nil
	},
}

// openInput opens path for reading, or stdin for "-".
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	return f, nil
}

func init() {
	importCmd.Flags().StringVarP(&importYear, "year", "y", "", "Target year (default: configured default year)")
}
