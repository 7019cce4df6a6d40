package main

import (
	"iclr-explorer/internal/repository"
	"iclr-explorer/internal/service"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	evalYear     string
	evalPrompt   string
	evalRebuttal int
	evalCompare  bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Print prediction metrics for a prompt as JSON",
	Long: `Compute the confusion matrix and derived rates of the stored predictions
for --prompt. With --compare both rebuttal variants are reported side by side.
Without --prompt every stored prompt is summarized.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if evalYear != "" {
			if ctx, err = st.years.WithYear(ctx, evalYear); err != nil {
				return err
			}
		}

		evaluator := service.NewEvaluator(repository.NewPredictionRepository(st.db, st.resolver, logger), logger)

		var out interface{}
		switch {
		case evalPrompt == "":
			out, err = evaluator.Overview(ctx)
		case evalCompare:
			out, err = evaluator.CompareRebuttal(ctx, evalPrompt)
		default:
			out, err = evaluator.Confusion(ctx, evalPrompt, evalRebuttal)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	evaluateCmd.Flags().StringVarP(&evalYear, "year", "y", "", "Year to evaluate (default: configured default year)")
	evaluateCmd.Flags().StringVarP(&evalPrompt, "prompt", "p", "", "Prompt template or key")
	evaluateCmd.Flags().IntVarP(&evalRebuttal, "rebuttal", "r", 0, "Rebuttal flag: 0 excluded, 1 included, -1 unknown")
	evaluateCmd.Flags().BoolVar(&evalCompare, "compare", false, "Report both rebuttal variants")
}
