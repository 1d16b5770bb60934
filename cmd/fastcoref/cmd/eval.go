package cmd

import (
	"github.com/spf13/cobra"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate an existing best checkpoint",
	Long: `Load the best checkpoint of a finished run and score it on the test split
of every dataset. Hyperparameters saved with the checkpoint take precedence
over configured ones; the eval overrides (max-span-width, top-span-ratio,
use-gold-ments, eval-max-ents, use-topk) are applied on top.

Example:
  fastcoref eval --model-dir runs/joint --dataset litbank=data/litbank --use-gold-ments`,
	RunE: runEval,
}

func init() {
	addExperimentFlags(evalCmd.Flags())
}

func runEval(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Experiment.EvalModel = true
	return execute(cmd, cfg)
}
