package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/config"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a model, then evaluate the best checkpoint",
	Long: `Train a model on the train splits of every dataset, evaluating on dev
every eval-per-k-steps steps. Training resumes from <model-dir>/model.ckpt
when it exists and stops after max-evals evaluations or patience
evaluations without improvement. The best checkpoint is then scored on the
test splits and written to <model-dir>/<dataset>/perf.json.

Example:
  fastcoref train --model-dir runs/joint \
    --dataset litbank=data/litbank=data/litbank/conll \
    --dataset ontonotes=data/ontonotes --max-evals 20 --patience 10`,
	RunE: runTrain,
}

func init() {
	fs := trainCmd.Flags()
	addExperimentFlags(fs)
	fs.Bool("save-model", true, "Save the last checkpoint after every evaluation")
	fs.Int("max-evals", 20, "Number of evaluations before training stops")
	fs.Int("eval-per-k-steps", 0, "Steps between evaluations (0 for one pass over the data)")
	fs.Int("patience", 10, "Evaluations without improvement before training stops")
	fs.Int("update-frequency", 100, "Steps between progress logs")
	fs.Int("num-train-docs", 0, "Limit on training documents per dataset (0 for all)")
	fs.Float64("init-lr", 3e-4, "Learning rate of the task parameters")
	fs.Float64("fine-tune-lr", 0, "Learning rate of the encoder (0 keeps it frozen)")
	fs.Float64("max-gradient-norm", 1.0, "Gradient clipping norm of the task parameters")
	fs.Float64("encoder-max-norm", 1.0, "Gradient clipping norm of the encoder")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return execute(cmd, cfg)
}

// execute runs one experiment until it finishes or the process is
// interrupted
func execute(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("status-addr") {
		cfg.Status.Enabled = true
	}

	log, err := initLogging(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	flush := initSentry(cfg, log)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize dependencies", zap.Error(err))
		return err
	}
	defer rt.Close()

	if err := rt.run(ctx, cfg); err != nil {
		log.Error("experiment failed", zap.Error(err))
		return err
	}
	return nil
}
