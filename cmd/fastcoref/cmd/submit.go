package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/ksteimel/fast-coref/internal/config"
	"github.com/ksteimel/fast-coref/internal/worker"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Queue an evaluation job",
	Long: `Queue the evaluation of a finished run for the worker command. Only the
eval overrides given on the command line are sent with the job.

Example:
  fastcoref submit --model-dir runs/joint --use-gold-ments --eval-max-ents 20`,
	RunE: runSubmit,
}

func init() {
	fs := submitCmd.Flags()
	fs.String("run-id", "", "Run identifier (default random UUID)")
	fs.String("model-dir", "", "Directory of the run to evaluate")
	fs.String("best-model-dir", "", "Directory of the best checkpoint (default <model-dir>/best)")
	fs.Int("max-span-width", 0, "Override the model's maximum span width")
	fs.Float64("top-span-ratio", 0, "Override the model's top span ratio")
	fs.Bool("use-gold-ments", false, "Evaluate with gold mentions")
	fs.Int("eval-max-ents", 0, "Override the model's entity memory size")
	fs.Bool("use-topk", false, "Evaluate with top-k mention selection")
	_ = submitCmd.MarkFlagRequired("model-dir")
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	fs := cmd.Flags()
	cfg, err := config.Load(config.Options{
		ConfigFile: configFile,
		Flags:      fs,
		Worker:     true,
	})
	if err != nil {
		return err
	}

	payload := &worker.EvaluationPayload{
		ModelDir:     cfg.Experiment.ModelDir,
		BestModelDir: cfg.Experiment.BestModelDir,
	}
	if cfg.Experiment.RunID != "" {
		if payload.RunID, err = uuid.Parse(cfg.Experiment.RunID); err != nil {
			return fmt.Errorf("run-id must be a UUID: %w", err)
		}
	}
	if fs.Changed("max-span-width") {
		payload.MaxSpanWidth = cfg.Eval.MaxSpanWidth
	}
	if fs.Changed("top-span-ratio") {
		payload.TopSpanRatio = cfg.Eval.TopSpanRatio
	}
	if fs.Changed("use-gold-ments") {
		payload.UseGoldMentions = cfg.Eval.UseGoldMentions
	}
	if fs.Changed("eval-max-ents") {
		payload.MaxEntities = cfg.Eval.MaxEntities
	}
	if fs.Changed("use-topk") {
		payload.UseTopK = cfg.Eval.UseTopK
	}

	client := asynq.NewClient(worker.RedisOpt(cfg))
	defer client.Close()

	info, err := worker.EnqueueEvaluation(client, cfg.Worker.Queue, payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "queued %s on %s (task %s)\n", payload.ModelDir, info.Queue, info.ID)
	return nil
}
