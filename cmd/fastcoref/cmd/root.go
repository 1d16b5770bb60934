package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ksteimel/fast-coref/internal/config"
)

var (
	// Version is set at build time
	Version = "0.1.0"

	// Global flags
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "fastcoref",
	Short: "Train and evaluate memory-based coreference models",
	Long: `fastcoref runs coreference experiments: it trains a model on one or more
jsonlines datasets, keeps the best checkpoint by dev CoNLL F1 and reports
MUC, B3 and CEAFe on the test split.

Commands:
  train   - Train a model, then evaluate the best checkpoint
  eval    - Evaluate an existing best checkpoint
  worker  - Process queued evaluation jobs
  submit  - Queue an evaluation job

Example:
  fastcoref train --model-dir runs/litbank --dataset litbank=data/litbank
  fastcoref eval --model-dir runs/litbank --dataset litbank=data/litbank --use-gold-ments
  fastcoref submit --model-dir runs/litbank`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file (default ./config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(submitCmd)
}

// Execute runs the CLI
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fastcoref: %v\n", err)
		return err
	}
	return nil
}

// loadConfig merges defaults, file, environment and the command's flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.Options{
		ConfigFile: configFile,
		Flags:      cmd.Flags(),
	})
}

// addExperimentFlags registers the flags shared by train and eval. Unset
// flags leave file and environment values in place.
func addExperimentFlags(fs *pflag.FlagSet) {
	fs.String("run-id", "", "Run identifier (default random UUID)")
	fs.Uint64("seed", 0, "Random seed")
	fs.String("model-dir", "", "Directory for the last checkpoint and outputs")
	fs.String("best-model-dir", "", "Directory for the best checkpoint (default <model-dir>/best)")
	fs.StringArray(config.DatasetFlag, nil, "Dataset as name=data_dir[=conll_dir], repeatable")

	fs.Int("max-segment-len", 2048, "Maximum segment length of the tensorized documents")
	fs.Int("num-eval-docs", 0, "Limit on dev and test documents per dataset (0 for all)")
	fs.Bool("skip-dialog-data", false, "Drop conversational documents")
	fs.Bool("remove-singletons", false, "Drop singleton clusters from the gold annotation")

	fs.String("model", "oracle", "Registered model name")
	fs.String("backend", "null", "Registered backend name")
	fs.String("storage", "local", "Checkpoint storage: local or minio")
	fs.String("conll-scorer", "", "Path of the official CoNLL scorer")

	fs.Int("max-span-width", 0, "Override the model's maximum span width")
	fs.Float64("top-span-ratio", 0, "Override the model's top span ratio")
	fs.Bool("use-gold-ments", false, "Evaluate with gold mentions")
	fs.Int("eval-max-ents", 0, "Override the model's entity memory size")
	fs.Bool("use-topk", false, "Evaluate with top-k mention selection")

	fs.String("status-addr", "", "Serve run status on this address")
	fs.String("log-level", "info", "Log level")
	fs.String("log-format", "json", "Log format: json or console")
}
