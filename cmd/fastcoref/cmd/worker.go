package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/config"
	"github.com/ksteimel/fast-coref/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued evaluation jobs",
	Long: `Run an asynq worker that evaluates the best checkpoint named by each
queued job. Datasets, model and storage come from the worker's own
configuration; jobs only carry the run directories and eval overrides.

Example:
  fastcoref worker --config worker.yaml --concurrency 2`,
	RunE: runWorker,
}

func init() {
	fs := workerCmd.Flags()
	fs.StringArray(config.DatasetFlag, nil, "Dataset as name=data_dir[=conll_dir], repeatable")
	fs.String("model", "oracle", "Registered model name")
	fs.String("backend", "null", "Registered backend name")
	fs.String("storage", "local", "Checkpoint storage: local or minio")
	fs.String("conll-scorer", "", "Path of the official CoNLL scorer")
	fs.String("log-level", "info", "Log level")
	fs.String("log-format", "json", "Log format: json or console")
	fs.Int("concurrency", 0, "Jobs processed in parallel (default from config)")
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.Options{
		ConfigFile: configFile,
		Flags:      cmd.Flags(),
		Worker:     true,
	})
	if err != nil {
		return err
	}
	if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
		cfg.Worker.Concurrency = n
	}
	// jobs log to the shared process log, not per run
	cfg.Log.ToFile = false
	cfg.Status.Enabled = false

	log, err := initLogging(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	flush := initSentry(cfg, log)
	defer flush()

	rt, err := newRuntime(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to initialize dependencies", zap.Error(err))
		return err
	}
	defer rt.Close()

	server := worker.NewServer(log, cfg, worker.NewEvalWorker(log, cfg, rt.run))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutting down worker...")
		server.Stop()
	case err := <-errCh:
		if err != nil {
			log.Error("worker server error", zap.Error(err))
			return err
		}
	}

	log.Info("worker stopped")
	return nil
}
