// Package config loads experiment configuration from defaults, an optional
// YAML file, FASTCOREF_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	apperrors "github.com/ksteimel/fast-coref/internal/pkg/errors"
	"github.com/ksteimel/fast-coref/internal/validator"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "FASTCOREF"

// DatasetFlag is the repeatable flag naming datasets as name=data_dir[=conll_dir]
const DatasetFlag = "dataset"

// flagKeys maps command-line flag names to configuration keys
var flagKeys = map[string]string{
	"run-id":            "experiment.run_id",
	"seed":              "experiment.seed",
	"model-dir":         "experiment.model_dir",
	"best-model-dir":    "experiment.best_model_dir",
	"eval":              "experiment.eval_model",
	"save-model":        "experiment.to_save_model",
	"max-evals":         "experiment.max_evals",
	"eval-per-k-steps":  "experiment.eval_per_k_steps",
	"patience":          "experiment.patience",
	"update-frequency":  "experiment.update_frequency",
	"num-train-docs":    "experiment.num_train_docs",
	"num-eval-docs":     "experiment.num_eval_docs",
	"max-segment-len":   "experiment.max_segment_len",
	"skip-dialog-data":  "experiment.skip_dialog_data",
	"remove-singletons": "experiment.remove_singletons",
	"init-lr":           "optim.init_lr",
	"fine-tune-lr":      "optim.fine_tune_lr",
	"max-gradient-norm": "optim.max_gradient_norm",
	"encoder-max-norm":  "optim.encoder_max_gradient_norm",
	"conll-scorer":      "eval.conll_scorer",
	"max-span-width":    "eval.max_span_width",
	"top-span-ratio":    "eval.top_span_ratio",
	"use-gold-ments":    "eval.use_gold_ments",
	"eval-max-ents":     "eval.eval_max_ents",
	"use-topk":          "eval.use_topk",
	"model":             "model.name",
	"backend":           "backend.name",
	"storage":           "storage.kind",
	"status-addr":       "status.addr",
	"log-level":         "log.level",
	"log-format":        "log.format",
}

// Options tells Load where to look besides the environment
type Options struct {
	// ConfigFile is an explicit YAML file; when empty, config.yaml is
	// searched in the working directory and ./config.
	ConfigFile string
	Flags      *pflag.FlagSet
	// Worker loads a queue worker's base configuration, which has no
	// model_dir of its own.
	Worker bool
}

// Load loads configuration from defaults, file, environment and flags
func Load(opts Options) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.InvalidConfig("failed to read config file").WithError(err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, apperrors.InvalidConfig("failed to read config file").WithError(err)
		}
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	var cfg Config

	// Experiment
	cfg.Experiment.RunID = v.GetString("experiment.run_id")
	cfg.Experiment.Seed = v.GetUint64("experiment.seed")
	cfg.Experiment.ModelDir = v.GetString("experiment.model_dir")
	cfg.Experiment.BestModelDir = v.GetString("experiment.best_model_dir")
	cfg.Experiment.EvalModel = v.GetBool("experiment.eval_model")
	cfg.Experiment.ToSaveModel = v.GetBool("experiment.to_save_model")
	cfg.Experiment.MaxEvals = v.GetInt("experiment.max_evals")
	cfg.Experiment.EvalPerKSteps = v.GetInt("experiment.eval_per_k_steps")
	cfg.Experiment.Patience = v.GetInt("experiment.patience")
	cfg.Experiment.UpdateFrequency = v.GetInt("experiment.update_frequency")
	cfg.Experiment.NumTrainDocs = v.GetInt("experiment.num_train_docs")
	cfg.Experiment.NumEvalDocs = v.GetInt("experiment.num_eval_docs")
	cfg.Experiment.MaxSegmentLen = v.GetInt("experiment.max_segment_len")
	cfg.Experiment.SkipDialogData = v.GetBool("experiment.skip_dialog_data")
	cfg.Experiment.RemoveSingletons = v.GetBool("experiment.remove_singletons")
	if cfg.Experiment.BestModelDir == "" && cfg.Experiment.ModelDir != "" {
		cfg.Experiment.BestModelDir = filepath.Join(cfg.Experiment.ModelDir, "best")
	}

	// Optimization
	cfg.Optim.InitLR = v.GetFloat64("optim.init_lr")
	cfg.Optim.FineTuneLR = v.GetFloat64("optim.fine_tune_lr")
	cfg.Optim.MaxGradientNorm = v.GetFloat64("optim.max_gradient_norm")
	cfg.Optim.EncoderMaxGradientNorm = v.GetFloat64("optim.encoder_max_gradient_norm")

	// Datasets
	if err := v.UnmarshalKey("datasets", &cfg.Datasets); err != nil {
		return nil, apperrors.InvalidConfig("failed to parse datasets").WithError(err)
	}
	if opts.Flags != nil && opts.Flags.Changed(DatasetFlag) {
		values, err := opts.Flags.GetStringArray(DatasetFlag)
		if err != nil {
			return nil, apperrors.InvalidConfig("failed to read dataset flag").WithError(err)
		}
		if cfg.Datasets, err = ParseDatasets(values); err != nil {
			return nil, err
		}
	}

	// Evaluation overrides; unset keys leave the model's own values alone
	cfg.Eval.ConllScorer = v.GetString("eval.conll_scorer")
	cfg.Eval.ScorerTimeout = v.GetDuration("eval.scorer_timeout")
	if v.IsSet("eval.max_span_width") {
		n := v.GetInt("eval.max_span_width")
		cfg.Eval.MaxSpanWidth = &n
	}
	if v.IsSet("eval.top_span_ratio") {
		r := v.GetFloat64("eval.top_span_ratio")
		cfg.Eval.TopSpanRatio = &r
	}
	if v.IsSet("eval.use_gold_ments") {
		b := v.GetBool("eval.use_gold_ments")
		cfg.Eval.UseGoldMentions = &b
	}
	if v.IsSet("eval.eval_max_ents") {
		n := v.GetInt("eval.eval_max_ents")
		cfg.Eval.MaxEntities = &n
	}
	if v.IsSet("eval.use_topk") {
		b := v.GetBool("eval.use_topk")
		cfg.Eval.UseTopK = &b
	}

	// Model
	cfg.Model.Name = v.GetString("model.name")
	cfg.Model.Hyperparameters = v.GetStringMap("model.hyperparameters")
	cfg.Backend.Name = v.GetString("backend.name")

	// Storage
	cfg.Storage.Kind = v.GetString("storage.kind")
	cfg.Storage.MinIO.Endpoint = v.GetString("storage.minio.endpoint")
	cfg.Storage.MinIO.AccessKey = v.GetString("storage.minio.access_key")
	cfg.Storage.MinIO.SecretKey = v.GetString("storage.minio.secret_key")
	cfg.Storage.MinIO.UseSSL = v.GetBool("storage.minio.use_ssl")
	cfg.Storage.MinIO.Bucket = v.GetString("storage.minio.bucket")
	cfg.Storage.MinIO.Prefix = v.GetString("storage.minio.prefix")

	// PostgreSQL
	cfg.Postgres.Enabled = v.GetBool("postgres.enabled")
	cfg.Postgres.Host = v.GetString("postgres.host")
	cfg.Postgres.Port = v.GetInt("postgres.port")
	cfg.Postgres.User = v.GetString("postgres.user")
	cfg.Postgres.Password = v.GetString("postgres.password")
	cfg.Postgres.Database = v.GetString("postgres.database")
	cfg.Postgres.SSLMode = v.GetString("postgres.ssl_mode")
	cfg.Postgres.MaxConns = v.GetInt32("postgres.max_conns")
	cfg.Postgres.MinConns = v.GetInt32("postgres.min_conns")

	// Redis
	cfg.Redis.Host = v.GetString("redis.host")
	cfg.Redis.Port = v.GetInt("redis.port")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")

	// Worker
	cfg.Worker.Concurrency = v.GetInt("worker.concurrency")
	cfg.Worker.Queue = v.GetString("worker.queue")

	// Status endpoint
	cfg.Status.Enabled = v.GetBool("status.enabled")
	cfg.Status.Addr = v.GetString("status.addr")

	// Logging
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.Log.ToFile = v.GetBool("log.to_file")

	// Sentry
	cfg.Sentry.DSN = v.GetString("sentry.dsn")
	cfg.Sentry.Environment = v.GetString("sentry.environment")

	// Validate required fields
	if err := validate(&cfg, opts.Worker); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Experiment defaults
	v.SetDefault("experiment.seed", 0)
	v.SetDefault("experiment.to_save_model", true)
	v.SetDefault("experiment.max_evals", 20)
	v.SetDefault("experiment.eval_per_k_steps", 0)
	v.SetDefault("experiment.patience", 10)
	v.SetDefault("experiment.update_frequency", 100)
	v.SetDefault("experiment.max_segment_len", 2048)

	// Optimization defaults
	v.SetDefault("optim.init_lr", 3e-4)
	v.SetDefault("optim.fine_tune_lr", 0)
	v.SetDefault("optim.max_gradient_norm", 1.0)
	v.SetDefault("optim.encoder_max_gradient_norm", 1.0)

	// Evaluation defaults
	v.SetDefault("eval.scorer_timeout", "10m")

	// Model defaults
	v.SetDefault("model.name", "oracle")
	v.SetDefault("backend.name", "null")

	// Storage defaults
	v.SetDefault("storage.kind", "local")
	v.SetDefault("storage.minio.endpoint", "localhost:9000")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.minio.bucket", "fastcoref-checkpoints")

	// PostgreSQL defaults
	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "fastcoref")
	v.SetDefault("postgres.password", "fastcoref")
	v.SetDefault("postgres.database", "fastcoref")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 5)
	v.SetDefault("postgres.min_conns", 1)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Worker defaults
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.queue", "experiments")

	// Status defaults
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.addr", ":9464")

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.to_file", false)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return apperrors.InvalidConfig("failed to bind flag " + name).WithError(err)
		}
	}
	return nil
}

// ParseDatasets parses name=data_dir[=conll_dir] values
func ParseDatasets(values []string) ([]DatasetConfig, error) {
	datasets := make([]DatasetConfig, 0, len(values))
	for _, value := range values {
		parts := strings.SplitN(value, "=", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, apperrors.InvalidConfig(fmt.Sprintf("dataset %q must look like name=data_dir[=conll_dir]", value))
		}
		d := DatasetConfig{Name: parts[0], DataDir: parts[1]}
		if len(parts) == 3 {
			d.ConllDir = parts[2]
		}
		datasets = append(datasets, d)
	}
	return datasets, nil
}

func validate(cfg *Config, worker bool) error {
	if err := validator.Validate(cfg); err != nil {
		return apperrors.InvalidConfig(err.Error()).WithError(err)
	}
	if cfg.Storage.Kind == "minio" && cfg.Storage.MinIO.Endpoint == "" {
		return apperrors.InvalidConfig("storage.minio.endpoint is required for minio storage")
	}
	// a worker's runs and datasets arrive with its jobs
	if worker {
		return nil
	}
	if cfg.Experiment.ModelDir == "" {
		return apperrors.InvalidConfig("experiment.model_dir is required")
	}
	if len(cfg.Datasets) == 0 {
		return apperrors.InvalidConfig("datasets: at least one dataset is required")
	}
	return nil
}
