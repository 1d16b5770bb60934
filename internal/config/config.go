package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ksteimel/fast-coref/internal/domain"
	"github.com/ksteimel/fast-coref/internal/model"
)

// Config holds all configuration for an experiment run
type Config struct {
	Experiment ExperimentConfig `mapstructure:"experiment"`
	Optim      OptimConfig      `mapstructure:"optim"`
	Datasets   []DatasetConfig  `mapstructure:"datasets" validate:"unique=Name,dive"`
	Eval       EvalConfig       `mapstructure:"eval"`
	Model      ModelConfig      `mapstructure:"model"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Status     StatusConfig     `mapstructure:"status"`
	Log        LogConfig        `mapstructure:"log"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
}

// ExperimentConfig holds the training loop settings
type ExperimentConfig struct {
	RunID        string `mapstructure:"run_id"`
	Seed         uint64 `mapstructure:"seed"`
	ModelDir     string `mapstructure:"model_dir"`
	BestModelDir string `mapstructure:"best_model_dir"`
	EvalModel    bool   `mapstructure:"eval_model"`
	ToSaveModel  bool   `mapstructure:"to_save_model"`

	MaxEvals int `mapstructure:"max_evals" validate:"gte=1"`
	// EvalPerKSteps of 0 means one evaluation per pass over the training data.
	EvalPerKSteps   int `mapstructure:"eval_per_k_steps" validate:"gte=0"`
	Patience        int `mapstructure:"patience" validate:"gte=1"`
	UpdateFrequency int `mapstructure:"update_frequency" validate:"gte=1"`

	NumTrainDocs     int  `mapstructure:"num_train_docs" validate:"gte=0"`
	NumEvalDocs      int  `mapstructure:"num_eval_docs" validate:"gte=0"`
	MaxSegmentLen    int  `mapstructure:"max_segment_len" validate:"gt=0"`
	SkipDialogData   bool `mapstructure:"skip_dialog_data"`
	RemoveSingletons bool `mapstructure:"remove_singletons"`
}

// OptimConfig holds learning rates and clipping thresholds
type OptimConfig struct {
	InitLR float64 `mapstructure:"init_lr" validate:"gt=0"`
	// FineTuneLR of 0 keeps the encoder frozen.
	FineTuneLR             float64 `mapstructure:"fine_tune_lr" validate:"gte=0"`
	MaxGradientNorm        float64 `mapstructure:"max_gradient_norm" validate:"gt=0"`
	EncoderMaxGradientNorm float64 `mapstructure:"encoder_max_gradient_norm" validate:"gt=0"`
}

// FineTune reports whether the encoder is trained
func (c OptimConfig) FineTune() bool {
	return c.FineTuneLR > 0
}

// DatasetConfig describes one dataset in configuration order
type DatasetConfig struct {
	Name     string `mapstructure:"name" validate:"required"`
	DataDir  string `mapstructure:"data_dir" validate:"required"`
	ConllDir string `mapstructure:"conll_dir"`
	// NumTrainDocs overrides experiment.num_train_docs for this dataset.
	NumTrainDocs int `mapstructure:"num_train_docs" validate:"gte=0"`
	// ClusterThreshold overrides the canonical threshold; 0 keeps it.
	ClusterThreshold int `mapstructure:"cluster_threshold" validate:"gte=0"`
}

// EvalConfig holds evaluation-only overrides and the external scorer
type EvalConfig struct {
	MaxSpanWidth    *int     `mapstructure:"max_span_width"`
	TopSpanRatio    *float64 `mapstructure:"top_span_ratio"`
	UseGoldMentions *bool    `mapstructure:"use_gold_ments"`
	MaxEntities     *int     `mapstructure:"eval_max_ents"`
	UseTopK         *bool    `mapstructure:"use_topk"`

	ConllScorer   string        `mapstructure:"conll_scorer"`
	ScorerTimeout time.Duration `mapstructure:"scorer_timeout"`
}

// RuntimeOptions converts the overrides for the model
func (c EvalConfig) RuntimeOptions() model.RuntimeOptions {
	return model.RuntimeOptions{
		MaxSpanWidth:    c.MaxSpanWidth,
		TopSpanRatio:    c.TopSpanRatio,
		UseGoldMentions: c.UseGoldMentions,
		MaxEntities:     c.MaxEntities,
		UseTopK:         c.UseTopK,
	}
}

// ModelConfig selects the model and its hyperparameters
type ModelConfig struct {
	Name            string                 `mapstructure:"name" validate:"required"`
	Hyperparameters domain.Hyperparameters `mapstructure:"hyperparameters"`
}

// BackendConfig selects the tensor runtime
type BackendConfig struct {
	Name string `mapstructure:"name" validate:"required"`
}

// StorageConfig selects where checkpoints live
type StorageConfig struct {
	Kind  string      `mapstructure:"kind" validate:"oneof=local minio"`
	MinIO MinIOConfig `mapstructure:"minio"`
}

// MinIOConfig holds MinIO configuration
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PostgresConfig holds PostgreSQL configuration for result persistence
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// DSN returns the PostgreSQL connection string
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		c.User, c.Password, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Database, c.SSLMode)
}

// RedisConfig holds Redis configuration for the evaluation queue
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WorkerConfig holds evaluation worker configuration
type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency" validate:"gte=1"`
	Queue       string `mapstructure:"queue"`
}

// StatusConfig holds the live status endpoint configuration
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	// ToFile mirrors the log into <model_dir>/train.log.
	ToFile bool `mapstructure:"to_file"`
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// FineTune reports whether the encoder is trained
func (c *Config) FineTune() bool {
	return c.Optim.FineTune()
}

// DatasetSpecs resolves datasets in configuration order. Thresholds fall
// back to the canonical table and are forced to 2 when singletons are
// removed.
func (c *Config) DatasetSpecs() []domain.DatasetSpec {
	specs := make([]domain.DatasetSpec, len(c.Datasets))
	for i, d := range c.Datasets {
		threshold := d.ClusterThreshold
		if threshold == 0 {
			threshold = domain.CanonicalClusterThreshold[d.Name]
		}
		if threshold == 0 {
			threshold = 1
		}
		if c.Experiment.RemoveSingletons {
			threshold = 2
		}
		numTrain := d.NumTrainDocs
		if numTrain == 0 {
			numTrain = c.Experiment.NumTrainDocs
		}
		specs[i] = domain.DatasetSpec{
			Name:             d.Name,
			DataDir:          d.DataDir,
			ConllDir:         d.ConllDir,
			NumTrainDocs:     numTrain,
			ClusterThreshold: threshold,
		}
	}
	return specs
}

// LogFile returns the log mirror path, or "" when disabled
func (c *Config) LogFile() string {
	if !c.Log.ToFile {
		return ""
	}
	return filepath.Join(c.Experiment.ModelDir, "train.log")
}
