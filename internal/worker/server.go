// Package worker runs queued evaluation jobs on Redis through asynq.
package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/config"
)

// Server is the worker server
type Server struct {
	logger *zap.Logger
	config *config.Config
	server *asynq.Server
	mux    *asynq.ServeMux
}

// RedisOpt returns the asynq connection options for a configuration
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// NewServer creates a new worker server
func NewServer(logger *zap.Logger, cfg *config.Config, evalWorker *EvalWorker) *Server {
	server := asynq.NewServer(
		RedisOpt(cfg),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				cfg.Worker.Queue: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task processing failed",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEvaluation, evalWorker.ProcessTask)

	return &Server{
		logger: logger,
		config: cfg,
		server: server,
		mux:    mux,
	}
}

// Start runs the worker server until it receives a shutdown signal
func (s *Server) Start() error {
	s.logger.Info("starting worker server",
		zap.Int("concurrency", s.config.Worker.Concurrency),
		zap.String("queue", s.config.Worker.Queue),
	)
	return s.server.Run(s.mux)
}

// Stop stops the worker server
func (s *Server) Stop() {
	s.server.Shutdown()
}

// asynqLogger adapts zap.Logger to asynq.Logger
type asynqLogger struct {
	logger *zap.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}

// EnqueueEvaluation enqueues an evaluation task on queue
func EnqueueEvaluation(client *asynq.Client, queue string, payload *EvaluationPayload) (*asynq.TaskInfo, error) {
	task, err := NewEvaluationTask(payload)
	if err != nil {
		return nil, err
	}
	info, err := client.Enqueue(task, asynq.Queue(queue))
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue evaluation: %w", err)
	}
	return info, nil
}
