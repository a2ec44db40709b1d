package jobs

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"
)

// Registration binds a task type to its handler.
type Registration struct {
	Type    string
	Handler asynq.HandlerFunc
}

// Schedule wires a cron expression to a prepared task.
type Schedule struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// Worker runs the asynq consumer and, when schedules are registered, the
// cron scheduler alongside it.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts     asynq.RedisClientOpt
	Logger        *slog.Logger
	Concurrency   int
	Registrations []Registration
	Schedules     []Schedule
}

// NewWorker builds the worker. The mail handler is always registered;
// domain jobs come in through cfg.Registrations.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	server := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueDefault: 1},
	})

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeSendEmail, sendEmailHandler(logger))
	for _, reg := range cfg.Registrations {
		if reg.Type == "" || reg.Handler == nil {
			continue
		}
		mux.HandleFunc(reg.Type, reg.Handler)
	}

	w := &Worker{server: server, mux: mux, logger: logger}
	if len(cfg.Schedules) == 0 {
		return w, nil
	}

	w.scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
	for _, entry := range cfg.Schedules {
		if entry.Spec == "" || entry.Task == nil {
			continue
		}
		if _, err := w.scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Run processes jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("jobs: worker not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- w.server.Run(w.mux)
	}()
	w.logger.Info("job worker started")

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-done:
	}
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	w.logger.Info("job worker stopped")
	return err
}
