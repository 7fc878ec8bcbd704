package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/riskgate/internal/repositories"
	"github.com/robfig/cron/v3"
)

// taskTimeout bounds a single cleanup task
const taskTimeout = 30 * time.Second

// Task is one cleanup job. Run returns how many items it removed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// CleanupManager runs cleanup tasks on a cron schedule
type CleanupManager struct {
	tasks  []Task
	logger *slog.Logger
	cron   *cron.Cron
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(logger *slog.Logger, tasks ...Task) *CleanupManager {
	return &CleanupManager{
		tasks:  tasks,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start runs every task once, then on schedule (e.g. "@every 1h")
func (cm *CleanupManager) Start(ctx context.Context, schedule string) error {
	if _, err := cm.cron.AddFunc(schedule, func() { _ = cm.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	// Run immediately on startup
	_ = cm.RunOnce(ctx)

	cm.cron.Start()
	cm.logger.Info("cleanup manager started", slog.String("schedule", schedule), slog.Int("tasks", len(cm.tasks)))
	return nil
}

// Stop halts scheduling and waits for a running cleanup to finish
func (cm *CleanupManager) Stop() {
	<-cm.cron.Stop().Done()
	cm.logger.Info("cleanup manager stopped")
}

// RunOnce runs every task. A failing task is logged and does not stop the rest.
func (cm *CleanupManager) RunOnce(ctx context.Context) error {
	var errs []error
	for _, task := range cm.tasks {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
		removed, err := task.Run(taskCtx)
		cancel()

		if err != nil {
			cm.logger.Error("cleanup task failed", slog.String("task", task.Name), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", task.Name, err))
			continue
		}
		if removed > 0 {
			cm.logger.Info("cleanup task completed", slog.String("task", task.Name), slog.Int64("removed", removed))
		}
	}
	return errors.Join(errs...)
}

// ExpiredCodesTask removes one-time codes past their validity window
func ExpiredCodesTask(repo repositories.OTPRepository, now func() time.Time) Task {
	return Task{
		Name: "expired_one_time_codes",
		Run: func(ctx context.Context) (int64, error) {
			return repo.DeleteExpired(ctx, now())
		},
	}
}

// StaleEnrollmentsTask removes pending enrollments older than ttl
func StaleEnrollmentsTask(repo repositories.TwoFactorRepository, ttl time.Duration, now func() time.Time) Task {
	return Task{
		Name: "stale_enrollments",
		Run: func(ctx context.Context) (int64, error) {
			return repo.DeleteStaleEnrollments(ctx, now().Add(-ttl))
		},
	}
}

// ExpiredSessionsTask removes sessions past their expiry
func ExpiredSessionsTask(repo repositories.SessionRepository, now func() time.Time) Task {
	return Task{
		Name: "expired_sessions",
		Run: func(ctx context.Context) (int64, error) {
			return repo.DeleteExpired(ctx, now())
		},
	}
}

// SweepTask adapts an in-memory sweep into a Task
func SweepTask(name string, sweep func() int) Task {
	return Task{
		Name: name,
		Run: func(ctx context.Context) (int64, error) {
			return int64(sweep()), nil
		},
	}
}
