package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/analytics-hub/authhub/internal/jobs"
)

const (
	// TaskMenuCacheWarmup schedules pre-computation of per-user menu trees.
	TaskMenuCacheWarmup = "menu:cache_warmup"
)

// MenuWarmupPayload bounds how many users a single warmup run touches.
type MenuWarmupPayload struct {
	Limit int `json:"limit,omitempty"`
}

// MenuWarmer rebuilds cached menu trees for the given users.
type MenuWarmer interface {
	WarmTrees(ctx context.Context, userIDs []int64) error
}

// UserSource lists users whose trees are worth warming.
type UserSource interface {
	UserIDsWithAssignments(ctx context.Context) ([]int64, error)
}

// MenuWarmupJob refreshes menu tree cache entries ahead of interactive reads.
type MenuWarmupJob struct {
	Warmer  MenuWarmer
	Users   UserSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewMenuWarmupJob constructs the job handler.
func NewMenuWarmupJob(warmer MenuWarmer, users UserSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *MenuWarmupJob {
	return &MenuWarmupJob{
		Warmer:  warmer,
		Users:   users,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewMenuWarmupTask creates an Asynq task for the menu cache warmup.
func NewMenuWarmupTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(MenuWarmupPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMenuCacheWarmup, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the warmup.
func (j *MenuWarmupJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Warmer == nil || j.Users == nil {
		return errors.New("menu warmup: dependencies not configured")
	}
	var payload MenuWarmupPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskMenuCacheWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	userIDs, err := j.Users.UserIDsWithAssignments(ctx)
	if err != nil {
		resultErr = err
		j.log().Error("list users for warmup", slog.Any("error", err))
		return resultErr
	}
	if payload.Limit > 0 && len(userIDs) > payload.Limit {
		userIDs = userIDs[:payload.Limit]
	}
	if len(userIDs) == 0 {
		j.log().Info("no users with assignments to warm")
		return resultErr
	}

	if err := j.Warmer.WarmTrees(ctx, userIDs); err != nil {
		resultErr = err
		j.log().Error("warm menu trees", slog.Int("users", len(userIDs)), slog.Any("error", err))
		return resultErr
	}

	j.log().Info("warmed menu trees",
		slog.Int("users", len(userIDs)),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *MenuWarmupJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *MenuWarmupJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskMenuCacheWarmup))
	}
	return slog.Default().With(slog.String("job", TaskMenuCacheWarmup))
}

func (j *MenuWarmupJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *MenuWarmupJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
