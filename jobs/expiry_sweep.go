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
	// TaskGrantsExpirySweep schedules the temporal grant expiry sweep.
	TaskGrantsExpirySweep = "grants:expiry_sweep"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ExpirySweepPayload configures the cutoff used by the sweep. An empty cutoff
// means "now".
type ExpirySweepPayload struct {
	Cutoff string `json:"cutoff,omitempty"`
}

// ExpirySweeper deactivates assignments and grants whose expiry has passed.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Invalidator bumps the authorization cache version after a sweep closes rows.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// ExpirySweepJob closes out expired role assignments and direct grants so the
// resolver and cached permission sets stop honouring them.
type ExpirySweepJob struct {
	Sweeper     ExpirySweeper
	Invalidator Invalidator
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	clock       func() time.Time
}

// NewExpirySweepJob constructs the job handler.
func NewExpirySweepJob(sweeper ExpirySweeper, inval Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpirySweepJob {
	return &ExpirySweepJob{
		Sweeper:     sweeper,
		Invalidator: inval,
		Logger:      logger,
		Metrics:     metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewExpirySweepTask creates an Asynq task for the expiry sweep.
func NewExpirySweepTask(cutoff string) (*asynq.Task, error) {
	body, err := json.Marshal(ExpirySweepPayload{Cutoff: cutoff})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGrantsExpirySweep, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the sweep.
func (j *ExpirySweepJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("expiry sweep: dependencies not configured")
	}
	var payload ExpirySweepPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	cutoff := j.now()
	if payload.Cutoff != "" {
		parsed, err := time.Parse(time.RFC3339, payload.Cutoff)
		if err != nil {
			j.log().Error("parse cutoff", slog.String("cutoff", payload.Cutoff), slog.Any("error", err))
			return asynq.SkipRetry
		}
		cutoff = parsed.UTC()
	}

	tracker := j.metrics().Track(TaskGrantsExpirySweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	swept, err := j.Sweeper.SweepExpired(ctx, cutoff)
	if err != nil {
		resultErr = err
		j.log().Error("sweep expired grants", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddSwept(swept)

	if swept > 0 && j.Invalidator != nil {
		if err := j.Invalidator.Bump(ctx); err != nil {
			resultErr = err
			j.log().Error("bump authorization cache", slog.Any("error", err))
			return resultErr
		}
	}

	j.log().Info("swept expired grants",
		slog.Int64("swept", swept),
		slog.Time("cutoff", cutoff),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *ExpirySweepJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ExpirySweepJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGrantsExpirySweep))
	}
	return slog.Default().With(slog.String("job", TaskGrantsExpirySweep))
}

func (j *ExpirySweepJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ExpirySweepJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
