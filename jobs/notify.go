package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/analytics-hub/authhub/internal/grants"
)

// EmailEnqueuer is the subset of Client used by the grant notifier.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// GrantNotifier queues review-request emails for grants awaiting approval.
type GrantNotifier struct {
	Enqueuer  EmailEnqueuer
	Reviewers string
	Logger    *slog.Logger
}

// NewGrantNotifier constructs a notifier delivering to the reviewers alias.
func NewGrantNotifier(enqueuer EmailEnqueuer, reviewers string, logger *slog.Logger) *GrantNotifier {
	if reviewers == "" {
		reviewers = "access-reviews@authhub.local"
	}
	return &GrantNotifier{Enqueuer: enqueuer, Reviewers: reviewers, Logger: logger}
}

// GrantPending enqueues a notification for a grant that requires approval.
// Delivery is best effort; a queue outage must not fail the grant write.
func (n *GrantNotifier) GrantPending(ctx context.Context, grant grants.UserPermission) {
	if n == nil || n.Enqueuer == nil {
		return
	}
	payload := SendEmailPayload{
		To:      n.Reviewers,
		Subject: fmt.Sprintf("Permission grant #%d awaiting review", grant.ID),
		Body: fmt.Sprintf(
			"User %d was granted %q (risk %s) by %d and the grant requires approval.\nReason: %s",
			grant.UserID, grant.PermissionName, grant.RiskLevel, grant.GrantedBy, grant.Reason,
		),
	}
	if _, err := n.Enqueuer.EnqueueSendEmail(ctx, payload); err != nil {
		n.log().Warn("enqueue grant review email",
			slog.Int64("grant_id", grant.ID),
			slog.Any("error", err))
	}
}

func (n *GrantNotifier) log() *slog.Logger {
	if n != nil && n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}
