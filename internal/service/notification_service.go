package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lifedrop/lifedrop-api/internal/models"
	"github.com/lifedrop/lifedrop-api/pkg/jobs"
)

// NotificationSender delivers milestone notifications to donors.
type NotificationSender interface {
	Send(ctx context.Context, notification models.MilestoneNotification) error
}

// LogNotificationSender writes notifications to the application log. It
// stands in until a push or email provider is wired up.
type LogNotificationSender struct {
	logger *zap.Logger
}

// NewLogNotificationSender constructs a log-backed sender.
func NewLogNotificationSender(logger *zap.Logger) *LogNotificationSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotificationSender{logger: logger}
}

// Send logs the milestone congratulation.
func (s *LogNotificationSender) Send(ctx context.Context, notification models.MilestoneNotification) error {
	s.logger.Info("milestone notification",
		zap.String("user_id", notification.UserID),
		zap.String("email", notification.Email),
		zap.Int("donations", notification.Donations))
	return nil
}

// NotificationWorker bridges queue jobs to the notification sender.
type NotificationWorker struct {
	sender NotificationSender
	logger *zap.Logger
}

// NewNotificationWorker constructs a worker.
func NewNotificationWorker(sender NotificationSender, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = NewLogNotificationSender(logger)
	}
	return &NotificationWorker{sender: sender, logger: logger}
}

// Handle processes a queued notification job.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobTypeMilestoneNotification:
		notification, ok := job.Payload.(models.MilestoneNotification)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
		}
		return w.sender.Send(ctx, notification)
	default:
		return fmt.Errorf("unknown notification job type %s", job.Type)
	}
}
