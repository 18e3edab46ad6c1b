package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanstork/reconciler/internal/models"
)

// Service fans progress snapshots out to every configured sink.
type Service interface {
	Publish(ctx context.Context, evt models.ProgressEvent)
}

type service struct {
	logger    zerolog.Logger
	notifiers []Notifier
	now       func() time.Time
}

func NewService(logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
		now:       time.Now,
	}
}

// Publish never fails: sink errors are logged and dropped.
func (s *service) Publish(ctx context.Context, evt models.ProgressEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.now().UTC()
	}
	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, evt); err != nil {
			logNotifyError(s.logger, err, notifierChannelName(notifier), evt)
		}
	}
}

// EventFor maps a job status to the event name sinks receive.
func EventFor(status models.JobStatus) models.NotificationEvent {
	switch status {
	case models.JobStatusCompleted:
		return models.NotificationEventCompleted
	case models.JobStatusFailed:
		return models.NotificationEventFailed
	case models.JobStatusCancelled:
		return models.NotificationEventCancelled
	}
	return models.NotificationEventProgress
}
