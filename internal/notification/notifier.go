package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stanstork/reconciler/internal/models"
)

// Notifier is a progress sink. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, evt models.ProgressEvent) error
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}

func logNotifyError(logger zerolog.Logger, err error, channel string, evt models.ProgressEvent) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("job_id", evt.JobID).
		Str("event_type", string(evt.Event)).
		Str("channel", channel).
		Msg("failed to deliver progress event")
}
