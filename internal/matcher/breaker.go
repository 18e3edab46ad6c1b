package matcher

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/reconlogic"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// BreakerMatcher stops calling a failing matcher until it had time to recover.
type BreakerMatcher struct {
	next Matcher
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerMatcher(next Matcher, maxFailures uint32, openTimeout time.Duration, logger zerolog.Logger) *BreakerMatcher {
	if maxFailures == 0 {
		maxFailures = 5
	}
	log := logger.With().Str("component", "matcher_breaker").Logger()
	return &BreakerMatcher{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "matcher",
			MaxRequests: 1,
			Timeout:     openTimeout,
			IsSuccessful: countsAsSuccess,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			},
		}),
	}
}

// countsAsSuccess keeps request-specific errors out of the failure count:
// a bad rule set or a cancelled caller says nothing about matcher health.
func countsAsSuccess(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, reconlogic.ErrNoRuleMatched),
		errors.Is(err, reconlogic.ErrInvalidCondition),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}

func (b *BreakerMatcher) Reconcile(ctx context.Context, req models.MatchRequest) (models.MatchResponse, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Reconcile(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return models.MatchResponse{}, errors.Wrap(ErrCircuitOpen, "matcher unavailable")
		}
		return models.MatchResponse{}, err
	}
	return out.(models.MatchResponse), nil
}
