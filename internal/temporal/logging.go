package temporal

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// TemporalAdapter routes SDK logs into zerolog.
type TemporalAdapter struct {
	logger zerolog.Logger
}

var (
	_ log.Logger     = (*TemporalAdapter)(nil)
	_ log.WithLogger = (*TemporalAdapter)(nil)
)

func NewTemporalAdapter(logger zerolog.Logger) *TemporalAdapter {
	return &TemporalAdapter{
		logger: logger.With().Str("component", "temporal").Logger(),
	}
}

// fields turns SDK key/value pairs into zerolog fields. A dangling key gets
// a placeholder value.
func fields(keyvals []interface{}) map[string]interface{} {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}
	out := make(map[string]interface{}, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		out[key] = keyvals[i+1]
	}
	return out
}

func (a *TemporalAdapter) event(e *zerolog.Event, keyvals []interface{}) *zerolog.Event {
	if len(keyvals) == 0 {
		return e
	}
	return e.Fields(fields(keyvals))
}

func (a *TemporalAdapter) Debug(msg string, keyvals ...interface{}) {
	a.event(a.logger.Debug(), keyvals).Msg(msg)
}

func (a *TemporalAdapter) Info(msg string, keyvals ...interface{}) {
	a.event(a.logger.Info(), keyvals).Msg(msg)
}

func (a *TemporalAdapter) Warn(msg string, keyvals ...interface{}) {
	a.event(a.logger.Warn(), keyvals).Msg(msg)
}

func (a *TemporalAdapter) Error(msg string, keyvals ...interface{}) {
	a.event(a.logger.Error(), keyvals).Msg(msg)
}

// With returns an adapter that adds keyvals to every line.
func (a *TemporalAdapter) With(keyvals ...interface{}) log.Logger {
	return &TemporalAdapter{logger: a.logger.With().Fields(fields(keyvals)).Logger()}
}
