// Package matcher executes a fully configured match request.
package matcher

import (
	"context"
	"time"

	"github.com/stanstork/reconciler/internal/models"
)

// Matcher performs row matching for one reconciliation. Correspondence
// rules and comparison columns travel inside the request.
type Matcher interface {
	Reconcile(ctx context.Context, req models.MatchRequest) (models.MatchResponse, error)
}

type Config struct {
	// Mode selects the implementation: "local" runs in process, "container"
	// drives the engine container.
	Mode            string        `mapstructure:"mode"`
	EngineContainer string        `mapstructure:"engine_container"`
	EngineBin       string        `mapstructure:"engine_bin"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxFailures     uint32        `mapstructure:"max_failures"`
	OpenTimeout     time.Duration `mapstructure:"open_timeout"`
}
