// Package orchestrator runs the automatic reconciliation pipeline:
// discover keys, normalize, configure, match, persist.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/reconciler/internal/discovery"
	"github.com/stanstork/reconciler/internal/jobs"
	"github.com/stanstork/reconciler/internal/lock"
	"github.com/stanstork/reconciler/internal/matcher"
	"github.com/stanstork/reconciler/internal/metrics"
	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/normalize"
	"github.com/stanstork/reconciler/internal/reconlogic"
)

const (
	MsgDiscovering = "Discovering keys"
	MsgConfiguring = "Configuring with normalization"
	MsgExecuting   = "Executing reconciliation"
	MsgShutdown    = "Reconciliation aborted: service shutting down"
)

// terminalWriteTimeout bounds the job writes made once the run context may
// already be cancelled.
const terminalWriteTimeout = 10 * time.Second

type Config struct {
	PoolSize           int           `mapstructure:"pool_size"`
	QueueSize          int           `mapstructure:"queue_size"`
	MinKeyConfidence   float64       `mapstructure:"min_key_confidence"`
	PairSimilarColumns bool          `mapstructure:"pair_similar_columns"`
	Dispatch           string        `mapstructure:"dispatch"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
}

func DefaultConfig() Config {
	return Config{
		PoolSize:           4,
		QueueSize:          64,
		MinKeyConfidence:   0.10,
		PairSimilarColumns: true,
		Dispatch:           "local",
		LockTTL:            30 * time.Minute,
	}
}

type KeyDiscoverer interface {
	DiscoverKeys(ctx context.Context, bo, partner []models.Row) (models.KeyDiscoveryResult, error)
}

type LogicResolver interface {
	Resolve(ctx context.Context, req reconlogic.Request) reconlogic.Resolution
}

// Input is one reconciliation to run. Column slices give the header order
// of each file and may be empty.
type Input struct {
	JobID           string       `json:"job_id"`
	BO              []models.Row `json:"bo"`
	Partner         []models.Row `json:"partner"`
	BOColumns       []string     `json:"bo_columns,omitempty"`
	PartnerColumns  []string     `json:"partner_columns,omitempty"`
	PartnerFileName string       `json:"partner_file_name,omitempty"`
	ModelID         string       `json:"model_id,omitempty"`
}

// Dispatcher hands an input to whatever runs pipelines and returns a
// future for its result.
type Dispatcher interface {
	Dispatch(ctx context.Context, in Input) (*Future, error)
}

type Orchestrator struct {
	cfg          Config
	discoverer   KeyDiscoverer
	configurator LogicResolver
	matcher      matcher.Matcher
	jobs         *jobs.Service
	locks        *lock.Manager
	pool         *Pool
	dispatcher   Dispatcher
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

type Option func(*Orchestrator)

// WithDispatcher replaces the in-process pool as the target of Submit.
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func New(
	cfg Config,
	discoverer KeyDiscoverer,
	configurator LogicResolver,
	m matcher.Matcher,
	jobSvc *jobs.Service,
	locks *lock.Manager,
	logger zerolog.Logger,
	opts ...Option,
) *Orchestrator {
	def := DefaultConfig()
	if cfg.MinKeyConfidence <= 0 {
		cfg.MinKeyConfidence = def.MinKeyConfidence
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	o := &Orchestrator{
		cfg:          cfg,
		discoverer:   discoverer,
		configurator: configurator,
		matcher:      m,
		jobs:         jobSvc,
		locks:        locks,
		logger:       logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.pool = NewPool(cfg.PoolSize, cfg.QueueSize, o.metrics)
	if o.dispatcher == nil {
		o.dispatcher = localDispatcher{o}
	}
	return o
}

// Start launches the local worker pool.
func (o *Orchestrator) Start(ctx context.Context) {
	o.pool.Start(ctx)
}

// Stop drains the local worker pool.
func (o *Orchestrator) Stop() error {
	return o.pool.Stop()
}

// ExecuteMagicReconciliation queues the pipeline for in.JobID on the worker
// pool and returns at once. The error is only about queueing.
func (o *Orchestrator) ExecuteMagicReconciliation(ctx context.Context, in Input) (*Future, error) {
	f := NewFuture()
	err := o.pool.Submit(ctx, func(taskCtx context.Context) {
		if taskCtx.Err() != nil {
			o.logger.Warn().Str("job_id", in.JobID).Msg("dropping queued reconciliation on shutdown")
			f.Complete(o.fail(taskCtx, in.JobID, MsgShutdown, nil))
			return
		}
		f.Complete(o.Run(taskCtx, in))
	})
	if err != nil {
		return nil, errors.Wrap(err, "queue reconciliation")
	}
	return f, nil
}

type localDispatcher struct{ o *Orchestrator }

func (d localDispatcher) Dispatch(ctx context.Context, in Input) (*Future, error) {
	return d.o.ExecuteMagicReconciliation(ctx, in)
}

// Run executes the pipeline synchronously. It never panics and reports
// every failure through the job and the returned Result.
func (o *Orchestrator) Run(ctx context.Context, in Input) (res Result) {
	started := time.Now()
	log := o.logger.With().Str("job_id", in.JobID).Logger()
	var disc *models.KeyDiscoveryResult

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("reconciliation pipeline panicked")
			res = o.fail(ctx, in.JobID, fmt.Sprint(r), disc)
		}
		o.metrics.ObservePipeline(started)
	}()

	o.progress(ctx, in.JobID, 10, MsgDiscovering)
	found, err := o.discoverer.DiscoverKeys(ctx, in.BO, in.Partner)
	if err != nil {
		return o.fail(ctx, in.JobID, errors.Wrap(err, "key discovery").Error(), nil)
	}
	disc = &found
	o.metrics.ObserveKeyConfidence(found.Confidence)

	if found.Confidence < o.cfg.MinKeyConfidence {
		msg := fmt.Sprintf("Key discovery confidence too low: %.1f%% (minimum %.1f%%)",
			found.Confidence*100, o.cfg.MinKeyConfidence*100)
		return o.fail(ctx, in.JobID, msg, disc)
	}

	o.progress(ctx, in.JobID, 30, MsgConfiguring)
	req, jobCfg := o.buildRequest(ctx, in, found, log)
	if err := o.jobs.RecordConfig(ctx, in.JobID, jobCfg); err != nil {
		log.Warn().Err(err).Msg("could not record job configuration")
	}

	o.progress(ctx, in.JobID, 50, MsgExecuting)
	resp, err := o.matcher.Reconcile(ctx, req)
	if err != nil {
		return o.fail(ctx, in.JobID, err.Error(), disc)
	}

	writeCtx, cancel := detached(ctx)
	defer cancel()
	if err := o.jobs.Complete(writeCtx, in.JobID, resp); err != nil {
		if errors.Is(err, jobs.ErrTerminal) {
			log.Info().Msg("job reached a terminal state before completion, result dropped")
			return Result{JobID: in.JobID, Status: o.currentStatus(writeCtx, in.JobID), Error: err.Error(), Discovery: disc}
		}
		return o.fail(ctx, in.JobID, err.Error(), disc)
	}

	log.Info().
		Int("matches", resp.TotalMatches).
		Int("mismatches", resp.TotalMismatches).
		Int("bo_only", resp.TotalBOOnly).
		Int("partner_only", resp.TotalPartnerOnly).
		Dur("took", time.Since(started)).
		Msg("reconciliation completed")
	return Result{JobID: in.JobID, Success: true, Status: models.JobStatusCompleted, Discovery: disc, Response: &resp}
}

// buildRequest resolves the key pair, normalizes the BO key column and
// attaches rules and comparison columns. Partner data is never transformed.
func (o *Orchestrator) buildRequest(ctx context.Context, in Input, found models.KeyDiscoveryResult, log zerolog.Logger) (models.MatchRequest, models.JobConfig) {
	boRows := in.BO
	jobCfg := models.JobConfig{KeyConfidence: found.Confidence}

	primary, err := discovery.Primary(found)
	if err != nil {
		primary = models.KeyCandidate{
			BOColumn:      firstColumn(in.BOColumns, in.BO),
			PartnerColumn: firstColumn(in.PartnerColumns, in.Partner),
		}
		jobCfg.FallbackKey = true
		log.Warn().
			Str("bo_key", primary.BOColumn).
			Str("partner_key", primary.PartnerColumn).
			Msg("no key candidate, falling back to the first column of each dataset (low confidence)")
	}

	if treatments := primary.ContentAnalysis.Treatments; len(treatments) > 0 {
		rule, unknown := normalize.RuleFromTreatments(primary.BOColumn, treatments)
		if len(unknown) > 0 {
			log.Warn().Strs("treatments", unknown).Msg("ignoring unknown treatments")
		}
		boRows = normalize.ApplyToColumn(in.BO, rule)
		jobCfg.Treatments = treatments
	}

	res := o.configurator.Resolve(ctx, reconlogic.Request{
		BO:                 boRows,
		Partner:            in.Partner,
		PartnerFileName:    in.PartnerFileName,
		ModelID:            in.ModelID,
		BOKeyColumn:        primary.BOColumn,
		PartnerKeyColumn:   primary.PartnerColumn,
		PairSimilarColumns: o.cfg.PairSimilarColumns,
	})
	log.Info().
		Str("bo_key", primary.BOColumn).
		Str("partner_key", primary.PartnerColumn).
		Str("logic", string(res.LogicType)).
		Str("logic_source", string(res.LogicSource)).
		Int("comparison_columns", len(res.ComparisonColumns)).
		Msg("reconciliation configured")

	jobCfg.LogicType = res.LogicType
	jobCfg.BOKeyColumn = primary.BOColumn
	jobCfg.PartnerKeyColumn = primary.PartnerColumn
	jobCfg.Rules = res.Rules
	jobCfg.ComparisonColumns = res.ComparisonColumns

	return models.MatchRequest{
		JobID:             in.JobID,
		BO:                models.Dataset{Side: models.SideBO, Columns: in.BOColumns, Rows: boRows},
		Partner:           models.Dataset{Side: models.SidePartner, Columns: in.PartnerColumns, Rows: in.Partner},
		BOKeyColumn:       primary.BOColumn,
		PartnerKeyColumn:  primary.PartnerColumn,
		LogicType:         res.LogicType,
		Rules:             res.Rules,
		ComparisonColumns: res.ComparisonColumns,
	}, jobCfg
}

func (o *Orchestrator) progress(ctx context.Context, jobID string, pct int, msg string) {
	if err := o.jobs.UpdateProgress(ctx, jobID, pct, msg); err != nil && !errors.Is(err, jobs.ErrTerminal) {
		o.logger.Warn().Err(err).Str("job_id", jobID).Int("percentage", pct).Msg("progress update failed")
	}
}

// detached keeps ctx values but not its cancellation, so terminal writes
// still land after a shutdown cancelled the run.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}

// fail marks the job FAILED with msg. Progress is reset to 0% with the same
// message by the same write.
func (o *Orchestrator) fail(ctx context.Context, jobID, msg string, disc *models.KeyDiscoveryResult) Result {
	ctx, cancel := detached(ctx)
	defer cancel()
	status := models.JobStatusFailed
	if err := o.jobs.Fail(ctx, jobID, msg); err != nil {
		if !errors.Is(err, jobs.ErrTerminal) {
			o.logger.Error().Err(err).Str("job_id", jobID).Msg("could not mark job as failed")
		}
		status = o.currentStatus(ctx, jobID)
	}
	return Result{JobID: jobID, Status: status, Error: msg, Discovery: disc}
}

func (o *Orchestrator) currentStatus(ctx context.Context, jobID string) models.JobStatus {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return ""
	}
	return job.Status
}

// firstColumn picks the first header column, or the first column name of
// row 0 in lexical order when no header is known.
func firstColumn(header []string, rows []models.Row) string {
	if len(header) > 0 {
		return header[0]
	}
	if len(rows) == 0 {
		return ""
	}
	cols := models.SortedColumns(rows[0])
	if len(cols) == 0 {
		return ""
	}
	return cols[0]
}
