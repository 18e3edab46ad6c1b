// Package reconlogic decides which matching semantics a reconciliation uses
// and produces its correspondence rules and comparison columns.
package reconlogic

import (
	"context"
	"path"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stanstork/reconciler/internal/discovery"
	"github.com/stanstork/reconciler/internal/models"
)

// ModelStore is the read-only processing-model lookup.
type ModelStore interface {
	ListByTypes(ctx context.Context, types ...models.ModelType) ([]models.ProcessingModel, error)
}

// Request is the input of one reconciliation as seen by the configurator.
type Request struct {
	BO              []models.Row
	Partner         []models.Row
	PartnerFileName string
	// ModelID pins a stored model. When empty the first partner model whose
	// file pattern matches PartnerFileName is used.
	ModelID string
	// KeyColumns are excluded from default comparison columns.
	BOKeyColumn      string
	PartnerKeyColumn string
	// PairSimilarColumns pairs same-purpose columns with differing names in
	// addition to identical names.
	PairSimilarColumns bool
}

// Source tells where a resolved setting came from.
type Source string

const (
	SourceModel    Source = "model"
	SourceDetected Source = "detected"
	SourceDefault  Source = "default"
)

// Resolution is the full configuration of one reconciliation.
type Resolution struct {
	LogicType         models.ReconciliationLogicType
	LogicSource       Source
	Rules             []models.CorrespondenceRule
	RulesSource       Source
	ComparisonColumns []models.ComparisonColumn
	ColumnsSource     Source
	ModelID           string
	Detection         *DetectionReport
}

type Configurator struct {
	store    ModelStore
	detector *Detector
	logger   zerolog.Logger
}

func NewConfigurator(store ModelStore, detector *Detector, logger zerolog.Logger) *Configurator {
	if detector == nil {
		detector = NewDetector(DefaultDetectionConfig())
	}
	return &Configurator{
		store:    store,
		detector: detector,
		logger:   logger.With().Str("component", "reconciliation_logic").Logger(),
	}
}

// modelLookup memoizes the matching stored model for one call chain.
type modelLookup struct {
	once  sync.Once
	model *models.ProcessingModel
}

func (c *Configurator) matchingModel(ctx context.Context, req Request, lk *modelLookup) *models.ProcessingModel {
	lk.once.Do(func() {
		if c.store == nil {
			return
		}
		candidates, err := c.store.ListByTypes(ctx, models.ModelTypePartner, models.ModelTypeBoth)
		if err != nil {
			c.logger.Warn().Err(err).Msg("processing model lookup failed, using defaults")
			return
		}
		for i := range candidates {
			m := candidates[i]
			if req.ModelID != "" {
				if m.ID == req.ModelID {
					lk.model = &m
					return
				}
				continue
			}
			if filePatternMatches(m.FilePattern, req.PartnerFileName) {
				lk.model = &m
				return
			}
		}
	})
	return lk.model
}

func filePatternMatches(pattern, fileName string) bool {
	if pattern == "" || fileName == "" {
		return false
	}
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(path.Base(fileName)))
	return err == nil && ok
}

// Resolve computes logic type, rules and comparison columns with a single
// model lookup shared across the three decisions.
func (c *Configurator) Resolve(ctx context.Context, req Request) Resolution {
	lk := &modelLookup{}
	var res Resolution
	res.LogicType, res.LogicSource, res.Detection = c.determineLogic(ctx, req, lk)
	res.Rules, res.RulesSource = c.correspondenceRules(ctx, req, res.LogicType, lk)
	res.ComparisonColumns, res.ColumnsSource = c.comparisonColumns(ctx, req, lk)
	if m := lk.model; m != nil {
		res.ModelID = m.ID
	}
	return res
}

// DetermineLogic resolves the logic type: stored partner model first, then
// content detection, then STANDARD.
func (c *Configurator) DetermineLogic(ctx context.Context, req Request) models.ReconciliationLogicType {
	logic, _, _ := c.determineLogic(ctx, req, &modelLookup{})
	return logic
}

// GetCorrespondenceRules returns the stored model's rules verbatim, or the
// default set for the determined logic type.
func (c *Configurator) GetCorrespondenceRules(ctx context.Context, req Request) []models.CorrespondenceRule {
	lk := &modelLookup{}
	logic, _, _ := c.determineLogic(ctx, req, lk)
	rules, _ := c.correspondenceRules(ctx, req, logic, lk)
	return rules
}

// GetComparisonColumns returns the stored model's columns, or the default
// construction from the first row of each dataset.
func (c *Configurator) GetComparisonColumns(ctx context.Context, req Request) []models.ComparisonColumn {
	cols, _ := c.comparisonColumns(ctx, req, &modelLookup{})
	return cols
}

func (c *Configurator) determineLogic(ctx context.Context, req Request, lk *modelLookup) (models.ReconciliationLogicType, Source, *DetectionReport) {
	if m := c.matchingModel(ctx, req, lk); m != nil && m.ModelType == models.ModelTypePartner {
		cfg, err := ParseLogicConfig(m.ReconciliationLogic)
		switch {
		case err == nil:
			logic, known := ParseLogicType(cfg.Type)
			if !known {
				c.logger.Warn().Str("model_id", m.ID).Str("type", cfg.Type).Msg("unknown reconciliation logic type, using STANDARD")
			}
			return logic, SourceModel, nil
		case err != ErrEmptyConfig:
			c.logger.Warn().Err(err).Str("model_id", m.ID).Msg("invalid reconciliation logic, falling back to detection")
		}
	}

	report := c.detector.Detect(req.BO, req.Partner)
	c.logger.Debug().
		Bool("excluded", report.Excluded).
		Interface("markers", report.Markers).
		Msg("content-based logic detection")
	if report.Special {
		return models.LogicSpecialRatio, SourceDetected, &report
	}
	return models.LogicStandard, SourceDefault, &report
}

func (c *Configurator) correspondenceRules(ctx context.Context, req Request, logic models.ReconciliationLogicType, lk *modelLookup) ([]models.CorrespondenceRule, Source) {
	if m := c.matchingModel(ctx, req, lk); m != nil {
		rules, err := ParseRulesConfig(m.CorrespondenceRules)
		if err == nil {
			return rules, SourceModel
		}
		if err != ErrEmptyConfig {
			c.logger.Warn().Err(err).Str("model_id", m.ID).Msg("invalid correspondence rules, using defaults")
		}
	}
	return DefaultRules(logic), SourceDefault
}

func (c *Configurator) comparisonColumns(ctx context.Context, req Request, lk *modelLookup) ([]models.ComparisonColumn, Source) {
	if m := c.matchingModel(ctx, req, lk); m != nil {
		cols, err := ParseColumnsConfig(m.ComparisonColumns)
		if err == nil {
			return cols, SourceModel
		}
		if err != ErrEmptyConfig {
			c.logger.Warn().Err(err).Str("model_id", m.ID).Msg("invalid comparison columns, using defaults")
		}
	}
	return DefaultComparisonColumns(req), SourceDefault
}

// DefaultComparisonColumns intersects the column names of row 0 on each side,
// minus the key columns. With PairSimilarColumns set, same-purpose columns
// with different names are paired as well.
func DefaultComparisonColumns(req Request) []models.ComparisonColumn {
	if len(req.BO) == 0 || len(req.Partner) == 0 {
		return nil
	}
	excludeBO := map[string]bool{req.BOKeyColumn: req.BOKeyColumn != ""}
	excludePartner := map[string]bool{req.PartnerKeyColumn: req.PartnerKeyColumn != ""}
	boCols := models.SortedColumns(req.BO[0])
	partnerCols := models.SortedColumns(req.Partner[0])

	if req.PairSimilarColumns {
		return discovery.ProposeComparisonColumns(boCols, partnerCols, excludeBO, excludePartner)
	}

	inPartner := map[string]bool{}
	for _, pc := range partnerCols {
		inPartner[pc] = true
	}
	var out []models.ComparisonColumn
	// a same-name pair touches both keys, so either side's key excludes it
	for _, bc := range boCols {
		if excludeBO[bc] || excludePartner[bc] || !inPartner[bc] {
			continue
		}
		out = append(out, models.ComparisonColumn{
			BOColumn:       bc,
			PartnerColumn:  bc,
			Tolerance:      models.DefaultTolerance,
			ComparisonType: models.ComparisonAuto,
		})
	}
	return out
}

// IsSimilarColumn reports whether two differently named columns serve the
// same purpose.
func IsSimilarColumn(a, b string) bool {
	return discovery.IsSimilarColumn(a, b)
}
