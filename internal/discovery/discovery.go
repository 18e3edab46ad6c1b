// Package discovery proposes the key column pair joining a BO dataset to a
// partner dataset, and the treatments needed to align their values.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/normalize"
)

// ErrNoCandidate is returned by Primary when discovery proposed nothing.
var ErrNoCandidate = errors.New("no key candidate discovered")

// Primary returns the best candidate of a discovery result.
func Primary(r models.KeyDiscoveryResult) (models.KeyCandidate, error) {
	c, ok := r.Primary()
	if !ok {
		return models.KeyCandidate{}, ErrNoCandidate
	}
	return c, nil
}

type Config struct {
	SampleSize       int     `mapstructure:"sample_size"`
	NameWeight       float64 `mapstructure:"name_weight"`
	ValueWeight      float64 `mapstructure:"value_weight"`
	UniquenessWeight float64 `mapstructure:"uniqueness_weight"`
	MaxCandidates    int     `mapstructure:"max_candidates"`
}

func DefaultConfig() Config {
	return Config{
		SampleSize:       200,
		NameWeight:       0.3,
		ValueWeight:      0.6,
		UniquenessWeight: 0.1,
		MaxCandidates:    5,
	}
}

// nameOnlyThreshold is the name similarity a pair needs to be kept when none
// of its sampled values overlap.
const nameOnlyThreshold = 0.8

// keyHintSimilarity is the name score floor when both names look like
// identifiers (ref, id, transaction...).
const keyHintSimilarity = 0.7

// searchTreatments are the treatments tried when aligning BO values with
// partner values. Upper-casing is tried before lower-casing.
var searchTreatments = []string{
	normalize.TreatmentTrim,
	normalize.TreatmentToUpperCase,
	normalize.TreatmentToLowerCase,
	normalize.TreatmentRemoveSpecialChars,
	normalize.TreatmentRemoveAccents,
	normalize.TreatmentPadZeros,
}

type Discoverer struct {
	cfg    Config
	logger zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Discoverer {
	def := DefaultConfig()
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.NameWeight+cfg.ValueWeight+cfg.UniquenessWeight <= 0 {
		cfg.NameWeight, cfg.ValueWeight, cfg.UniquenessWeight = def.NameWeight, def.ValueWeight, def.UniquenessWeight
	}
	return &Discoverer{
		cfg:    cfg,
		logger: logger.With().Str("component", "key_discovery").Logger(),
	}
}

type columnSample struct {
	name     string
	values   []string
	distinct map[string]struct{}
}

// DiscoverKeys ranks candidate key pairs by descending confidence. The
// result is deterministic for identical inputs.
func (d *Discoverer) DiscoverKeys(ctx context.Context, bo, partner []models.Row) (models.KeyDiscoveryResult, error) {
	boCols := d.sample(bo)
	partnerCols := d.sample(partner)

	var candidates []models.KeyCandidate
	for _, bc := range boCols {
		if err := ctx.Err(); err != nil {
			return models.KeyDiscoveryResult{}, err
		}
		if len(bc.values) == 0 {
			continue
		}
		for _, pc := range partnerCols {
			if len(pc.distinct) == 0 {
				continue
			}
			if c, ok := d.score(bc, pc); ok {
				candidates = append(candidates, c)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.BOColumn != b.BOColumn {
			return a.BOColumn < b.BOColumn
		}
		return a.PartnerColumn < b.PartnerColumn
	})
	if len(candidates) > d.cfg.MaxCandidates {
		candidates = candidates[:d.cfg.MaxCandidates]
	}

	result := models.KeyDiscoveryResult{Candidates: candidates}
	if primary, ok := result.Primary(); ok {
		result.Confidence = primary.Confidence
		d.logger.Info().
			Str("bo_column", primary.BOColumn).
			Str("partner_column", primary.PartnerColumn).
			Float64("confidence", primary.Confidence).
			Strs("treatments", primary.ContentAnalysis.Treatments).
			Int("candidates", len(candidates)).
			Msg("key discovery finished")
	} else {
		d.logger.Warn().Int("bo_rows", len(bo)).Int("partner_rows", len(partner)).Msg("no key candidate found")
	}
	return result, nil
}

func (d *Discoverer) score(bc, pc columnSample) (models.KeyCandidate, bool) {
	nameSim := NameSimilarity(bc.name, pc.name)
	if looksLikeKey(bc.name) && looksLikeKey(pc.name) && nameSim < keyHintSimilarity {
		nameSim = keyHintSimilarity
	}
	treatments, overlap := d.alignValues(bc.values, pc.distinct)
	if overlap == 0 && nameSim < nameOnlyThreshold {
		return models.KeyCandidate{}, false
	}
	uniqueness := float64(len(bc.distinct)) / float64(len(bc.values))

	total := d.cfg.NameWeight + d.cfg.ValueWeight + d.cfg.UniquenessWeight
	confidence := (d.cfg.NameWeight*nameSim + d.cfg.ValueWeight*overlap + d.cfg.UniquenessWeight*uniqueness) / total
	confidence = clamp(confidence)

	return models.KeyCandidate{
		BOColumn:      bc.name,
		PartnerColumn: pc.name,
		Confidence:    confidence,
		ContentAnalysis: models.ContentAnalysis{
			Treatments: treatments,
			Justification: fmt.Sprintf("name similarity %.2f, value overlap %.0f%% on %d sampled values, uniqueness %.2f%s",
				nameSim, overlap*100, len(bc.values), uniqueness, describeTreatments(treatments)),
		},
	}, true
}

// alignValues searches the treatment subsets by increasing size and keeps
// the first one reaching the best overlap of the transformed BO sample with
// the partner values, so the returned set is minimal.
func (d *Discoverer) alignValues(boValues []string, partner map[string]struct{}) ([]string, float64) {
	best := overlapRatio(boValues, partner, nil)
	chosen := []string{}
	if best == 1 {
		return chosen, best
	}
	for _, subset := range candidateSubsets {
		s := overlapRatio(boValues, partner, subset)
		if s > best {
			best, chosen = s, subset
			if best == 1 {
				break
			}
		}
	}
	return orderTreatments(chosen), best
}

var candidateSubsets = treatmentSubsets()

// treatmentSubsets lists the non-empty subsets of searchTreatments ordered by
// size, then by position in searchTreatments.
func treatmentSubsets() [][]string {
	n := len(searchTreatments)
	var out [][]string
	for size := 1; size <= n; size++ {
		for mask := 1; mask < 1<<n; mask++ {
			if bitCount(mask) != size {
				continue
			}
			var subset []string
			for i := 0; i < n; i++ {
				if mask&(1<<i) != 0 {
					subset = append(subset, searchTreatments[i])
				}
			}
			out = append(out, subset)
		}
	}
	return out
}

func bitCount(v int) int {
	c := 0
	for ; v != 0; v &= v - 1 {
		c++
	}
	return c
}

func overlapRatio(values []string, partner map[string]struct{}, treatments []string) float64 {
	rule, _ := normalize.RuleFromTreatments("", treatments)
	seen := map[string]struct{}{}
	hits := 0
	for _, v := range values {
		tv := normalize.ApplyString(v, rule)
		if _, dup := seen[tv]; dup {
			continue
		}
		seen[tv] = struct{}{}
		if _, ok := partner[tv]; ok {
			hits++
		}
	}
	if len(seen) == 0 {
		return 0
	}
	return float64(hits) / float64(len(seen))
}

// sample collects up to SampleSize non-empty values per column, with columns
// sorted by name.
func (d *Discoverer) sample(rows []models.Row) []columnSample {
	limit := d.cfg.SampleSize
	if limit > len(rows) {
		limit = len(rows)
	}
	byName := map[string]*columnSample{}
	for _, row := range rows[:limit] {
		for col, v := range row {
			cs, ok := byName[col]
			if !ok {
				cs = &columnSample{name: col, distinct: map[string]struct{}{}}
				byName[col] = cs
			}
			if v == nil || strings.TrimSpace(*v) == "" {
				continue
			}
			cs.values = append(cs.values, *v)
			cs.distinct[*v] = struct{}{}
		}
	}
	out := make([]columnSample, 0, len(byName))
	for _, cs := range byName {
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func orderTreatments(chosen []string) []string {
	out := make([]string, 0, len(chosen))
	for _, t := range normalize.Treatments {
		if contains(chosen, t) {
			out = append(out, t)
		}
	}
	return out
}

func describeTreatments(ts []string) string {
	if len(ts) == 0 {
		return ""
	}
	return ", after " + strings.Join(ts, "+")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
