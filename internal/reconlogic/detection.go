package reconlogic

import (
	"strings"

	"github.com/stanstork/reconciler/internal/models"
)

// MarkerPattern describes one independent signal of a special-ratio dataset.
// A marker is confirmed by any value containing one of ValueSubstrings, any
// column name containing one of ColumnSubstrings, or at least MinAliasMatches
// of ColumnAliases being present.
type MarkerPattern struct {
	Name             string   `mapstructure:"name"`
	ValueSubstrings  []string `mapstructure:"value_substrings"`
	ColumnSubstrings []string `mapstructure:"column_substrings"`
	ColumnAliases    []string `mapstructure:"column_aliases"`
	MinAliasMatches  int      `mapstructure:"min_alias_matches"`
}

type DetectionConfig struct {
	SampleRows int             `mapstructure:"sample_rows"`
	Markers    []MarkerPattern `mapstructure:"markers"`
	// ExclusionFingerprint identifies an unrelated partner schema. When at
	// least ExclusionMinMatches of these columns are present detection is
	// forced to "not special".
	ExclusionFingerprint []string `mapstructure:"exclusion_fingerprint"`
	ExclusionMinMatches  int      `mapstructure:"exclusion_min_matches"`
}

func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		SampleRows: 50,
		Markers: []MarkerPattern{
			{
				Name:             "principal",
				ValueSubstrings:  []string{"PRINCIPAL"},
				ColumnSubstrings: []string{"principal"},
				ColumnAliases:    []string{"principal_amount", "principal_ref", "operation_ref", "debit_account", "value_date"},
				MinAliasMatches:  4,
			},
			{
				Name:             "fee",
				ValueSubstrings:  []string{"COMMISSION", "FEE"},
				ColumnSubstrings: []string{"commission", "fee"},
				ColumnAliases:    []string{"fee_amount", "commission_amount", "fee_type", "fee_account", "tax_amount"},
				MinAliasMatches:  4,
			},
		},
		ExclusionFingerprint: []string{"msisdn", "wallet_id", "agent_code", "channel", "balance_after"},
		ExclusionMinMatches:  4,
	}
}

// DetectionReport explains a content-based detection outcome.
type DetectionReport struct {
	Excluded bool            `json:"excluded"`
	Markers  map[string]bool `json:"markers"`
	Special  bool            `json:"special"`
}

type Detector struct {
	cfg DetectionConfig
}

func NewDetector(cfg DetectionConfig) *Detector {
	def := DefaultDetectionConfig()
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = def.SampleRows
	}
	if len(cfg.Markers) == 0 {
		cfg.Markers = def.Markers
	}
	if len(cfg.ExclusionFingerprint) == 0 {
		cfg.ExclusionFingerprint = def.ExclusionFingerprint
	}
	if cfg.ExclusionMinMatches <= 0 {
		cfg.ExclusionMinMatches = def.ExclusionMinMatches
	}
	return &Detector{cfg: cfg}
}

// Detect reports whether the samples look like a special-ratio dataset.
// Every marker must be confirmed on either side, and the exclusion check on
// the partner columns runs first and always wins.
func (d *Detector) Detect(bo, partner []models.Row) DetectionReport {
	report := DetectionReport{Markers: map[string]bool{}}

	partnerCols := columnSet(d.head(partner))
	if countPresent(partnerCols, d.cfg.ExclusionFingerprint) >= d.cfg.ExclusionMinMatches {
		report.Excluded = true
		return report
	}

	boRows, partnerRows := d.head(bo), d.head(partner)
	boCols := columnSet(boRows)
	all := len(d.cfg.Markers) > 0
	for _, m := range d.cfg.Markers {
		found := markerPresent(m, boCols, boRows) || markerPresent(m, partnerCols, partnerRows)
		report.Markers[m.Name] = found
		all = all && found
	}
	report.Special = all
	return report
}

func (d *Detector) head(rows []models.Row) []models.Row {
	if len(rows) > d.cfg.SampleRows {
		return rows[:d.cfg.SampleRows]
	}
	return rows
}

func markerPresent(m MarkerPattern, cols map[string]bool, rows []models.Row) bool {
	for col := range cols {
		for _, sub := range m.ColumnSubstrings {
			if sub != "" && strings.Contains(col, strings.ToLower(sub)) {
				return true
			}
		}
	}
	need := m.MinAliasMatches
	if need <= 0 {
		need = 4
	}
	if len(m.ColumnAliases) > 0 && countPresent(cols, m.ColumnAliases) >= need {
		return true
	}
	for _, row := range rows {
		for _, v := range row {
			if v == nil {
				continue
			}
			upper := strings.ToUpper(*v)
			for _, sub := range m.ValueSubstrings {
				if sub != "" && strings.Contains(upper, strings.ToUpper(sub)) {
					return true
				}
			}
		}
	}
	return false
}

// columnSet collects lower-cased, trimmed column names across rows.
func columnSet(rows []models.Row) map[string]bool {
	set := map[string]bool{}
	for _, row := range rows {
		for col := range row {
			set[strings.ToLower(strings.TrimSpace(col))] = true
		}
	}
	return set
}

func countPresent(set map[string]bool, names []string) int {
	n := 0
	for _, name := range names {
		if set[strings.ToLower(name)] {
			n++
		}
	}
	return n
}
