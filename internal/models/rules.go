package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

type FormatType string

const (
	FormatString  FormatType = "string"
	FormatNumeric FormatType = "numeric"
	FormatDate    FormatType = "date"
	FormatBoolean FormatType = "boolean"
)

// CharReplacement is one entry of an ordered character substitution map.
type CharReplacement struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TransformationRule describes how one column of a processing model is normalized.
type TransformationRule struct {
	ID                 string            `json:"id" db:"id"`
	ModelID            string            `json:"model_id" db:"model_id"`
	SourceColumn       string            `json:"source_column" db:"source_column"`
	TargetColumn       string            `json:"target_column" db:"target_column"`
	FormatType         FormatType        `json:"format_type" db:"format_type"`
	ToUpperCase        bool              `json:"to_upper_case" db:"to_upper_case"`
	ToLowerCase        bool              `json:"to_lower_case" db:"to_lower_case"`
	TrimSpaces         bool              `json:"trim_spaces" db:"trim_spaces"`
	RemoveSpecialChars bool              `json:"remove_special_chars" db:"remove_special_chars"`
	RemoveAccents      bool              `json:"remove_accents" db:"remove_accents"`
	PadZeros           bool              `json:"pad_zeros" db:"pad_zeros"`
	StripLiteral       string            `json:"strip_literal,omitempty" db:"strip_literal"`
	RegexReplace       string            `json:"regex_replace,omitempty" db:"regex_replace"`
	CharReplacements   []CharReplacement `json:"char_replacements,omitempty" db:"-"`
	Order              int               `json:"order" db:"rule_order"`
}

// Target returns the column the rule writes to, defaulting to the source column.
func (r TransformationRule) Target() string {
	if r.TargetColumn == "" {
		return r.SourceColumn
	}
	return r.TargetColumn
}

// KeyCandidate is a proposed (BO column, partner column) join pair.
type KeyCandidate struct {
	BOColumn        string          `json:"bo_column"`
	PartnerColumn   string          `json:"partner_column"`
	ContentAnalysis ContentAnalysis `json:"content_analysis"`
	Confidence      float64         `json:"confidence"`
}

// ContentAnalysis records which transformations aligned the candidate's values.
type ContentAnalysis struct {
	Treatments    []string `json:"treatments"`
	Justification string   `json:"justification"`
}

// KeyDiscoveryResult lists candidates best first. Index 0 is the primary key pair.
type KeyDiscoveryResult struct {
	Candidates []KeyCandidate `json:"candidates"`
	Confidence float64        `json:"confidence"`
}

// Primary returns the first candidate, if any.
func (r KeyDiscoveryResult) Primary() (KeyCandidate, bool) {
	if len(r.Candidates) == 0 {
		return KeyCandidate{}, false
	}
	return r.Candidates[0], true
}

type ReconciliationLogicType string

const (
	LogicStandard     ReconciliationLogicType = "STANDARD"
	LogicSpecialRatio ReconciliationLogicType = "SPECIAL_RATIO"
	LogicCustom       ReconciliationLogicType = "CUSTOM"
)

// Correspondence rule actions.
const (
	ActionMatch          = "MARK_AS_MATCH"
	ActionMismatch       = "MARK_AS_MISMATCH"
	ActionMismatchPrefix = "MARK_AS_MISMATCH_"
	ActionBOOnlyPrefix   = "MARK_AS_BO_ONLY_"
)

// CorrespondenceRule maps an observed partner match count to an outcome.
type CorrespondenceRule struct {
	Name        string `json:"name"`
	Condition   string `json:"condition"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

const (
	ComparisonAuto      = "AUTO"
	DefaultToleranceStr = "0.01"
)

// ComparisonColumn is a non-key column pair the matcher compares.
type ComparisonColumn struct {
	BOColumn       string          `json:"bo_column"`
	PartnerColumn  string          `json:"partner_column"`
	Tolerance      decimal.Decimal `json:"tolerance"`
	ComparisonType string          `json:"comparison_type"`
}

// DefaultTolerance is the numeric tolerance applied when none is configured.
var DefaultTolerance = decimal.RequireFromString(DefaultToleranceStr)

// SortedColumns returns the row's column names in lexical order.
func SortedColumns(r Row) []string {
	cols := r.Columns()
	sort.Strings(cols)
	return cols
}
