package normalize

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/stanstork/reconciler/internal/models"
)

// ErrDuplicateOrder is returned when two rules of one model share an order.
var ErrDuplicateOrder = errors.New("duplicate transformation rule order")

// Treatment names understood by RuleFromTreatments. Discovery reports the
// treatments it found necessary using the same vocabulary.
const (
	TreatmentTrim               = "trim"
	TreatmentToLowerCase        = "toLowerCase"
	TreatmentToUpperCase        = "toUpperCase"
	TreatmentRemoveSpecialChars = "removeSpecialChars"
	TreatmentRemoveAccents      = "removeAccents"
	TreatmentPadZeros           = "padZeros"
	TreatmentNumeric            = "numeric"
)

// Treatments lists the vocabulary in pipeline order.
var Treatments = []string{
	TreatmentNumeric,
	TreatmentToUpperCase,
	TreatmentToLowerCase,
	TreatmentTrim,
	TreatmentRemoveSpecialChars,
	TreatmentRemoveAccents,
	TreatmentPadZeros,
}

// RuleFromTreatments builds an in-place rule on column enabling each named
// treatment. Names outside the vocabulary are returned in unknown.
func RuleFromTreatments(column string, treatments []string) (rule models.TransformationRule, unknown []string) {
	rule = models.TransformationRule{
		SourceColumn: column,
		TargetColumn: column,
		FormatType:   models.FormatString,
	}
	for _, t := range treatments {
		switch t {
		case TreatmentTrim:
			rule.TrimSpaces = true
		case TreatmentToLowerCase:
			rule.ToLowerCase = true
		case TreatmentToUpperCase:
			rule.ToUpperCase = true
		case TreatmentRemoveSpecialChars:
			rule.RemoveSpecialChars = true
		case TreatmentRemoveAccents:
			rule.RemoveAccents = true
		case TreatmentPadZeros:
			rule.PadZeros = true
		case TreatmentNumeric:
			rule.FormatType = models.FormatNumeric
		default:
			unknown = append(unknown, t)
		}
	}
	return rule, unknown
}

// SortRules returns a copy of rules in ascending order, rejecting ties.
func SortRules(rules []models.TransformationRule) ([]models.TransformationRule, error) {
	sorted := make([]models.TransformationRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Order == sorted[i-1].Order {
			return nil, errors.Wrapf(ErrDuplicateOrder, "order %d used by %q and %q",
				sorted[i].Order, sorted[i-1].SourceColumn, sorted[i].SourceColumn)
		}
	}
	return sorted, nil
}

// ApplyRules applies rules in ascending order to a copy of row. Rules whose
// source column is absent are skipped; later rules see earlier outputs.
func ApplyRules(row models.Row, rules []models.TransformationRule) (models.Row, error) {
	sorted, err := SortRules(rules)
	if err != nil {
		return nil, err
	}
	return applySorted(row, sorted), nil
}

func applySorted(row models.Row, sorted []models.TransformationRule) models.Row {
	out := row.Clone()
	for _, rule := range sorted {
		v, ok := out[rule.SourceColumn]
		if !ok {
			continue
		}
		out[rule.Target()] = Apply(v, rule)
	}
	return out
}

// ApplyToDataset applies rules to every row of rows.
func ApplyToDataset(rows []models.Row, rules []models.TransformationRule) ([]models.Row, error) {
	sorted, err := SortRules(rules)
	if err != nil {
		return nil, err
	}
	out := make([]models.Row, len(rows))
	for i, row := range rows {
		out[i] = applySorted(row, sorted)
	}
	return out, nil
}

// ApplyToColumn applies a single rule to column across rows, returning new rows.
func ApplyToColumn(rows []models.Row, rule models.TransformationRule) []models.Row {
	out := make([]models.Row, len(rows))
	for i, row := range rows {
		out[i] = applySorted(row, []models.TransformationRule{rule})
	}
	return out
}

// AssignOrders numbers rules 1..n in their current sequence so a model never
// stores two rules with the same order.
func AssignOrders(rules []models.TransformationRule) []models.TransformationRule {
	out := make([]models.TransformationRule, len(rules))
	for i, r := range rules {
		r.Order = i + 1
		out[i] = r
	}
	return out
}

// Describe renders a rule for logs.
func Describe(rule models.TransformationRule) string {
	return fmt.Sprintf("%s->%s[%s]", rule.SourceColumn, rule.Target(), rule.FormatType)
}
