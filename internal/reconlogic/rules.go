package reconlogic

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/pkg/errors"

	"github.com/stanstork/reconciler/internal/models"
)

// RatioCode tags the actions of the default special-ratio rule set.
const RatioCode = "RATIO_1_2"

var (
	ErrNoRuleMatched    = errors.New("no correspondence rule matched")
	ErrInvalidCondition = errors.New("invalid correspondence condition")
)

var conditionPattern = regexp.MustCompile(`^\s*(?:partnerMatches\s*)?(==|!=|>=|<=|>|<)\s*(\d+)\s*$`)

// Condition is a parsed "partnerMatches <op> <n>" expression.
type Condition struct {
	Op    string
	Value int
}

func ParseCondition(expr string) (Condition, error) {
	m := conditionPattern.FindStringSubmatch(expr)
	if m == nil {
		return Condition{}, errors.Wrapf(ErrInvalidCondition, "%q", expr)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return Condition{}, errors.Wrapf(ErrInvalidCondition, "%q: %v", expr, err)
	}
	return Condition{Op: m[1], Value: n}, nil
}

// Holds evaluates the condition for an observed partner match count.
func (c Condition) Holds(partnerMatches int) bool {
	switch c.Op {
	case "==":
		return partnerMatches == c.Value
	case "!=":
		return partnerMatches != c.Value
	case ">=":
		return partnerMatches >= c.Value
	case "<=":
		return partnerMatches <= c.Value
	case ">":
		return partnerMatches > c.Value
	case "<":
		return partnerMatches < c.Value
	}
	return false
}

func (c Condition) String() string {
	return fmt.Sprintf("partnerMatches %s %d", c.Op, c.Value)
}

// CompiledRule pairs a rule with its parsed condition.
type CompiledRule struct {
	models.CorrespondenceRule
	Cond Condition
}

// Compile parses every rule condition, keeping list order.
func Compile(rules []models.CorrespondenceRule) ([]CompiledRule, error) {
	out := make([]CompiledRule, 0, len(rules))
	for i, r := range rules {
		cond, err := ParseCondition(r.Condition)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %d (%s)", i, r.Name)
		}
		if r.Action == "" {
			return nil, errors.Errorf("rule %d (%s): action is required", i, r.Name)
		}
		out = append(out, CompiledRule{CorrespondenceRule: r, Cond: cond})
	}
	return out, nil
}

// First returns the first compiled rule whose condition holds. Exhausting
// the list is a configuration error.
func First(rules []CompiledRule, partnerMatches int) (models.CorrespondenceRule, error) {
	for _, r := range rules {
		if r.Cond.Holds(partnerMatches) {
			return r.CorrespondenceRule, nil
		}
	}
	return models.CorrespondenceRule{}, errors.Wrapf(ErrNoRuleMatched, "partnerMatches=%d over %d rules", partnerMatches, len(rules))
}

// Evaluate compiles rules and returns the first one holding for partnerMatches.
func Evaluate(rules []models.CorrespondenceRule, partnerMatches int) (models.CorrespondenceRule, error) {
	compiled, err := Compile(rules)
	if err != nil {
		return models.CorrespondenceRule{}, err
	}
	return First(compiled, partnerMatches)
}

// StandardRules is the default one-to-one rule set.
func StandardRules() []models.CorrespondenceRule {
	return []models.CorrespondenceRule{
		{
			Name:        "standard_match",
			Condition:   "partnerMatches == 1",
			Action:      models.ActionMatch,
			Description: "Exactly one partner record matches the BO record",
		},
		{
			Name:        "standard_mismatch",
			Condition:   "partnerMatches != 1",
			Action:      models.ActionMismatch,
			Description: "No partner record or several partner records match the BO record",
		},
	}
}

// SpecialRatioRules is the default one-to-two rule set.
func SpecialRatioRules() []models.CorrespondenceRule {
	return []models.CorrespondenceRule{
		{
			Name:        "ratio_match",
			Condition:   "partnerMatches == 2",
			Action:      models.ActionMatch,
			Description: "The BO record is matched by its two partner lines",
		},
		{
			Name:        "ratio_bo_only",
			Condition:   "partnerMatches == 0",
			Action:      models.ActionBOOnlyPrefix + RatioCode,
			Description: "No partner line found for the BO record",
		},
		{
			Name:        "ratio_partial",
			Condition:   "partnerMatches == 1",
			Action:      models.ActionMismatchPrefix + RatioCode,
			Description: "Only one of the two expected partner lines was found",
		},
		{
			Name:        "ratio_excess",
			Condition:   "partnerMatches >= 3",
			Action:      models.ActionMismatch,
			Description: "More partner lines than the expected ratio",
		},
	}
}

// DefaultRules returns the default rule set for a logic type. Only
// SPECIAL_RATIO has its own set; everything else falls back to STANDARD.
func DefaultRules(logic models.ReconciliationLogicType) []models.CorrespondenceRule {
	if logic == models.LogicSpecialRatio {
		return SpecialRatioRules()
	}
	return StandardRules()
}
