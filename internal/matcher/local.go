package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/reconlogic"
)

// Local is an in-process Matcher. For every BO row it counts the partner
// rows sharing its key, applies the first correspondence rule that holds
// and, for matches, checks the comparison columns.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (Local) Reconcile(ctx context.Context, req models.MatchRequest) (models.MatchResponse, error) {
	rules := req.Rules
	if len(rules) == 0 {
		rules = reconlogic.DefaultRules(req.LogicType)
	}
	compiled, err := reconlogic.Compile(rules)
	if err != nil {
		return models.MatchResponse{}, errors.Wrap(err, "compile correspondence rules")
	}

	index := map[string][]int{}
	for i, row := range req.Partner.Rows {
		if k, ok := row.Value(req.PartnerKeyColumn); ok {
			index[k] = append(index[k], i)
		}
	}

	resp := models.MatchResponse{
		TotalBORecords:      len(req.BO.Rows),
		TotalPartnerRecords: len(req.Partner.Rows),
	}
	usedPartner := make([]bool, len(req.Partner.Rows))

	for i, bo := range req.BO.Rows {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return models.MatchResponse{}, err
			}
		}
		var partners []models.Row
		if k, ok := bo.Value(req.BOKeyColumn); ok {
			for _, pi := range index[k] {
				partners = append(partners, req.Partner.Rows[pi])
				usedPartner[pi] = true
			}
		}

		rule, err := reconlogic.First(compiled, len(partners))
		if err != nil {
			return models.MatchResponse{}, err
		}

		switch {
		case rule.Action == models.ActionMatch:
			if reason := compareColumns(bo, partners, req.ComparisonColumns); reason != "" {
				resp.Mismatches = append(resp.Mismatches, models.Mismatch{
					BO: bo, Partners: partners, Action: models.ActionMismatch, Reason: reason,
				})
				continue
			}
			resp.Matches = append(resp.Matches, bo)
		case strings.HasPrefix(rule.Action, models.ActionBOOnlyPrefix):
			resp.BOOnly = append(resp.BOOnly, bo)
		default:
			resp.Mismatches = append(resp.Mismatches, models.Mismatch{
				BO: bo, Partners: partners, Action: rule.Action, Reason: rule.Description,
			})
		}
	}

	for i, row := range req.Partner.Rows {
		if !usedPartner[i] {
			resp.PartnerOnly = append(resp.PartnerOnly, row)
		}
	}

	resp.TotalMatches = len(resp.Matches)
	resp.TotalMismatches = len(resp.Mismatches)
	resp.TotalBOOnly = len(resp.BOOnly)
	resp.TotalPartnerOnly = len(resp.PartnerOnly)
	return resp, nil
}

// compareColumns describes every differing column, or returns "".
// Numeric values are compared against the sum over the matched partner rows
// within the column tolerance; other values against the first partner row.
func compareColumns(bo models.Row, partners []models.Row, cols []models.ComparisonColumn) string {
	if len(partners) == 0 {
		return ""
	}
	var diffs []string
	for _, c := range cols {
		bv, _ := bo.Value(c.BOColumn)
		if num, ok := parseDecimal(bv); ok && c.ComparisonType != "STRING" {
			sum, all := decimal.Zero, true
			for _, p := range partners {
				pv, _ := p.Value(c.PartnerColumn)
				d, ok := parseDecimal(pv)
				if !ok {
					all = false
					break
				}
				sum = sum.Add(d)
			}
			if all {
				if num.Sub(sum).Abs().GreaterThan(c.Tolerance) {
					diffs = append(diffs, fmt.Sprintf("%s: %s != %s", c.BOColumn, num.String(), sum.String()))
				}
				continue
			}
		}
		pv, _ := partners[0].Value(c.PartnerColumn)
		if !strings.EqualFold(strings.TrimSpace(bv), strings.TrimSpace(pv)) {
			diffs = append(diffs, fmt.Sprintf("%s: %q != %q", c.BOColumn, bv, pv))
		}
	}
	sort.Strings(diffs)
	return strings.Join(diffs, "; ")
}

func parseDecimal(v string) (decimal.Decimal, bool) {
	v = strings.ReplaceAll(strings.TrimSpace(v), ",", ".")
	v = strings.ReplaceAll(v, " ", "")
	if v == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
