package reconlogic

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/stanstork/reconciler/internal/models"
)

// ErrEmptyConfig marks a stored payload that is absent or carries no entries.
var ErrEmptyConfig = errors.New("empty stored configuration")

// LogicConfig is the typed form of a model's reconciliationLogic payload.
type LogicConfig struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type rulesPayload struct {
	Rules []models.CorrespondenceRule `json:"rules"`
}

type columnPayload struct {
	BOColumn       string           `json:"boColumn"`
	PartnerColumn  string           `json:"partnerColumn"`
	Tolerance      *decimal.Decimal `json:"tolerance"`
	ComparisonType string           `json:"comparisonType"`
}

type columnsPayload struct {
	Columns []columnPayload `json:"columns"`
}

func isEmpty(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || s == "{}"
}

// ParseLogicConfig decodes a reconciliationLogic payload. A payload without
// a type is reported as ErrEmptyConfig.
func ParseLogicConfig(raw json.RawMessage) (LogicConfig, error) {
	if isEmpty(raw) {
		return LogicConfig{}, ErrEmptyConfig
	}
	var cfg LogicConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return LogicConfig{}, errors.Wrap(err, "decode reconciliation logic")
	}
	if strings.TrimSpace(cfg.Type) == "" {
		return LogicConfig{}, ErrEmptyConfig
	}
	return cfg, nil
}

// ParseLogicType maps a stored type name case-insensitively. Unknown names
// return ok=false and STANDARD.
func ParseLogicType(name string) (models.ReconciliationLogicType, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.NewReplacer("-", "_", " ", "_").Replace(n)
	switch models.ReconciliationLogicType(n) {
	case models.LogicSpecialRatio:
		return models.LogicSpecialRatio, true
	case models.LogicStandard:
		return models.LogicStandard, true
	case models.LogicCustom:
		return models.LogicCustom, true
	}
	return models.LogicStandard, false
}

// ParseRulesConfig decodes and validates a correspondenceRules payload.
// Every rule must carry a parseable condition and an action.
func ParseRulesConfig(raw json.RawMessage) ([]models.CorrespondenceRule, error) {
	if isEmpty(raw) {
		return nil, ErrEmptyConfig
	}
	var p rulesPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, "decode correspondence rules")
	}
	if len(p.Rules) == 0 {
		return nil, ErrEmptyConfig
	}
	if _, err := Compile(p.Rules); err != nil {
		return nil, err
	}
	return p.Rules, nil
}

// ParseColumnsConfig decodes and validates a comparisonColumns payload.
// Missing tolerance and type default to 0.01 and AUTO.
func ParseColumnsConfig(raw json.RawMessage) ([]models.ComparisonColumn, error) {
	if isEmpty(raw) {
		return nil, ErrEmptyConfig
	}
	var p columnsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, "decode comparison columns")
	}
	if len(p.Columns) == 0 {
		return nil, ErrEmptyConfig
	}
	out := make([]models.ComparisonColumn, 0, len(p.Columns))
	for i, c := range p.Columns {
		if strings.TrimSpace(c.BOColumn) == "" || strings.TrimSpace(c.PartnerColumn) == "" {
			return nil, errors.Errorf("comparison column %d: both column names are required", i)
		}
		col := models.ComparisonColumn{
			BOColumn:       c.BOColumn,
			PartnerColumn:  c.PartnerColumn,
			Tolerance:      models.DefaultTolerance,
			ComparisonType: models.ComparisonAuto,
		}
		if c.Tolerance != nil {
			if c.Tolerance.IsNegative() {
				return nil, errors.Errorf("comparison column %d: negative tolerance", i)
			}
			col.Tolerance = *c.Tolerance
		}
		if t := strings.TrimSpace(c.ComparisonType); t != "" {
			col.ComparisonType = strings.ToUpper(t)
		}
		out = append(out, col)
	}
	return out, nil
}
