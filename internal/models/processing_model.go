package models

import (
	"encoding/json"
	"time"
)

type ModelType string

const (
	ModelTypePartner ModelType = "PARTNER"
	ModelTypeBO      ModelType = "BO"
	ModelTypeBoth    ModelType = "BOTH"
)

// ProcessingModel is a stored reconciliation configuration. The three JSON
// payloads are parsed into typed configs by reconlogic.
type ProcessingModel struct {
	ID                  string               `json:"id" db:"id"`
	Name                string               `json:"name" db:"name"`
	ModelType           ModelType            `json:"model_type" db:"model_type"`
	FilePattern         string               `json:"file_pattern" db:"file_pattern"`
	ReconciliationLogic json.RawMessage      `json:"reconciliation_logic,omitempty" db:"reconciliation_logic"`
	CorrespondenceRules json.RawMessage      `json:"correspondence_rules,omitempty" db:"correspondence_rules"`
	ComparisonColumns   json.RawMessage      `json:"comparison_columns,omitempty" db:"comparison_columns"`
	Rules               []TransformationRule `json:"rules,omitempty" db:"-"`
	CreatedAt           time.Time            `json:"created_at" db:"created_at"`
}
