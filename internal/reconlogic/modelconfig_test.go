package reconlogic

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/reconciler/internal/models"
)

func TestParseLogicType(t *testing.T) {
	tests := []struct {
		in    string
		want  models.ReconciliationLogicType
		known bool
	}{
		{"SPECIAL_RATIO", models.LogicSpecialRatio, true},
		{"special-ratio", models.LogicSpecialRatio, true},
		{"Standard", models.LogicStandard, true},
		{"custom", models.LogicCustom, true},
		{"fancy", models.LogicStandard, false},
	}
	for _, tt := range tests {
		got, known := ParseLogicType(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.known, known, tt.in)
	}
}

func TestParseLogicConfigEmpty(t *testing.T) {
	for _, raw := range []string{"", "null", "{}", `{"description":"x"}`} {
		_, err := ParseLogicConfig(json.RawMessage(raw))
		assert.True(t, errors.Is(err, ErrEmptyConfig), raw)
	}
}

func TestParseRulesConfig(t *testing.T) {
	raw := json.RawMessage(`{"rules":[
		{"name":"two","condition":"partnerMatches == 2","action":"MARK_AS_MATCH","description":"d"},
		{"name":"rest","condition":"partnerMatches != 2","action":"MARK_AS_MISMATCH"}
	]}`)

	rules, err := ParseRulesConfig(raw)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, models.CorrespondenceRule{
		Name: "two", Condition: "partnerMatches == 2", Action: models.ActionMatch, Description: "d",
	}, rules[0])
}

func TestParseRulesConfigInvalidCondition(t *testing.T) {
	raw := json.RawMessage(`{"rules":[{"name":"x","condition":"sometimes","action":"MARK_AS_MATCH"}]}`)
	_, err := ParseRulesConfig(raw)
	assert.True(t, errors.Is(err, ErrInvalidCondition))
}

func TestParseColumnsConfig(t *testing.T) {
	raw := json.RawMessage(`{"columns":[
		{"boColumn":"amount","partnerColumn":"montant","tolerance":0.5,"comparisonType":"NUMERIC"},
		{"boColumn":"date","partnerColumn":"date_op"}
	]}`)

	cols, err := ParseColumnsConfig(raw)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.True(t, decimal.RequireFromString("0.5").Equal(cols[0].Tolerance))
	assert.Equal(t, "NUMERIC", cols[0].ComparisonType)
	assert.True(t, models.DefaultTolerance.Equal(cols[1].Tolerance))
	assert.Equal(t, models.ComparisonAuto, cols[1].ComparisonType)
}

func TestParseColumnsConfigRejectsNegativeTolerance(t *testing.T) {
	raw := json.RawMessage(`{"columns":[{"boColumn":"a","partnerColumn":"b","tolerance":-1}]}`)
	_, err := ParseColumnsConfig(raw)
	assert.Error(t, err)
}
