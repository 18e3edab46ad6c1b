package reconlogic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stanstork/reconciler/internal/models"
)

func rows(maps ...map[string]string) []models.Row {
	out := make([]models.Row, 0, len(maps))
	for _, m := range maps {
		out = append(out, models.NewRow(m))
	}
	return out
}

func TestDetectBothMarkersByValue(t *testing.T) {
	bo := rows(map[string]string{"ref": "A1", "label": "PRINCIPAL transfer"})
	partner := rows(map[string]string{"ref": "A1", "kind": "commission"})

	report := NewDetector(DefaultDetectionConfig()).Detect(bo, partner)

	assert.True(t, report.Special)
	assert.False(t, report.Excluded)
	assert.True(t, report.Markers["principal"])
	assert.True(t, report.Markers["fee"])
}

func TestDetectMarkerByColumnName(t *testing.T) {
	bo := rows(map[string]string{"ref": "A1", "Principal Amount": "10"})
	partner := rows(map[string]string{"ref": "A1", "fee_total": "1"})

	assert.True(t, NewDetector(DefaultDetectionConfig()).Detect(bo, partner).Special)
}

func TestDetectMarkerByAliasCount(t *testing.T) {
	cfg := DetectionConfig{
		Markers: []MarkerPattern{{
			Name:            "split",
			ColumnAliases:   []string{"a1", "a2", "a3", "a4", "a5"},
			MinAliasMatches: 4,
		}},
	}
	d := NewDetector(cfg)

	three := rows(map[string]string{"a1": "", "a2": "", "a3": ""})
	four := rows(map[string]string{"a1": "", "a2": "", "a3": "", "a5": ""})

	assert.False(t, d.Detect(three, nil).Special)
	assert.True(t, d.Detect(four, nil).Special)
}

func TestDetectSingleMarkerIsNotSpecial(t *testing.T) {
	bo := rows(map[string]string{"ref": "A1", "label": "PRINCIPAL"})
	partner := rows(map[string]string{"ref": "A1", "amount": "10"})

	report := NewDetector(DefaultDetectionConfig()).Detect(bo, partner)

	assert.False(t, report.Special)
	assert.True(t, report.Markers["principal"])
	assert.False(t, report.Markers["fee"])
}

func TestDetectExclusionOutranksMarkers(t *testing.T) {
	bo := rows(map[string]string{"ref": "A1", "label": "PRINCIPAL"})
	partner := rows(map[string]string{
		"msisdn":        "2250101",
		"wallet_id":     "W1",
		"agent_code":    "AG",
		"balance_after": "10",
		"kind":          "FEE",
	})

	report := NewDetector(DefaultDetectionConfig()).Detect(bo, partner)

	assert.True(t, report.Excluded)
	assert.False(t, report.Special)
}

func TestDetectOnlySamplesHead(t *testing.T) {
	d := NewDetector(DetectionConfig{SampleRows: 1})
	bo := rows(
		map[string]string{"label": "plain"},
		map[string]string{"label": "PRINCIPAL"},
	)
	partner := rows(map[string]string{"label": "FEE"})

	assert.False(t, d.Detect(bo, partner).Markers["principal"])
}
