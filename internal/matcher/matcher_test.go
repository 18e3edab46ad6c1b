package matcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/reconlogic"
)

func dataset(side models.DatasetSide, rows ...map[string]string) models.Dataset {
	d := models.Dataset{Side: side}
	for _, r := range rows {
		d.Rows = append(d.Rows, models.NewRow(r))
	}
	return d
}

func amountColumn() []models.ComparisonColumn {
	return []models.ComparisonColumn{{
		BOColumn: "amount", PartnerColumn: "montant",
		Tolerance: models.DefaultTolerance, ComparisonType: models.ComparisonAuto,
	}}
}

func TestLocalStandard(t *testing.T) {
	req := models.MatchRequest{
		JobID: "j1",
		BO: dataset(models.SideBO,
			map[string]string{"ref": "a", "amount": "10.00"},
			map[string]string{"ref": "b", "amount": "20.00"},
			map[string]string{"ref": "c", "amount": "30.00"},
			map[string]string{"ref": "d", "amount": "40.00"},
		),
		Partner: dataset(models.SidePartner,
			map[string]string{"id": "a", "montant": "10,005"},
			map[string]string{"id": "b", "montant": "25"},
			map[string]string{"id": "d", "montant": "40"},
			map[string]string{"id": "d", "montant": "40"},
			map[string]string{"id": "z", "montant": "1"},
		),
		BOKeyColumn:       "ref",
		PartnerKeyColumn:  "id",
		LogicType:         models.LogicStandard,
		Rules:             reconlogic.StandardRules(),
		ComparisonColumns: amountColumn(),
	}

	resp, err := NewLocal().Reconcile(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, resp.TotalMatches)
	assert.Equal(t, 3, resp.TotalMismatches)
	assert.Equal(t, 0, resp.TotalBOOnly)
	assert.Equal(t, 1, resp.TotalPartnerOnly)
	assert.Equal(t, 4, resp.TotalBORecords)
	assert.Equal(t, 5, resp.TotalPartnerRecords)

	byRef := map[string]models.Mismatch{}
	for _, m := range resp.Mismatches {
		ref, _ := m.BO.Value("ref")
		byRef[ref] = m
	}
	assert.Contains(t, byRef["b"].Reason, "amount")
	assert.Equal(t, models.ActionMismatch, byRef["c"].Action)
	assert.Len(t, byRef["d"].Partners, 2)
}

func TestLocalSpecialRatio(t *testing.T) {
	req := models.MatchRequest{
		BO: dataset(models.SideBO,
			map[string]string{"ref": "a", "amount": "105"},
			map[string]string{"ref": "b", "amount": "50"},
			map[string]string{"ref": "c", "amount": "70"},
		),
		Partner: dataset(models.SidePartner,
			map[string]string{"id": "a", "montant": "100"},
			map[string]string{"id": "a", "montant": "5"},
			map[string]string{"id": "b", "montant": "50"},
		),
		BOKeyColumn:       "ref",
		PartnerKeyColumn:  "id",
		LogicType:         models.LogicSpecialRatio,
		ComparisonColumns: amountColumn(),
	}

	resp, err := NewLocal().Reconcile(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, resp.TotalMatches)
	assert.Equal(t, 1, resp.TotalMismatches)
	require.Equal(t, 1, resp.TotalMismatches)
	assert.Equal(t, models.ActionMismatchPrefix+reconlogic.RatioCode, resp.Mismatches[0].Action)
	assert.Equal(t, 0, resp.TotalPartnerOnly)
}

func TestLocalRulesExhausted(t *testing.T) {
	req := models.MatchRequest{
		BO:               dataset(models.SideBO, map[string]string{"ref": "a"}),
		Partner:          dataset(models.SidePartner),
		BOKeyColumn:      "ref",
		PartnerKeyColumn: "id",
		Rules:            []models.CorrespondenceRule{{Name: "one", Condition: "== 1", Action: models.ActionMatch}},
	}
	_, err := NewLocal().Reconcile(context.Background(), req)
	assert.ErrorIs(t, err, reconlogic.ErrNoRuleMatched)
}

type fakeEngine struct {
	gotJob string
	gotReq models.MatchRequest
	out    []byte
	err    error
}

func (f *fakeEngine) Reconcile(_ context.Context, jobID string, request []byte) ([]byte, error) {
	f.gotJob = jobID
	_ = json.Unmarshal(request, &f.gotReq)
	return f.out, f.err
}

func TestContainerMatcher(t *testing.T) {
	e := &fakeEngine{out: []byte(`{"total_matches":2,"total_bo_records":2}`)}
	req := models.MatchRequest{JobID: "j1", BOKeyColumn: "ref", Rules: reconlogic.StandardRules()}

	resp, err := NewContainerMatcher(e).Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalMatches)
	assert.Equal(t, "j1", e.gotJob)
	assert.Equal(t, "ref", e.gotReq.BOKeyColumn)
	assert.Len(t, e.gotReq.Rules, 2)
}

func TestContainerMatcherBadResponse(t *testing.T) {
	e := &fakeEngine{out: []byte(`not json`)}
	_, err := NewContainerMatcher(e).Reconcile(context.Background(), models.MatchRequest{})
	assert.Error(t, err)
}

type flakyMatcher struct{ calls int }

func (f *flakyMatcher) Reconcile(context.Context, models.MatchRequest) (models.MatchResponse, error) {
	f.calls++
	return models.MatchResponse{}, errors.New("engine down")
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	inner := &flakyMatcher{}
	b := NewBreakerMatcher(inner, 2, time.Minute, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := b.Reconcile(context.Background(), models.MatchRequest{})
		assert.EqualError(t, err, "engine down")
	}
	_, err := b.Reconcile(context.Background(), models.MatchRequest{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls)
}

func TestBreakerIgnoresRuleConfigurationErrors(t *testing.T) {
	b := NewBreakerMatcher(NewLocal(), 2, time.Minute, zerolog.Nop())
	base := models.MatchRequest{
		BO:               dataset(models.SideBO, map[string]string{"ref": "a"}),
		Partner:          dataset(models.SidePartner),
		BOKeyColumn:      "ref",
		PartnerKeyColumn: "id",
	}

	exhausted := base
	exhausted.Rules = []models.CorrespondenceRule{{Name: "one", Condition: "== 1", Action: models.ActionMatch}}
	invalid := base
	invalid.Rules = []models.CorrespondenceRule{{Name: "bad", Condition: "~~ 1", Action: models.ActionMatch}}

	for i := 0; i < 3; i++ {
		_, err := b.Reconcile(context.Background(), exhausted)
		assert.ErrorIs(t, err, reconlogic.ErrNoRuleMatched)
		_, err = b.Reconcile(context.Background(), invalid)
		assert.ErrorIs(t, err, reconlogic.ErrInvalidCondition)
	}

	resp, err := b.Reconcile(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalMismatches)
}
