package matcher

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/stanstork/reconciler/internal/models"
)

// Engine is the subset of engine.Client used here.
type Engine interface {
	Reconcile(ctx context.Context, jobID string, request []byte) ([]byte, error)
}

// ContainerMatcher delegates matching to the engine container.
type ContainerMatcher struct {
	engine Engine
}

func NewContainerMatcher(e Engine) *ContainerMatcher {
	return &ContainerMatcher{engine: e}
}

func (m *ContainerMatcher) Reconcile(ctx context.Context, req models.MatchRequest) (models.MatchResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return models.MatchResponse{}, errors.Wrap(err, "encode match request")
	}
	out, err := m.engine.Reconcile(ctx, req.JobID, payload)
	if err != nil {
		return models.MatchResponse{}, errors.Wrap(err, "engine reconcile")
	}
	var resp models.MatchResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return models.MatchResponse{}, errors.Wrap(err, "decode match response")
	}
	return resp, nil
}
