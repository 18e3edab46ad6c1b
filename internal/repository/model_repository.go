package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/stanstork/reconciler/internal/models"
)

// ProcessingModelRepository is the read side of stored reconciliation models.
type ProcessingModelRepository interface {
	// ListByTypes returns models of the given types, oldest first, each with
	// its transformation rules in order.
	ListByTypes(ctx context.Context, types ...models.ModelType) ([]models.ProcessingModel, error)
	Get(ctx context.Context, modelID string) (models.ProcessingModel, error)
}

type processingModelRepository struct {
	db *sqlx.DB
}

func NewProcessingModelRepository(db *sqlx.DB) ProcessingModelRepository {
	return &processingModelRepository{db: db}
}

const modelColumns = `id, name, model_type, file_pattern, reconciliation_logic, correspondence_rules, comparison_columns, created_at`

type ruleRow struct {
	models.TransformationRule
	CharReplacements []byte `db:"char_replacements"`
}

func (r *processingModelRepository) ListByTypes(ctx context.Context, types ...models.ModelType) ([]models.ProcessingModel, error) {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	query := `
		SELECT ` + modelColumns + `
		  FROM reconciliation.processing_models
		 WHERE model_type = ANY($1)
		 ORDER BY created_at, id
	`
	var out []models.ProcessingModel
	if err := r.db.SelectContext(ctx, &out, query, pq.Array(names)); err != nil {
		return nil, errors.Wrap(err, "select processing models")
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(out))
	for _, m := range out {
		ids = append(ids, m.ID)
	}
	rules, err := r.rulesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Rules = rules[out[i].ID]
	}
	return out, nil
}

func (r *processingModelRepository) Get(ctx context.Context, modelID string) (models.ProcessingModel, error) {
	query := `SELECT ` + modelColumns + ` FROM reconciliation.processing_models WHERE id = $1`

	var m models.ProcessingModel
	if err := r.db.GetContext(ctx, &m, query, modelID); err != nil {
		if err == sql.ErrNoRows {
			return m, ErrNotFound
		}
		return m, errors.Wrapf(err, "select processing model %s", modelID)
	}
	rules, err := r.rulesFor(ctx, []string{modelID})
	if err != nil {
		return m, err
	}
	m.Rules = rules[modelID]
	return m, nil
}

func (r *processingModelRepository) rulesFor(ctx context.Context, modelIDs []string) (map[string][]models.TransformationRule, error) {
	const query = `
		SELECT id, model_id, source_column, target_column, format_type,
		       to_upper_case, to_lower_case, trim_spaces, remove_special_chars,
		       remove_accents, pad_zeros, strip_literal, regex_replace,
		       char_replacements, rule_order
		  FROM reconciliation.transformation_rules
		 WHERE model_id = ANY($1)
		 ORDER BY model_id, rule_order
	`
	var rows []ruleRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(modelIDs)); err != nil {
		return nil, errors.Wrap(err, "select transformation rules")
	}

	out := make(map[string][]models.TransformationRule, len(modelIDs))
	for _, row := range rows {
		rule := row.TransformationRule
		if len(row.CharReplacements) > 0 {
			if err := json.Unmarshal(row.CharReplacements, &rule.CharReplacements); err != nil {
				return nil, errors.Wrapf(err, "decode char replacements of rule %s", rule.ID)
			}
		}
		out[rule.ModelID] = append(out[rule.ModelID], rule)
	}
	return out, nil
}
