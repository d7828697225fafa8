package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mishalinitiative/quizbot/internal/model"
)

// ExamRepository handles admin-created exam definitions. The per-unit
// source mappings and media attachments live in JSONB sub-fields.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves one exam definition.
func (r *ExamRepository) GetByID(ctx context.Context, examID string) (*model.ExamDefinition, error) {
	def := &model.ExamDefinition{}
	var explanation, mcq, narrative, media []byte

	err := r.pool.QueryRow(ctx,
		`SELECT exam_id, button_text, question_type, explanation_source,
		        mcq_sources, narrative_sources, media_attachments, is_hidden,
		        created_at, updated_at
		 FROM dynamic_exams
		 WHERE exam_id = $1`, examID,
	).Scan(&def.ExamID, &def.ButtonText, &def.QuestionType, &explanation,
		&mcq, &narrative, &media, &def.IsHidden, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := decodeExamBlobs(def, explanation, mcq, narrative, media); err != nil {
		return nil, err
	}
	return def, nil
}

// List retrieves exam definitions, optionally including hidden ones.
func (r *ExamRepository) List(ctx context.Context, includeHidden bool) ([]model.ExamDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exam_id, button_text, question_type, explanation_source,
		        mcq_sources, narrative_sources, media_attachments, is_hidden,
		        created_at, updated_at
		 FROM dynamic_exams
		 WHERE $1 OR NOT is_hidden
		 ORDER BY created_at ASC`, includeHidden,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []model.ExamDefinition
	for rows.Next() {
		var def model.ExamDefinition
		var explanation, mcq, narrative, media []byte
		if err := rows.Scan(&def.ExamID, &def.ButtonText, &def.QuestionType, &explanation,
			&mcq, &narrative, &media, &def.IsHidden, &def.CreatedAt, &def.UpdatedAt); err != nil {
			return nil, err
		}
		if err := decodeExamBlobs(&def, explanation, mcq, narrative, media); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// Create inserts a new exam definition. The exam id is immutable: a
// conflicting id is an error, never an overwrite.
func (r *ExamRepository) Create(ctx context.Context, def *model.ExamDefinition) error {
	explanation, mcq, narrative, media, err := encodeExamBlobs(def)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO dynamic_exams
		   (exam_id, button_text, question_type, explanation_source,
		    mcq_sources, narrative_sources, media_attachments, is_hidden,
		    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		def.ExamID, def.ButtonText, def.QuestionType, explanation,
		mcq, narrative, media, def.IsHidden)
	return err
}

// SetHidden toggles menu visibility.
func (r *ExamRepository) SetHidden(ctx context.Context, examID string, hidden bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE dynamic_exams SET is_hidden = $2, updated_at = NOW() WHERE exam_id = $1`,
		examID, hidden)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of admin-created exams.
func (r *ExamRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dynamic_exams`).Scan(&n)
	return n, err
}

func encodeExamBlobs(def *model.ExamDefinition) (explanation, mcq, narrative, media []byte, err error) {
	if explanation, err = json.Marshal(def.ExplanationSource); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode explanation source: %w", err)
	}
	if mcq, err = json.Marshal(def.MCQSources); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode mcq sources: %w", err)
	}
	if narrative, err = json.Marshal(def.NarrativeSources); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode narrative sources: %w", err)
	}
	if media, err = json.Marshal(def.Media); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode media attachments: %w", err)
	}
	return explanation, mcq, narrative, media, nil
}

func decodeExamBlobs(def *model.ExamDefinition, explanation, mcq, narrative, media []byte) error {
	if len(explanation) > 0 {
		if err := json.Unmarshal(explanation, &def.ExplanationSource); err != nil {
			return fmt.Errorf("decode explanation source: %w", err)
		}
	}
	if len(mcq) > 0 {
		if err := json.Unmarshal(mcq, &def.MCQSources); err != nil {
			return fmt.Errorf("decode mcq sources: %w", err)
		}
	}
	if len(narrative) > 0 {
		if err := json.Unmarshal(narrative, &def.NarrativeSources); err != nil {
			return fmt.Errorf("decode narrative sources: %w", err)
		}
	}
	if len(media) > 0 {
		if err := json.Unmarshal(media, &def.Media); err != nil {
			return fmt.Errorf("decode media attachments: %w", err)
		}
	}
	return nil
}
