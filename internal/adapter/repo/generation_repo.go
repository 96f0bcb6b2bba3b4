package repo

import (
	"context"
	"fmt"

	"songapi/internal/domain"
	"songapi/internal/infra"
	"songapi/internal/sqlinline"
)

// GenerationRepositoryPG implements domain.GenerationRepository.
type GenerationRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewGenerationRepository creates a repository on top of a marker-checked executor.
func NewGenerationRepository(sql infra.SQLExecutor) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{sql: sql}
}

// EnsureSchema creates the generations table when it does not exist yet.
func (r *GenerationRepositoryPG) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{sqlinline.QEnsureGenerationsTable, sqlinline.QEnsureGenerationsIndex} {
		if _, err := r.sql.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure generations schema: %w", err)
		}
	}
	return nil
}

// Create inserts rec and stores the generated id on it.
func (r *GenerationRepositoryPG) Create(ctx context.Context, rec *domain.GenerationRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil generation record", domain.ErrValidation)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertGeneration,
		rec.ClientID,
		rec.Prompt,
		rec.Tags,
		rec.Status,
		rec.AudioURL,
		rec.ErrorMessage,
		rec.DurationMS,
		rec.CreatedAt,
	)
	if err := row.Scan(&rec.ID); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (r *GenerationRepositoryPG) ListRecent(ctx context.Context, limit int) ([]domain.GenerationRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrValidation)
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListRecentGenerations, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	records := make([]domain.GenerationRecord, 0, min(limit, 100))
	for rows.Next() {
		var rec domain.GenerationRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.ClientID,
			&rec.Prompt,
			&rec.Tags,
			&rec.Status,
			&rec.AudioURL,
			&rec.ErrorMessage,
			&rec.DurationMS,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generations: %w", err)
	}
	return records, nil
}
